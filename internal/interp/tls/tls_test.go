package tls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/guestvm/diag"
	"github.com/kolkov/guestvm/guest"
)

const wideKeys = 64 // key width that never exhausts in a test

var (
	mainThread  = guest.MainThread
	otherThread = guest.ThreadID(1)

	dtorA = guest.FuncRef{ID: 1, Name: "dtor_a"}
	dtorC = guest.FuncRef{ID: 2, Name: "dtor_c"}
)

func mustCreate(t *testing.T, d *Data, dtor guest.FuncRef) guest.TLSKey {
	t.Helper()
	key, err := d.CreateKey(dtor, wideKeys)
	require.NoError(t, err)
	return key
}

// TestCreateKeyMonotonic tests that keys are unique and strictly increasing
// across a session, independent of interleaved deletions.
func TestCreateKeyMonotonic(t *testing.T) {
	d := New()

	k1 := mustCreate(t, d, guest.NoFunc)
	assert.Equal(t, guest.TLSKey(1), k1, "first key must be 1, 0 is never issued")

	k2 := mustCreate(t, d, dtorA)
	require.NoError(t, d.DeleteKey(k1))
	k3 := mustCreate(t, d, guest.NoFunc)
	require.NoError(t, d.DeleteKey(k2))
	require.NoError(t, d.DeleteKey(k3))
	k4 := mustCreate(t, d, guest.NoFunc)

	assert.True(t, k1 < k2 && k2 < k3 && k3 < k4, "keys must be strictly increasing: %d %d %d %d", k1, k2, k3, k4)
	assert.Equal(t, 1, d.KeyCount())
}

// TestCreateKeyCapacity tests the key-space boundary: with a 2-bit handle
// width, keys 1..3 fit and the 4th allocation fails as unsupported.
func TestCreateKeyCapacity(t *testing.T) {
	d := New()

	for want := guest.TLSKey(1); want <= 3; want++ {
		key, err := d.CreateKey(guest.NoFunc, 2)
		require.NoError(t, err)
		assert.Equal(t, want, key)
	}

	_, err := d.CreateKey(guest.NoFunc, 2)
	require.Error(t, err)
	assert.True(t, diag.IsUnsupported(err), "key exhaustion is a tool limitation, not guest UB: %v", err)
	assert.False(t, diag.IsUB(err))
}

// TestLoadStore tests the per-thread value store, including the null
// normalization rule.
func TestLoadStore(t *testing.T) {
	d := New()
	key := mustCreate(t, d, guest.NoFunc)

	t.Run("load unset yields null", func(t *testing.T) {
		v, err := d.Load(key, mainThread)
		require.NoError(t, err)
		assert.True(t, v.IsNull())
	})

	t.Run("store then load", func(t *testing.T) {
		require.NoError(t, d.Store(key, mainThread, guest.ScalarFromBits(0xabc)))
		v, err := d.Load(key, mainThread)
		require.NoError(t, err)
		assert.Equal(t, uint64(0xabc), v.Bits())
	})

	t.Run("values are per thread", func(t *testing.T) {
		v, err := d.Load(key, otherThread)
		require.NoError(t, err)
		assert.True(t, v.IsNull(), "another thread's store must not leak")
	})

	t.Run("storing null clears", func(t *testing.T) {
		require.NoError(t, d.Store(key, mainThread, guest.Null()))
		v, err := d.Load(key, mainThread)
		require.NoError(t, err)
		assert.True(t, v.IsNull())
	})
}

// TestUnknownKeyUB tests that load, store and delete on a never-created or
// already-deleted key all fail as guest UB.
func TestUnknownKeyUB(t *testing.T) {
	d := New()
	deleted := mustCreate(t, d, guest.NoFunc)
	require.NoError(t, d.DeleteKey(deleted))

	keys := []struct {
		name string
		key  guest.TLSKey
	}{
		{name: "never created", key: 99},
		{name: "already deleted", key: deleted},
	}
	for _, tk := range keys {
		t.Run(tk.name, func(t *testing.T) {
			_, err := d.Load(tk.key, mainThread)
			assert.True(t, diag.IsUB(err), "load: %v", err)

			err = d.Store(tk.key, mainThread, guest.ScalarFromBits(1))
			assert.True(t, diag.IsUB(err), "store: %v", err)

			err = d.DeleteKey(tk.key)
			assert.True(t, diag.IsUB(err), "delete: %v", err)
		})
	}
}

// TestSetGlobalDtor tests the one-slot-per-thread rule and the
// draining-started latch.
func TestSetGlobalDtor(t *testing.T) {
	d := New()
	arg := guest.ScalarFromBits(0x11)

	require.NoError(t, d.SetGlobalDtor(mainThread, dtorA, arg))
	g, ok := d.GlobalDtor(mainThread)
	require.True(t, ok)
	assert.Equal(t, dtorA, g.Dtor)
	assert.Equal(t, arg, g.Data)

	err := d.SetGlobalDtor(mainThread, dtorC, arg)
	assert.True(t, diag.IsUnsupported(err), "second registration is an emulator limit: %v", err)

	// Another thread still has a free slot.
	require.NoError(t, d.SetGlobalDtor(otherThread, dtorC, arg))

	d.MarkDtorsRunning(otherThread)
	err = d.SetGlobalDtor(otherThread, dtorA, arg)
	assert.True(t, diag.IsUB(err), "registering after draining started is guest UB: %v", err)
}

// TestDtorsRunningLatch tests that the draining latch is one-way.
func TestDtorsRunningLatch(t *testing.T) {
	d := New()
	assert.False(t, d.DtorsRunning(mainThread))
	d.MarkDtorsRunning(mainThread)
	assert.True(t, d.DtorsRunning(mainThread))
	assert.False(t, d.DtorsRunning(otherThread))
}

// TestFetchDtor tests the scheduling scan: ascending order, unconditional
// removal of visited values, silent draining under destructor-less keys, and
// the resume-after-key parameter.
func TestFetchDtor(t *testing.T) {
	d := New()
	keyA := mustCreate(t, d, dtorA)
	keyB := mustCreate(t, d, guest.NoFunc)
	keyC := mustCreate(t, d, dtorC)

	vA := guest.ScalarFromBits(0xa)
	vB := guest.ScalarFromBits(0xb)
	vC := guest.ScalarFromBits(0xc)
	require.NoError(t, d.Store(keyA, mainThread, vA))
	require.NoError(t, d.Store(keyB, mainThread, vB))
	require.NoError(t, d.Store(keyC, mainThread, vC))

	// First pass from the start: key A wins and its value is taken.
	got, ok := d.FetchDtor(0, mainThread)
	require.True(t, ok)
	assert.Equal(t, Dtor{Fn: dtorA, Data: vA, Key: keyA}, got)
	v, err := d.Load(keyA, mainThread)
	require.NoError(t, err)
	assert.True(t, v.IsNull(), "value must be removed before the dtor runs")

	// Resuming after A skips B (drained silently, no dtor) and yields C.
	got, ok = d.FetchDtor(keyA, mainThread)
	require.True(t, ok)
	assert.Equal(t, Dtor{Fn: dtorC, Data: vC, Key: keyC}, got)
	v, err = d.Load(keyB, mainThread)
	require.NoError(t, err)
	assert.True(t, v.IsNull(), "dtor-less value must be drained while scanned over")

	// Nothing left, from any starting point.
	_, ok = d.FetchDtor(keyC, mainThread)
	assert.False(t, ok)
	_, ok = d.FetchDtor(0, mainThread)
	assert.False(t, ok)
}

// TestFetchDtorOtherThreadUntouched tests that a scan for one thread leaves
// other threads' values in place.
func TestFetchDtorOtherThreadUntouched(t *testing.T) {
	d := New()
	key := mustCreate(t, d, dtorA)
	require.NoError(t, d.Store(key, mainThread, guest.ScalarFromBits(1)))
	require.NoError(t, d.Store(key, otherThread, guest.ScalarFromBits(2)))

	_, ok := d.FetchDtor(0, mainThread)
	require.True(t, ok)

	v, err := d.Load(key, otherThread)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v.Bits())
}

// TestFetchDtorSkipsUnsetKeys tests that keys with no stored value for the
// thread neither stop the scan nor lose anything.
func TestFetchDtorSkipsUnsetKeys(t *testing.T) {
	d := New()
	_ = mustCreate(t, d, dtorA) // no value stored
	keyC := mustCreate(t, d, dtorC)
	vC := guest.ScalarFromBits(0xc)
	require.NoError(t, d.Store(keyC, mainThread, vC))

	got, ok := d.FetchDtor(0, mainThread)
	require.True(t, ok)
	assert.Equal(t, Dtor{Fn: dtorC, Data: vC, Key: keyC}, got)
}
