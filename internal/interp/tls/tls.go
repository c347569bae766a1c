package tls

import (
	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/kolkov/guestvm/diag"
	"github.com/kolkov/guestvm/guest"
)

// registryDegree is the branching factor of the key registry b-tree.
// Destructor counts per thread are small, so any sane degree works.
const registryDegree = 8

// slot is the registry entry for one TLS key.
type slot struct {
	key guest.TLSKey

	// data holds the stored value per thread. Absence means "no value";
	// stored nulls are normalized into absence on the way in, so a present
	// value is never null.
	data map[guest.ThreadID]guest.Scalar

	// dtor is the destructor associated with the key, fixed at creation.
	// Invalid when the key has none.
	dtor guest.FuncRef
}

func slotLess(a, b *slot) bool {
	return a.key < b.key
}

// GlobalDtor is a per-thread combined destructor registration: one callback
// with one argument, used on targets with a single-callback TLS model.
type GlobalDtor struct {
	Dtor guest.FuncRef
	Data guest.Scalar
}

// Dtor is one scheduled destructor invocation: the function to call, the
// value it receives as its sole argument, and the key the value was taken
// from (the resume point for the next scan).
type Dtor struct {
	Fn   guest.FuncRef
	Data guest.Scalar
	Key  guest.TLSKey
}

// Data owns all TLS state for one interpretation session. It is created once
// at session start and lives for the entire guest execution.
//
// Data is mutated only by the single controlling execution of the
// interpreter, so it carries no locking.
type Data struct {
	// nextKey is the next key to issue. Starts at 1: key 0 must never be
	// issued because some targets treat 0 as an invalid handle.
	nextKey guest.TLSKey

	// keys is the registry, ordered by ascending key.
	keys *btree.BTreeG[*slot]

	// globalDtors holds at most one combined destructor per thread.
	globalDtors map[guest.ThreadID]GlobalDtor

	// dtorsRunning latches the threads whose draining has begun. A thread
	// never leaves this set; while in it, some guest operations are UB.
	dtorsRunning map[guest.ThreadID]struct{}

	log *zap.Logger
}

// Option configures a Data.
type Option func(*Data)

// WithLogger sets the logger used for operation tracing. The default
// discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(d *Data) {
		d.log = log
	}
}

// New creates an empty TLS store.
func New(opts ...Option) *Data {
	d := &Data{
		nextKey:      1,
		keys:         btree.NewG(registryDegree, slotLess),
		globalDtors:  make(map[guest.ThreadID]GlobalDtor),
		dtorsRunning: make(map[guest.ThreadID]struct{}),
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CreateKey allocates a fresh TLS key with the given destructor (NoFunc for
// none). maxKeyBits is the handle width of the active target; the allocation
// fails with an unsupported-operation diagnostic exactly when the new key
// does not fit in that many bits.
func (d *Data) CreateKey(dtor guest.FuncRef, maxKeyBits uint) (guest.TLSKey, error) {
	newKey := d.nextKey
	d.nextKey++
	if _, clash := d.keys.ReplaceOrInsert(&slot{
		key:  newKey,
		data: make(map[guest.ThreadID]guest.Scalar),
		dtor: dtor,
	}); clash {
		diag.Internalf("TLS key %d issued twice", newKey)
	}
	d.log.Debug("new TLS key allocated",
		zap.Uint64("key", uint64(newKey)),
		zap.Stringer("dtor", dtor))

	if maxKeyBits < 64 && uint64(newKey) >= 1<<maxKeyBits {
		return 0, diag.Unsupportedf("ran out of TLS key space (key %d does not fit in %d bits)", newKey, maxKeyBits)
	}
	return newKey, nil
}

// DeleteKey removes a key and everything stored under it, for all threads.
// Deleting a key that was never allocated, or was already deleted, is UB.
func (d *Data) DeleteKey(key guest.TLSKey) error {
	if _, ok := d.keys.Delete(&slot{key: key}); !ok {
		return diag.UBf("removing a non-existing TLS key: %d", key)
	}
	d.log.Debug("TLS key removed", zap.Uint64("key", uint64(key)))
	return nil
}

// Load returns the value stored under key for the given thread, or the null
// scalar when nothing is stored. Loading from an unknown key is UB.
func (d *Data) Load(key guest.TLSKey, thread guest.ThreadID) (guest.Scalar, error) {
	s, ok := d.keys.Get(&slot{key: key})
	if !ok {
		return guest.Null(), diag.UBf("loading from a non-existing TLS key: %d", key)
	}
	value := s.data[thread] // zero value is the null scalar
	d.log.Debug("TLS key loaded",
		zap.Uint64("key", uint64(key)),
		zap.Stringer("thread", thread),
		zap.Stringer("value", value))
	return value, nil
}

// Store sets the value stored under key for the given thread. Storing the
// null scalar clears the slot: null is normalized into absence so a later
// Load or drain scan never sees a stored null. Storing to an unknown key
// is UB. Only the targeted thread's slot is affected.
func (d *Data) Store(key guest.TLSKey, thread guest.ThreadID, value guest.Scalar) error {
	s, ok := d.keys.Get(&slot{key: key})
	if !ok {
		return diag.UBf("storing to a non-existing TLS key: %d", key)
	}
	if value.IsNull() {
		delete(s.data, thread)
		d.log.Debug("TLS key cleared",
			zap.Uint64("key", uint64(key)),
			zap.Stringer("thread", thread))
		return nil
	}
	s.data[thread] = value
	d.log.Debug("TLS key stored",
		zap.Uint64("key", uint64(key)),
		zap.Stringer("thread", thread),
		zap.Stringer("value", value))
	return nil
}

// SetGlobalDtor installs the combined destructor for a thread.
//
// Registering one after draining has begun for that thread is UB (mirrors
// the documented contract of the single-callback platform). Registering a
// second one is a limitation of this emulator, not of the guest.
func (d *Data) SetGlobalDtor(thread guest.ThreadID, dtor guest.FuncRef, data guest.Scalar) error {
	if d.DtorsRunning(thread) {
		return diag.UBf("setting global destructor for %v while destructors are already running", thread)
	}
	if _, exists := d.globalDtors[thread]; exists {
		return diag.Unsupportedf("setting more than one global destructor for the same thread is not supported")
	}
	d.globalDtors[thread] = GlobalDtor{Dtor: dtor, Data: data}
	d.log.Debug("global dtor registered",
		zap.Stringer("thread", thread),
		zap.Stringer("dtor", dtor))
	return nil
}

// GlobalDtor returns the combined destructor registered for a thread, if any.
func (d *Data) GlobalDtor(thread guest.ThreadID) (GlobalDtor, bool) {
	g, ok := d.globalDtors[thread]
	return g, ok
}

// DtorsRunning reports whether draining has begun for a thread.
func (d *Data) DtorsRunning(thread guest.ThreadID) bool {
	_, ok := d.dtorsRunning[thread]
	return ok
}

// MarkDtorsRunning latches a thread into the draining state. There is no way
// back out: the latch holds for the lifetime of the store.
func (d *Data) MarkDtorsRunning(thread guest.ThreadID) {
	d.dtorsRunning[thread] = struct{}{}
}

// FetchDtor returns the next destructor that is supposed to run for a
// terminating thread, scanning keys in ascending order strictly after
// `after` (pass 0 to scan from the smallest key; 0 is safe as the sentinel
// because it is never issued).
//
// Every visited key that has a stored value for the thread loses that value
// unconditionally. The first taken value whose key carries a destructor is
// returned together with the key; values under destructor-less keys are
// drained silently and the scan moves on. When the scan runs off the end,
// the second result is false.
//
// The value is removed before the destructor runs, so a destructor observes
// its own slot as empty; only an explicit re-store during its execution can
// make the slot show up in a later pass.
func (d *Data) FetchDtor(after guest.TLSKey, thread guest.ThreadID) (Dtor, bool) {
	var (
		found Dtor
		ok    bool
	)
	d.keys.AscendGreaterOrEqual(&slot{key: after + 1}, func(s *slot) bool {
		value, present := s.data[thread]
		if !present {
			return true
		}
		delete(s.data, thread)
		if !s.dtor.IsValid() {
			// No destructor: the value is drained and the scan continues.
			return true
		}
		found = Dtor{Fn: s.dtor, Data: value, Key: s.key}
		ok = true
		return false
	})
	return found, ok
}

// KeyCount returns the number of live keys in the registry.
func (d *Data) KeyCount() int {
	return d.keys.Len()
}
