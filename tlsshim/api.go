// Package tlsshim provides the guest-facing TLS emulation API.
//
// See doc.go for detailed documentation and examples.
package tlsshim

import (
	"go.uber.org/zap"

	"github.com/kolkov/guestvm/guest"
	"github.com/kolkov/guestvm/internal/interp/tls"
)

// Executor is the slice of the interpreter the TLS layer needs. The shim
// consumes it; the surrounding interpreter provides it.
type Executor interface {
	// CallFunction pushes a call frame for fn with the given arguments and
	// steps the interpreter until that frame, and everything it transitively
	// pushes, is fully popped. Any return value of fn is discarded.
	//
	// The returned error is a guest-visible diagnostic raised while the
	// function executed; it propagates out of the drain drivers unchanged.
	CallFunction(fn guest.FuncRef, args []guest.Scalar) error

	// ActiveThread returns the guest thread the interpreter is currently
	// stepping.
	ActiveThread() guest.ThreadID

	// HasTerminated reports whether the given thread has no remaining call
	// frames.
	HasTerminated(thread guest.ThreadID) bool

	// ResolveSymbolByPath resolves a fixed symbol path in the guest standard
	// library to its value.
	ResolveSymbolByPath(path []string) (guest.Scalar, error)

	// FunctionAt turns a resolved symbol value into a callable reference.
	FunctionAt(s guest.Scalar) (guest.FuncRef, error)
}

// Shim is the TLS emulation layer for one interpretation session. It owns
// the key registry and drives destructor draining through the executor.
//
// A Shim is created once at session start and, like the rest of the machine
// state, is mutated only by the single controlling execution; it carries no
// locking.
type Shim struct {
	data   *tls.Data
	exec   Executor
	target string
	log    *zap.Logger
}

// Option configures a Shim.
type Option func(*Shim)

// WithTarget sets the guest target OS, which selects the draining protocol.
// The default is "linux".
func WithTarget(os string) Option {
	return func(s *Shim) {
		s.target = os
	}
}

// WithLogger sets the logger for operation tracing. The default discards
// everything.
func WithLogger(log *zap.Logger) Option {
	return func(s *Shim) {
		s.log = log
	}
}

// New creates a Shim backed by the given executor.
func New(exec Executor, opts ...Option) *Shim {
	s := &Shim{
		exec:   exec,
		target: "linux",
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.data = tls.New(tls.WithLogger(s.log))
	return s
}

// CreateKey services the guest's create-key primitive: it allocates a fresh
// key with the given destructor (guest.NoFunc for none). maxKeyBits is the
// key handle width of the active target; allocation fails with an
// unsupported-operation diagnostic when the key space for that width is
// exhausted.
func (s *Shim) CreateKey(dtor guest.FuncRef, maxKeyBits uint) (guest.TLSKey, error) {
	return s.data.CreateKey(dtor, maxKeyBits)
}

// DeleteKey services the guest's delete-key primitive. Deleting an unknown
// key is UB.
func (s *Shim) DeleteKey(key guest.TLSKey) error {
	return s.data.DeleteKey(key)
}

// Get services the guest's load primitive for the active thread: the stored
// value, or the null scalar when nothing is stored. An unknown key is UB.
func (s *Shim) Get(key guest.TLSKey) (guest.Scalar, error) {
	return s.data.Load(key, s.exec.ActiveThread())
}

// Set services the guest's store primitive for the active thread. Storing
// the null scalar clears the slot. An unknown key is UB.
func (s *Shim) Set(key guest.TLSKey, value guest.Scalar) error {
	return s.data.Store(key, s.exec.ActiveThread(), value)
}

// SetGlobalDtor services the guest's register-thread-exit-callback primitive
// for the active thread. Registering after draining started is UB; a second
// registration is unsupported.
func (s *Shim) SetGlobalDtor(dtor guest.FuncRef, data guest.Scalar) error {
	return s.data.SetGlobalDtor(s.exec.ActiveThread(), dtor, data)
}
