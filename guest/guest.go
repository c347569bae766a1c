package guest

import "fmt"

// ThreadID identifies one emulated guest thread.
//
// Thread identity is owned by the interpreter's scheduler; the TLS layer
// only uses it as an opaque map key.
type ThreadID uint32

// MainThread is the distinguished primary thread of the guest program.
// It is the only thread the single-callback platform driver supports.
const MainThread ThreadID = 0

// String returns the string representation of a ThreadID.
func (t ThreadID) String() string {
	return fmt.Sprintf("thread<%d>", uint32(t))
}

// Scalar is a pointer-sized guest value.
//
// The zero Scalar is the guest null pointer. The registry normalizes stored
// nulls into absence early, so code holding a Scalar taken out of a TLS slot
// never needs a separate null check.
type Scalar struct {
	bits uint64
}

// Null returns the guest null pointer.
func Null() Scalar {
	return Scalar{}
}

// ScalarFromBits constructs a Scalar from its raw pointer-sized bits.
func ScalarFromBits(bits uint64) Scalar {
	return Scalar{bits: bits}
}

// Bits returns the raw pointer-sized bits of the value.
func (s Scalar) Bits() uint64 {
	return s.bits
}

// IsNull reports whether the value is the guest null pointer.
func (s Scalar) IsNull() bool {
	return s.bits == 0
}

// String returns the string representation of a Scalar.
func (s Scalar) String() string {
	if s.IsNull() {
		return "null"
	}
	return fmt.Sprintf("0x%x", s.bits)
}

// FuncRef is a reference to a callable guest function.
//
// ID is an opaque handle issued by the interpreter's function table; 0 means
// "no function". Name is carried for diagnostics only and takes no part in
// identity.
type FuncRef struct {
	ID   uint64
	Name string
}

// NoFunc is the absent function reference, used for TLS keys created
// without a destructor.
var NoFunc = FuncRef{}

// IsValid reports whether the reference names a function.
func (f FuncRef) IsValid() bool {
	return f.ID != 0
}

// String returns the string representation of a FuncRef.
func (f FuncRef) String() string {
	if !f.IsValid() {
		return "func<none>"
	}
	if f.Name == "" {
		return fmt.Sprintf("func<%d>", f.ID)
	}
	return fmt.Sprintf("func<%d %s>", f.ID, f.Name)
}

// TLSKey is an opaque TLS slot handle.
//
// Keys are allocated from a strictly increasing counter starting at 1 and
// are never reused; 0 is never issued so that targets treating 0 as an
// invalid handle stay representable.
type TLSKey uint64
