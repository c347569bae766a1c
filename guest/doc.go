// Package guest defines the value vocabulary shared between the TLS
// emulation core and the surrounding interpreter.
//
// The guest program only ever sees pointer-sized opaque quantities, so the
// whole vocabulary is built on them:
//   - ThreadID: identifier of an emulated guest thread
//   - Scalar: a pointer-sized guest value (the null pointer is the zero value)
//   - FuncRef: a reference to a callable guest function
//   - TLSKey: an opaque TLS slot handle (0 is never a valid key)
//
// These types carry no behavior of their own beyond identity, null checks
// and formatting; all semantics live in the registry and the drain drivers.
package guest
