// Package diag classifies the failures the TLS emulation layer can raise.
//
// There are exactly three disjoint classes:
//
//   - Undefined behavior: the guest program violated the real-world contract
//     of a TLS primitive (unknown-key access, re-registering a global
//     destructor after draining started). Reported as a guest-attributable
//     finding at the primitive call site.
//   - Unsupported: the guest did nothing wrong, but this emulator has a
//     documented limitation (key-space exhaustion for the target's handle
//     width, more than one global destructor per thread). Reported as a
//     distinct "tool limitation" diagnostic.
//   - Internal: a consistency assertion inside the emulator's own driver
//     logic failed. These are raised as panics carrying *InternalError so
//     they abort the interpretation session; they must never be surfaced as
//     guest diagnostics.
//
// The first two travel as ordinary error values and are recognized with
// IsUB and IsUnsupported.
package diag
