// Package tlsshim emulates the platform thread-local-storage primitives for
// guest programs running inside the guestvm interpreter.
//
// The guest runs instruction-by-instruction inside the emulator's own
// address-space model, with no operating system underneath, so the TLS
// primitives it calls (create or delete a key, load or store a per-thread
// value, register thread-exit destructors) have to be reproduced here with
// their exact observable semantics, including the destructor-draining
// protocol at thread exit.
//
// # Quick Start
//
// The interpreter creates one Shim per session, routes the guest's TLS
// primitive calls to it, and invokes RunOnThreadExit when a guest thread
// reaches its termination point:
//
//	shim := tlsshim.New(executor)
//
//	// Servicing an emulated pthread_key_create(&k, dtor):
//	key, err := shim.CreateKey(dtor, keyBits)
//
//	// At the guest thread's termination point:
//	if err := shim.RunOnThreadExit(); err != nil {
//		// UB or unsupported operation hit while a destructor ran
//	}
//
// The executor is the narrow slice of the interpreter the shim needs: a way
// to invoke a guest function and step until it returns, thread liveness
// queries, and symbol-path resolution into the guest standard library. See
// [Executor].
//
// # Platform Models
//
// Two divergent draining protocols are emulated, selected by [WithTarget]:
//
//   - The per-key multi-pass model: an ascending scan over the key registry
//     takes stored values, runs each associated destructor with the taken
//     value as its sole argument, and restarts from the smallest key until a
//     full pass finds nothing. A per-thread global destructor, if one was
//     registered, runs before any slot is freed.
//   - The single-callback model ("windows"): one well-known callback in the
//     guest standard library is resolved by symbol path and invoked exactly
//     once with a thread-detach reason; no per-key scanning happens at all.
//     This divergence is deliberate and matches the platform.
//
// # Failure Classes
//
// Guest mistakes (unknown keys, late global-destructor registration) come
// back as undefined-behavior diagnostics; documented emulator limitations
// (key-space exhaustion, a second global destructor) come back as
// unsupported-operation diagnostics. Both are classified by package diag.
// Violations of the drain protocol's own invariants are emulator defects and
// abort the session via panic instead of being attributed to the guest.
package tlsshim
