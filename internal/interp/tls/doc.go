// Package tls implements the guest-facing thread-local-storage model: the
// key registry, the per-thread value store, the per-thread global destructor
// slot, and the destructor scheduling scan.
//
// The package is a self-contained value store with no knowledge of call
// execution. Deciding which destructor runs next is in here (FetchDtor);
// actually running guest code is the job of the drain drivers in package
// tlsshim, which feed FetchDtor results into the interpreter's call engine.
//
// The registry is ordered by ascending key and the ordering is load-bearing:
// the drain protocol always picks the smallest key strictly greater than the
// last one executed, and guest programs can observe the resulting destructor
// order.
package tls
