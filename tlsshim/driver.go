package tlsshim

import (
	"go.uber.org/zap"

	"github.com/kolkov/guestvm/diag"
	"github.com/kolkov/guestvm/guest"
)

// The single-callback target has a magic linker section run on thread
// detach. Instead of modelling that section, we look up the one static the
// guest standard library is known to place in it, plus the detach reason it
// expects. These two paths and the three-argument calling convention
// (handle, reason, reserved) are a versioned contract with the guest
// standard library.
var (
	threadCallbackPath = []string{"std", "sys", "windows", "thread_local", "p_thread_callback"}
	detachReasonPath   = []string{"std", "sys", "windows", "c", "DLL_PROCESS_DETACH"}
)

// RunOnThreadExit runs the draining protocol of the configured target for
// the active thread. The interpreter calls this exactly once per thread, at
// the thread's termination point.
func (s *Shim) RunOnThreadExit() error {
	if s.target == "windows" {
		return s.RunWindowsDtors()
	}
	return s.RunThreadDtors()
}

// RunWindowsDtors runs TLS destructors for the main thread on the
// single-callback target: the well-known callback is resolved by symbol path
// and invoked exactly once with (null handle, detach reason, null reserved).
// No per-key scan runs on this target; that divergence is the platform's
// documented behavior, not an oversight.
//
// On other targets this is a no-op.
func (s *Shim) RunWindowsDtors() error {
	if s.target != "windows" {
		return nil
	}
	active := s.exec.ActiveThread()
	diag.Assertf(active == guest.MainThread, "TLS dtor callback on %v: concurrency on windows not supported", active)
	diag.Assertf(!s.data.DtorsRunning(active), "running TLS dtors twice on %v", active)
	s.data.MarkDtorsRunning(active)

	cbValue, err := s.exec.ResolveSymbolByPath(threadCallbackPath)
	if err != nil {
		return err
	}
	callback, err := s.exec.FunctionAt(cbValue)
	if err != nil {
		return err
	}
	reason, err := s.exec.ResolveSymbolByPath(detachReasonPath)
	if err != nil {
		return err
	}

	s.log.Debug("running windows thread callback",
		zap.Stringer("callback", callback),
		zap.Stringer("reason", reason))
	// fn(h LPVOID, dwReason DWORD, pv LPVOID); no return value is consumed.
	return s.exec.CallFunction(callback, []guest.Scalar{guest.Null(), reason, guest.Null()})
}

// RunThreadDtors drains TLS destructors for the active thread on per-key
// multi-pass targets, running each destructor to completion through the
// executor until a full scan over the registry yields nothing.
//
// On the single-callback target this is a no-op.
func (s *Shim) RunThreadDtors() error {
	if s.target == "windows" {
		return nil
	}
	thread := s.exec.ActiveThread()
	diag.Assertf(!s.data.DtorsRunning(thread), "running TLS dtors twice on %v", thread)
	s.data.MarkDtorsRunning(thread)

	// The global dtor runs "before any TLS slots get freed", so it goes
	// first, before the per-key scan.
	if g, ok := s.data.GlobalDtor(thread); ok {
		s.log.Debug("running global dtor",
			zap.Stringer("dtor", g.Dtor),
			zap.Stringer("data", g.Data),
			zap.Stringer("thread", thread))
		if err := s.exec.CallFunction(g.Dtor, []guest.Scalar{g.Data}); err != nil {
			return err
		}
	}

	diag.Assertf(s.exec.HasTerminated(thread), "running TLS dtors for non-terminated %v", thread)

	dtor, ok := s.data.FetchDtor(0, thread)
	for ok {
		s.log.Debug("running TLS dtor",
			zap.Stringer("dtor", dtor.Fn),
			zap.Stringer("data", dtor.Data),
			zap.Uint64("key", uint64(dtor.Key)),
			zap.Stringer("thread", thread))
		diag.Assertf(!dtor.Data.IsNull(), "data can't be null when dtor is called")

		if err := s.exec.CallFunction(dtor.Fn, []guest.Scalar{dtor.Data}); err != nil {
			return err
		}

		// Resume the scan after the key we just ran. A destructor may store
		// fresh values under earlier keys, so an exhausted scan restarts
		// from the beginning; draining is done only when a full restart
		// pass also comes up empty.
		dtor, ok = s.data.FetchDtor(dtor.Key, thread)
		if !ok {
			dtor, ok = s.data.FetchDtor(0, thread)
		}
	}
	return nil
}
