package core

import "errors"

// Error taxonomy. Per-peer and per-tick failures are contained and logged;
// session-level failures surface to the caller; credential expiry always
// escalates to a full logout no matter which call detected it.
var (
	// ErrCredentialExpired means the registry rejected our token. All local
	// state must be cleared and the caller re-authenticated.
	ErrCredentialExpired = errors.New("credential expired")

	// ErrMediaUnavailable means local capture could not be acquired. The
	// session degrades to data-only (location + chat) and continues.
	ErrMediaUnavailable = errors.New("local media unavailable")

	// ErrPermissionDenied means the position provider refused us. Reported,
	// but the reporting cycle keeps attempting on the next tick.
	ErrPermissionDenied = errors.New("position permission denied")

	// ErrNoSession is returned for operations that need an active session.
	ErrNoSession = errors.New("no active session")

	// ErrNotConnected is returned by the signaler when the transport is down.
	ErrNotConnected = errors.New("signaler not connected")
)

// TransientError wraps a registry or relay failure that the caller's next
// natural cycle will retry. Never retried in a tight loop.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient reports whether err is a contained, retry-next-cycle failure.
func Transient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
