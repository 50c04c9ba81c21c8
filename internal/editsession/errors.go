package editsession

import "errors"

// Error taxonomy for the edit-session subsystem. Handlers map these onto
// HTTP statuses; nothing here retries automatically.
var (
	// ErrInvalidInput covers empty instructions and masks whose dimensions
	// do not match the current image.
	ErrInvalidInput = errors.New("editsession: invalid input")

	// ErrSessionNotFound means the id never existed.
	ErrSessionNotFound = errors.New("editsession: session not found")

	// ErrSessionExpired means the id existed but was reaped by the TTL
	// policy. Callers should re-create the session rather than fix the id.
	ErrSessionExpired = errors.New("editsession: session expired")

	// ErrSessionClosed means the session was saved or cancelled and accepts
	// no further operations.
	ErrSessionClosed = errors.New("editsession: session closed")

	// ErrIllegalTransition covers undo without undo history and redo at the
	// head of history.
	ErrIllegalTransition = errors.New("editsession: illegal transition")

	// ErrEditFailed wraps a failure of the external edit capability. The
	// session is left unchanged.
	ErrEditFailed = errors.New("editsession: edit capability failed")

	// ErrOperationInFlight rejects a second apply/undo/redo arriving while
	// one is still pending for the same session.
	ErrOperationInFlight = errors.New("editsession: operation already in flight")
)
