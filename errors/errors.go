package errors

import "fmt"

// Roots of the error taxonomy. Every leaf below wraps exactly one of them,
// so callers can branch with errors.Is on the family.
var (
	ErrPrecondition    = fmt.Errorf("precondition failed")
	ErrTransport       = fmt.Errorf("transport failure")
	ErrProtocol        = fmt.Errorf("protocol failure")
	ErrPayloadTooLarge = fmt.Errorf("payload too large")
)

var (
	ErrMissingDeviceID      = fmt.Errorf("%w: device identity unavailable", ErrPrecondition)
	ErrDailyLimitReached    = fmt.Errorf("%w: daily match limit reached", ErrPrecondition)
	ErrIncompleteProfile    = fmt.Errorf("%w: incomplete profile", ErrPrecondition)
	ErrVerificationRequired = fmt.Errorf("%w: verification missing or expired", ErrPrecondition)
	ErrProfaneProfile       = fmt.Errorf("%w: profile contains profanity", ErrPrecondition)
	ErrTooManyEmojis        = fmt.Errorf("%w: too many emojis in bio", ErrPrecondition)
	ErrInvalidBlockTarget   = fmt.Errorf("%w: invalid block target", ErrPrecondition)
	ErrUploadPending        = fmt.Errorf("%w: an image upload is already pending", ErrPrecondition)
	ErrNoActiveChat         = fmt.Errorf("%w: no active chat", ErrPrecondition)
	ErrUnsupportedImage     = fmt.Errorf("%w: unsupported image type", ErrPrecondition)
)

var (
	ErrNotConnected       = fmt.Errorf("%w: not connected", ErrTransport)
	ErrConnectionClosed   = fmt.Errorf("%w: connection closed", ErrTransport)
	ErrReconnectExhausted = fmt.Errorf("%w: reconnection attempts exhausted", ErrTransport)
	ErrSendBufferFull     = fmt.Errorf("%w: send buffer full", ErrTransport)
)

var (
	ErrServerError   = fmt.Errorf("%w: server error", ErrProtocol)
	ErrRoomExpired   = fmt.Errorf("%w: room expired", ErrProtocol)
	ErrBadResponse   = fmt.Errorf("%w: unexpected response", ErrProtocol)
	ErrNotVerified   = fmt.Errorf("%w: verification rejected", ErrProtocol)
	ErrImageTooLarge = fmt.Errorf("%w: image exceeds ceiling", ErrPayloadTooLarge)
)

var (
	ErrStorageUnavailable     = fmt.Errorf("storage unavailable")
	ErrFingerprintUnavailable = fmt.Errorf("fingerprint source unavailable")
	ErrWorkerPanic            = fmt.Errorf("worker panic")
)
