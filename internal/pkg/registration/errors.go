package registration

import "errors"

var (
	ErrNotFound         = errors.New("registration not found")
	ErrEventNotFound    = errors.New("event not found")
	ErrEventInactive    = errors.New("event is not open for registration")
	ErrInvalidInput     = errors.New("invalid registration input")
	ErrAlreadyCancelled = errors.New("registration is already cancelled")
	ErrNotCancelled     = errors.New("registration is not cancelled")
	ErrCancelled        = errors.New("registration is cancelled")
	ErrMissingReason    = errors.New("cancellation reason is required")
)
