package jobs

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidState          = errors.New("invalid state")
	ErrInvalidInput          = errors.New("invalid input")
	ErrJobQueueNotConfigured = errors.New("job queue not configured")
)

const (
	ErrorCodeValidation   = "validation_error"
	ErrorCodeNotFound     = "not_found"
	ErrorCodeInvalidState = "invalid_state"
	ErrorCodeRateLimited  = "rate_limited"
	ErrorCodeInternal     = "internal_error"
)
