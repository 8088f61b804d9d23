package domain

import "errors"

// Sentinel error kinds. Callers wrap these with fmt.Errorf("...: %w", err) to
// attach context while keeping errors.Is checks stable across packages.
var (
	ErrConfiguration    = errors.New("configuration error")
	ErrUpstreamTransient = errors.New("upstream transient error")
	ErrValidation        = errors.New("validation error")
	ErrExecution         = errors.New("execution error")
	ErrDuplicate         = errors.New("duplicate")
	ErrAuthorization     = errors.New("authorization error")
	ErrNotFound          = errors.New("not found")
)
