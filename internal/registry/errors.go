package registry

import "errors"

var (
	// ErrUnreachable indicates the plugin backend could not be reached.
	ErrUnreachable = errors.New("registry: plugin backend unreachable")
	// ErrMalformed indicates the backend response failed schema or
	// invariant validation.
	ErrMalformed = errors.New("registry: malformed plugin payload")
	// ErrNotReady indicates an operation that requires a completed
	// initialization was called too early.
	ErrNotReady = errors.New("registry: not initialized")
)
