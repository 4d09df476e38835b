package presence

import "errors"

var (
	// ErrUnknownState is returned by ChangeState for an out-of-range id.
	ErrUnknownState = errors.New("unknown state id")

	// ErrInvalidDefinition is returned by Normalize and Init for a state set
	// that cannot be ordered.
	ErrInvalidDefinition = errors.New("invalid state definition")

	ErrNotInitialized     = errors.New("presence engine not initialized")
	ErrAlreadyInitialized = errors.New("presence engine already initialized")
	ErrClosed             = errors.New("presence engine closed")
)
