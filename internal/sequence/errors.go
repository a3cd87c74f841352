package sequence

import "errors"

// Sentinel errors for the sequence package.
var (
	ErrNotFound          = errors.New("sequence not found")
	ErrInvalidTransition = errors.New("invalid sequence status transition")
)
