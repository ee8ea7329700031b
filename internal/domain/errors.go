package domain

import "errors"

// Error taxonomy shared by every workflow. Callers match with errors.Is; the
// wrapping message carries the offending id or field.
var (
	// ErrNotFound means a referenced id is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict means the record is in the wrong state for the requested transition.
	ErrConflict = errors.New("conflict")
	// ErrValidation means the input itself is malformed.
	ErrValidation = errors.New("validation failed")
)
