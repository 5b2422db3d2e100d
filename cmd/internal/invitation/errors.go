package invitation

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	// ErrConflict reports a transaction aborted by a concurrent writer; the
	// attempt may be retried.
	ErrConflict = errors.New("transaction conflict")
)
