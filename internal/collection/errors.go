package collection

import "errors"

// Store-level sentinel errors. All are recoverable: callers surface a
// message and keep their previous state.
var (
	ErrDuplicateID    = errors.New("duplicate id")
	ErrDuplicateURL   = errors.New("duplicate bookmark url")
	ErrDuplicateName  = errors.New("duplicate name")
	ErrNotFound       = errors.New("not found")
	ErrSystemCategory = errors.New("system category is immutable")
	ErrUnknownCategory = errors.New("category does not exist")
)
