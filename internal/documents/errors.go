package documents

import "errors"

var (
	// ErrNotFound indicates the user has no matching document.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates validation or bad input.
	ErrInvalidInput = errors.New("invalid input")
)
