package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrTooShort      = errors.New("sentence shorter than polynomial degree")
	ErrNumerical     = errors.New("numerical failure")
	ErrScorer        = errors.New("classifier scoring failed")
)
