package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific field, e.g. "ordering" or "achievements[3].tier".
type FieldError struct {
	Field string
	Error string
}

// ValidationError is a client error: the API answers it with a 400 listing the Fields.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error {
	return err.Err
}

// shutdown reports a condition the process cannot recover from, like a closed database pool.
// The API server stops gracefully when a request fails with it.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s *shutdown) Error() string {
	return s.message
}

// IsShutdown reports whether the cause of err is a shutdown error.
func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
