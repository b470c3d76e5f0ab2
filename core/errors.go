package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// DataIntegrityError reports a stored record that violates a data invariant.
// It is a diagnostic: the offending record is skipped, the computation goes on.
type DataIntegrityError struct {
	Table    string `json:"table"`
	RecordID int64  `json:"record_id"`
	Reason   string `json:"reason"`
}

func (err DataIntegrityError) Error() string {
	return fmt.Sprintf("%s #%d: %s", err.Table, err.RecordID, err.Reason)
}

// BackendError wraps a failure of the persistence backend (unreachable, timeout, constraint).
type BackendError struct {
	Op  string
	Err error
}

func NewBackendError(err error, op string) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: err}
}

func (err BackendError) Error() string {
	return "backend unavailable: " + err.Op + ": " + err.Err.Error()
}

func (err BackendError) Cause() error { return err.Err }

func (err BackendError) Unwrap() error { return err.Err }

// IsBackendError reports whether any error in err's chain is a BackendError.
func IsBackendError(err error) bool {
	var bErr *BackendError
	return errors.As(err, &bErr)
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
