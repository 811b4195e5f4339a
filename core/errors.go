package core

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrFutureDate = errors.New("attendance cannot be recorded for a future date")
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

func (err ValidationError) Unwrap() error { return err.Err }

// ConflictError reports a write refused because the record already exists (eg. a fee for the same period).
type ConflictError struct {
	Err error
}

func NewConflictError(err error) error {
	return &ConflictError{Err: err}
}

func (err ConflictError) Error() string { return err.Err.Error() }
func (err ConflictError) Unwrap() error { return err.Err }

// StoreError wraps any failure coming from the document store.
type StoreError struct {
	Op  string
	Err error
}

func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

func (err StoreError) Error() string { return fmt.Sprintf("store %s: %v", err.Op, err.Err) }
func (err StoreError) Unwrap() error { return err.Err }

// IsNotFound reports whether err is (or wraps) ErrNotFound, including through a StoreError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// PartialWriteError is returned by non-atomic multi-write operations when some writes went through.
// When nothing went through the underlying error is returned instead.
type PartialWriteError struct {
	Done   []string
	Failed map[string]error
}

func (err PartialWriteError) Error() string {
	keys := make([]string, 0, len(err.Failed))
	for k := range err.Failed {
		keys = append(keys, k)
	}
	return fmt.Sprintf("partial write: %d done, %d failed (%s)", len(err.Done), len(err.Failed), strings.Join(keys, ", "))
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
