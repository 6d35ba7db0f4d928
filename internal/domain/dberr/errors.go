// Package dberr holds the error values returned by the data client.
package dberr

import (
	"errors"
	"fmt"
	"strings"
)

// Known request error codes.
const (
	CodeValueTooLong   = "P2000"
	CodeUnique         = "P2002"
	CodeForeignKey     = "P2003"
	CodeNullConstraint = "P2011"
	CodeNotFound       = "P2025"
	CodeTransaction    = "P2028"
	CodeWriteConflict  = "P2034"
)

var (
	// ErrNotFound matches every P2025 error through errors.Is.
	ErrNotFound = errors.New("record not found")
	// ErrTxStarted is returned when a transaction is opened on a transaction-bound client.
	ErrTxStarted = errors.New("transaction already started")
)

// KnownRequestError is a failure the database reported for a well-formed query.
type KnownRequestError struct {
	Code    string
	Model   string
	Message string
	Meta    map[string]any
	Err     error
}

func (e *KnownRequestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.Model != "" {
		b.WriteString(" ")
		b.WriteString(e.Model)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if t, ok := e.Meta["target"]; ok {
		fmt.Fprintf(&b, " (target: %v)", t)
	}
	return b.String()
}

func (e *KnownRequestError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrNotFound) hold for P2025.
func (e *KnownRequestError) Is(target error) bool {
	return target == ErrNotFound && e.Code == CodeNotFound
}

// NotFound builds the P2025 error raised by OrThrow reads, updates and deletes.
func NotFound(model, cause string) *KnownRequestError {
	return &KnownRequestError{
		Code:    CodeNotFound,
		Model:   model,
		Message: "no record was found for " + cause,
		Meta:    map[string]any{"cause": cause},
	}
}

// ValidationError reports arguments rejected before any query is sent.
type ValidationError struct {
	Model  string
	Action string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s.%s arguments: %s", e.Model, e.Action, e.Reason)
	}
	return fmt.Sprintf("invalid %s.%s arguments: %s: %s", e.Model, e.Action, e.Field, e.Reason)
}

// RollbackError wraps the original failure of a transaction whose rollback failed too.
type RollbackError struct {
	Err      error
	Rollback error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%v (rollback failed: %v)", e.Err, e.Rollback)
}

func (e *RollbackError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a P2025 error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUniqueViolation reports whether err is a P2002 error.
func IsUniqueViolation(err error) bool {
	return HasCode(err, CodeUnique)
}

// IsValidationError reports whether err came from argument validation.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// HasCode reports whether err is a KnownRequestError with the given code.
func HasCode(err error, code string) bool {
	var ke *KnownRequestError
	return errors.As(err, &ke) && ke.Code == code
}
