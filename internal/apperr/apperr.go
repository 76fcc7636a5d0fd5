// Package apperr defines the error taxonomy shared by the booking core.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ValidationError reports malformed or missing input. It is never retried.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a field error.
func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// OrNil returns e when it holds at least one field error.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

// ConflictError reports an overlapping slot or a concurrent edit.
type ConflictError struct {
	Reason string
	IDs    []int64
}

func (e *ConflictError) Error() string {
	if len(e.IDs) == 0 {
		return "conflict: " + e.Reason
	}
	ids := append([]int64(nil), e.IDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("conflict: %s (%s)", e.Reason, strings.Join(parts, ", "))
}

// NotFoundError reports a stale or unknown reference.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(resource string, id int64) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// StoreError wraps an I/O failure from the record store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Store wraps err as a StoreError unless it is nil or already typed.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTyped(err) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// PartialReconciliationError reports that ledger rows were removed but the
// replacement rows could not be written. The enclosing transaction is rolled
// back when this error is returned.
type PartialReconciliationError struct {
	ReservationID int64
	Err           error
}

func (e *PartialReconciliationError) Error() string {
	return fmt.Sprintf("ledger reconciliation for reservation %d incomplete: %v", e.ReservationID, e.Err)
}

func (e *PartialReconciliationError) Unwrap() error {
	return e.Err
}

// IsTyped reports whether err already carries one of the taxonomy types.
func IsTyped(err error) bool {
	var (
		ve *ValidationError
		ce *ConflictError
		ne *NotFoundError
		se *StoreError
		pe *PartialReconciliationError
	)
	return errors.As(err, &ve) || errors.As(err, &ce) || errors.As(err, &ne) ||
		errors.As(err, &se) || errors.As(err, &pe)
}
