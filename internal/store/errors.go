package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrStateConflict     = errors.New("state conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrRetryable marks storage conflicts that may succeed when the whole
	// transaction is run again (serialization failure, deadlock, lock timeout).
	ErrRetryable = errors.New("retryable storage conflict")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

type StateConflictError struct {
	Entity string
	ID     string
	Status string
	Action string
}

func (e *StateConflictError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("%s %s: cannot %s", e.Entity, e.ID, e.Action)
	}
	return fmt.Sprintf("%s %s: cannot %s from status %s", e.Entity, e.ID, e.Action, e.Status)
}

func (e *StateConflictError) Unwrap() error { return ErrStateConflict }

func Conflict(entity string, id string, status string, action string) error {
	return &StateConflictError{Entity: entity, ID: id, Status: status, Action: action}
}

type InsufficientStockError struct {
	OutletID  string
	VariantID string
	OnHand    int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s at outlet %s: on hand %d, requested %d", e.VariantID, e.OutletID, e.OnHand, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(entity string, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}
