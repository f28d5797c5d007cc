package inventory

import (
	"errors"
	"fmt"
)

// Outcome kinds without a payload.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden: admin access required")
	ErrNotFound     = errors.New("sweet not found")
)

// ValidationError reports malformed or out-of-range input. Message is
// safe to show to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// InsufficientStockError is returned when a purchase asks for more than
// the item has at the moment of the locked check.
type InsufficientStockError struct {
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock. Only %d available.", e.Available)
}

// StoreError wraps an underlying persistence failure. Its text is meant
// for logs, not for callers.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// storeErr wraps err unless it already belongs to the taxonomy.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		se *InsufficientStockError
		st *StoreError
	)
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden), errors.Is(err, ErrNotFound),
		errors.As(err, &ve), errors.As(err, &se), errors.As(err, &st):
		return err
	}
	return &StoreError{Op: op, Err: err}
}
