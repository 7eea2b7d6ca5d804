package models

import "fmt"

// ValidationError reports malformed input: non-positive amounts or
// quantities, unknown products or users, bad payment modes.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Msg
}

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InsufficientBalanceError is returned when a debit exceeds the user's
// spendable balance. Carries both numbers so the caller can render them.
type InsufficientBalanceError struct {
	Required  int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %d points, available %d", e.Required, e.Available)
}

// InsufficientStockError is returned when a cart requests more units than a
// product has in stock.
type InsufficientStockError struct {
	ProductID int64
	Product   string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d", e.Product, e.Requested, e.Available)
}

// PersistenceError wraps a gateway read/write failure. Fatal for the
// operation that hit it; the caller may retry the whole operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports overlapping or gapped price tiers or level
// thresholds. Detected at save time; never reaches checkout.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Msg
}
