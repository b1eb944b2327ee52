package service

import (
	"errors"
	"fmt"
)

// Precondition failures. Nothing has been written when one of these is returned.
var (
	ErrInvalidAmount            = errors.New("amount must be a positive number with at most 8 decimal places")
	ErrAdminNotFound            = errors.New("admin not found")
	ErrUserNotFound             = errors.New("user not found")
	ErrInsufficientAdminBalance = errors.New("insufficient admin balance")
	ErrOrderNotFound            = errors.New("order not found")
	ErrInvalidOrderStatus       = errors.New("invalid order status")
)

var (
	// ErrPersistence means the store failed and the unit of work was rolled back.
	ErrPersistence = errors.New("persistence failure")
	// ErrReconciliationRequired means the outcome of a committed unit of work
	// is unknown and balances must be checked by hand.
	ErrReconciliationRequired = errors.New("reconciliation required")
)

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// IsPrecondition reports whether err is a caller input problem rather than a
// store failure.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrAdminNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrInsufficientAdminBalance) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrInvalidOrderStatus)
}
