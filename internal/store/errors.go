package store

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrSelfActionForbidden  = errors.New("action on own account or content is not allowed")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrConflict             = errors.New("concurrent modification detected")
	ErrNetwork              = errors.New("store unavailable")
	ErrActionInProgress     = errors.New("action already in progress")
	ErrNotFound             = errors.New("not found")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrAlreadyExists        = errors.New("already exists")
	ErrNameTaken            = errors.New("name already taken")
	ErrUnsupportedFilter    = errors.New("unsupported filter")
)

// InsufficientFundsError carries the amount an action needed and what the account had.
// It matches ErrInsufficientFunds with errors.Is.
type InsufficientFundsError struct {
	Required int64
	Current  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %d, current %d", e.Required, e.Current)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// NewInsufficientFunds builds an InsufficientFundsError
func NewInsufficientFunds(required, current int64) error {
	return &InsufficientFundsError{Required: required, Current: current}
}

// IsRetryable reports whether the error is a lost race worth one more attempt
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
