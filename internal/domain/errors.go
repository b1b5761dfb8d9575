package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrSenderNotFound    = errors.New("sender not found")
	ErrReceiverNotFound  = errors.New("receiver not found")
	ErrSelfTransfer      = errors.New("cannot transfer to same account")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateReceipt  = errors.New("receipt already applied")
	ErrVersionConflict   = errors.New("optimistic lock conflict")
	ErrConflict          = errors.New("concurrent update, retry")
	ErrValidation        = errors.New("invalid input")
	ErrUpstream          = errors.New("provider request failed")
)

// InsufficientFundsError carries the figures the caller needs to explain
// the rejection: the full debit including fee, the fee itself, and what
// the account actually holds.
type InsufficientFundsError struct {
	Required int64
	Fee      int64
	Balance  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %d (fee %d), have %d", e.Required, e.Fee, e.Balance)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}
