package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInsufficientFunds   = errors.New("insufficient balance")
	ErrDuplicateReference  = errors.New("duplicate transaction reference")
	ErrOrderNotRefundable  = errors.New("order not in a refundable state")
	// ErrSettlementConflict means the gateway reported success for a
	// transaction already marked failed; it needs manual review.
	ErrSettlementConflict = errors.New("settlement conflicts with recorded status")
)

// ValidationError rejects malformed input before any state changes
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError for field
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// IsValidation reports whether err is (or wraps) a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// InsufficientFundsError carries the balance seen when a debit was refused.
// It matches ErrInsufficientFunds with errors.Is.
type InsufficientFundsError struct {
	Balance   int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d, need %d", e.Balance, e.Requested)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}
