package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput              = errors.New("invalid input")
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrRecipientNotFound         = errors.New("recipient not found")
	ErrResourceNotFound          = errors.New("resource not found")
	ErrDuplicateRequest          = errors.New("duplicate request")
	ErrProviderError             = errors.New("payment provider error")
	ErrPartialFailureCompensated = errors.New("operation failed after a partial write and was compensated")
	ErrReconciliationRequired    = errors.New("operation left the ledger inconsistent; reconciliation required")
	ErrForbidden                 = errors.New("forbidden")
)

// PartialFailureError reports a compound operation whose second step failed
// and whose first step was reversed by a compensating entry.
type PartialFailureError struct {
	Operation           string
	RootCause           error
	CompensationEntryID string
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s failed and was rolled back (compensation %s): %v", e.Operation, e.CompensationEntryID, e.RootCause)
}

func (e *PartialFailureError) Unwrap() []error {
	return []error{ErrPartialFailureCompensated, e.RootCause}
}

// ReconciliationError reports a compound operation whose compensation also
// failed. The debit entry stands and an operator has to settle it.
type ReconciliationError struct {
	Operation         string
	AlertID           string
	DebitEntryID      string
	RootCause         error
	CompensationError error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("%s: debit %s not compensated: %v (compensation: %v)", e.Operation, e.DebitEntryID, e.RootCause, e.CompensationError)
}

func (e *ReconciliationError) Unwrap() []error {
	return []error{ErrReconciliationRequired, e.RootCause}
}

func providerError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrProviderError, err)
}
