package services

import (
	"errors"
	"fmt"

	"FanatiquePay/internal/payments"
	"FanatiquePay/internal/pricing"
	"FanatiquePay/internal/store"
)

var (
	ErrMissingField           = errors.New("missing field")
	ErrInvalidField           = errors.New("invalid field")
	ErrTotalMismatch          = errors.New("order total does not match cart")
	ErrOwnershipMismatch      = errors.New("order belongs to another user")
	ErrInvalidState           = errors.New("order is not in a payable state")
	ErrAmountMismatch         = errors.New("payment amount does not match order total")
	ErrReconciliationRequired = errors.New("settlement needs reconciliation")

	ErrOrderNotFound    = store.ErrOrderNotFound
	ErrPersistence      = store.ErrPersistence
	ErrProductNotFound  = pricing.ErrProductNotFound
	ErrInvalidQuantity  = pricing.ErrInvalidQuantity
	ErrPaymentRejected  = payments.ErrPaymentRejected
	ErrPaymentTimeout   = payments.ErrPaymentTimeout
	ErrChainUnavailable = payments.ErrChainUnavailable
)

// FieldError names the request field that failed validation.
// Err is ErrMissingField or ErrInvalidField.
type FieldError struct {
	Field  string
	Err    error
	Detail string
}

func (e *FieldError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err, e.Field, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Field)
}

func (e *FieldError) Unwrap() error { return e.Err }

func missingField(field string) error {
	return &FieldError{Field: field, Err: ErrMissingField}
}

func invalidField(field string, detail string) error {
	return &FieldError{Field: field, Err: ErrInvalidField, Detail: detail}
}

// PaymentPendingError is returned when a settlement was broadcast but the
// order could not be marked paid. The order stays settling with TxHash until
// it is reconciled, and must not be paid again in the meantime.
type PaymentPendingError struct {
	OrderID int64
	TxHash  string
	Err     error
}

func (e *PaymentPendingError) Error() string {
	return fmt.Sprintf("order %d settlement pending (tx %s): %s", e.OrderID, e.TxHash, e.Err)
}

func (e *PaymentPendingError) Unwrap() error { return e.Err }
