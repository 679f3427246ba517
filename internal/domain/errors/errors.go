package errors

import (
	"errors"
	"fmt"
)

var (
	// Settlement errors
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrTransactionNotPending  = errors.New("transaction is not pending")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrBidMissing             = errors.New("accepted bid missing for payee")
	ErrInvalidAmount          = errors.New("invalid amount")

	// Errand errors
	ErrErrandNotFound   = errors.New("errand not found")
	ErrBidNotFound      = errors.New("bid not found")
	ErrErrandNotPayable = errors.New("errand is not in a payable state")

	// Notification / message errors
	ErrNotificationNotFound = errors.New("notification not found")

	// Payout errors
	ErrPayoutNotFound = errors.New("payout not found")

	// User errors
	ErrUserNotFound = errors.New("user not found")

	// Provider errors
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderRejected    = errors.New("payment rejected by provider")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
