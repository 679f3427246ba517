package escrow

import (
	"time"

	"github.com/google/uuid"

	"github.com/mashughuli/escrow/internal/domain/errors"
)

// TransactionStatus represents the transaction status in the state machine
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// PlatformFeePercent is the fixed platform fee taken on top of the bid price.
// The fee and the principal are split when the transaction is created, before
// settlement ever sees it.
const PlatformFeePercent = 10

// Transaction is an escrow payment attempt keyed by the provider-issued
// checkout reference. Exactly one transaction exists per checkout reference.
type Transaction struct {
	ID                uuid.UUID
	ErrandID          uuid.UUID
	PayerID           uuid.UUID
	PayeeID           uuid.UUID
	Amount            int64 // bid price in KES, fee excluded
	PlatformFee       int64
	Status            TransactionStatus
	Reference         string // CheckoutRequestID while pending, M-Pesa receipt once completed
	MerchantRequestID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// PlatformFeeFor returns the platform's cut for a given bid price.
func PlatformFeeFor(amount int64) int64 {
	return amount * PlatformFeePercent / 100
}

// NewTransaction creates a pending escrow transaction for an errand bid.
func NewTransaction(errandID, payerID, payeeID uuid.UUID, amount int64, checkoutRequestID, merchantRequestID string) (*Transaction, error) {
	if amount <= 0 {
		return nil, errors.ErrInvalidAmount
	}
	if checkoutRequestID == "" {
		return nil, errors.ErrInvalidInput
	}

	now := time.Now()
	return &Transaction{
		ID:                uuid.New(),
		ErrandID:          errandID,
		PayerID:           payerID,
		PayeeID:           payeeID,
		Amount:            amount,
		PlatformFee:       PlatformFeeFor(amount),
		Status:            StatusPending,
		Reference:         checkoutRequestID,
		MerchantRequestID: merchantRequestID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// CanTransitionTo checks if the transaction can transition to the given status
func (t *Transaction) CanTransitionTo(newStatus TransactionStatus) bool {
	// pending is the only non-terminal state
	if t.Status != StatusPending {
		return false
	}
	return newStatus == StatusCompleted || newStatus == StatusFailed
}

// MarkCompleted transitions the transaction to completed, replacing the
// checkout reference with the provider receipt.
func (t *Transaction) MarkCompleted(receipt string) error {
	if !t.CanTransitionTo(StatusCompleted) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(t.Status)+" to "+string(StatusCompleted),
			errors.ErrInvalidStateTransition,
		)
	}
	t.Status = StatusCompleted
	if receipt != "" {
		t.Reference = receipt
	}
	now := time.Now()
	t.UpdatedAt = now
	t.CompletedAt = &now
	return nil
}

// MarkFailed transitions the transaction to failed.
func (t *Transaction) MarkFailed() error {
	if !t.CanTransitionTo(StatusFailed) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(t.Status)+" to "+string(StatusFailed),
			errors.ErrInvalidStateTransition,
		)
	}
	t.Status = StatusFailed
	now := time.Now()
	t.UpdatedAt = now
	t.CompletedAt = &now
	return nil
}
