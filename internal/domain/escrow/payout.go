package escrow

import (
	"time"

	"github.com/google/uuid"
)

// PayoutStatus represents the payout status
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

// Payout is the runner's share of a settled transaction. It is created as a
// consequence of settlement and released for disbursement when the requester
// approves the completed errand.
type Payout struct {
	ID              uuid.UUID
	ErrandID        uuid.UUID
	RunnerID        uuid.UUID
	TransactionID   uuid.UUID
	Amount          int64
	Status          PayoutStatus
	PayoutReference *string // provider conversation ID once disbursement is initiated
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewPayout creates a pending payout referencing a completed transaction.
// The amount is the transaction principal; the platform fee was already
// excluded at transaction-creation time.
func NewPayout(tx *Transaction) *Payout {
	now := time.Now()
	return &Payout{
		ID:            uuid.New(),
		ErrandID:      tx.ErrandID,
		RunnerID:      tx.PayeeID,
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		Status:        PayoutPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
