package errand

import (
	"time"

	"github.com/google/uuid"
)

// BidStatus represents a bid's state
type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

// Bid is a runner's offer on an errand. At most one bid per errand may be
// accepted; accepting one rejects all siblings within the same transition.
type Bid struct {
	ID        uuid.UUID
	ErrandID  uuid.UUID
	RunnerID  uuid.UUID
	Price     int64
	Status    BidStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Accept marks the bid accepted.
func (b *Bid) Accept() {
	b.Status = BidAccepted
	b.UpdatedAt = time.Now()
}

// Reject marks the bid rejected.
func (b *Bid) Reject() {
	b.Status = BidRejected
	b.UpdatedAt = time.Now()
}
