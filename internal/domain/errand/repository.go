package errand

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for errand and bid persistence.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Errand, error)
	Update(ctx context.Context, e *Errand) error
	GetBidByID(ctx context.Context, id uuid.UUID) (*Bid, error)
	// ListBids returns all bids on an errand, any status.
	ListBids(ctx context.Context, errandID uuid.UUID) ([]*Bid, error)
	UpdateBid(ctx context.Context, b *Bid) error
}
