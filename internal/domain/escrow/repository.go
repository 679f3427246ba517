package escrow

import (
	"context"

	"github.com/google/uuid"
)

// TransactionRepository defines the interface for transaction persistence.
type TransactionRepository interface {
	Create(ctx context.Context, tx *Transaction) error
	// GetPendingByReference looks up a pending transaction by its checkout
	// reference. Returns errors.ErrTransactionNotFound when no pending
	// transaction exists for the reference; a completed or failed one is
	// invisible to this lookup, which is what makes duplicate callbacks safe.
	GetPendingByReference(ctx context.Context, reference string) (*Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	Update(ctx context.Context, tx *Transaction) error
}

// PayoutRepository defines the interface for payout persistence.
type PayoutRepository interface {
	Create(ctx context.Context, p *Payout) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payout, error)
	GetPendingByErrand(ctx context.Context, errandID uuid.UUID) (*Payout, error)
	Update(ctx context.Context, p *Payout) error
}
