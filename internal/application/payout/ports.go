package payout

import (
	"context"

	"github.com/mashughuli/escrow/internal/infrastructure/redis"
)

// TransactionManager runs a function inside a store transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventProducer hands released payouts to the disbursement worker.
type EventProducer interface {
	PublishPayoutEvent(ctx context.Context, ev redis.PayoutEvent) error
	PublishToDLQ(ctx context.Context, payoutID, reason string) error
}

// Disburser sends money to a runner's phone and returns the provider's
// disbursement reference.
type Disburser interface {
	Disburse(ctx context.Context, phoneNumber string, amount int64, remarks string) (reference string, err error)
}
