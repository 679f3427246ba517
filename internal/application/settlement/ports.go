package settlement

import "context"

// TransactionManager runs a function inside a store transaction. The
// settlement transition depends on it for all-or-nothing semantics.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// OutcomePublisher delivers a settlement outcome to the payment topic's
// subscribers, wherever they are connected. The realtime bridge satisfies it.
type OutcomePublisher interface {
	Relay(ctx context.Context, topic string, payload []byte) error
}
