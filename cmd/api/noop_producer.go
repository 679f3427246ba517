package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	infraRedis "github.com/mashughuli/escrow/internal/infrastructure/redis"
)

// noopProducer stands in for the stream producer when Redis is absent.
// Approvals still complete the errand; the payout stays pending until an
// operator re-releases it with a backplane available.
type noopProducer struct {
	logger zerolog.Logger
}

func (p noopProducer) PublishPayoutEvent(ctx context.Context, ev infraRedis.PayoutEvent) error {
	p.logger.Warn().Str("payout_id", ev.PayoutID).Msg("no backplane, payout not queued")
	return fmt.Errorf("payout queue unavailable")
}

func (p noopProducer) PublishToDLQ(ctx context.Context, payoutID, reason string) error {
	return fmt.Errorf("payout queue unavailable")
}
