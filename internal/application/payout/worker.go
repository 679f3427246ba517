package payout

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	domainErrors "github.com/mashughuli/escrow/internal/domain/errors"
	"github.com/mashughuli/escrow/internal/domain/escrow"
	"github.com/mashughuli/escrow/internal/infrastructure/observability"
	"github.com/mashughuli/escrow/internal/infrastructure/redis"
)

func redisPayoutEvent(p *escrow.Payout, phone, title string) redis.PayoutEvent {
	return redis.PayoutEvent{
		PayoutID:    p.ID.String(),
		RunnerPhone: phone,
		Amount:      p.Amount,
		Reason:      fmt.Sprintf("Payout for %s", title),
	}
}

// Worker drains the disbursement stream and pushes money to runners.
// Each event moves its payout pending -> processing -> completed/failed;
// events for payouts not in pending state are acked and skipped, which
// makes redelivery after a crash safe.
type Worker struct {
	consumer  *redis.StreamConsumer
	producer  EventProducer
	payouts   escrow.PayoutRepository
	disburser Disburser
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// NewWorker creates a disbursement worker.
func NewWorker(
	consumer *redis.StreamConsumer,
	producer EventProducer,
	payouts escrow.PayoutRepository,
	disburser Disburser,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		consumer:  consumer,
		producer:  producer,
		payouts:   payouts,
		disburser: disburser,
		logger:    logger.With().Str("component", "payout_worker").Logger(),
		metrics:   metrics,
	}
}

// Run consumes the stream until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.consumer.CreateGroup(ctx); err != nil {
		return err
	}
	w.logger.Info().Msg("payout worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("payout worker stopping")
			return ctx.Err()
		default:
		}

		streams, err := w.consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error().Err(err).Msg("stream read failed")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				w.handle(ctx, msg)
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg goredis.XMessage) {
	start := time.Now()

	ev, err := parseEvent(msg)
	if err != nil {
		w.logger.Error().Err(err).Str("message_id", msg.ID).Msg("dropping malformed payout event")
		w.ack(ctx, msg.ID)
		return
	}

	if err := w.process(ctx, ev); err != nil {
		w.logger.Error().Err(err).
			Str("payout_id", ev.PayoutID).
			Msg("payout disbursement failed")
		if dlqErr := w.producer.PublishToDLQ(ctx, ev.PayoutID, err.Error()); dlqErr != nil {
			w.logger.Error().Err(dlqErr).Str("payout_id", ev.PayoutID).Msg("dlq publish failed")
		}
		if w.metrics != nil {
			w.metrics.WorkerMessagesProcessed.WithLabelValues(redis.PayoutStream, "failed").Inc()
		}
	} else if w.metrics != nil {
		w.metrics.WorkerMessagesProcessed.WithLabelValues(redis.PayoutStream, "completed").Inc()
	}

	w.ack(ctx, msg.ID)
	if w.metrics != nil {
		w.metrics.WorkerProcessingDuration.WithLabelValues(redis.PayoutStream).Observe(time.Since(start).Seconds())
	}
}

func (w *Worker) process(ctx context.Context, ev redis.PayoutEvent) error {
	id, err := uuid.Parse(ev.PayoutID)
	if err != nil {
		return fmt.Errorf("bad payout id %q: %w", ev.PayoutID, err)
	}

	p, err := w.payouts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != escrow.PayoutPending {
		w.logger.Warn().
			Str("payout_id", ev.PayoutID).
			Str("status", string(p.Status)).
			Msg("skipping payout not in pending state")
		return nil
	}

	p.Status = escrow.PayoutProcessing
	p.UpdatedAt = time.Now()
	if err := w.payouts.Update(ctx, p); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	ref, err := w.disburser.Disburse(ctx, ev.RunnerPhone, p.Amount, ev.Reason)
	if err != nil {
		p.Status = escrow.PayoutFailed
		p.UpdatedAt = time.Now()
		if updErr := w.payouts.Update(ctx, p); updErr != nil {
			w.logger.Error().Err(updErr).Str("payout_id", ev.PayoutID).Msg("failed to mark payout failed")
		}
		return fmt.Errorf("%w: %v", domainErrors.ErrProviderUnavailable, err)
	}

	p.Status = escrow.PayoutCompleted
	p.PayoutReference = &ref
	p.UpdatedAt = time.Now()
	if err := w.payouts.Update(ctx, p); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	w.logger.Info().
		Str("payout_id", ev.PayoutID).
		Str("reference", ref).
		Int64("amount", p.Amount).
		Msg("payout disbursed")
	return nil
}

func (w *Worker) ack(ctx context.Context, messageID string) {
	if err := w.consumer.Ack(ctx, messageID); err != nil {
		w.logger.Error().Err(err).Str("message_id", messageID).Msg("ack failed")
	}
}

func parseEvent(msg goredis.XMessage) (redis.PayoutEvent, error) {
	var ev redis.PayoutEvent

	payoutID, ok := msg.Values["payout_id"].(string)
	if !ok || payoutID == "" {
		return ev, fmt.Errorf("missing payout_id")
	}
	phone, _ := msg.Values["runner_phone"].(string)
	reason, _ := msg.Values["reason"].(string)

	var amount int64
	if raw, ok := msg.Values["amount"].(string); ok {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ev, fmt.Errorf("bad amount %q: %w", raw, err)
		}
		amount = parsed
	}

	ev.PayoutID = payoutID
	ev.RunnerPhone = phone
	ev.Amount = amount
	ev.Reason = reason
	return ev, nil
}
