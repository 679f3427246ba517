package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// PayoutStream carries payouts released for B2C disbursement.
	PayoutStream = "payouts:disbursement"
	// PayoutDLQ receives payout events that exhausted their retries.
	PayoutDLQ = "payouts:dlq"
)

// PayoutEvent is the wire form of a released payout on the stream.
type PayoutEvent struct {
	PayoutID    string
	RunnerPhone string
	Amount      int64
	Reason      string
}

type StreamProducer struct {
	client *redis.Client
}

func NewStreamProducer(client *redis.Client) *StreamProducer {
	return &StreamProducer{client: client}
}

// PublishPayoutEvent enqueues a released payout for the disbursement worker.
func (p *StreamProducer) PublishPayoutEvent(ctx context.Context, ev PayoutEvent) error {
	args := &redis.XAddArgs{
		Stream: PayoutStream,
		Values: map[string]any{
			"payout_id":    ev.PayoutID,
			"runner_phone": ev.RunnerPhone,
			"amount":       ev.Amount,
			"reason":       ev.Reason,
			"timestamp":    time.Now().Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish payout event: %w", err)
	}
	return nil
}

// PublishToDLQ parks a payout event that could not be processed.
func (p *StreamProducer) PublishToDLQ(ctx context.Context, payoutID, reason string) error {
	args := &redis.XAddArgs{
		Stream: PayoutDLQ,
		Values: map[string]any{
			"payout_id": payoutID,
			"reason":    reason,
			"timestamp": time.Now().Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}
	return nil
}

type StreamConsumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client *redis.Client,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	// Create stream if it doesn't exist
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XStream, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			// No new messages
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	return streams, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	err := c.client.XAck(ctx, c.stream, c.group, messageID).Err()
	if err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}
