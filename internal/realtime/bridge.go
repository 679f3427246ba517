package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mashughuli/escrow/internal/infrastructure/observability"
)

// envelope is the cross-process wire form of a topic payload. Exclude names a
// connection id on the originating instance that must not receive the
// payload (typing indicators skip the sender's own connection).
type envelope struct {
	Exclude string          `json:"exclude,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// Bridge fans topic payloads out across server instances via Redis pub/sub.
// The client handle publishes; a dedicated PubSub handle subscribes, because
// a subscribed Redis connection cannot issue other commands.
//
// With a nil client the bridge runs in single-process mode: Relay delivers
// straight to the local registry and channel membership is a no-op. This is
// the degraded fallback for starting without a reachable backplane.
type Bridge struct {
	registry *Registry
	client   *redis.Client
	prefix   string
	logger   zerolog.Logger
	metrics  *observability.Metrics

	mu     sync.Mutex
	sub    *redis.PubSub
	joined map[string]struct{}
	done   chan struct{}
}

// NewBridge creates a bridge over the given Redis client. client may be nil.
func NewBridge(registry *Registry, client *redis.Client, prefix string, logger zerolog.Logger, metrics *observability.Metrics) *Bridge {
	if prefix == "" {
		prefix = "ws"
	}
	return &Bridge{
		registry: registry,
		client:   client,
		prefix:   prefix,
		logger:   logger.With().Str("component", "bridge").Logger(),
		metrics:  metrics,
		joined:   make(map[string]struct{}),
	}
}

// Start opens the subscriber handle and begins forwarding received payloads
// to the local registry.
func (b *Bridge) Start(ctx context.Context) {
	if b.client == nil {
		b.logger.Warn().Msg("no backplane configured, running in single-process mode")
		return
	}
	b.sub = b.client.Subscribe(ctx)
	b.done = make(chan struct{})
	go b.receive()
}

// Close tears down the subscriber handle.
func (b *Bridge) Close() {
	if b.sub == nil {
		return
	}
	_ = b.sub.Close()
	<-b.done
}

// EnsureSubscribed idempotently joins the shared channel for a topic. Callers
// invoke it when the topic gains its first local subscriber.
func (b *Bridge) EnsureSubscribed(ctx context.Context, topic string) error {
	if b.client == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.joined[topic]; ok {
		return nil
	}
	if err := b.sub.Subscribe(ctx, b.channel(topic)); err != nil {
		return err
	}
	b.joined[topic] = struct{}{}
	return nil
}

// EnsureUnsubscribed idempotently leaves the shared channel for a topic.
// Callers invoke it when the topic's last local subscriber departs, so this
// process stops receiving traffic nobody here cares about.
func (b *Bridge) EnsureUnsubscribed(ctx context.Context, topic string) error {
	if b.client == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.joined[topic]; !ok {
		return nil
	}
	if err := b.sub.Unsubscribe(ctx, b.channel(topic)); err != nil {
		return err
	}
	delete(b.joined, topic)
	return nil
}

// Relay publishes a payload on the topic's shared channel so subscribers on
// every instance (this one included, via the echo) receive it.
func (b *Bridge) Relay(ctx context.Context, topic string, payload []byte) error {
	return b.relay(ctx, topic, payload, "")
}

// RelayExcept is Relay minus one originating connection.
func (b *Bridge) RelayExcept(ctx context.Context, topic, excludeConnID string, payload []byte) error {
	return b.relay(ctx, topic, payload, excludeConnID)
}

func (b *Bridge) relay(ctx context.Context, topic string, payload []byte, exclude string) error {
	if b.client == nil {
		_, released := b.registry.PublishLocal(topic, payload, exclude)
		b.releaseAll(ctx, released)
		if b.metrics != nil {
			b.metrics.BridgePublishes.WithLabelValues("local").Inc()
		}
		return nil
	}

	env, err := json.Marshal(envelope{Exclude: exclude, Data: payload})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel(topic), env).Err(); err != nil {
		return err
	}
	if b.metrics != nil {
		b.metrics.BridgePublishes.WithLabelValues("backplane").Inc()
	}
	return nil
}

func (b *Bridge) receive() {
	defer close(b.done)
	for msg := range b.sub.Channel() {
		topic := strings.TrimPrefix(msg.Channel, b.prefix+":")

		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			b.logger.Error().Err(err).Str("channel", msg.Channel).Msg("dropping malformed backplane payload")
			continue
		}

		_, released := b.registry.PublishLocal(topic, env.Data, env.Exclude)
		b.releaseAll(context.Background(), released)
	}
}

// releaseAll leaves shared channels for topics emptied by send-failure
// evictions during a local publish.
func (b *Bridge) releaseAll(ctx context.Context, topics []string) {
	for _, t := range topics {
		if err := b.EnsureUnsubscribed(ctx, t); err != nil {
			b.logger.Error().Err(err).Str("topic", t).Msg("failed to leave channel")
		}
	}
}

func (b *Bridge) channel(topic string) string {
	return b.prefix + ":" + topic
}
