package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mashughuli/escrow/internal/domain/message"
	"github.com/mashughuli/escrow/internal/infrastructure/config"
	"github.com/mashughuli/escrow/internal/infrastructure/observability"
)

// Gateway is the WebSocket endpoint. It owns every connection for its
// lifetime: it interprets client frames, keeps per-connection subscription
// state in the registry, and forwards traffic through the bridge.
//
// Per-connection state machine: connected -> authenticated -> subscribed
// (payment flow skips authentication; the checkout/merchant pair gates
// access there, not a user identity) -> closed.
type Gateway struct {
	registry *Registry
	bridge   *Bridge
	messages message.Repository
	cfg      config.RealtimeConfig
	logger   zerolog.Logger
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

// NewGateway wires the gateway against a registry, bridge and message store.
func NewGateway(
	registry *Registry,
	bridge *Bridge,
	messages message.Repository,
	cfg config.RealtimeConfig,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Gateway {
	return &Gateway{
		registry: registry,
		bridge:   bridge,
		messages: messages,
		cfg:      cfg,
		logger:   logger.With().Str("component", "gateway").Logger(),
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browsers cannot set custom headers on WebSocket dials; origin
			// policy is enforced by the CORS layer on the REST surface.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// connection is the gateway's per-client state: fixed structure, looked up by
// id, never by scanning all connections.
type connection struct {
	id   string
	sock *websocket.Conn
	gw   *Gateway

	writeMu      sync.Mutex
	writeTimeout time.Duration

	mu           sync.Mutex
	userID       string
	paymentTopic string
	paymentTimer *time.Timer
}

// ID implements Conn.
func (c *connection) ID() string { return c.id }

// Send implements Conn. Writes are serialized; a terminal payment update
// passing through here resolves the pending payment wait.
func (c *connection) Send(payload []byte) error {
	c.writeMu.Lock()
	_ = c.sock.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	err := c.sock.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err == nil {
		c.observeOutbound(payload)
	}
	return err
}

// observeOutbound clears the payment timer when the terminal update for the
// awaited topic is delivered, and releases the one-shot subscription.
func (c *connection) observeOutbound(payload []byte) {
	c.mu.Lock()
	waiting := c.paymentTopic != ""
	c.mu.Unlock()
	if !waiting {
		return
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.Type != "payment_update" {
		return
	}
	c.resolvePaymentWait()
}

// resolvePaymentWait stops the timer and leaves the payment topic. Safe to
// call from both the delivery path and the timeout path; only the first
// caller acts.
func (c *connection) resolvePaymentWait() {
	c.mu.Lock()
	topic := c.paymentTopic
	timer := c.paymentTimer
	c.paymentTopic = ""
	c.paymentTimer = nil
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if topic == "" {
		return
	}
	if last := c.gw.registry.Leave(c.id, topic); last {
		if err := c.gw.bridge.EnsureUnsubscribed(context.Background(), topic); err != nil {
			c.gw.logger.Error().Err(err).Str("topic", topic).Msg("failed to leave channel")
		}
	}
	c.gw.metrics.WSTopics.Set(float64(c.gw.registry.TopicCount()))
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug().Err(err).Msg("upgrade failed")
		return
	}

	c := &connection{
		id:           uuid.New().String(),
		sock:         sock,
		gw:           g,
		writeTimeout: g.cfg.WriteTimeout,
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = 10 * time.Second
	}
	sock.SetReadLimit(g.cfg.MaxMessageBytes)

	g.metrics.WSConnections.Inc()
	g.logger.Debug().Str("conn", c.id).Msg("connection opened")

	// Unconditional cleanup: runs whether the read loop ends with a normal
	// close, an error, or a panic in a handler. No registry entry may
	// reference the connection afterwards.
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error().Interface("panic", rec).Str("conn", c.id).Msg("panic in connection handler")
		}
		c.mu.Lock()
		if c.paymentTimer != nil {
			c.paymentTimer.Stop()
			c.paymentTimer = nil
		}
		c.paymentTopic = ""
		c.mu.Unlock()

		released := g.registry.Unsubscribe(c.id)
		for _, t := range released {
			if err := g.bridge.EnsureUnsubscribed(context.Background(), t); err != nil {
				g.logger.Error().Err(err).Str("topic", t).Msg("failed to leave channel")
			}
		}
		_ = sock.Close()
		g.metrics.WSConnections.Dec()
		g.metrics.WSTopics.Set(float64(g.registry.TopicCount()))
		g.logger.Debug().Str("conn", c.id).Msg("connection closed")
	}()

	g.readLoop(r.Context(), c)
}

func (g *Gateway) readLoop(ctx context.Context, c *connection) {
	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			return
		}

		var f clientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			// Malformed frames are dropped; the connection stays open.
			g.logger.Debug().Err(err).Str("conn", c.id).Msg("dropping malformed frame")
			continue
		}
		g.metrics.WSMessagesTotal.WithLabelValues(f.Type, "in").Inc()

		switch f.Type {
		case frameAuth:
			g.handleAuth(c, f)
		case frameSubscribe:
			g.handleSubscribe(ctx, c, f)
		case frameJoin, frameSend, frameTyping:
			c.mu.Lock()
			userID := c.userID
			c.mu.Unlock()
			if userID == "" {
				// Pre-auth chat frames are silently dropped.
				g.logger.Debug().Str("conn", c.id).Str("type", f.Type).Msg("dropping unauthenticated frame")
				continue
			}
			switch f.Type {
			case frameJoin:
				g.handleJoin(ctx, c, userID, f)
			case frameSend:
				g.handleSend(ctx, c, userID, f)
			case frameTyping:
				g.handleTyping(ctx, c, userID, f)
			}
		default:
			g.logger.Debug().Str("conn", c.id).Str("type", f.Type).Msg("unknown frame type")
		}
	}
}

func (g *Gateway) handleAuth(c *connection, f clientFrame) {
	if f.UserID == "" {
		g.sendError(c, "userId is required")
		return
	}
	c.mu.Lock()
	c.userID = f.UserID
	c.mu.Unlock()
	g.send(c, authedPayload{Type: "authed", Success: true})
}

// handleSubscribe registers a one-shot payment subscription. Access is gated
// by knowledge of the checkout/merchant pair, so no auth frame is required.
func (g *Gateway) handleSubscribe(ctx context.Context, c *connection, f clientFrame) {
	if f.CheckoutRequestID == "" || f.MerchantRequestID == "" {
		g.sendError(c, "checkoutRequestId and merchantRequestId are required")
		return
	}
	topic := PaymentTopic(f.CheckoutRequestID, f.MerchantRequestID)

	c.mu.Lock()
	already := c.paymentTopic == topic
	c.mu.Unlock()
	if already {
		// Duplicate subscribe: ack again, keep the original timeout window.
		g.send(c, subscribedPayload{Type: "subscribed", RoomID: topic, Status: "connected"})
		return
	}

	// Claim the wait state before the registry makes this connection
	// reachable, so a terminal update delivered immediately after
	// SubscribeExclusive already finds the topic set and stops the timer.
	c.mu.Lock()
	if c.paymentTimer != nil {
		c.paymentTimer.Stop()
	}
	c.paymentTopic = topic
	c.paymentTimer = time.AfterFunc(g.cfg.PaymentTimeout, func() {
		g.firePaymentTimeout(c, topic, f.CheckoutRequestID, f.MerchantRequestID)
	})
	c.mu.Unlock()

	first, released := g.registry.SubscribeExclusive(c, topic)
	for _, t := range released {
		if err := g.bridge.EnsureUnsubscribed(ctx, t); err != nil {
			g.logger.Error().Err(err).Str("topic", t).Msg("failed to leave channel")
		}
	}
	if first {
		if err := g.bridge.EnsureSubscribed(ctx, topic); err != nil {
			g.logger.Error().Err(err).Str("topic", topic).Msg("failed to join channel")
		}
	}
	g.metrics.WSTopics.Set(float64(g.registry.TopicCount()))

	g.send(c, subscribedPayload{Type: "subscribed", RoomID: topic, Status: "connected"})
	g.logger.Info().Str("conn", c.id).Str("topic", topic).Msg("payment subscription opened")
}

// firePaymentTimeout delivers the single terminal timeout status when no
// callback arrived inside the window, then releases the subscription.
func (g *Gateway) firePaymentTimeout(c *connection, topic, checkoutID, merchantID string) {
	c.mu.Lock()
	if c.paymentTopic != topic {
		// A terminal update won the race.
		c.mu.Unlock()
		return
	}
	c.paymentTopic = ""
	c.paymentTimer = nil
	c.mu.Unlock()

	// Leave the topic before writing the frame so a concurrently
	// published outcome is no longer deliverable here.
	if last := g.registry.Leave(c.id, topic); last {
		if err := g.bridge.EnsureUnsubscribed(context.Background(), topic); err != nil {
			g.logger.Error().Err(err).Str("topic", topic).Msg("failed to leave channel")
		}
	}
	g.metrics.WSTopics.Set(float64(g.registry.TopicCount()))

	payload, _ := json.Marshal(PaymentUpdate{
		Type:              "payment_update",
		Status:            PaymentStatusTimeout,
		Success:           false,
		Message:           "Payment confirmation timed out. Please try again.",
		CheckoutRequestID: checkoutID,
		MerchantRequestID: merchantID,
	})
	if err := c.Send(payload); err != nil {
		g.logger.Debug().Err(err).Str("conn", c.id).Msg("timeout delivery failed")
	}
	g.metrics.PaymentTimeouts.Inc()
	g.metrics.WSMessagesTotal.WithLabelValues("payment_update", "out").Inc()
	g.logger.Info().Str("conn", c.id).Str("topic", topic).Msg("payment subscription timed out")
}

// handleJoin subscribes the connection to a conversation, pushes recent
// history to the joining connection only, and marks messages addressed to
// this user as read.
func (g *Gateway) handleJoin(ctx context.Context, c *connection, userID string, f clientFrame) {
	me, err := uuid.Parse(userID)
	if err != nil {
		g.sendError(c, "invalid user id")
		return
	}
	other, err := uuid.Parse(f.OtherUserID)
	if err != nil {
		g.sendError(c, "invalid otherUserId")
		return
	}

	topic := ConversationTopic(userID, f.OtherUserID)
	if first := g.registry.Subscribe(c, topic); first {
		if err := g.bridge.EnsureSubscribed(ctx, topic); err != nil {
			g.logger.Error().Err(err).Str("topic", topic).Msg("failed to join channel")
		}
	}
	g.metrics.WSTopics.Set(float64(g.registry.TopicCount()))
	g.send(c, subscribedPayload{Type: "subscribed", ConversationID: topic, Status: "connected"})

	history, err := g.messages.History(ctx, me, other, g.cfg.HistoryLimit)
	if err != nil {
		g.logger.Error().Err(err).Str("topic", topic).Msg("history fetch failed")
		g.sendError(c, "failed to load conversation history")
		return
	}
	views := make([]MessageView, 0, len(history))
	for _, m := range history {
		views = append(views, toMessageView(m))
	}
	// A conversation with no history is a valid empty list, not an error.
	g.send(c, historyPayload{Type: "history", ConversationID: topic, Messages: views})

	n, err := g.messages.MarkConversationRead(ctx, me, other)
	if err != nil {
		g.logger.Error().Err(err).Str("topic", topic).Msg("mark read failed")
		return
	}
	if n > 0 {
		payload, _ := json.Marshal(messagesReadPayload{Type: "messages_read", ConversationID: topic, UserID: userID})
		if err := g.bridge.Relay(ctx, topic, payload); err != nil {
			g.logger.Error().Err(err).Str("topic", topic).Msg("read receipt relay failed")
		}
	}
}

// handleSend persists the message and relays it to the topic so every
// subscriber, the sender's other connections included, converges on the same
// ordered view.
func (g *Gateway) handleSend(ctx context.Context, c *connection, userID string, f clientFrame) {
	sender, err := uuid.Parse(userID)
	if err != nil {
		g.sendError(c, "invalid user id")
		return
	}
	recipient, err := uuid.Parse(f.RecipientID)
	if err != nil {
		g.sendError(c, "invalid recipientId")
		return
	}
	errandID, err := uuid.Parse(f.ErrandID)
	if err != nil {
		g.sendError(c, "invalid errandId")
		return
	}
	if f.Message == "" {
		g.sendError(c, "message is required")
		return
	}

	m := message.New(errandID, sender, recipient, f.Message)
	if err := g.messages.Create(ctx, m); err != nil {
		g.logger.Error().Err(err).Str("conn", c.id).Msg("message persist failed")
		g.sendError(c, "failed to send message")
		return
	}

	topic := ConversationTopic(userID, f.RecipientID)
	payload, _ := json.Marshal(messagePayload{Type: "message", Message: toMessageView(m)})
	if err := g.bridge.Relay(ctx, topic, payload); err != nil {
		g.logger.Error().Err(err).Str("topic", topic).Msg("message relay failed")
	}
	g.metrics.WSMessagesTotal.WithLabelValues("message", "out").Inc()
}

// handleTyping relays an ephemeral typing indicator to everyone on the topic
// except the sender's own connection. Nothing is persisted.
func (g *Gateway) handleTyping(ctx context.Context, c *connection, userID string, f clientFrame) {
	if f.RecipientID == "" {
		return
	}
	topic := ConversationTopic(userID, f.RecipientID)
	payload, _ := json.Marshal(typingPayload{Type: "typing", UserID: userID})
	if err := g.bridge.RelayExcept(ctx, topic, c.id, payload); err != nil {
		g.logger.Error().Err(err).Str("topic", topic).Msg("typing relay failed")
	}
}

func (g *Gateway) send(c *connection, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		g.logger.Error().Err(err).Msg("marshal outbound payload")
		return
	}
	if err := c.Send(payload); err != nil {
		g.logger.Debug().Err(err).Str("conn", c.id).Msg("send failed")
	}
}

func (g *Gateway) sendError(c *connection, msg string) {
	g.send(c, errorPayload{Type: "error", Message: msg})
}
