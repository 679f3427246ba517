package realtime

import (
	"encoding/json"
	"time"

	"github.com/mashughuli/escrow/internal/domain/message"
)

// Client frame types.
const (
	frameAuth      = "auth"
	frameSubscribe = "subscribe"
	frameJoin      = "join"
	frameSend      = "send"
	frameTyping    = "typing"
)

// clientFrame is the union of every inbound frame; Type discriminates.
type clientFrame struct {
	Type string `json:"type"`

	// auth
	UserID string `json:"userId,omitempty"`

	// payment subscribe
	CheckoutRequestID string `json:"checkoutRequestId,omitempty"`
	MerchantRequestID string `json:"merchantRequestId,omitempty"`

	// chat
	OtherUserID string `json:"otherUserId,omitempty"`
	ErrandID    string `json:"errandId,omitempty"`
	RecipientID string `json:"recipientId,omitempty"`
	Message     string `json:"message,omitempty"`
}

// PaymentUpdate is the terminal payload delivered to a payment subscriber,
// exactly once per payment attempt: success, failure, or timeout.
type PaymentUpdate struct {
	Type              string `json:"type"` // always "payment_update"
	Status            string `json:"status"`
	Success           bool   `json:"success"`
	Message           string `json:"message,omitempty"`
	CheckoutRequestID string `json:"checkoutRequestId"`
	MerchantRequestID string `json:"merchantRequestId"`
	ResultCode        int    `json:"resultCode"`
	ResultDesc        string `json:"resultDesc,omitempty"`
	TransactionID     string `json:"transactionId,omitempty"`
	TransactionDate   string `json:"transactionDate,omitempty"`
	PhoneNumber       string `json:"phoneNumber,omitempty"`
	ErrandID          string `json:"errandId,omitempty"`
}

// Terminal payment statuses.
const (
	PaymentStatusSuccess = "success"
	PaymentStatusFailed  = "failed"
	PaymentStatusTimeout = "timeout"
)

// MessageView is the wire form of a chat message.
type MessageView struct {
	ID          string `json:"id"`
	ErrandID    string `json:"errandId"`
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Message     string `json:"message"`
	Read        bool   `json:"read"`
	CreatedAt   string `json:"createdAt"`
}

func toMessageView(m *message.Message) MessageView {
	return MessageView{
		ID:          m.ID.String(),
		ErrandID:    m.ErrandID.String(),
		SenderID:    m.SenderID.String(),
		RecipientID: m.RecipientID.String(),
		Message:     m.Body,
		Read:        m.Read,
		CreatedAt:   m.CreatedAt.Format(time.RFC3339),
	}
}

type authedPayload struct {
	Type    string `json:"type"` // "authed"
	Success bool   `json:"success"`
}

type subscribedPayload struct {
	Type string `json:"type"` // "subscribed"
	// RoomID is set for payment subscriptions, ConversationID for chat joins.
	RoomID         string `json:"roomId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Status         string `json:"status"`
}

type historyPayload struct {
	Type           string        `json:"type"` // "history"
	ConversationID string        `json:"conversationId"`
	Messages       []MessageView `json:"messages"`
}

type messagePayload struct {
	Type    string      `json:"type"` // "message"
	Message MessageView `json:"message"`
}

// NewMessageEvent renders the broadcast frame for a persisted chat message.
// REST senders use it so gateway subscribers see the same shape either way.
func NewMessageEvent(m *message.Message) ([]byte, error) {
	return json.Marshal(messagePayload{Type: "message", Message: toMessageView(m)})
}

type messagesReadPayload struct {
	Type           string `json:"type"` // "messages_read"
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type typingPayload struct {
	Type   string `json:"type"` // "typing"
	UserID string `json:"userId"`
}

type errorPayload struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}
