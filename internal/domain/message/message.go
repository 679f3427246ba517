package message

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status tracks chat message delivery.
type Status string

const (
	StatusSent Status = "sent"
	StatusRead Status = "read"
)

// Message is one chat message between two users about an errand.
type Message struct {
	ID          uuid.UUID
	ErrandID    uuid.UUID
	SenderID    uuid.UUID
	RecipientID uuid.UUID
	Body        string
	Read        bool
	Status      Status
	CreatedAt   time.Time
}

// New creates a sent, unread message.
func New(errandID, senderID, recipientID uuid.UUID, body string) *Message {
	return &Message{
		ID:          uuid.New(),
		ErrandID:    errandID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
		Status:      StatusSent,
		CreatedAt:   time.Now(),
	}
}

// Repository defines the interface for chat message persistence.
type Repository interface {
	Create(ctx context.Context, m *Message) error
	// History returns the most recent messages between two users in
	// chronological order, at most limit entries.
	History(ctx context.Context, userA, userB uuid.UUID, limit int) ([]*Message, error)
	// MarkConversationRead flips unread messages sent by senderID to
	// recipientID and returns how many were updated.
	MarkConversationRead(ctx context.Context, recipientID, senderID uuid.UUID) (int64, error)
}
