package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type classifies a notification for client rendering.
type Type string

const (
	TypeBidAccepted Type = "bid_accepted"
	TypeBidRejected Type = "bid_rejected"
	TypePayment     Type = "payment"
	TypeErrandDone  Type = "errand_update"
)

// Notification is a user-addressed record, immutable once created except for
// the read flag.
type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Type      Type
	Title     string
	Body      string
	Read      bool
	CreatedAt time.Time
}

// New creates an unread notification for a user.
func New(userID uuid.UUID, t Type, title, body string) *Notification {
	return &Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      t,
		Title:     title,
		Body:      body,
		CreatedAt: time.Now(),
	}
}

// ListFilter narrows a notification listing.
type ListFilter struct {
	OnlyUnread bool
	Limit      int
	Offset     int
}

// ListResult carries a page of notifications plus counts for the client badge.
type ListResult struct {
	Notifications []*Notification
	Total         int
	Unread        int
}

// Repository defines the interface for durable notification storage.
type Repository interface {
	// CreateBatch inserts notifications; callers run it inside the settlement
	// transaction so notifications are never visible without their state change.
	CreateBatch(ctx context.Context, batch []*Notification) error
	List(ctx context.Context, userID uuid.UUID, f ListFilter) (*ListResult, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) (*Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}
