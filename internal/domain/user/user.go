package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is the slice of the platform user this service needs: identity for
// notifications and a phone number for payouts.
type User struct {
	ID          uuid.UUID
	FullName    string
	Email       string
	PhoneNumber string
	CreatedAt   time.Time
}

// Repository defines the interface for user lookups.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
}
