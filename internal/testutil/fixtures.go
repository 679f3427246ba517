package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/mashughuli/escrow/internal/domain/errand"
	"github.com/mashughuli/escrow/internal/domain/escrow"
	"github.com/mashughuli/escrow/internal/domain/user"
)

func NewTestUser(name, phone string) *user.User {
	return &user.User{
		ID:          uuid.New(),
		FullName:    name,
		Email:       name + "@example.com",
		PhoneNumber: phone,
	}
}

func NewTestErrand(requesterID uuid.UUID, title string) *errand.Errand {
	now := time.Now()
	return &errand.Errand{
		ID:          uuid.New(),
		RequesterID: requesterID,
		Title:       title,
		Status:      errand.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func NewTestBid(errandID, runnerID uuid.UUID, price int64) *errand.Bid {
	now := time.Now()
	return &errand.Bid{
		ID:        uuid.New(),
		ErrandID:  errandID,
		RunnerID:  runnerID,
		Price:     price,
		Status:    errand.BidPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func NewPendingTransaction(errandID, payerID, payeeID uuid.UUID, amount int64, checkoutRef, merchantRef string) *escrow.Transaction {
	now := time.Now()
	return &escrow.Transaction{
		ID:                uuid.New(),
		ErrandID:          errandID,
		PayerID:           payerID,
		PayeeID:           payeeID,
		Amount:            amount,
		PlatformFee:       escrow.PlatformFeeFor(amount),
		Status:            escrow.StatusPending,
		Reference:         checkoutRef,
		MerchantRequestID: merchantRef,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
