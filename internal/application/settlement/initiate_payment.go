package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mashughuli/escrow/internal/domain/errand"
	domainErrors "github.com/mashughuli/escrow/internal/domain/errors"
	"github.com/mashughuli/escrow/internal/domain/escrow"
	"github.com/mashughuli/escrow/internal/infrastructure/observability"
)

// StkPush is the provider's acknowledgement of an initiated payment.
type StkPush struct {
	CheckoutRequestID string
	MerchantRequestID string
	CustomerMessage   string
}

// PaymentInitiator starts a customer payment prompt and returns the
// checkout/merchant request pair used as the settlement correlation key.
type PaymentInitiator interface {
	InitiateStkPush(ctx context.Context, phoneNumber string, amount int64, accountRef, description string) (*StkPush, error)
}

// InitiatePaymentInput carries a requester's request to pay for a bid.
type InitiatePaymentInput struct {
	ErrandID    uuid.UUID
	BidID       uuid.UUID
	PayerID     uuid.UUID
	PhoneNumber string
}

// InitiatePaymentResult is returned to the client so it can subscribe to
// the payment topic and wait for the terminal update.
type InitiatePaymentResult struct {
	TransactionID     uuid.UUID
	CheckoutRequestID string
	MerchantRequestID string
	Amount            int64
	PlatformFee       int64
	CustomerMessage   string
}

// PaymentInitiation creates pending escrow transactions by prompting the
// payer's phone. The fee/principal split happens here, at creation, so
// settlement later never does fee math.
type PaymentInitiation struct {
	transactions escrow.TransactionRepository
	errands      errand.Repository
	initiator    PaymentInitiator
	logger       zerolog.Logger
	metrics      *observability.Metrics
}

// NewPaymentInitiation creates the payment initiation use case.
func NewPaymentInitiation(
	transactions escrow.TransactionRepository,
	errands errand.Repository,
	initiator PaymentInitiator,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *PaymentInitiation {
	return &PaymentInitiation{
		transactions: transactions,
		errands:      errands,
		initiator:    initiator,
		logger:       logger.With().Str("component", "payment_initiation").Logger(),
		metrics:      metrics,
	}
}

// Initiate validates the bid, prompts the payer's phone for the bid price
// plus the platform fee, and records the pending transaction keyed by the
// provider's checkout reference.
func (p *PaymentInitiation) Initiate(ctx context.Context, in InitiatePaymentInput) (*InitiatePaymentResult, error) {
	e, err := p.errands.GetByID(ctx, in.ErrandID)
	if err != nil {
		return nil, err
	}
	if e.RequesterID != in.PayerID {
		return nil, domainErrors.ErrForbidden
	}
	if e.Status != errand.StatusOpen && e.Status != errand.StatusDisputed {
		return nil, domainErrors.ErrErrandNotPayable
	}

	bid, err := p.errands.GetBidByID(ctx, in.BidID)
	if err != nil {
		return nil, err
	}
	if bid.ErrandID != in.ErrandID {
		return nil, domainErrors.ErrBidNotFound
	}
	if bid.Status != errand.BidPending {
		return nil, fmt.Errorf("%w: bid is %s", domainErrors.ErrInvalidInput, bid.Status)
	}

	fee := escrow.PlatformFeeFor(bid.Price)
	total := bid.Price + fee

	push, err := p.initiator.InitiateStkPush(ctx, in.PhoneNumber, total,
		e.ID.String(), fmt.Sprintf("Escrow payment for %s", e.Title))
	if err != nil {
		if p.metrics != nil {
			p.metrics.PaymentInitiations.WithLabelValues("provider_error").Inc()
		}
		return nil, err
	}

	trx, err := escrow.NewTransaction(e.ID, in.PayerID, bid.RunnerID, bid.Price,
		push.CheckoutRequestID, push.MerchantRequestID)
	if err != nil {
		return nil, err
	}
	if err := p.transactions.Create(ctx, trx); err != nil {
		if p.metrics != nil {
			p.metrics.PaymentInitiations.WithLabelValues("store_error").Inc()
		}
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	p.logger.Info().
		Str("transaction_id", trx.ID.String()).
		Str("checkout_request_id", push.CheckoutRequestID).
		Int64("amount", bid.Price).
		Int64("platform_fee", fee).
		Msg("payment initiated")
	if p.metrics != nil {
		p.metrics.PaymentInitiations.WithLabelValues("initiated").Inc()
	}

	return &InitiatePaymentResult{
		TransactionID:     trx.ID,
		CheckoutRequestID: push.CheckoutRequestID,
		MerchantRequestID: push.MerchantRequestID,
		Amount:            bid.Price,
		PlatformFee:       fee,
		CustomerMessage:   push.CustomerMessage,
	}, nil
}
