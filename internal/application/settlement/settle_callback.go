package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mashughuli/escrow/internal/domain/errand"
	domainErrors "github.com/mashughuli/escrow/internal/domain/errors"
	"github.com/mashughuli/escrow/internal/domain/escrow"
	"github.com/mashughuli/escrow/internal/domain/notification"
	"github.com/mashughuli/escrow/internal/infrastructure/observability"
	"github.com/mashughuli/escrow/internal/realtime"
)

// CallbackEvent is the provider's asynchronous payment result, already
// extracted from the callback envelope. Receipt fields are only present
// when ResultCode is zero.
type CallbackEvent struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Amount            int64
	ReceiptNumber     string
	TransactionDate   string
	PhoneNumber       string
}

// Engine settles payment callbacks against the escrow ledger. Every
// callback produces exactly one outcome publish on its payment topic,
// whatever branch it takes, so a waiting client always transitions out
// of its wait state.
type Engine struct {
	transactions  escrow.TransactionRepository
	payouts       escrow.PayoutRepository
	errands       errand.Repository
	notifications notification.Repository
	txm           TransactionManager
	publisher     OutcomePublisher
	logger        zerolog.Logger
	metrics       *observability.Metrics
}

// NewEngine creates a settlement engine.
func NewEngine(
	transactions escrow.TransactionRepository,
	payouts escrow.PayoutRepository,
	errands errand.Repository,
	notifications notification.Repository,
	txm TransactionManager,
	publisher OutcomePublisher,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Engine {
	return &Engine{
		transactions:  transactions,
		payouts:       payouts,
		errands:       errands,
		notifications: notifications,
		txm:           txm,
		publisher:     publisher,
		logger:        logger.With().Str("component", "settlement").Logger(),
		metrics:       metrics,
	}
}

// SettleCallback processes one provider callback. Duplicate or late
// callbacks are safe: the pending-status lookup inside the transaction
// serializes concurrent attempts and turns the second one into the
// "not found" branch instead of a double settlement.
//
// The returned error is for the caller's logging only. The HTTP callback
// endpoint acknowledges the provider regardless.
func (s *Engine) SettleCallback(ctx context.Context, ev CallbackEvent) error {
	start := time.Now()
	topic := realtime.PaymentTopic(ev.CheckoutRequestID, ev.MerchantRequestID)

	var update *realtime.PaymentUpdate
	outcome := "completed"

	err := s.txm.WithTransaction(ctx, func(txCtx context.Context) error {
		trx, err := s.transactions.GetPendingByReference(txCtx, ev.CheckoutRequestID)
		if err != nil {
			if errors.Is(err, domainErrors.ErrTransactionNotFound) {
				s.logger.Warn().
					Str("checkout_request_id", ev.CheckoutRequestID).
					Msg("callback for unknown or already processed transaction")
				update = s.notFoundUpdate(ev)
				outcome = "not_found"
				return nil
			}
			return fmt.Errorf("lookup transaction: %w", err)
		}

		if ev.ResultCode != 0 {
			if err := trx.MarkFailed(); err != nil {
				return err
			}
			if err := s.transactions.Update(txCtx, trx); err != nil {
				return fmt.Errorf("mark transaction failed: %w", err)
			}
			update = s.failureUpdate(ev, trx)
			outcome = "failed"
			return nil
		}

		if err := s.applySuccess(txCtx, trx, ev); err != nil {
			return err
		}
		update = s.successUpdate(ev, trx)
		return nil
	})
	if err != nil {
		// The transition rolled back whole. Record the failure on the
		// transaction outside the aborted transaction and tell the
		// client something generic.
		s.logger.Error().Err(err).
			Str("checkout_request_id", ev.CheckoutRequestID).
			Msg("settlement transition aborted")
		s.markFailedFallback(ctx, ev.CheckoutRequestID)
		update = s.genericFailureUpdate(ev)
		outcome = "aborted"
	}

	s.publish(ctx, topic, update)

	if s.metrics != nil {
		s.metrics.SettlementsTotal.WithLabelValues(outcome).Inc()
		s.metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	}
	return err
}

// applySuccess performs the success transition: complete the transaction,
// move the errand to in_progress bound to the payee, accept the payee's
// bid and reject its siblings, create the pending payout, and write the
// notification batch. Runs inside the caller's transaction.
func (s *Engine) applySuccess(ctx context.Context, trx *escrow.Transaction, ev CallbackEvent) error {
	e, err := s.errands.GetByID(ctx, trx.ErrandID)
	if err != nil {
		return fmt.Errorf("load errand: %w", err)
	}
	bids, err := s.errands.ListBids(ctx, trx.ErrandID)
	if err != nil {
		return fmt.Errorf("load bids: %w", err)
	}

	var accepted *errand.Bid
	for _, b := range bids {
		if b.RunnerID == trx.PayeeID {
			accepted = b
			break
		}
	}
	if accepted == nil {
		return fmt.Errorf("%w: payee %s on errand %s", domainErrors.ErrBidMissing, trx.PayeeID, trx.ErrandID)
	}

	if err := trx.MarkCompleted(ev.ReceiptNumber); err != nil {
		return err
	}
	if err := s.transactions.Update(ctx, trx); err != nil {
		return fmt.Errorf("complete transaction: %w", err)
	}

	if err := e.Assign(trx.PayeeID, trx.Amount); err != nil {
		return err
	}
	if err := s.errands.Update(ctx, e); err != nil {
		return fmt.Errorf("update errand: %w", err)
	}

	accepted.Accept()
	if err := s.errands.UpdateBid(ctx, accepted); err != nil {
		return fmt.Errorf("accept bid: %w", err)
	}

	batch := []*notification.Notification{
		notification.New(trx.PayeeID, notification.TypeBidAccepted,
			"Bid accepted",
			fmt.Sprintf("Your bid on %q was accepted. Payment of KES %d is held in escrow.", e.Title, trx.Amount)),
		notification.New(trx.PayerID, notification.TypePayment,
			"Payment confirmed",
			fmt.Sprintf("Your payment of KES %d for %q was received.", trx.Amount+trx.PlatformFee, e.Title)),
	}

	for _, b := range bids {
		if b.ID == accepted.ID || b.Status != errand.BidPending {
			continue
		}
		b.Reject()
		if err := s.errands.UpdateBid(ctx, b); err != nil {
			return fmt.Errorf("reject bid: %w", err)
		}
		batch = append(batch, notification.New(b.RunnerID, notification.TypeBidRejected,
			"Bid not selected",
			fmt.Sprintf("Another bid was chosen for %q.", e.Title)))
	}

	if err := s.payouts.Create(ctx, escrow.NewPayout(trx)); err != nil {
		return fmt.Errorf("create payout: %w", err)
	}

	if err := s.notifications.CreateBatch(ctx, batch); err != nil {
		return fmt.Errorf("create notifications: %w", err)
	}
	return nil
}

// markFailedFallback best-effort marks the transaction failed after an
// aborted transition. If the row is gone or no longer pending there is
// nothing to do.
func (s *Engine) markFailedFallback(ctx context.Context, checkoutRequestID string) {
	trx, err := s.transactions.GetPendingByReference(ctx, checkoutRequestID)
	if err != nil {
		if !errors.Is(err, domainErrors.ErrTransactionNotFound) {
			s.logger.Error().Err(err).Msg("fallback lookup failed")
		}
		return
	}
	if err := trx.MarkFailed(); err != nil {
		return
	}
	if err := s.transactions.Update(ctx, trx); err != nil {
		s.logger.Error().Err(err).Msg("fallback failure mark failed")
	}
}

func (s *Engine) publish(ctx context.Context, topic string, update *realtime.PaymentUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal payment update")
		return
	}
	if err := s.publisher.Relay(ctx, topic, payload); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("publish payment update")
	}
}

func (s *Engine) successUpdate(ev CallbackEvent, trx *escrow.Transaction) *realtime.PaymentUpdate {
	return &realtime.PaymentUpdate{
		Type:              "payment_update",
		Status:            realtime.PaymentStatusSuccess,
		Success:           true,
		Message:           "Payment received",
		CheckoutRequestID: ev.CheckoutRequestID,
		MerchantRequestID: ev.MerchantRequestID,
		ResultCode:        ev.ResultCode,
		ResultDesc:        ev.ResultDesc,
		TransactionID:     ev.ReceiptNumber,
		TransactionDate:   ev.TransactionDate,
		PhoneNumber:       ev.PhoneNumber,
		ErrandID:          trx.ErrandID.String(),
	}
}

func (s *Engine) failureUpdate(ev CallbackEvent, trx *escrow.Transaction) *realtime.PaymentUpdate {
	return &realtime.PaymentUpdate{
		Type:              "payment_update",
		Status:            realtime.PaymentStatusFailed,
		Success:           false,
		Message:           ev.ResultDesc,
		CheckoutRequestID: ev.CheckoutRequestID,
		MerchantRequestID: ev.MerchantRequestID,
		ResultCode:        ev.ResultCode,
		ResultDesc:        ev.ResultDesc,
		ErrandID:          trx.ErrandID.String(),
	}
}

func (s *Engine) notFoundUpdate(ev CallbackEvent) *realtime.PaymentUpdate {
	return &realtime.PaymentUpdate{
		Type:              "payment_update",
		Status:            realtime.PaymentStatusFailed,
		Success:           false,
		Message:           "Transaction not found or already processed",
		CheckoutRequestID: ev.CheckoutRequestID,
		MerchantRequestID: ev.MerchantRequestID,
		ResultCode:        ev.ResultCode,
		ResultDesc:        ev.ResultDesc,
	}
}

func (s *Engine) genericFailureUpdate(ev CallbackEvent) *realtime.PaymentUpdate {
	return &realtime.PaymentUpdate{
		Type:              "payment_update",
		Status:            realtime.PaymentStatusFailed,
		Success:           false,
		Message:           "Payment processing failed",
		CheckoutRequestID: ev.CheckoutRequestID,
		MerchantRequestID: ev.MerchantRequestID,
		ResultCode:        ev.ResultCode,
	}
}
