package payout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mashughuli/escrow/internal/domain/errand"
	domainErrors "github.com/mashughuli/escrow/internal/domain/errors"
	"github.com/mashughuli/escrow/internal/domain/escrow"
	"github.com/mashughuli/escrow/internal/domain/notification"
	"github.com/mashughuli/escrow/internal/domain/user"
)

// Approval completes an errand on the requester's sign-off and releases
// the escrowed payout onto the disbursement stream.
type Approval struct {
	errands       errand.Repository
	payouts       escrow.PayoutRepository
	users         user.Repository
	notifications notification.Repository
	txm           TransactionManager
	producer      EventProducer
	logger        zerolog.Logger
}

// NewApproval creates the errand approval use case.
func NewApproval(
	errands errand.Repository,
	payouts escrow.PayoutRepository,
	users user.Repository,
	notifications notification.Repository,
	txm TransactionManager,
	producer EventProducer,
	logger zerolog.Logger,
) *Approval {
	return &Approval{
		errands:       errands,
		payouts:       payouts,
		users:         users,
		notifications: notifications,
		txm:           txm,
		producer:      producer,
		logger:        logger.With().Str("component", "approval").Logger(),
	}
}

// Approve marks an in-progress errand completed and queues its pending
// payout for disbursement. Only the requester may approve. The errand
// update and the runner's notification commit together; the stream
// publish happens after, so a publish failure never rolls back the
// completion (the payout stays pending and can be re-released).
func (a *Approval) Approve(ctx context.Context, errandID, requesterID uuid.UUID) error {
	e, err := a.errands.GetByID(ctx, errandID)
	if err != nil {
		return err
	}
	if e.RequesterID != requesterID {
		return domainErrors.ErrForbidden
	}

	p, err := a.payouts.GetPendingByErrand(ctx, errandID)
	if err != nil {
		return err
	}

	runner, err := a.users.GetByID(ctx, p.RunnerID)
	if err != nil {
		return err
	}

	err = a.txm.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.Complete(); err != nil {
			return err
		}
		if err := a.errands.Update(txCtx, e); err != nil {
			return fmt.Errorf("update errand: %w", err)
		}
		note := notification.New(p.RunnerID, notification.TypeErrandDone,
			"Errand approved",
			fmt.Sprintf("%q was approved. Your payout of KES %d is on its way.", e.Title, p.Amount))
		return a.notifications.CreateBatch(txCtx, []*notification.Notification{note})
	})
	if err != nil {
		return err
	}

	ev := redisPayoutEvent(p, runner.PhoneNumber, e.Title)
	if err := a.producer.PublishPayoutEvent(ctx, ev); err != nil {
		a.logger.Error().Err(err).
			Str("payout_id", p.ID.String()).
			Msg("failed to queue payout for disbursement")
		return fmt.Errorf("queue payout: %w", err)
	}

	a.logger.Info().
		Str("errand_id", errandID.String()).
		Str("payout_id", p.ID.String()).
		Msg("errand approved, payout released")
	return nil
}
