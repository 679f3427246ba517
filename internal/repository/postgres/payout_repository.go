package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/mashughuli/escrow/internal/domain/errors"
	"github.com/mashughuli/escrow/internal/domain/escrow"
)

// PayoutRepository implements escrow.PayoutRepository using PostgreSQL.
type PayoutRepository struct {
	pool *pgxpool.Pool
}

// NewPayoutRepository creates a new PayoutRepository.
func NewPayoutRepository(pool *pgxpool.Pool) *PayoutRepository {
	return &PayoutRepository{pool: pool}
}

func (r *PayoutRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

const payoutColumns = `id, errand_id, runner_id, transaction_id, amount, status,
	payout_reference, created_at, updated_at`

// Create inserts a new payout.
func (r *PayoutRepository) Create(ctx context.Context, p *escrow.Payout) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payouts
		 (id, errand_id, runner_id, transaction_id, amount, status,
		  payout_reference, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.ErrandID, p.RunnerID, p.TransactionID, p.Amount, string(p.Status),
		p.PayoutReference, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

// GetByID retrieves a payout by its ID.
func (r *PayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*escrow.Payout, error) {
	return r.scanPayout(r.db(ctx).QueryRow(ctx,
		`SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id))
}

// GetPendingByErrand returns the pending payout for an errand, if any.
func (r *PayoutRepository) GetPendingByErrand(ctx context.Context, errandID uuid.UUID) (*escrow.Payout, error) {
	return r.scanPayout(r.db(ctx).QueryRow(ctx,
		`SELECT `+payoutColumns+`
		 FROM payouts WHERE errand_id = $1 AND status = 'pending'`, errandID))
}

// Update updates a payout's status and reference.
func (r *PayoutRepository) Update(ctx context.Context, p *escrow.Payout) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payouts SET status=$1, payout_reference=$2, updated_at=$3 WHERE id=$4`,
		string(p.Status), p.PayoutReference, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrPayoutNotFound
	}
	return nil
}

func (r *PayoutRepository) scanPayout(row scanner) (*escrow.Payout, error) {
	var p escrow.Payout
	var status string
	err := row.Scan(&p.ID, &p.ErrandID, &p.RunnerID, &p.TransactionID, &p.Amount, &status,
		&p.PayoutReference, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("scan payout: %w", err)
	}
	p.Status = escrow.PayoutStatus(status)
	return &p, nil
}
