package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mashughuli/escrow/internal/domain/errand"
	domainErrors "github.com/mashughuli/escrow/internal/domain/errors"
)

// ErrandRepository implements errand.Repository using PostgreSQL.
type ErrandRepository struct {
	pool *pgxpool.Pool
}

// NewErrandRepository creates a new ErrandRepository.
func NewErrandRepository(pool *pgxpool.Pool) *ErrandRepository {
	return &ErrandRepository{pool: pool}
}

func (r *ErrandRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// GetByID retrieves an errand by its ID.
func (r *ErrandRepository) GetByID(ctx context.Context, id uuid.UUID) (*errand.Errand, error) {
	var e errand.Errand
	var status string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, requester_id, runner_id, title, status, final_price,
		        start_time, end_time, created_at, updated_at
		 FROM errands WHERE id = $1`, id).
		Scan(&e.ID, &e.RequesterID, &e.RunnerID, &e.Title, &status, &e.FinalPrice,
			&e.StartTime, &e.EndTime, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrErrandNotFound
		}
		return nil, fmt.Errorf("scan errand: %w", err)
	}
	e.Status = errand.Status(status)
	return &e, nil
}

// Update updates an existing errand.
func (r *ErrandRepository) Update(ctx context.Context, e *errand.Errand) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE errands SET
		  runner_id=$1, status=$2, final_price=$3, start_time=$4, end_time=$5, updated_at=$6
		 WHERE id=$7`,
		e.RunnerID, string(e.Status), e.FinalPrice, e.StartTime, e.EndTime, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update errand: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrErrandNotFound
	}
	return nil
}

// GetBidByID retrieves a single bid.
func (r *ErrandRepository) GetBidByID(ctx context.Context, id uuid.UUID) (*errand.Bid, error) {
	return r.scanBid(r.db(ctx).QueryRow(ctx,
		`SELECT id, errand_id, runner_id, price, status, created_at, updated_at
		 FROM bids WHERE id = $1`, id))
}

// ListBids returns every bid on an errand.
func (r *ErrandRepository) ListBids(ctx context.Context, errandID uuid.UUID) ([]*errand.Bid, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, errand_id, runner_id, price, status, created_at, updated_at
		 FROM bids WHERE errand_id = $1 ORDER BY created_at`, errandID)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()

	var bids []*errand.Bid
	for rows.Next() {
		b, err := r.scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// UpdateBid updates a bid's status.
func (r *ErrandRepository) UpdateBid(ctx context.Context, b *errand.Bid) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE bids SET status=$1, updated_at=$2 WHERE id=$3`,
		string(b.Status), b.UpdatedAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("update bid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrBidNotFound
	}
	return nil
}

func (r *ErrandRepository) scanBid(row scanner) (*errand.Bid, error) {
	var b errand.Bid
	var status string
	err := row.Scan(&b.ID, &b.ErrandID, &b.RunnerID, &b.Price, &status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrBidNotFound
		}
		return nil, fmt.Errorf("scan bid: %w", err)
	}
	b.Status = errand.BidStatus(status)
	return &b, nil
}
