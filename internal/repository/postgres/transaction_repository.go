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

// TransactionRepository implements escrow.TransactionRepository using PostgreSQL.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const transactionColumns = `id, errand_id, payer_id, payee_id, amount, platform_fee,
	status, reference, merchant_request_id, created_at, updated_at, completed_at`

// Create inserts a new pending transaction.
func (r *TransactionRepository) Create(ctx context.Context, t *escrow.Transaction) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO transactions
		 (id, errand_id, payer_id, payee_id, amount, platform_fee,
		  status, reference, merchant_request_id, created_at, updated_at, completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.ErrandID, t.PayerID, t.PayeeID, t.Amount, t.PlatformFee,
		string(t.Status), t.Reference, t.MerchantRequestID, t.CreatedAt, t.UpdatedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetPendingByReference looks up a pending transaction by checkout reference.
// The status filter is the idempotency mechanism: once settled the row is
// invisible here and a duplicate callback sees "not found".
func (r *TransactionRepository) GetPendingByReference(ctx context.Context, reference string) (*escrow.Transaction, error) {
	return r.scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions WHERE reference = $1 AND status = 'pending'
		 FOR UPDATE`, reference))
}

// GetByID retrieves a transaction by its ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*escrow.Transaction, error) {
	return r.scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

// Update updates an existing transaction.
func (r *TransactionRepository) Update(ctx context.Context, t *escrow.Transaction) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE transactions SET
		  status=$1, reference=$2, updated_at=$3, completed_at=$4
		 WHERE id=$5`,
		string(t.Status), t.Reference, t.UpdatedAt, t.CompletedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) scanTransaction(row scanner) (*escrow.Transaction, error) {
	var t escrow.Transaction
	var status string
	err := row.Scan(
		&t.ID, &t.ErrandID, &t.PayerID, &t.PayeeID, &t.Amount, &t.PlatformFee,
		&status, &t.Reference, &t.MerchantRequestID, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	t.Status = escrow.TransactionStatus(status)
	return &t, nil
}
