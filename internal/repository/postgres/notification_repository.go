package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/mashughuli/escrow/internal/domain/errors"
	"github.com/mashughuli/escrow/internal/domain/notification"
)

// NotificationRepository implements notification.Repository using PostgreSQL.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// CreateBatch inserts notifications. Settlement calls it inside its
// transaction so the batch commits or rolls back with the state change.
func (r *NotificationRepository) CreateBatch(ctx context.Context, batch []*notification.Notification) error {
	for _, n := range batch {
		_, err := r.db(ctx).Exec(ctx,
			`INSERT INTO notifications (id, user_id, type, title, body, read, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			n.ID, n.UserID, string(n.Type), n.Title, n.Body, n.Read, n.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	return nil
}

// List returns a page of the user's notifications plus total/unread counts.
func (r *NotificationRepository) List(ctx context.Context, userID uuid.UUID, f notification.ListFilter) (*notification.ListResult, error) {
	query := `SELECT id, user_id, type, title, body, read, created_at
		 FROM notifications WHERE user_id = $1`
	args := []any{userID}
	if f.OnlyUnread {
		query += ` AND read = false`
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	result := &notification.ListResult{Notifications: []*notification.Notification{}}
	for rows.Next() {
		n, err := r.scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result.Notifications = append(result.Notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.db(ctx).QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE read = false)
		 FROM notifications WHERE user_id = $1`, userID).
		Scan(&result.Total, &result.Unread)
	if err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}
	return result, nil
}

// MarkRead flips the read flag on one of the user's notifications.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) (*notification.Notification, error) {
	n, err := r.scanNotification(r.db(ctx).QueryRow(ctx,
		`UPDATE notifications SET read = true
		 WHERE id = $1 AND user_id = $2
		 RETURNING id, user_id, type, title, body, read, created_at`, id, userID))
	if err != nil {
		return nil, err
	}
	return n, nil
}

// MarkAllRead flips every unread notification for the user.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE notifications SET read = true WHERE user_id = $1 AND read = false`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) scanNotification(row scanner) (*notification.Notification, error) {
	var n notification.Notification
	var typ string
	err := row.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Body, &n.Read, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	n.Type = notification.Type(typ)
	return &n, nil
}
