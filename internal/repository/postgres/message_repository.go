package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mashughuli/escrow/internal/domain/message"
)

// MessageRepository implements message.Repository using PostgreSQL.
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Create persists a chat message.
func (r *MessageRepository) Create(ctx context.Context, m *message.Message) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO messages
		 (id, errand_id, sender_id, recipient_id, body, read, status, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.ErrandID, m.SenderID, m.RecipientID, m.Body, m.Read, string(m.Status), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// History returns the last limit messages exchanged between two users,
// oldest first. The inner query grabs the newest rows, the outer one
// restores chronological order for replay on join.
func (r *MessageRepository) History(ctx context.Context, userA, userB uuid.UUID, limit int) ([]*message.Message, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, errand_id, sender_id, recipient_id, body, read, status, created_at
		 FROM (
		   SELECT id, errand_id, sender_id, recipient_id, body, read, status, created_at
		   FROM messages
		   WHERE (sender_id = $1 AND recipient_id = $2)
		      OR (sender_id = $2 AND recipient_id = $1)
		   ORDER BY created_at DESC
		   LIMIT $3
		 ) recent
		 ORDER BY created_at ASC`,
		userA, userB, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("message history: %w", err)
	}
	defer rows.Close()

	msgs := []*message.Message{}
	for rows.Next() {
		var m message.Message
		var status string
		if err := rows.Scan(&m.ID, &m.ErrandID, &m.SenderID, &m.RecipientID,
			&m.Body, &m.Read, &status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Status = message.Status(status)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// MarkConversationRead marks every unread message from senderID to
// recipientID as read and reports how many rows changed.
func (r *MessageRepository) MarkConversationRead(ctx context.Context, recipientID, senderID uuid.UUID) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE messages SET read = true, status = 'read'
		 WHERE recipient_id = $1 AND sender_id = $2 AND read = false`,
		recipientID, senderID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return tag.RowsAffected(), nil
}
