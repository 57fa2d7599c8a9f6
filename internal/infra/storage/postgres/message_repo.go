package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/subtract0/arbiter/internal/core/domain"
)

// MessageRepo persists bus messages. Every call is a single statement, so
// the database transaction boundary is the statement itself.
type MessageRepo struct {
	db *DB
}

func NewMessageRepo(db *DB) *MessageRepo { return &MessageRepo{db: db} }

func (r *MessageRepo) Insert(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (id, queue_name, payload, priority, correlation_id, enqueued_at, delivery_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.QueueName, []byte(msg.Payload), msg.Priority,
		msg.CorrelationID, msg.EnqueuedAt, msg.Status)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) ListPending(ctx context.Context, queue string, limit int) ([]*domain.Message, error) {
	query := `
		SELECT id, queue_name, payload, priority, correlation_id, enqueued_at, delivery_status
		FROM messages
		WHERE queue_name = $1 AND delivery_status = 'pending'
		ORDER BY priority DESC, enqueued_at ASC
		LIMIT $2
	`
	var msgs []*domain.Message
	if err := r.db.SelectContext(ctx, &msgs, query, queue, limit); err != nil {
		return nil, fmt.Errorf("list pending messages: %w", err)
	}
	return msgs, nil
}

func (r *MessageRepo) Ack(ctx context.Context, id string) error {
	// No-op for unknown or already-acknowledged ids.
	query := `
		UPDATE messages SET delivery_status = 'acknowledged', acked_at = NOW()
		WHERE id = $1 AND delivery_status = 'pending'
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("ack message: %w", err)
	}
	return nil
}

func (r *MessageRepo) DeleteAcked(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM messages WHERE delivery_status = 'acknowledged' AND enqueued_at < $1`
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete acked messages: %w", err)
	}
	return res.RowsAffected()
}

func (r *MessageRepo) PendingCount(ctx context.Context, queue string) (int, error) {
	var count int
	query := `SELECT count(*) FROM messages WHERE queue_name = $1 AND delivery_status = 'pending'`
	if err := r.db.GetContext(ctx, &count, query, queue); err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return count, nil
}
