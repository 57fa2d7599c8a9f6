package storage

import (
	"context"
	"time"

	"github.com/subtract0/arbiter/internal/core/domain"
)

// MessageRepository is the durable store behind the bus. Implementations
// must persist within a single transaction per call so concurrent
// publishers and ackers never corrupt ordering.
type MessageRepository interface {
	// Insert durably persists a new pending message.
	Insert(ctx context.Context, msg *domain.Message) error

	// ListPending returns pending messages for a queue ordered by priority
	// descending, then enqueued_at ascending.
	ListPending(ctx context.Context, queue string, limit int) ([]*domain.Message, error)

	// Ack marks a message acknowledged. Idempotent: unknown or already
	// acknowledged ids are treated as already satisfied.
	Ack(ctx context.Context, id string) error

	// PendingCount returns the number of pending messages in a queue.
	PendingCount(ctx context.Context, queue string) (int, error)

	// DeleteAcked removes acknowledged messages enqueued before the cutoff
	// and returns how many rows were removed. Pending messages are never
	// touched.
	DeleteAcked(ctx context.Context, before time.Time) (int64, error)
}

// QuestionRepository stores review-queue question metadata.
type QuestionRepository interface {
	// Insert persists a new question and returns its assigned id.
	Insert(ctx context.Context, q *domain.Question) (int64, error)

	// GetByID retrieves a question, or domain.ErrQuestionNotFound.
	GetByID(ctx context.Context, id int64) (*domain.Question, error)

	// GetByCorrelation retrieves the most recently created question for a
	// correlation id, or domain.ErrQuestionNotFound.
	GetByCorrelation(ctx context.Context, correlationID string) (*domain.Question, error)

	// ListPending returns pending, unexpired questions ordered by priority
	// descending, bounded by limit.
	ListPending(ctx context.Context, limit int, now time.Time) ([]*domain.Question, error)

	// MarkAnswered records the terminal answer. Answering always wins:
	// it succeeds even if an expiry sweep got to the row first. A row that
	// already has an answer is left untouched and
	// domain.ErrAlreadyAnswered is returned, so callers can tell a real
	// transition from a duplicate.
	MarkAnswered(ctx context.Context, id int64, ans domain.Answer) error

	// ExpireOld transitions pending questions whose expires_at has passed
	// to expired and returns how many rows changed. Answered rows are
	// never touched.
	ExpireOld(ctx context.Context, now time.Time) (int, error)

	// Stats aggregates queue activity.
	Stats(ctx context.Context) (*domain.QueueStats, error)

	// DeleteExpired removes expired questions created before the cutoff and
	// returns how many rows were removed. Answered history is kept.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
