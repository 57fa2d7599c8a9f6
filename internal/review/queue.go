// Package review implements the human review queue: question semantics
// (priority, expiry, status) layered on top of the generic bus. It adds no
// locking of its own; it relies on the bus's transactional guarantees plus
// the repository's conditional status updates.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/subtract0/arbiter/internal/bus"
	"github.com/subtract0/arbiter/internal/core/domain"
	"github.com/subtract0/arbiter/internal/infra/storage"
	"github.com/subtract0/arbiter/internal/observe/metrics"
)

const defaultQuestionTTL = 24 * time.Hour

// Queue is the sole entry point for putting new work in front of a human.
type Queue struct {
	repo       storage.QuestionRepository
	bus        *bus.Bus
	log        *slog.Logger
	defaultTTL time.Duration
	now        func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithDefaultTTL sets the expiry applied when a request carries none.
func WithDefaultTTL(d time.Duration) Option {
	return func(q *Queue) { q.defaultTTL = d }
}

// WithLogger sets the queue logger.
func WithLogger(log *slog.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates a review queue over the given repository and bus.
func NewQueue(repo storage.QuestionRepository, b *bus.Bus, opts ...Option) *Queue {
	q := &Queue{
		repo:       repo,
		bus:        b,
		log:        slog.Default(),
		defaultTTL: defaultQuestionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SubmitQuestion validates the request, persists the question, and publishes
// a review notice carrying the question id. Validation failures happen
// before persistence; no partial question is written. Resubmitting the same
// correlation id is allowed and yields a distinct question id.
func (q *Queue) SubmitQuestion(ctx context.Context, req domain.SubmitRequest) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	now := q.now().UTC()
	ttl := req.ExpiresIn
	if ttl <= 0 {
		ttl = q.defaultTTL
	}
	qType := req.Type
	if qType == "" {
		qType = domain.QuestionLowStakes
	}

	question := &domain.Question{
		CorrelationID:   req.CorrelationID,
		Text:            req.Text,
		Type:            qType,
		PatternContext:  req.PatternContext,
		SuggestedAction: req.SuggestedAction,
		Priority:        req.Priority,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
		Status:          domain.QuestionPending,
	}

	id, err := q.repo.Insert(ctx, question)
	if err != nil {
		return 0, fmt.Errorf("submit question: %w", err)
	}

	notice := domain.ReviewNotice{QuestionID: id, CorrelationID: req.CorrelationID}
	if _, err := q.bus.Publish(ctx, domain.QueueHumanReview, notice, req.Priority, req.CorrelationID); err != nil {
		// The question row is durable either way; pull-based consumers
		// still see it via GetPendingQuestions.
		return id, fmt.Errorf("question %d persisted but notice publish failed: %w", id, err)
	}

	metrics.QuestionsSubmitted.WithLabelValues(string(qType)).Inc()
	q.log.Info("question submitted",
		"question_id", id, "correlation_id", req.CorrelationID, "priority", req.Priority, "type", qType)
	return id, nil
}

// GetPendingQuestions returns pending, unexpired questions ordered by
// priority descending. An empty queue yields an empty slice, not an error.
func (q *Queue) GetPendingQuestions(ctx context.Context, limit int) ([]*domain.Question, error) {
	questions, err := q.repo.ListPending(ctx, limit, q.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("get pending questions: %w", err)
	}
	return questions, nil
}

// GetQuestion retrieves a question by id.
func (q *Queue) GetQuestion(ctx context.Context, id int64) (*domain.Question, error) {
	return q.repo.GetByID(ctx, id)
}

// GetQuestionByCorrelation retrieves the most recent question for a
// correlation id, or domain.ErrQuestionNotFound.
func (q *Queue) GetQuestionByCorrelation(ctx context.Context, correlationID string) (*domain.Question, error) {
	return q.repo.GetByCorrelation(ctx, correlationID)
}

// MarkAnswered records the decision for a question. Answering is permanent
// and takes priority over expiry; a later sweep never touches the row. A
// second answer for the same question returns domain.ErrAlreadyAnswered
// and leaves the recorded one untouched.
func (q *Queue) MarkAnswered(ctx context.Context, id int64, resp *domain.Response) error {
	respondedAt := resp.RespondedAt
	if respondedAt.IsZero() {
		respondedAt = q.now().UTC()
	}
	var responseTime float64
	if resp.ResponseTimeSeconds != nil {
		responseTime = *resp.ResponseTimeSeconds
	}
	ans := domain.Answer{
		Type:                resp.Type,
		AnsweredAt:          respondedAt,
		ResponseTimeSeconds: responseTime,
	}
	if err := q.repo.MarkAnswered(ctx, id, ans); err != nil {
		return err
	}
	q.log.Info("question answered", "question_id", id, "response_type", resp.Type)
	return nil
}

// ExpireOldQuestions transitions overdue pending questions to expired and
// returns how many were swept. Answered questions are never touched,
// whatever their expires_at.
func (q *Queue) ExpireOldQuestions(ctx context.Context) (int, error) {
	count, err := q.repo.ExpireOld(ctx, q.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire questions: %w", err)
	}
	if count > 0 {
		metrics.QuestionsExpired.Add(float64(count))
	}
	return count, nil
}

// Stats aggregates queue activity. acceptance_rate counts only answered
// YES/NO decisions; LATER and pending stay out of the denominator.
func (q *Queue) Stats(ctx context.Context) (*domain.QueueStats, error) {
	stats, err := q.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}
