// Package reminder resurfaces deferred questions. A LATER decision books a
// reminder; when it comes due the question is resubmitted to the review
// queue under the same correlation id (the queue deliberately does not
// deduplicate resubmissions).
package reminder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/subtract0/arbiter/internal/core/domain"
	redisclient "github.com/subtract0/arbiter/internal/infra/redis"
	"github.com/subtract0/arbiter/internal/review"
)

// WorkerConfig holds configuration for the reminder worker.
type WorkerConfig struct {
	PollInterval time.Duration // How often to check for due reminders (default: 30s)
	ResubmitTTL  time.Duration // Expiry for resurfaced questions (default: 24h)
}

// DefaultConfig returns default worker configuration.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: 30 * time.Second,
		ResubmitTTL:  24 * time.Hour,
	}
}

// Worker drains due reminders from Redis and resubmits their questions.
type Worker struct {
	cfg     WorkerConfig
	redis   *redisclient.Client
	reviews *review.Queue
	log     *slog.Logger
}

// NewWorker creates a reminder worker.
func NewWorker(cfg WorkerConfig, redis *redisclient.Client, reviews *review.Queue) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.ResubmitTTL <= 0 {
		cfg.ResubmitTTL = DefaultConfig().ResubmitTTL
	}
	return &Worker{
		cfg:     cfg,
		redis:   redis,
		reviews: reviews,
		log:     slog.Default(),
	}
}

// Start runs the reminder loop until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	due, err := w.redis.PopDue(ctx, time.Now().UTC())
	if err != nil {
		w.log.Error("failed to pop due reminders", "error", err)
		return
	}

	for _, r := range due {
		if err := w.resubmit(ctx, r); err != nil {
			w.log.Error("failed to resurface question",
				"question_id", r.QuestionID, "correlation_id", r.CorrelationID, "error", err)
		}
	}
}

func (w *Worker) resubmit(ctx context.Context, r redisclient.Reminder) error {
	q, err := w.reviews.GetQuestion(ctx, r.QuestionID)
	if err != nil {
		if errors.Is(err, domain.ErrQuestionNotFound) {
			w.log.Warn("reminder for unknown question dropped", "question_id", r.QuestionID)
			return nil
		}
		return err
	}

	id, err := w.reviews.SubmitQuestion(ctx, domain.SubmitRequest{
		CorrelationID:   q.CorrelationID,
		Text:            q.Text,
		Type:            q.Type,
		PatternContext:  q.PatternContext,
		SuggestedAction: q.SuggestedAction,
		Priority:        q.Priority,
		ExpiresIn:       w.cfg.ResubmitTTL,
	})
	if err != nil {
		return err
	}

	w.log.Info("deferred question resurfaced",
		"original_question_id", r.QuestionID, "new_question_id", id,
		"correlation_id", q.CorrelationID)
	return nil
}
