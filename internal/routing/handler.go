// Package routing interprets human decisions and fans them out to the
// execution and telemetry queues.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/subtract0/arbiter/internal/bus"
	"github.com/subtract0/arbiter/internal/core/domain"
	"github.com/subtract0/arbiter/internal/observe/metrics"
	"github.com/subtract0/arbiter/internal/review"
)

const defaultLaterDelay = 24 * time.Hour

// Scheduler books a follow-up for a deferred question.
type Scheduler interface {
	Schedule(ctx context.Context, questionID int64, correlationID string, due time.Time) error
}

// Handler routes YES/NO/LATER decisions. The review queue stays the single
// source of truth for question status; routing happens strictly after the
// answer is recorded and never regresses it.
type Handler struct {
	bus        *bus.Bus
	reviews    *review.Queue
	gate       domain.FoundationGate
	scheduler  Scheduler
	laterDelay time.Duration
	log        *slog.Logger
	now        func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithFoundationGate injects the upstream may-proceed check consulted
// before an approval reaches the execution queue.
func WithFoundationGate(gate domain.FoundationGate) Option {
	return func(h *Handler) { h.gate = gate }
}

// WithScheduler injects the reminder scheduler used for LATER decisions.
func WithScheduler(s Scheduler) Option {
	return func(h *Handler) { h.scheduler = s }
}

// WithLaterDelay sets how far out a LATER reminder is scheduled.
func WithLaterDelay(d time.Duration) Option {
	return func(h *Handler) { h.laterDelay = d }
}

// WithLogger sets the handler logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a response handler.
func NewHandler(b *bus.Bus, reviews *review.Queue, opts ...Option) *Handler {
	h := &Handler{
		bus:        b,
		reviews:    reviews,
		laterDelay: defaultLaterDelay,
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ProcessResponse records a human decision and routes it. Once the answer
// is marked, the decision is durable: a routing failure afterwards surfaces
// as an error but the question stays answered ("answered, delivery
// pending") and is never regressed to pending.
func (h *Handler) ProcessResponse(ctx context.Context, questionID int64, resp *domain.Response) error {
	if !resp.Type.Valid() {
		return &domain.ValidationError{
			Field:  "response_type",
			Reason: fmt.Sprintf("unknown response type %q", resp.Type),
		}
	}

	question, err := h.reviews.GetQuestion(ctx, questionID)
	if err != nil {
		return err
	}

	if resp.CorrelationID != question.CorrelationID {
		return &domain.CorrelationMismatchError{
			QuestionID: questionID,
			Want:       question.CorrelationID,
			Got:        resp.CorrelationID,
		}
	}

	respondedAt := resp.RespondedAt
	if respondedAt.IsZero() {
		respondedAt = h.now().UTC()
	}
	var responseTime float64
	if resp.ResponseTimeSeconds != nil {
		responseTime = *resp.ResponseTimeSeconds
	} else {
		responseTime = respondedAt.Sub(question.CreatedAt).Seconds()
	}

	// The conditional update is the authority on whether this response is
	// the first: a duplicate must not re-route, or a YES arriving after a
	// recorded NO would reach the execution queue.
	recorded := *resp
	recorded.RespondedAt = respondedAt
	recorded.ResponseTimeSeconds = &responseTime
	if err := h.reviews.MarkAnswered(ctx, questionID, &recorded); err != nil {
		if errors.Is(err, domain.ErrAlreadyAnswered) {
			return fmt.Errorf("question %d: %w (recorded response %s stands)",
				questionID, domain.ErrAlreadyAnswered, question.ResponseType)
		}
		return err
	}
	metrics.ResponsesProcessed.WithLabelValues(string(resp.Type)).Inc()

	if err := h.route(ctx, question, &recorded); err != nil {
		h.log.Error("decision recorded but routing failed",
			"question_id", questionID, "response_type", resp.Type, "error", err)
		return fmt.Errorf("response recorded for question %d, delivery pending: %w", questionID, err)
	}

	h.log.Info("response routed",
		"question_id", questionID, "response_type", resp.Type,
		"correlation_id", resp.CorrelationID, "response_time_seconds", responseTime)
	return nil
}

func (h *Handler) route(ctx context.Context, q *domain.Question, resp *domain.Response) error {
	switch resp.Type {
	case domain.ResponseYes:
		return h.routeYes(ctx, q, resp)
	case domain.ResponseNo:
		return h.routeNo(ctx, q, resp)
	case domain.ResponseLater:
		return h.routeLater(ctx, q, resp)
	}
	return nil
}

// routeYes hands the approved task to the execution layer and emits the
// learning signal. The foundation gate is consulted first: an approval is
// never executed on a broken foundation.
func (h *Handler) routeYes(ctx context.Context, q *domain.Question, resp *domain.Response) error {
	if h.gate != nil {
		if err := h.gate(ctx); err != nil {
			return fmt.Errorf("execution blocked for %s: %w", q.CorrelationID, err)
		}
	}

	task := domain.TaskEnvelope{
		CorrelationID:       q.CorrelationID,
		Approved:            true,
		QuestionText:        q.Text,
		SuggestedAction:     q.SuggestedAction,
		PatternContext:      q.PatternContext,
		UserComment:         resp.Comment,
		ResponseTimeSeconds: *resp.ResponseTimeSeconds,
		ApprovedAt:          resp.RespondedAt,
	}
	if _, err := h.bus.Publish(ctx, domain.QueueExecution, task, q.Priority, q.CorrelationID); err != nil {
		return err
	}

	event := h.learningEvent(domain.EventResponseYes, q, resp)
	_, err := h.bus.Publish(ctx, domain.QueueTelemetry, event, q.Priority, q.CorrelationID)
	return err
}

// routeNo emits only the learning signal. A NO never reaches the execution
// queue.
func (h *Handler) routeNo(ctx context.Context, q *domain.Question, resp *domain.Response) error {
	event := h.learningEvent(domain.EventResponseNo, q, resp)
	event.RejectionReason = resp.Comment
	_, err := h.bus.Publish(ctx, domain.QueueTelemetry, event, q.Priority, q.CorrelationID)
	return err
}

// routeLater emits the learning signal with the computed reminder time and
// books the follow-up when a scheduler is wired.
func (h *Handler) routeLater(ctx context.Context, q *domain.Question, resp *domain.Response) error {
	due := h.now().UTC().Add(h.laterDelay)

	event := h.learningEvent(domain.EventResponseLater, q, resp)
	event.ReminderScheduledFor = &due
	if _, err := h.bus.Publish(ctx, domain.QueueTelemetry, event, q.Priority, q.CorrelationID); err != nil {
		return err
	}

	if h.scheduler != nil {
		if err := h.scheduler.Schedule(ctx, q.ID, q.CorrelationID, due); err != nil {
			return fmt.Errorf("schedule reminder for %s: %w", q.CorrelationID, err)
		}
		metrics.RemindersScheduled.Inc()
	}
	return nil
}

func (h *Handler) learningEvent(eventType string, q *domain.Question, resp *domain.Response) domain.LearningEvent {
	return domain.LearningEvent{
		EventType:           eventType,
		CorrelationID:       q.CorrelationID,
		QuestionType:        q.Type,
		QuestionPriority:    q.Priority,
		PatternType:         q.PatternContext.Type,
		PatternTopic:        q.PatternContext.Topic,
		ResponseType:        resp.Type,
		ResponseTimeSeconds: *resp.ResponseTimeSeconds,
		Timestamp:           resp.RespondedAt,
	}
}
