// Package bus implements a durable, priority-ordered, at-least-once message
// bus on top of a storage repository. Ordering and acknowledgment are
// serialized at the storage layer (one transaction per publish/ack), so the
// bus itself holds no lock around deliveries.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/subtract0/arbiter/internal/core/domain"
	"github.com/subtract0/arbiter/internal/infra/storage"
	"github.com/subtract0/arbiter/internal/observe/metrics"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	fetchBatchSize      = 64
)

// Bus coordinates publishers and subscribers over one durable store.
type Bus struct {
	repo         storage.MessageRepository
	log          *slog.Logger
	pollInterval time.Duration

	mu      sync.Mutex
	waiters map[string][]chan struct{}
}

// Option configures a Bus.
type Option func(*Bus)

// WithPollInterval bounds how long a subscriber waits before re-checking
// the store when no wake signal arrives.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bus) { b.pollInterval = d }
}

// WithLogger sets the bus logger.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bus) { b.log = log }
}

// New creates a bus backed by the given repository.
func New(repo storage.MessageRepository, opts ...Option) *Bus {
	b := &Bus{
		repo:         repo,
		log:          slog.Default(),
		pollInterval: defaultPollInterval,
		waiters:      make(map[string][]chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish durably persists a message before returning. Storage failures
// propagate to the caller; the bus never drops a message silently.
func (b *Bus) Publish(ctx context.Context, queue string, payload any, priority int, correlationID string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload for %s: %w", queue, err)
	}

	msg := &domain.Message{
		ID:            uuid.NewString(),
		QueueName:     queue,
		Payload:       body,
		Priority:      priority,
		CorrelationID: correlationID,
		EnqueuedAt:    time.Now().UTC(),
		Status:        domain.DeliveryPending,
	}

	if err := b.repo.Insert(ctx, msg); err != nil {
		return "", fmt.Errorf("publish to %s: %w", queue, err)
	}

	metrics.MessagesPublished.WithLabelValues(queue).Inc()
	b.wake(queue)

	b.log.Debug("message published",
		"queue", queue, "message_id", msg.ID, "priority", priority, "correlation_id", correlationID)
	return msg.ID, nil
}

// Subscribe returns a live feed of pending messages for a queue, ordered by
// priority descending then enqueue time ascending. The channel stays open
// until ctx is done. Messages not acknowledged during this subscription
// remain pending and are redelivered to any future subscriber
// (at-least-once; consumers must tolerate duplicates).
func (b *Bus) Subscribe(ctx context.Context, queue string) <-chan domain.Message {
	out := make(chan domain.Message)

	go func() {
		defer close(out)

		// Tracks what this subscription already handed out so an unacked
		// message is not redelivered in a tight loop within one session.
		delivered := make(map[string]struct{})

		for {
			batch, err := b.repo.ListPending(ctx, queue, fetchBatchSize)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				b.log.Warn("failed to fetch pending messages", "queue", queue, "error", err)
				if !b.sleep(ctx, b.pollInterval) {
					return
				}
				continue
			}

			// Drop delivery markers for messages that left the pending set.
			stillPending := make(map[string]struct{}, len(batch))
			for _, m := range batch {
				stillPending[m.ID] = struct{}{}
			}
			for id := range delivered {
				if _, ok := stillPending[id]; !ok {
					delete(delivered, id)
				}
			}

			sent := false
			for _, m := range batch {
				if _, ok := delivered[m.ID]; ok {
					continue
				}
				select {
				case out <- *m:
					delivered[m.ID] = struct{}{}
					sent = true
				case <-ctx.Done():
					return
				}
			}
			if sent {
				continue
			}

			if !b.wait(ctx, queue) {
				return
			}
		}
	}()

	return out
}

// Ack marks a message acknowledged. Idempotent: acking an unknown or
// already-acked id is a no-op.
func (b *Bus) Ack(ctx context.Context, id string) error {
	if err := b.repo.Ack(ctx, id); err != nil {
		return fmt.Errorf("ack %s: %w", id, err)
	}
	return nil
}

// AckMessage acknowledges a delivered message, attributing the ack to its
// queue for observability.
func (b *Bus) AckMessage(ctx context.Context, msg domain.Message) error {
	if err := b.repo.Ack(ctx, msg.ID); err != nil {
		return fmt.Errorf("ack %s: %w", msg.ID, err)
	}
	metrics.MessagesAcked.WithLabelValues(msg.QueueName).Inc()
	return nil
}

// PendingCount reports queue depth for health and backpressure observation.
func (b *Bus) PendingCount(ctx context.Context, queue string) (int, error) {
	count, err := b.repo.PendingCount(ctx, queue)
	if err != nil {
		return 0, fmt.Errorf("pending count for %s: %w", queue, err)
	}
	metrics.QueuePending.WithLabelValues(queue).Set(float64(count))
	return count, nil
}

// wait blocks until a local publish wakes the queue, the poll interval
// elapses, or ctx is done. Returns false when the subscription should stop.
func (b *Bus) wait(ctx context.Context, queue string) bool {
	wakeCh := make(chan struct{})
	b.mu.Lock()
	b.waiters[queue] = append(b.waiters[queue], wakeCh)
	b.mu.Unlock()

	timer := time.NewTimer(b.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		b.dropWaiter(queue, wakeCh)
		return false
	case <-wakeCh:
		return true
	case <-timer.C:
		// Poll fallback covers messages published by other processes.
		b.dropWaiter(queue, wakeCh)
		return true
	}
}

func (b *Bus) wake(queue string) {
	b.mu.Lock()
	waiters := b.waiters[queue]
	delete(b.waiters, queue)
	b.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

func (b *Bus) dropWaiter(queue string, target chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	waiters := b.waiters[queue]
	for i, ch := range waiters {
		if ch == target {
			b.waiters[queue] = append(waiters[:i], waiters[i+1:]...)
			return
		}
	}
}

func (b *Bus) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
