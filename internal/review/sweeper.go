package review

import (
	"context"
	"log/slog"
	"time"
)

const defaultSweepInterval = time.Minute

// Sweeper periodically expires overdue questions.
type Sweeper struct {
	queue    *Queue
	interval time.Duration
	log      *slog.Logger
}

// NewSweeper creates a sweeper for the given queue. A non-positive interval
// falls back to the default.
func NewSweeper(queue *Queue, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		queue:    queue,
		interval: interval,
		log:      slog.Default(),
	}
}

// Start runs the sweep loop until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial sweep
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	count, err := s.queue.ExpireOldQuestions(ctx)
	if err != nil {
		s.log.Error("expiry sweep failed", "error", err)
		return
	}
	if count > 0 {
		s.log.Info("expired unanswered questions", "count", count)
	}
}
