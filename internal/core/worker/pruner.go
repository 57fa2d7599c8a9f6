// Package worker holds maintenance loops that run beside the main flow.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/subtract0/arbiter/internal/infra/storage"
)

// Pruner deletes old data based on retention policy: acknowledged messages
// and expired questions past the retention window. Pending work and answered
// history are never pruned.
type Pruner struct {
	retention time.Duration
	msgRepo   storage.MessageRepository
	qRepo     storage.QuestionRepository
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker. A retention of 0 keeps everything
// forever.
func NewPruner(retention time.Duration, msgRepo storage.MessageRepository, qRepo storage.QuestionRepository) *Pruner {
	return &Pruner{
		retention: retention,
		msgRepo:   msgRepo,
		qRepo:     qRepo,
		log:       slog.Default(),
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check at roughly 10% of the retention period, clamped to [1m, 1h].
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.retention)

	msgs, err := p.msgRepo.DeleteAcked(ctx, cutoff)
	if err != nil {
		p.log.Error("failed to prune acknowledged messages", "error", err)
	}
	questions, err := p.qRepo.DeleteExpired(ctx, cutoff)
	if err != nil {
		p.log.Error("failed to prune expired questions", "error", err)
	}
	if msgs > 0 || questions > 0 {
		p.log.Info("pruned old rows", "messages", msgs, "questions", questions)
	}
}
