package worker

import (
	"context"
	"testing"
	"time"

	"github.com/subtract0/arbiter/internal/core/domain"
	"github.com/subtract0/arbiter/internal/infra/storage/memory"
)

func TestPrune_RemovesOnlyTerminalOldRows(t *testing.T) {
	store := memory.NewMemoryStorage()
	msgRepo := memory.NewMessageRepo(store)
	qRepo := memory.NewQuestionRepo(store)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	fresh := time.Now().UTC()

	seed := []*domain.Message{
		{ID: "acked-old", QueueName: domain.QueueTelemetry, EnqueuedAt: old, Status: domain.DeliveryAcknowledged},
		{ID: "acked-fresh", QueueName: domain.QueueTelemetry, EnqueuedAt: fresh, Status: domain.DeliveryAcknowledged},
		{ID: "pending-old", QueueName: domain.QueueTelemetry, EnqueuedAt: old, Status: domain.DeliveryPending},
	}
	for _, m := range seed {
		if err := msgRepo.Insert(ctx, m); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	questions := []*domain.Question{
		{CorrelationID: "expired-old", CreatedAt: old, ExpiresAt: old, Status: domain.QuestionExpired},
		{CorrelationID: "answered-old", CreatedAt: old, ExpiresAt: old, Status: domain.QuestionAnswered},
	}
	var expiredID int64
	for _, q := range questions {
		id, err := qRepo.Insert(ctx, q)
		if err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		if q.CorrelationID == "expired-old" {
			expiredID = id
		}
	}

	p := NewPruner(24*time.Hour, msgRepo, qRepo)
	p.prune(ctx)

	// Only the old acknowledged message is gone; pending survives whatever
	// its age.
	if count, _ := msgRepo.PendingCount(ctx, domain.QueueTelemetry); count != 1 {
		t.Errorf("pending count = %d, want 1", count)
	}
	removed, err := msgRepo.DeleteAcked(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete acked failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("prune left %d old acked messages behind", removed)
	}

	if _, err := qRepo.GetByID(ctx, expiredID); err == nil {
		t.Error("old expired question survived the prune")
	}
	if _, err := qRepo.GetByCorrelation(ctx, "answered-old"); err != nil {
		t.Errorf("answered history was pruned: %v", err)
	}
}

func TestStart_DisabledWithoutRetention(t *testing.T) {
	store := memory.NewMemoryStorage()
	p := NewPruner(0, memory.NewMessageRepo(store), memory.NewQuestionRepo(store))

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner with zero retention should return immediately")
	}
}
