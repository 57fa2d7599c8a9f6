package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/subtract0/arbiter/internal/control"
	"github.com/subtract0/arbiter/internal/core/config"
)

func TestGracefulShutdown(t *testing.T) {
	// In-memory storage: enough to start every component without a database.
	cfg := config.Default()
	cfg.Server.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := control.NewService(ctx, *cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Failed to start service: %v", err)
	}

	// Let the workers run for a bit
	time.Sleep(200 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	if err := svc.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
