package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts:     maxAttempts,
		InitialDelay:    time.Millisecond,
		MaxDelay:        10 * time.Millisecond,
		BackoffMultiple: 2.0,
	}
}

func TestController_FailOnceThenSucceed(t *testing.T) {
	c := NewController("flaky", fastConfig(3), nil)

	calls := 0
	err := c.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want success", err)
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 invocations, got %d", calls)
	}
}

func TestController_ExhaustsAttemptsAndSurfacesError(t *testing.T) {
	c := NewController("down", fastConfig(3), NewBreaker("down", 10, time.Minute))

	calls := 0
	wantErr := errors.New("still broken")
	err := c.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Do() = %v, want wrapped %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("expected 3 invocations, got %d", calls)
	}
}

func TestController_PermanentErrorNotRetried(t *testing.T) {
	c := NewController("validator", fastConfig(5), nil)

	calls := 0
	wantErr := MarkPermanent(errors.New("bad input"))
	err := c.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Do() = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("permanent error retried: %d invocations", calls)
	}
}

func TestController_OpenBreakerFreezesCallCount(t *testing.T) {
	threshold := 2
	breaker := NewBreaker("dep", threshold, time.Minute)
	c := NewController("dep", fastConfig(1), breaker)

	calls := 0
	op := func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	}

	for i := 0; i < threshold; i++ {
		if err := c.Do(context.Background(), op); err == nil {
			t.Fatal("expected failure")
		}
	}
	if breaker.State() != StateOpen {
		t.Fatalf("expected open breaker, got %v", breaker.State())
	}

	frozen := calls
	err := c.Do(context.Background(), op)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Do() with open breaker = %v, want ErrCircuitOpen", err)
	}
	if calls != frozen {
		t.Errorf("open breaker still invoked the operation: %d -> %d calls", frozen, calls)
	}
}

func TestController_BackoffSchedule(t *testing.T) {
	c := NewController("sched", Config{
		MaxAttempts:     5,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        300 * time.Millisecond,
		BackoffMultiple: 2.0,
	}, nil)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond}, // capped by MaxDelay
		{4, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := c.delay(tt.attempt); got != tt.want {
			t.Errorf("delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestController_JitterStaysBounded(t *testing.T) {
	c := NewController("jitter", Config{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        150 * time.Millisecond,
		BackoffMultiple: 2.0,
		Jitter:          true,
	}, nil)

	for i := 0; i < 100; i++ {
		d := c.delay(2)
		if d < 0 || d > 150*time.Millisecond {
			t.Fatalf("jittered delay %v out of bounds", d)
		}
	}
}

func TestDoValue(t *testing.T) {
	c := NewController("value", fastConfig(3), nil)

	calls := 0
	got, err := DoValue(context.Background(), c, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("DoValue() = %v", err)
	}
	if got != "ok" {
		t.Errorf("DoValue() = %q, want %q", got, "ok")
	}
}

type countingTool struct {
	calls int
	fail  int
}

func (c *countingTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	c.calls++
	if c.calls <= c.fail {
		return nil, fmt.Errorf("attempt %d failed", c.calls)
	}
	return "done", nil
}

func TestWrapInvocable_RetriesAndIsIdempotent(t *testing.T) {
	c := NewController("tool", fastConfig(3), nil)

	tool := &countingTool{fail: 1}
	wrapped := c.WrapInvocable(tool)

	// Wrapping an already-wrapped tool is a no-op.
	if again := c.WrapInvocable(wrapped); again != wrapped {
		t.Error("double wrap produced a new guard")
	}

	got, err := wrapped.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke() = %v", err)
	}
	if got != "done" {
		t.Errorf("Invoke() = %v, want done", got)
	}
	if tool.calls != 2 {
		t.Errorf("expected 2 underlying calls, got %d", tool.calls)
	}
}

func TestIsPermanent_SeesThroughWrapping(t *testing.T) {
	base := MarkPermanent(errors.New("no"))
	wrapped := fmt.Errorf("context: %w", base)
	if !IsPermanent(wrapped) {
		t.Error("IsPermanent() = false for wrapped permanent error")
	}
	if IsPermanent(errors.New("transient")) {
		t.Error("IsPermanent() = true for plain error")
	}
}
