package retry

import (
	"errors"
	"testing"
	"time"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("tool", 3, time.Minute)

	for i := 0; i < 2; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("Allow() before threshold returned %v", err)
		}
		b.RecordFailure()
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after 2 failures, got %v", b.State())
	}

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %v", b.State())
	}

	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() while open = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	now := time.Now()
	b := NewBreaker("tool", 1, time.Minute)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	// Still inside the recovery window
	now = now.Add(30 * time.Second)
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow() inside window = %v, want ErrCircuitOpen", err)
	}

	// Window elapsed: exactly one trial allowed
	now = now.Add(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after window = %v, want trial call", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second Allow() in half-open = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	now := time.Now()
	b := NewBreaker("tool", 1, time.Minute)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("trial call rejected: %v", err)
	}

	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Errorf("expected closed after trial success, got %v", b.State())
	}
	if b.ConsecutiveFailures() != 0 {
		t.Errorf("expected failure count reset, got %d", b.ConsecutiveFailures())
	}
}

func TestBreaker_HalfOpenFailureReopensAndResetsTimer(t *testing.T) {
	now := time.Now()
	b := NewBreaker("tool", 1, time.Minute)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("trial call rejected: %v", err)
	}

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected reopen after failed trial, got %v", b.State())
	}

	// Timer restarted: 30s later still rejecting
	now = now.Add(30 * time.Second)
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() after failed trial = %v, want ErrCircuitOpen", err)
	}
}
