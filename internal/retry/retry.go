// Package retry wraps fallible operations with exponential backoff and a
// per-operation circuit breaker.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/subtract0/arbiter/internal/observe/metrics"
)

// Config defines retry behavior.
type Config struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
	Jitter          bool
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxAttempts:     3,
	InitialDelay:    1 * time.Second,
	MaxDelay:        60 * time.Second,
	BackoffMultiple: 2.0,
	Jitter:          true,
}

// Operation is any fallible call the controller can drive.
type Operation func(ctx context.Context) error

// permanenter is implemented by errors that can never succeed on retry
// (validation failures, correlation mismatches).
type permanenter interface {
	Permanent() bool
}

// IsPermanent reports whether err is marked non-retryable anywhere in its
// chain.
func IsPermanent(err error) bool {
	for err != nil {
		if p, ok := err.(permanenter); ok && p.Permanent() {
			return true
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

type permanentError struct{ err error }

func (e *permanentError) Error() string   { return e.err.Error() }
func (e *permanentError) Unwrap() error   { return e.err }
func (e *permanentError) Permanent() bool { return true }

// MarkPermanent wraps err so the controller surfaces it without retrying.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Controller drives one operation's retry schedule and owns its breaker.
type Controller struct {
	name    string
	cfg     Config
	breaker *Breaker
}

// NewController creates a controller for a named operation. The breaker it
// owns is never shared with other operations.
func NewController(name string, cfg Config, breaker *Breaker) *Controller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	if cfg.BackoffMultiple <= 0 {
		cfg.BackoffMultiple = DefaultConfig.BackoffMultiple
	}
	if breaker == nil {
		breaker = NewBreaker(name, defaultFailureThreshold, defaultRecoveryTimeout)
	}
	return &Controller{name: name, cfg: cfg, breaker: breaker}
}

// Breaker returns the controller's breaker, for health reporting.
func (c *Controller) Breaker() *Breaker { return c.breaker }

// Do executes the operation under the backoff schedule
// delay(attempt) = initial * multiple^(attempt-1), reporting every outcome
// to the breaker. An OPEN breaker rejects up front without consuming an
// attempt. Permanent errors surface immediately; transient ones retry until
// MaxAttempts and then surface wrapped.
func (c *Controller) Do(ctx context.Context, op Operation) error {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.breaker.Allow(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last attempt error: %v)", err, lastErr)
			}
			return err
		}

		metrics.RetryAttempts.WithLabelValues(c.name).Inc()
		err := op(ctx)
		if err == nil {
			c.breaker.RecordSuccess()
			return nil
		}

		c.breaker.RecordFailure()
		lastErr = err

		if IsPermanent(err) {
			return err
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.delay(attempt)):
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", c.name, c.cfg.MaxAttempts, lastErr)
}

// DoValue runs an operation that produces a value under the same policy.
func DoValue[T any](ctx context.Context, c *Controller, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := c.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func (c *Controller) delay(attempt int) time.Duration {
	d := float64(c.cfg.InitialDelay) * math.Pow(c.cfg.BackoffMultiple, float64(attempt-1))
	if d > float64(c.cfg.MaxDelay) {
		d = float64(c.cfg.MaxDelay)
	}
	if c.cfg.Jitter {
		// Up to 25% perturbation, bounded by MaxDelay.
		d += d * 0.25 * (rand.Float64()*2 - 1)
		if d > float64(c.cfg.MaxDelay) {
			d = float64(c.cfg.MaxDelay)
		}
		if d < 0 {
			d = 0
		}
	}
	return time.Duration(d)
}
