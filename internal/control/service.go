// Package control wires the bus, review queue, response handler, and
// background workers together and manages their lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/subtract0/arbiter/internal/bus"
	"github.com/subtract0/arbiter/internal/core/config"
	"github.com/subtract0/arbiter/internal/core/domain"
	"github.com/subtract0/arbiter/internal/core/worker"
	redisclient "github.com/subtract0/arbiter/internal/infra/redis"
	"github.com/subtract0/arbiter/internal/infra/storage"
	"github.com/subtract0/arbiter/internal/infra/storage/memory"
	"github.com/subtract0/arbiter/internal/infra/storage/postgres"
	"github.com/subtract0/arbiter/internal/observe/health"
	"github.com/subtract0/arbiter/internal/reminder"
	"github.com/subtract0/arbiter/internal/retry"
	"github.com/subtract0/arbiter/internal/review"
	"github.com/subtract0/arbiter/internal/routing"
)

// Service is the assembled decision bus: one bus instance constructed once
// and handed to every component that needs it.
type Service struct {
	cfg config.AppConfig

	Bus     *bus.Bus
	Reviews *review.Queue
	Handler *routing.Handler

	sweeper      *review.Sweeper
	reminders    *reminder.Worker
	pruner       *worker.Pruner
	monitor      *health.Monitor
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a service with all dependencies initialized. With a
// database URL configured the durable store is Postgres (migrations run at
// startup); otherwise everything lives in memory.
func NewService(ctx context.Context, cfg config.AppConfig, gate domain.FoundationGate) (*Service, error) {
	log := slog.Default()

	var msgRepo storage.MessageRepository
	var questionRepo storage.QuestionRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		msgRepo = postgres.NewMessageRepo(db)
		questionRepo = postgres.NewQuestionRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		msgRepo = memory.NewMessageRepo(store)
		questionRepo = memory.NewQuestionRepo(store)
		log.Warn("Using in-memory storage; messages will not survive restarts")
	}

	b := bus.New(msgRepo, bus.WithPollInterval(cfg.Bus.PollInterval.Std()), bus.WithLogger(log))
	reviews := review.NewQueue(questionRepo, b,
		review.WithDefaultTTL(cfg.Review.DefaultTTL.Std()),
		review.WithLogger(log))

	handlerOpts := []routing.Option{
		routing.WithLaterDelay(cfg.Review.LaterDelay.Std()),
		routing.WithLogger(log),
	}
	if gate != nil {
		handlerOpts = append(handlerOpts, routing.WithFoundationGate(gate))
	}

	var redisClient *redisclient.Client
	var reminderWorker *reminder.Worker
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		handlerOpts = append(handlerOpts, routing.WithScheduler(redisClient))
		reminderWorker = reminder.NewWorker(reminder.WorkerConfig{
			PollInterval: cfg.Review.ReminderPoll.Std(),
			ResubmitTTL:  cfg.Review.ReminderResubmitTTL.Std(),
		}, redisClient, reviews)
		log.Info("Reminder scheduling enabled")
	}

	handler := routing.NewHandler(b, reviews, handlerOpts...)

	var pinger health.Pinger
	if db != nil {
		pinger = db
	}
	monitor := health.NewMonitor(b,
		[]string{domain.QueueHumanReview, domain.QueueExecution, domain.QueueTelemetry},
		pinger, nil)

	return &Service{
		cfg:          cfg,
		Bus:          b,
		Reviews:      reviews,
		Handler:      handler,
		sweeper:      review.NewSweeper(reviews, cfg.Review.SweepInterval.Std()),
		reminders:    reminderWorker,
		pruner:       worker.NewPruner(cfg.RetentionPeriod.Std(), msgRepo, questionRepo),
		monitor:      monitor,
		healthServer: health.NewServer(monitor, cfg.Server.Port),
		db:           db,
		redisClient:  redisClient,
		log:          log,
	}, nil
}

// NewController builds a retry controller for a named operation using the
// configured retry defaults. Its breaker is registered with the health
// monitor so an OPEN circuit shows up as degraded.
func (s *Service) NewController(name string) *retry.Controller {
	breaker := retry.NewBreaker(name, s.cfg.Retry.FailureThreshold, s.cfg.Retry.RecoveryTimeout.Std())
	s.monitor.RegisterBreaker(breaker)
	return retry.NewController(name, retry.Config{
		MaxAttempts:     s.cfg.Retry.MaxAttempts,
		InitialDelay:    s.cfg.Retry.InitialDelay.Std(),
		MaxDelay:        s.cfg.Retry.MaxDelay.Std(),
		BackoffMultiple: 2.0,
		Jitter:          true,
	}, breaker)
}

// Start launches the background workers and the health server.
func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweeper.Start(runCtx)
	}()

	if s.reminders != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.reminders.Start(runCtx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pruner.Start(runCtx)
	}()

	if s.db != nil {
		s.db.StartMetricsCollector(runCtx)
	}

	go func() {
		if err := s.healthServer.Start(); err != nil && err != http.ErrServerClosed {
			s.log.Error("health server failed", "error", err)
		}
	}()

	s.log.Info("service started", "port", s.cfg.Server.Port)
	return nil
}

// Stop shuts down workers and connections, waiting for in-flight work.
func (s *Service) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}

	if err := s.healthServer.Stop(ctx); err != nil {
		s.log.Warn("health server shutdown failed", "error", err)
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("redis close failed", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("database close failed", "error", err)
		}
	}

	s.log.Info("service stopped")
	return nil
}
