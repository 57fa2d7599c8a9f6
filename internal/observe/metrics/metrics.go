package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesPublished tracks messages published per queue
	MessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_messages_published_total",
			Help: "Total number of messages published",
		},
		[]string{"queue"},
	)

	// MessagesAcked tracks acknowledged messages per queue
	MessagesAcked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_messages_acked_total",
			Help: "Total number of messages acknowledged",
		},
		[]string{"queue"},
	)

	// QueuePending tracks the pending depth per queue
	QueuePending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arbiter_queue_pending",
			Help: "Number of pending messages in the queue",
		},
		[]string{"queue"},
	)

	// QuestionsSubmitted tracks submitted review questions per type
	QuestionsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_questions_submitted_total",
			Help: "Total number of questions submitted for review",
		},
		[]string{"type"},
	)

	// QuestionsExpired tracks questions expired by the sweeper
	QuestionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arbiter_questions_expired_total",
			Help: "Total number of questions expired unanswered",
		},
	)

	// ResponsesProcessed tracks processed human decisions per response type
	ResponsesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_responses_processed_total",
			Help: "Total number of human responses processed",
		},
		[]string{"response_type"},
	)

	// RemindersScheduled tracks LATER reminders pushed to the scheduler
	RemindersScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arbiter_reminders_scheduled_total",
			Help: "Total number of follow-up reminders scheduled",
		},
	)

	// BreakerState tracks circuit breaker state per wrapped operation
	// (0 = closed, 1 = open, 2 = half-open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arbiter_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"operation"},
	)

	// RetryAttempts tracks retry attempts per wrapped operation
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_retry_attempts_total",
			Help: "Total number of retry attempts",
		},
		[]string{"operation"},
	)

	// DBConnectionPoolUsage tracks database connection pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arbiter_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)
)
