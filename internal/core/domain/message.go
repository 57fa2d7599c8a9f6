package domain

import (
	"encoding/json"
	"time"
)

// Well-known queue names.
const (
	QueueHumanReview = "human_review_queue"
	QueueExecution   = "execution_queue"
	QueueTelemetry   = "telemetry_stream"
)

// DeliveryStatus represents the delivery lifecycle of a message.
type DeliveryStatus string

const (
	DeliveryPending      DeliveryStatus = "pending"
	DeliveryAcknowledged DeliveryStatus = "acknowledged"
)

// Message is the generic envelope carried by the bus. Payload is the
// JSON-encoded body of one of the per-queue envelope types; the bus itself
// never interprets it.
type Message struct {
	ID            string          `db:"id"             json:"id"`
	QueueName     string          `db:"queue_name"     json:"queue_name"`
	Payload       json.RawMessage `db:"payload"        json:"payload"`
	Priority      int             `db:"priority"       json:"priority"`
	CorrelationID string          `db:"correlation_id" json:"correlation_id"`
	EnqueuedAt    time.Time       `db:"enqueued_at"    json:"enqueued_at"`
	Status        DeliveryStatus  `db:"delivery_status" json:"delivery_status"`
}
