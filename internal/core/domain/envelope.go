package domain

import "time"

// Event types emitted on the telemetry stream.
const (
	EventResponseYes   = "response_yes"
	EventResponseNo    = "response_no"
	EventResponseLater = "response_later"
)

// TaskEnvelope is the payload published to execution_queue for an approved
// question. Approved is always true; a NO decision never produces one.
type TaskEnvelope struct {
	CorrelationID       string         `json:"correlation_id"`
	Approved            bool           `json:"approved"`
	QuestionText        string         `json:"question_text"`
	SuggestedAction     string         `json:"suggested_action"`
	PatternContext      PatternContext `json:"pattern_context"`
	UserComment         string         `json:"user_comment,omitempty"`
	ResponseTimeSeconds float64        `json:"response_time_seconds"`
	ApprovedAt          time.Time      `json:"approved_at"`
}

// LearningEvent is the payload published to telemetry_stream for every
// decision, feeding the preference-learning pipeline.
type LearningEvent struct {
	EventType            string       `json:"event_type"`
	CorrelationID        string       `json:"correlation_id"`
	QuestionType         QuestionType `json:"question_type"`
	QuestionPriority     int          `json:"question_priority"`
	PatternType          string       `json:"pattern_type,omitempty"`
	PatternTopic         string       `json:"pattern_topic,omitempty"`
	ResponseType         ResponseType `json:"response_type"`
	ResponseTimeSeconds  float64      `json:"response_time_seconds"`
	Timestamp            time.Time    `json:"timestamp"`
	RejectionReason      string       `json:"rejection_reason,omitempty"`
	ReminderScheduledFor *time.Time   `json:"reminder_scheduled_for,omitempty"`
}

// ReviewNotice is the payload published to human_review_queue when a
// question is submitted. Consumers load the full question by id.
type ReviewNotice struct {
	QuestionID    int64  `json:"question_id"`
	CorrelationID string `json:"correlation_id"`
}
