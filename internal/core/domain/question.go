package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// QuestionStatus represents the review lifecycle of a question.
// Transitions are one-directional: pending -> answered | expired.
type QuestionStatus string

const (
	QuestionPending  QuestionStatus = "pending"
	QuestionAnswered QuestionStatus = "answered"
	QuestionExpired  QuestionStatus = "expired"
)

// QuestionType categorizes how much is at stake in a decision.
type QuestionType string

const (
	QuestionHighValue QuestionType = "high_value"
	QuestionLowStakes QuestionType = "low_stakes"
)

const (
	MinQuestionTextLen = 10
	MaxQuestionTextLen = 500

	MinQuestionPriority = 1
	MaxQuestionPriority = 10
)

// PatternContext is a snapshot of the detection that triggered a question.
// It is serialized with the question for audit; Evidence carries any
// detector-specific fields untouched.
type PatternContext struct {
	Type       string          `json:"pattern_type"`
	Topic      string          `json:"topic,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Evidence   json.RawMessage `json:"evidence,omitempty"`
}

// Question is the review-queue specialization layered on a bus message.
type Question struct {
	ID                  int64          `db:"id"`
	CorrelationID       string         `db:"correlation_id"`
	Text                string         `db:"question_text"`
	Type                QuestionType   `db:"question_type"`
	PatternContext      PatternContext `db:"-"`
	SuggestedAction     string         `db:"suggested_action"`
	Priority            int            `db:"priority"`
	CreatedAt           time.Time      `db:"created_at"`
	ExpiresAt           time.Time      `db:"expires_at"`
	Status              QuestionStatus `db:"status"`
	ResponseType        ResponseType   `db:"response_type"`
	AnsweredAt          *time.Time     `db:"answered_at"`
	ResponseTimeSeconds *float64       `db:"response_time_seconds"`
}

// SubmitRequest carries everything needed to put a question in front of a
// human. ExpiresIn of zero falls back to the queue's default TTL.
type SubmitRequest struct {
	CorrelationID   string
	Text            string
	Type            QuestionType
	PatternContext  PatternContext
	SuggestedAction string
	Priority        int
	ExpiresIn       time.Duration
}

// Validate checks the request before anything is persisted.
func (r *SubmitRequest) Validate() error {
	if n := len(r.Text); n < MinQuestionTextLen || n > MaxQuestionTextLen {
		return &ValidationError{
			Field:  "question_text",
			Reason: fmt.Sprintf("length must be %d-%d characters, got %d", MinQuestionTextLen, MaxQuestionTextLen, n),
		}
	}
	if r.Priority < MinQuestionPriority || r.Priority > MaxQuestionPriority {
		return &ValidationError{
			Field:  "priority",
			Reason: fmt.Sprintf("must be %d-%d, got %d", MinQuestionPriority, MaxQuestionPriority, r.Priority),
		}
	}
	if r.CorrelationID == "" {
		return &ValidationError{Field: "correlation_id", Reason: "must not be empty"}
	}
	return nil
}

// Answer records the terminal outcome of a question.
type Answer struct {
	Type                ResponseType
	AnsweredAt          time.Time
	ResponseTimeSeconds float64
}

// QueueStats summarizes review queue activity.
type QueueStats struct {
	TotalQuestions     int            `json:"total_questions"`
	ByStatus           map[string]int `json:"by_status"`
	ByResponse         map[string]int `json:"by_response"`
	AcceptanceRate     float64        `json:"acceptance_rate"`
	AvgResponseSeconds float64        `json:"avg_response_time_seconds"`
}
