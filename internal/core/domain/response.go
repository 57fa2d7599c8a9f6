package domain

import "time"

// ResponseType is the human decision on a question.
type ResponseType string

const (
	ResponseYes   ResponseType = "YES"
	ResponseNo    ResponseType = "NO"
	ResponseLater ResponseType = "LATER"
)

// Valid reports whether t is one of the three recognized decisions.
func (t ResponseType) Valid() bool {
	switch t {
	case ResponseYes, ResponseNo, ResponseLater:
		return true
	}
	return false
}

// Response is a human decision produced by the delivery mechanism and
// consumed exactly once by the response handler. ResponseTimeSeconds is
// derived from the question's created_at when nil; an explicit zero is
// kept as supplied.
type Response struct {
	CorrelationID       string       `json:"correlation_id"`
	Type                ResponseType `json:"response_type"`
	Comment             string       `json:"comment,omitempty"`
	RespondedAt         time.Time    `json:"responded_at"`
	ResponseTimeSeconds *float64     `json:"response_time_seconds,omitempty"`
}
