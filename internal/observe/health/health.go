// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// QueueHealth contains depth metrics for one named queue.
type QueueHealth struct {
	Queue   string       `json:"queue"`
	Status  SystemStatus `json:"status"`
	Pending int          `json:"pending"`
}

// Report contains the full system health report.
type Report struct {
	SystemStatus SystemStatus           `json:"system_status"`
	Storage      SystemStatus           `json:"storage"`
	Queues       map[string]QueueHealth `json:"queues"`
	Breakers     map[string]string      `json:"breakers,omitempty"`
}
