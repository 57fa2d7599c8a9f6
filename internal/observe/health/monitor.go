package health

import (
	"context"
	"sync"
	"time"

	"github.com/subtract0/arbiter/internal/bus"
	"github.com/subtract0/arbiter/internal/retry"
)

// Pinger checks the durable store.
type Pinger interface {
	Health(ctx context.Context) error
}

// Depth thresholds for a single queue.
const (
	degradedDepth = 100
	criticalDepth = 1000
)

// Monitor aggregates health status from the bus, storage, and breakers.
type Monitor struct {
	bus        *bus.Bus
	queues     []string
	storage    Pinger
	breakers   []*retry.Breaker
	lastCheck  time.Time
	lastReport Report
	mu         sync.RWMutex
}

// NewMonitor creates a new health monitor. storage may be nil when running
// on the in-memory store.
func NewMonitor(b *bus.Bus, queues []string, storage Pinger, breakers []*retry.Breaker) *Monitor {
	return &Monitor{
		bus:      b,
		queues:   queues,
		storage:  storage,
		breakers: breakers,
	}
}

// RegisterBreaker adds a breaker to the set reported on, typically as
// guarded operations are created after startup.
func (m *Monitor) RegisterBreaker(b *retry.Breaker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakers = append(m.breakers, b)
}

// CheckHealth performs a health check across all observed components.
// Checks are rate limited to at most one per 10s; callers in between get
// the cached report.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && len(m.lastReport.Queues) > 0 {
		return m.lastReport
	}

	report := Report{
		SystemStatus: StatusHealthy,
		Storage:      StatusHealthy,
		Queues:       make(map[string]QueueHealth),
		Breakers:     make(map[string]string),
	}

	if m.storage != nil {
		if err := m.storage.Health(ctx); err != nil {
			report.Storage = StatusCritical
		}
	}

	for _, queue := range m.queues {
		qh := QueueHealth{Queue: queue, Status: StatusHealthy}
		count, err := m.bus.PendingCount(ctx, queue)
		if err != nil {
			qh.Status = StatusDegraded
		} else {
			qh.Pending = count
			if count > criticalDepth {
				qh.Status = StatusCritical
			} else if count > degradedDepth {
				qh.Status = StatusDegraded
			}
		}
		report.Queues[queue] = qh
	}

	openBreakers := 0
	for _, b := range m.breakers {
		state := b.State()
		report.Breakers[b.Name()] = state.String()
		if state == retry.StateOpen {
			openBreakers++
		}
	}

	// Worst case wins.
	report.SystemStatus = report.Storage
	for _, qh := range report.Queues {
		report.SystemStatus = worse(report.SystemStatus, qh.Status)
	}
	if openBreakers > 0 {
		report.SystemStatus = worse(report.SystemStatus, StatusDegraded)
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
