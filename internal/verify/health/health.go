// Package health exposes liveness and diagnostic views over the
// verification engine.
package health

import (
	"time"

	"github.com/vietddude/boardcheck/internal/core/domain"
)

// Status is the aggregate health level.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// Report is the detailed health snapshot.
type Report struct {
	Status       Status                    `json:"status"`
	QueueDepth   int                       `json:"queue_depth"`
	InFlight     int                       `json:"in_flight"`
	StatusCounts map[string]int            `json:"status_counts"`
	Matching     map[string]map[string]int `json:"matching"`
	GeneratedAt  time.Time                 `json:"generated_at"`
}

// QueueView is what the monitor needs from the check queue.
type QueueView interface {
	Depth() int
	InFlight() int
}

// StatusView is what the monitor needs from the status store.
type StatusView interface {
	List() []domain.RequirementStatus
}

// MatchView is what the monitor needs from the matching engine.
type MatchView interface {
	Stats() map[string]map[string]int
}

// Monitor aggregates component views into a health report.
type Monitor struct {
	queue QueueView
	store StatusView
	match MatchView

	// DegradedQueueDepth marks the report degraded past this backlog.
	DegradedQueueDepth int
}

// NewMonitor creates a monitor over the given views.
func NewMonitor(queue QueueView, store StatusView, match MatchView) *Monitor {
	return &Monitor{
		queue:              queue,
		store:              store,
		match:              match,
		DegradedQueueDepth: 1000,
	}
}

// Check builds the current report.
func (m *Monitor) Check() Report {
	counts := make(map[string]int)
	for _, st := range m.store.List() {
		counts[string(st.State)]++
	}

	depth := m.queue.Depth()
	status := StatusHealthy
	if depth > m.DegradedQueueDepth {
		status = StatusDegraded
	}

	return Report{
		Status:       status,
		QueueDepth:   depth,
		InFlight:     m.queue.InFlight(),
		StatusCounts: counts,
		Matching:     m.match.Stats(),
		GeneratedAt:  time.Now(),
	}
}
