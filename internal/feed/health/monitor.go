package health

import (
	"sync"

	"github.com/vietddude/feedsync/internal/feed/breaker"
)

// Source reports current health for one resource. The control layer's
// per-resource runtime implements this.
type Source interface {
	ResourceHealth() ResourceHealth
}

// Monitor aggregates circuit state and per-resource signals into a report.
type Monitor struct {
	mu      sync.RWMutex
	tracker *breaker.Tracker
	sources map[string]Source
}

// NewMonitor creates a monitor over the shared tracker.
func NewMonitor(tracker *breaker.Tracker) *Monitor {
	return &Monitor{
		tracker: tracker,
		sources: make(map[string]Source),
	}
}

// Register adds a health source for a resource.
func (m *Monitor) Register(resource string, src Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[resource] = src
}

// Report builds the full health report. Worst resource status wins.
func (m *Monitor) Report() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := Report{
		SystemStatus: StatusHealthy,
		Resources:    make(map[string]ResourceHealth, len(m.sources)),
		Groups:       m.tracker.Snapshot(),
	}

	for name, src := range m.sources {
		rh := src.ResourceHealth()
		report.Resources[name] = rh

		if rh.Status == StatusCritical {
			report.SystemStatus = StatusCritical
		} else if rh.Status == StatusDegraded && report.SystemStatus == StatusHealthy {
			report.SystemStatus = StatusDegraded
		}
	}

	return report
}
