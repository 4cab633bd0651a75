// Package breaker tracks which backend serves reads for each resource group.
//
// The circuit is binary: one backend is active, the other is standby. A single
// transient failure flips the circuit immediately; there is no half-open
// probing because the fetcher always retries the standby eagerly within the
// failing call. A flipped circuit stays flipped until an operator restores the
// primary explicitly, which avoids oscillation when the primary is flapping.
package breaker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/feedsync/internal/core/domain"
	"github.com/vietddude/feedsync/internal/feed/metrics"
)

// GroupState is an observable snapshot of one resource group's circuit.
type GroupState struct {
	ActiveBackend       domain.BackendID `json:"active_backend"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	LastFailureAt       time.Time        `json:"last_failure_at,omitempty"`
	LastFailureCode     string           `json:"last_failure_code,omitempty"`
}

type circuit struct {
	active          domain.BackendID
	failures        int
	lastFailureAt   time.Time
	lastFailureCode string
}

// Tracker holds circuit state per resource group. It performs no I/O and is
// safe for concurrent callers; all access goes through one mutex since call
// volume is low.
type Tracker struct {
	mu     sync.Mutex
	groups map[string]*circuit
	log    *slog.Logger
}

// NewTracker creates an empty tracker. Groups materialize on first use with
// the primary backend active.
func NewTracker() *Tracker {
	return &Tracker{
		groups: make(map[string]*circuit),
		log:    slog.Default(),
	}
}

func (t *Tracker) group(name string) *circuit {
	c, ok := t.groups[name]
	if !ok {
		c = &circuit{active: domain.BackendPrimary}
		t.groups[name] = c
	}
	return c
}

// ActiveBackend returns the backend currently serving reads for the group.
func (t *Tracker) ActiveBackend(group string) domain.BackendID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.group(group).active
}

// RecordFailure records a failed read against the group's active backend.
// A transient failure flips the active backend immediately and resets the
// failure counter for the new active side; other classes only update the
// counters so the circuit never moves for errors a failover cannot fix.
func (t *Tracker) RecordFailure(group string, class domain.FailureClass, code string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.group(group)
	c.failures++
	c.lastFailureAt = time.Now()
	c.lastFailureCode = code

	if class != domain.FailureTransient {
		return
	}

	from := c.active
	c.active = c.active.Other()
	c.failures = 0

	t.log.Warn("Backend flipped after transient failure",
		"group", group, "from", from, "to", c.active, "code", code)
	metrics.FailoversTotal.WithLabelValues(group, string(c.active)).Inc()
	metrics.ActiveBackend.WithLabelValues(group).Set(backendGaugeValue(c.active))
}

// RecordSuccess records a successful read served by backend. A success on the
// standby primary does not restore it to active; restoration is an explicit
// operator action via RestorePrimary.
func (t *Tracker) RecordSuccess(group string, backend domain.BackendID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.group(group)
	if c.active == backend {
		c.failures = 0
	}
}

// RestorePrimary forces the group back onto the primary backend. This is the
// manual probe escape hatch for operators who confirmed the primary recovered.
func (t *Tracker) RestorePrimary(group string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.group(group)
	if c.active == domain.BackendPrimary {
		return
	}
	c.active = domain.BackendPrimary
	c.failures = 0

	t.log.Info("Primary backend restored", "group", group)
	metrics.ActiveBackend.WithLabelValues(group).Set(backendGaugeValue(domain.BackendPrimary))
}

// Group returns the state snapshot for one resource group.
func (t *Tracker) Group(group string) GroupState {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.group(group)
	return GroupState{
		ActiveBackend:       c.active,
		ConsecutiveFailures: c.failures,
		LastFailureAt:       c.lastFailureAt,
		LastFailureCode:     c.lastFailureCode,
	}
}

// Snapshot returns the state of every known group.
func (t *Tracker) Snapshot() map[string]GroupState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]GroupState, len(t.groups))
	for name, c := range t.groups {
		out[name] = GroupState{
			ActiveBackend:       c.active,
			ConsecutiveFailures: c.failures,
			LastFailureAt:       c.lastFailureAt,
			LastFailureCode:     c.lastFailureCode,
		}
	}
	return out
}

func backendGaugeValue(b domain.BackendID) float64 {
	if b == domain.BackendSecondary {
		return 1
	}
	return 0
}
