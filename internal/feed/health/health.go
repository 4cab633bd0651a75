// Package health provides status reporting and the HTTP surface for
// observing and administering the feed layer.
package health

import (
	"time"

	"github.com/vietddude/feedsync/internal/core/domain"
	"github.com/vietddude/feedsync/internal/feed/breaker"
	"github.com/vietddude/feedsync/internal/feed/channel"
)

// SystemStatus represents the overall health state of the system or a resource.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ResourceHealth contains health signals for one refreshed resource.
type ResourceHealth struct {
	Resource      string           `json:"resource"`
	Group         string           `json:"group"`
	Status        SystemStatus     `json:"status"`
	ActiveBackend domain.BackendID `json:"active_backend"`
	Channel       *channel.Status  `json:"channel,omitempty"`
	LastRefreshAt time.Time        `json:"last_refresh_at,omitempty"`
	LastError     string           `json:"last_error,omitempty"`
}

// Report is the full health report.
type Report struct {
	SystemStatus SystemStatus               `json:"system_status"`
	Resources    map[string]ResourceHealth  `json:"resources"`
	Groups       map[string]breaker.GroupState `json:"groups"`
}
