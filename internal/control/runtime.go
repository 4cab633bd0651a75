package control

import (
	"sync"
	"time"

	"github.com/vietddude/feedsync/internal/core/config"
	"github.com/vietddude/feedsync/internal/core/domain"
	"github.com/vietddude/feedsync/internal/feed/fetch"
	"github.com/vietddude/feedsync/internal/feed/health"
	"github.com/vietddude/feedsync/internal/feed/refresh"
	"github.com/vietddude/feedsync/internal/feed/snapshot"
)

// resourceRuntime ties one resource's coordinator to the shared stores and
// reports its health.
type resourceRuntime struct {
	cfg   config.ResourceConfig
	app   *App
	coord *refresh.Coordinator[domain.Row]

	mu            sync.Mutex
	lastErr       error
	lastRefreshAt time.Time
}

// onResult receives every completed fetch. Successes replace the snapshot;
// failures only record the error so the last good rows stay readable.
func (rt *resourceRuntime) onResult(out fetch.Outcome[domain.Row], err error) {
	rt.mu.Lock()
	rt.lastRefreshAt = time.Now()
	rt.lastErr = err
	rt.mu.Unlock()

	if err != nil {
		return
	}

	rt.app.snapshots.Put(snapshot.Entry{
		Resource: rt.cfg.Name,
		Rows:     out.Rows,
		ServedBy: out.ServedBy,
		Took:     out.Took,
		Failover: out.FailoverOccurred,
	})
}

// ResourceHealth implements health.Source.
func (rt *resourceRuntime) ResourceHealth() health.ResourceHealth {
	rt.mu.Lock()
	lastErr := rt.lastErr
	lastRefresh := rt.lastRefreshAt
	rt.mu.Unlock()

	rh := health.ResourceHealth{
		Resource:      rt.cfg.Name,
		Group:         rt.cfg.Group,
		Status:        health.StatusHealthy,
		ActiveBackend: rt.app.tracker.ActiveBackend(rt.cfg.Group),
		LastRefreshAt: lastRefresh,
	}

	if ch := rt.coord.Channel(); ch != nil {
		st := ch.Status()
		rh.Channel = &st
	}

	if lastErr != nil {
		rh.LastError = lastErr.Error()
		if _, ok := rt.app.snapshots.Get(rt.cfg.Name); ok {
			// Stale data still served.
			rh.Status = health.StatusDegraded
		} else {
			rh.Status = health.StatusCritical
		}
	}

	return rh
}
