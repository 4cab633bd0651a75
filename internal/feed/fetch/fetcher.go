// Package fetch executes a logical read against the currently active backend
// and fails over to the standby on transient errors.
package fetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/feedsync/internal/core/domain"
	"github.com/vietddude/feedsync/internal/feed/breaker"
	"github.com/vietddude/feedsync/internal/feed/metrics"
)

// Query reads rows from one backend. Implementations must return errors
// tagged with a domain.FailureClass where possible; untagged errors are
// classified by message.
type Query[T any] func(ctx context.Context) ([]T, error)

// Transform normalizes rows after a successful read.
type Transform[T any] func([]T) []T

// Outcome is the result of one resilient fetch.
type Outcome[T any] struct {
	ServedBy         domain.BackendID
	Rows             []T
	Took             time.Duration
	FailoverOccurred bool
}

// Fetcher executes reads for one logical resource. It owns no long-lived
// state beyond the shared tracker; every Fetch call is independent.
type Fetcher[T any] struct {
	Resource  string
	Group     string
	Tracker   *breaker.Tracker
	Primary   Query[T]
	Secondary Query[T]
	Transform Transform[T]

	// Timeout bounds each backend attempt. Zero means the caller's context
	// deadline alone applies.
	Timeout time.Duration

	Log *slog.Logger
}

// Fetch asks the tracker for the active backend, runs the matching query and
// on a transient failure flips the circuit and retries the standby exactly
// once within the same call. Non-transient errors propagate unchanged and
// never touch circuit state.
func (f *Fetcher[T]) Fetch(ctx context.Context) (Outcome[T], error) {
	start := time.Now()
	active := f.Tracker.ActiveBackend(f.Group)

	rows, err := f.run(ctx, active)
	if err == nil {
		return f.success(start, active, rows, false), nil
	}

	class := domain.Classify(err)
	if class != domain.FailureTransient {
		metrics.FetchesTotal.WithLabelValues(f.Resource, string(active), class.String()).Inc()
		return Outcome[T]{}, err
	}

	// Flip and retry the standby once. No third attempt: if both paths are
	// down the coordinator's next tick retries anyway.
	f.Tracker.RecordFailure(f.Group, class, domain.CodeOf(err))
	standby := active.Other()
	f.logger().Debug("Retrying against standby backend",
		"resource", f.Resource, "group", f.Group, "backend", standby, "cause", err)

	rows, retryErr := f.run(ctx, standby)
	if retryErr != nil {
		retryClass := domain.Classify(retryErr)
		if retryClass == domain.FailureTransient {
			f.Tracker.RecordFailure(f.Group, retryClass, domain.CodeOf(retryErr))
		}
		metrics.FetchesTotal.WithLabelValues(f.Resource, string(standby), retryClass.String()).Inc()
		return Outcome[T]{}, retryErr
	}

	return f.success(start, standby, rows, true), nil
}

func (f *Fetcher[T]) run(ctx context.Context, backend domain.BackendID) ([]T, error) {
	query := f.Primary
	if backend == domain.BackendSecondary {
		query = f.Secondary
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	return query(ctx)
}

func (f *Fetcher[T]) success(start time.Time, backend domain.BackendID, rows []T, failover bool) Outcome[T] {
	f.Tracker.RecordSuccess(f.Group, backend)

	if f.Transform != nil {
		rows = f.Transform(rows)
	}

	took := time.Since(start)
	metrics.FetchesTotal.WithLabelValues(f.Resource, string(backend), "ok").Inc()
	metrics.FetchLatency.WithLabelValues(f.Resource, string(backend)).Observe(took.Seconds())

	return Outcome[T]{
		ServedBy:         backend,
		Rows:             rows,
		Took:             took,
		FailoverOccurred: failover,
	}
}

func (f *Fetcher[T]) logger() *slog.Logger {
	if f.Log != nil {
		return f.Log
	}
	return slog.Default()
}
