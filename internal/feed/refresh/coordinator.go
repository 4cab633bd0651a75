// Package refresh owns the recurring polling timer per logical resource.
//
// The timer is the freshness guarantee: it is never paused, never made
// conditional on change-channel connectivity, and a failed fetch only means
// the next tick retries. Channel events are an accelerant that trigger the
// same fetch path out of band. All triggers funnel through one in-flight
// guard so overlapping ticks and events collapse into a single fetch.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/feedsync/internal/core/domain"
	"github.com/vietddude/feedsync/internal/feed/channel"
	"github.com/vietddude/feedsync/internal/feed/fetch"
	"github.com/vietddude/feedsync/internal/feed/metrics"
)

// Options configures a coordinator.
type Options[T any] struct {
	// OnResult receives every completed fetch, success or failure. Results of
	// fetches still in flight when Stop is called are discarded.
	OnResult func(fetch.Outcome[T], error)

	// Transport, when set, subscribes a change channel for the resource whose
	// events trigger out-of-band refreshes. The coordinator owns the
	// subscription and closes it on Stop.
	Transport channel.Transport

	// OnEvent and OnFlash are forwarded to the channel subscription.
	OnEvent func(domain.ChangeEvent)
	OnFlash func()

	Log *slog.Logger
}

// Coordinator drives periodic refreshes for one resource.
type Coordinator[T any] struct {
	resource string
	interval time.Duration
	fetcher  *fetch.Fetcher[T]
	opts     Options[T]

	running    atomic.Bool
	inFlight   atomic.Bool
	generation atomic.Uint64

	ch       *channel.Channel
	kick     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a coordinator for the resource. interval must be positive.
func New[T any](resource string, interval time.Duration, fetcher *fetch.Fetcher[T], opts Options[T]) *Coordinator[T] {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Coordinator[T]{
		resource: resource,
		interval: interval,
		fetcher:  fetcher,
		opts:     opts,
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Resource returns the resource this coordinator refreshes.
func (c *Coordinator[T]) Resource() string { return c.resource }

// Channel returns the change-channel subscription, or nil when no transport
// was configured or the coordinator has not started.
func (c *Coordinator[T]) Channel() *channel.Channel { return c.ch }

// Start performs one immediate fetch, arms the repeating timer and, when a
// transport is configured, subscribes the change channel.
func (c *Coordinator[T]) Start(ctx context.Context) error {
	if c.interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %v", c.interval)
	}
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("coordinator for %s already running", c.resource)
	}

	if c.opts.Transport != nil {
		c.ch = channel.Subscribe(c.opts.Transport, c.resource, channel.Options{
			OnEvent: func(ev domain.ChangeEvent) {
				c.Kick()
				if c.opts.OnEvent != nil {
					c.opts.OnEvent(ev)
				}
			},
			OnFlash: c.opts.OnFlash,
			Log:     c.opts.Log,
		})
	}

	go c.loop(ctx)
	return nil
}

// Kick requests an out-of-band refresh. Requests arriving while a fetch is
// pending coalesce into one.
func (c *Coordinator[T]) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Stop cancels the timer and unsubscribes the channel. An in-flight fetch is
// allowed to complete but its result is discarded. Safe to call twice.
func (c *Coordinator[T]) Stop() {
	c.stopOnce.Do(func() {
		c.generation.Add(1)
		close(c.stop)
		if c.ch != nil {
			c.ch.Close()
		}
	})
	if c.running.Load() {
		<-c.done
	}
}

func (c *Coordinator[T]) loop(ctx context.Context) {
	defer close(c.done)
	defer c.running.Store(false)

	gen := c.generation.Load()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.refresh(ctx, gen)

	for {
		select {
		case <-ctx.Done():
			c.generation.Add(1)
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.refresh(ctx, gen)
		case <-c.kick:
			c.refresh(ctx, gen)
		}
	}
}

// refresh runs the fetch on its own goroutine so a slow backend never blocks
// the timer; concurrent triggers bounce off the in-flight guard.
func (c *Coordinator[T]) refresh(ctx context.Context, gen uint64) {
	if !c.inFlight.CompareAndSwap(false, true) {
		metrics.CoalescedRefreshes.WithLabelValues(c.resource).Inc()
		return
	}

	go func() {
		defer c.inFlight.Store(false)

		out, err := c.fetcher.Fetch(ctx)

		// Discard results that finished after Stop.
		if c.generation.Load() != gen {
			return
		}
		if err != nil {
			c.opts.Log.Warn("Refresh failed, next tick retries",
				"resource", c.resource, "error", err)
		}
		if c.opts.OnResult != nil {
			c.opts.OnResult(out, err)
		}
	}()
}
