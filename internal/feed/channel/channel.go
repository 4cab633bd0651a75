// Package channel maintains a push-notification subscription for a resource
// and reconnects with capped exponential backoff when the transport drops.
//
// Connection status is observable but informational only: freshness is owned
// by the polling coordinator, and nothing here may gate it.
package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/feedsync/internal/core/domain"
	"github.com/vietddude/feedsync/internal/feed/metrics"
)

// State is the connection state of a channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateUnsubscribed // terminal, reached only via Close
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateUnsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}

// Transport opens push-notification sessions. Implementations live in
// internal/infra/realtime; tests supply fakes.
type Transport interface {
	// Subscribe opens a session for the resource. Returning nil error is the
	// subscription-acknowledged signal that resets the reconnect counter.
	Subscribe(ctx context.Context, resource string) (Session, error)
}

// Session is one live subscription. Events is closed when the session drops;
// Err then reports the drop reason.
type Session interface {
	Events() <-chan domain.ChangeEvent
	Err() error
	Close() error
}

// Status is an observable snapshot of the channel.
type Status struct {
	State            State     `json:"state"`
	ReconnectAttempt int       `json:"reconnect_attempt"`
	EventCount       int64     `json:"event_count"`
	LastEventAt      time.Time `json:"last_event_at,omitempty"`
}

// Options configures a subscription.
type Options struct {
	// OnEvent receives every inbound event, synchronously with event
	// counting, so Status().EventCount is exact.
	OnEvent func(domain.ChangeEvent)

	// OnFlash, if set, fires after OnEvent for every event. Callers use it
	// for UI pulse signals.
	OnFlash func()

	// BaseDelay is the first reconnect delay; doubles per attempt up to
	// MaxDelay. Defaults: 1s base, 30s max.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	Log *slog.Logger
}

type dropReason int

const (
	dropSession dropReason = iota // transport closed the session
	dropManual                    // Reconnect() was called
	dropClosed                    // channel is shutting down
)

// Channel is a live subscription with automatic reconnection.
type Channel struct {
	id        string
	resource  string
	transport Transport
	opts      Options

	mu          sync.Mutex
	state       State
	attempt     int
	eventCount  int64
	lastEventAt time.Time

	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
	bump      chan struct{}
}

// Subscribe opens a channel for the resource and starts its reconnect loop.
func Subscribe(transport Transport, resource string, opts Options) *Channel {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		id:        uuid.New().String(),
		resource:  resource,
		transport: transport,
		opts:      opts,
		state:     StateDisconnected,
		cancel:    cancel,
		done:      make(chan struct{}),
		bump:      make(chan struct{}, 1),
	}

	go c.loop(ctx)
	return c
}

// ID returns the subscription id, used in logs and admin output.
func (c *Channel) ID() string { return c.id }

// Resource returns the subscribed resource name.
func (c *Channel) Resource() string { return c.resource }

// Status returns a snapshot of the connection state.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:            c.state,
		ReconnectAttempt: c.attempt,
		EventCount:       c.eventCount,
		LastEventAt:      c.lastEventAt,
	}
}

// Reconnect drops the current session (or pending backoff wait) and connects
// again immediately. Manual escape hatch for operators.
func (c *Channel) Reconnect() {
	select {
	case c.bump <- struct{}{}:
	default:
	}
}

// Close unsubscribes, cancelling any pending reconnect timer, and waits for
// the loop to exit. Safe to call more than once.
func (c *Channel) Close() {
	c.closeOnce.Do(c.cancel)
	<-c.done
}

func (c *Channel) loop(ctx context.Context) {
	defer close(c.done)
	defer c.setState(StateUnsubscribed)

	for {
		c.setState(StateConnecting)

		sess, err := c.transport.Subscribe(ctx, c.resource)
		if ctx.Err() != nil {
			if sess != nil {
				sess.Close()
			}
			return
		}
		if err != nil {
			c.opts.Log.Warn("Channel connect failed",
				"resource", c.resource, "error", err)
			c.setState(StateDisconnected)
			if !c.waitReconnect(ctx) {
				return
			}
			continue
		}

		c.connected()
		reason := c.deliver(ctx, sess)
		sess.Close()

		if reason == dropClosed {
			return
		}
		c.setState(StateDisconnected)
		if reason == dropManual {
			continue // operator asked for an immediate reconnect, skip backoff
		}
		if err := sess.Err(); err != nil {
			c.opts.Log.Warn("Channel dropped",
				"resource", c.resource, "error", err)
		}
		if !c.waitReconnect(ctx) {
			return
		}
	}
}

func (c *Channel) deliver(ctx context.Context, sess Session) dropReason {
	for {
		select {
		case <-ctx.Done():
			return dropClosed
		case <-c.bump:
			return dropManual
		case ev, ok := <-sess.Events():
			if !ok {
				return dropSession
			}
			c.handle(ev)
		}
	}
}

func (c *Channel) handle(ev domain.ChangeEvent) {
	c.mu.Lock()
	c.eventCount++
	c.lastEventAt = time.Now()
	c.mu.Unlock()

	metrics.ChannelEventsTotal.WithLabelValues(c.resource).Inc()

	if c.opts.OnEvent != nil {
		c.opts.OnEvent(ev)
	}
	if c.opts.OnFlash != nil {
		c.opts.OnFlash()
	}
}

// waitReconnect sleeps the capped exponential backoff for the current attempt
// and then increments the counter. Returns false when the channel closed
// while waiting.
func (c *Channel) waitReconnect(ctx context.Context) bool {
	c.mu.Lock()
	delay := backoffDelay(c.attempt, c.opts.BaseDelay, c.opts.MaxDelay)
	c.attempt++
	c.mu.Unlock()

	metrics.ChannelReconnects.WithLabelValues(c.resource).Inc()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.bump:
		return true
	case <-timer.C:
		return true
	}
}

func (c *Channel) connected() {
	c.mu.Lock()
	c.state = StateConnected
	c.attempt = 0
	c.mu.Unlock()

	c.opts.Log.Debug("Channel connected", "resource", c.resource, "id", c.id)
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt >= 16 {
		return max
	}
	d := base << uint(attempt)
	if d > max || d <= 0 {
		return max
	}
	return d
}
