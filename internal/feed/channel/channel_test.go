package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/feedsync/internal/core/domain"
)

type fakeSession struct {
	events chan domain.ChangeEvent
	err    error
}

func (s *fakeSession) Events() <-chan domain.ChangeEvent { return s.events }
func (s *fakeSession) Err() error                        { return s.err }
func (s *fakeSession) Close() error                      { return nil }

// fakeTransport fails the first failures subscribes, then hands out sessions.
type fakeTransport struct {
	mu       sync.Mutex
	failures int
	calls    []time.Time
	sessions []*fakeSession
}

func (t *fakeTransport) Subscribe(ctx context.Context, resource string) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls = append(t.calls, time.Now())
	if len(t.calls) <= t.failures {
		return nil, errors.New("connect refused")
	}

	s := &fakeSession{events: make(chan domain.ChangeEvent, 16)}
	t.sessions = append(t.sessions, s)
	return s, nil
}

func (t *fakeTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func (t *fakeTransport) callGap(i int) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[i].Sub(t.calls[i-1])
}

func (t *fakeTransport) session(i int) *fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[i]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		expect  time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // 32s capped
		{10, 30 * time.Second},
		{100, 30 * time.Second},
	}

	for _, tt := range tests {
		got := backoffDelay(tt.attempt, time.Second, 30*time.Second)
		if got != tt.expect {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.expect)
		}
	}
}

func TestReconnectBackoffSequence(t *testing.T) {
	base := 10 * time.Millisecond
	tr := &fakeTransport{failures: 3}

	c := Subscribe(tr, "orders", Options{BaseDelay: base, MaxDelay: time.Second})
	defer c.Close()

	waitFor(t, 5*time.Second, func() bool {
		return c.Status().State == StateConnected
	})

	if got := tr.callCount(); got != 4 {
		t.Fatalf("subscribe calls = %d, want 4 (1 initial + 3 retries)", got)
	}

	// Delays double per attempt: ~base, ~2*base, ~4*base. Only lower bounds
	// and ordering are asserted to stay robust on loaded machines.
	g1, g2, g3 := tr.callGap(1), tr.callGap(2), tr.callGap(3)
	if g1 < base {
		t.Errorf("first reconnect delay %v < base %v", g1, base)
	}
	if g2 < 2*base {
		t.Errorf("second reconnect delay %v < %v", g2, 2*base)
	}
	if g3 < 4*base {
		t.Errorf("third reconnect delay %v < %v", g3, 4*base)
	}

	// Successful connect resets the attempt counter.
	if st := c.Status(); st.ReconnectAttempt != 0 {
		t.Errorf("ReconnectAttempt = %d, want 0 after connect", st.ReconnectAttempt)
	}
}

func TestAttemptCounterWhileDisconnected(t *testing.T) {
	tr := &fakeTransport{failures: 1 << 30} // never connects
	c := Subscribe(tr, "orders", Options{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
	defer c.Close()

	waitFor(t, 5*time.Second, func() bool {
		return c.Status().ReconnectAttempt >= 3
	})

	if st := c.Status(); st.State == StateConnected {
		t.Error("channel claims connected against a dead transport")
	}
}

func TestEventDelivery(t *testing.T) {
	tr := &fakeTransport{}

	var mu sync.Mutex
	var got []domain.ChangeEvent
	flashes := 0

	c := Subscribe(tr, "orders", Options{
		OnEvent: func(ev domain.ChangeEvent) {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		},
		OnFlash: func() {
			mu.Lock()
			flashes++
			mu.Unlock()
		},
	})
	defer c.Close()

	waitFor(t, 5*time.Second, func() bool {
		return c.Status().State == StateConnected
	})

	sess := tr.session(0)
	for i := 0; i < 3; i++ {
		sess.events <- domain.ChangeEvent{Resource: "orders", Kind: "update"}
	}

	waitFor(t, 5*time.Second, func() bool {
		return c.Status().EventCount == 3
	})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Errorf("OnEvent calls = %d, want 3", len(got))
	}
	if flashes != 3 {
		t.Errorf("OnFlash calls = %d, want 3", flashes)
	}
	if c.Status().LastEventAt.IsZero() {
		t.Error("LastEventAt not set")
	}
}

func TestSessionDropTriggersReconnect(t *testing.T) {
	tr := &fakeTransport{}
	c := Subscribe(tr, "orders", Options{BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond})
	defer c.Close()

	waitFor(t, 5*time.Second, func() bool {
		return c.Status().State == StateConnected
	})

	first := tr.session(0)
	first.err = errors.New("connection reset")
	close(first.events)

	waitFor(t, 5*time.Second, func() bool {
		return tr.callCount() >= 2 && c.Status().State == StateConnected
	})

	if st := c.Status(); st.ReconnectAttempt != 0 {
		t.Errorf("ReconnectAttempt = %d, want 0 after reconnect", st.ReconnectAttempt)
	}
}

func TestManualReconnectSkipsBackoff(t *testing.T) {
	tr := &fakeTransport{}
	// Large base delay: if Reconnect() went through backoff the test would hang.
	c := Subscribe(tr, "orders", Options{BaseDelay: time.Hour, MaxDelay: time.Hour})
	defer c.Close()

	waitFor(t, 5*time.Second, func() bool {
		return c.Status().State == StateConnected
	})

	c.Reconnect()

	waitFor(t, 5*time.Second, func() bool {
		return tr.callCount() >= 2
	})
}

func TestCloseIsIdempotent(t *testing.T) {
	tr := &fakeTransport{failures: 1 << 30}
	c := Subscribe(tr, "orders", Options{BaseDelay: time.Hour, MaxDelay: time.Hour})

	done := make(chan struct{})
	go func() {
		c.Close()
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return; pending reconnect timer not cancelled")
	}

	if st := c.Status(); st.State != StateUnsubscribed {
		t.Errorf("state after Close = %v, want unsubscribed", st.State)
	}

	calls := tr.callCount()
	time.Sleep(20 * time.Millisecond)
	if tr.callCount() != calls {
		t.Error("transport still being dialed after Close")
	}
}
