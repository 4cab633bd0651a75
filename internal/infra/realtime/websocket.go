// Package realtime implements the change-channel transports: websocket,
// Postgres LISTEN/NOTIFY and Redis pub/sub. All three deliver the same
// domain.ChangeEvent shape; callers pick whichever feed their stack has.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vietddude/feedsync/internal/core/domain"
	"github.com/vietddude/feedsync/internal/feed/channel"
)

// wsSubscribeFrame is the subscription request sent after dialing.
type wsSubscribeFrame struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	ID       string `json:"id"`
}

// wsEventFrame is the inbound event shape.
type wsEventFrame struct {
	Resource string          `json:"resource"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// WebsocketTransport subscribes over a websocket feed.
type WebsocketTransport struct {
	URL    string
	Header http.Header

	// DialTimeout bounds the handshake; defaults to 10s.
	DialTimeout time.Duration
}

// NewWebsocketTransport creates a transport dialing the given URL.
func NewWebsocketTransport(url string) *WebsocketTransport {
	return &WebsocketTransport{URL: url}
}

// Subscribe dials, sends the subscribe frame and hands back a live session.
func (t *WebsocketTransport) Subscribe(ctx context.Context, resource string) (channel.Session, error) {
	timeout := t.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, t.URL, t.Header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	frame := wsSubscribeFrame{Action: "subscribe", Resource: resource, ID: uuid.New().String()}
	if err := conn.WriteJSON(frame); err != nil {
		conn.Close()
		return nil, fmt.Errorf("websocket subscribe: %w", err)
	}

	s := &wsSession{
		conn:     conn,
		resource: resource,
		events:   make(chan domain.ChangeEvent, 16),
	}
	go s.readLoop()
	return s, nil
}

type wsSession struct {
	conn     *websocket.Conn
	resource string
	events   chan domain.ChangeEvent
	err      error
}

func (s *wsSession) Events() <-chan domain.ChangeEvent { return s.events }
func (s *wsSession) Err() error                        { return s.err }

func (s *wsSession) Close() error {
	return s.conn.Close()
}

func (s *wsSession) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.err = err
			return
		}

		var frame wsEventFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Unparseable frames still signal change.
			s.events <- domain.ChangeEvent{
				Resource:   s.resource,
				Payload:    data,
				ReceivedAt: time.Now(),
			}
			continue
		}
		if frame.Resource != "" && frame.Resource != s.resource {
			continue // multiplexed feed, not ours
		}

		s.events <- domain.ChangeEvent{
			Resource:   s.resource,
			Kind:       frame.Kind,
			Payload:    frame.Payload,
			ReceivedAt: time.Now(),
		}
	}
}
