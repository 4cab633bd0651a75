package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vietddude/feedsync/internal/core/domain"
	"github.com/vietddude/feedsync/internal/feed/channel"
)

// PostgresTransport subscribes via LISTEN/NOTIFY on a dedicated connection
// per resource. The notify trigger installed by the migrations publishes a
// JSON payload with the operation kind.
type PostgresTransport struct {
	DSN string

	// ChannelName maps a resource to its NOTIFY channel. Defaults to
	// "feedsync_" + resource.
	ChannelName func(resource string) string
}

// NewPostgresTransport creates a transport against the given DSN.
func NewPostgresTransport(dsn string) *PostgresTransport {
	return &PostgresTransport{DSN: dsn}
}

func (t *PostgresTransport) channelName(resource string) string {
	if t.ChannelName != nil {
		return t.ChannelName(resource)
	}
	return "feedsync_" + resource
}

// Subscribe opens a connection, issues LISTEN and starts the wait loop.
func (t *PostgresTransport) Subscribe(ctx context.Context, resource string) (channel.Session, error) {
	conn, err := pgx.Connect(ctx, t.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	name := t.channelName(resource)
	if _, err := conn.Exec(ctx, "listen "+pgx.Identifier{name}.Sanitize()); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("listen %s: %w", name, err)
	}

	waitCtx, cancel := context.WithCancel(context.Background())
	s := &pgSession{
		conn:     conn,
		resource: resource,
		events:   make(chan domain.ChangeEvent, 16),
		cancel:   cancel,
	}
	go s.waitLoop(waitCtx)
	return s, nil
}

type pgSession struct {
	conn     *pgx.Conn
	resource string
	events   chan domain.ChangeEvent
	cancel   context.CancelFunc
	err      error
}

func (s *pgSession) Events() <-chan domain.ChangeEvent { return s.events }
func (s *pgSession) Err() error                        { return s.err }

func (s *pgSession) Close() error {
	s.cancel()
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.conn.Close(closeCtx)
}

// pgNotifyPayload is what the feedsync_notify trigger emits.
type pgNotifyPayload struct {
	Op string `json:"op"`
}

func (s *pgSession) waitLoop(ctx context.Context) {
	defer close(s.events)
	for {
		n, err := s.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.err = err
			}
			return
		}

		ev := domain.ChangeEvent{
			Resource:   s.resource,
			Payload:    []byte(n.Payload),
			ReceivedAt: time.Now(),
		}
		var payload pgNotifyPayload
		if json.Unmarshal([]byte(n.Payload), &payload) == nil {
			ev.Kind = payload.Op
		}

		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
