package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/feedsync/internal/core/domain"
	"github.com/vietddude/feedsync/internal/feed/channel"
)

// RedisTransport subscribes via Redis pub/sub. Publishers push one message
// per change on "feedsync:<resource>"; the message body is forwarded as the
// event payload.
type RedisTransport struct {
	client *redis.Client
	prefix string

	// Topic maps a resource to its pub/sub channel; defaults to
	// prefix + resource.
	Topic func(resource string) string
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewRedisTransport connects a transport to the configured Redis.
func NewRedisTransport(cfg Config) (*RedisTransport, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisTransport{client: rdb, prefix: "feedsync:"}, nil
}

// NewRedisTransportFromClient wraps an existing client, mainly for tests.
func NewRedisTransportFromClient(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client, prefix: "feedsync:"}
}

// Close closes the underlying client.
func (t *RedisTransport) Close() error { return t.client.Close() }

// WithTopic returns a transport sharing the same client but subscribing to a
// fixed topic regardless of resource name.
func (t *RedisTransport) WithTopic(topic string) *RedisTransport {
	clone := *t
	clone.Topic = func(string) string { return topic }
	return &clone
}

// Subscribe opens a pub/sub subscription. The subscription acknowledgment
// from Redis is the connect signal; Subscribe does not return before it.
func (t *RedisTransport) Subscribe(ctx context.Context, resource string) (channel.Session, error) {
	topic := t.prefix + resource
	if t.Topic != nil {
		topic = t.Topic(resource)
	}
	pubsub := t.client.Subscribe(ctx, topic)

	// Receive blocks until Redis acknowledges the subscription.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	s := &redisSession{
		pubsub:   pubsub,
		resource: resource,
		events:   make(chan domain.ChangeEvent, 16),
	}
	go s.readLoop()
	return s, nil
}

type redisSession struct {
	pubsub   *redis.PubSub
	resource string
	events   chan domain.ChangeEvent
}

func (s *redisSession) Events() <-chan domain.ChangeEvent { return s.events }

// Err is always nil: go-redis reconnect handling surfaces drops by closing
// the message channel, without a terminal error to report.
func (s *redisSession) Err() error { return nil }

func (s *redisSession) Close() error { return s.pubsub.Close() }

// redisEventBody is the optional JSON shape publishers may use.
type redisEventBody struct {
	Kind string `json:"kind"`
}

func (s *redisSession) readLoop() {
	defer close(s.events)
	for msg := range s.pubsub.Channel() {
		ev := domain.ChangeEvent{
			Resource:   s.resource,
			Payload:    []byte(msg.Payload),
			ReceivedAt: time.Now(),
		}
		var body redisEventBody
		if json.Unmarshal([]byte(msg.Payload), &body) == nil {
			ev.Kind = body.Kind
		}
		s.events <- ev
	}
}
