package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisTransportDeliversEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	tr := NewRedisTransportFromClient(client)

	sess, err := tr.Subscribe(context.Background(), "orders")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sess.Close()

	mr.Publish("feedsync:orders", `{"kind":"update"}`)

	select {
	case ev, ok := <-sess.Events():
		if !ok {
			t.Fatal("events channel closed unexpectedly")
		}
		if ev.Resource != "orders" {
			t.Errorf("Resource = %q, want orders", ev.Resource)
		}
		if ev.Kind != "update" {
			t.Errorf("Kind = %q, want update", ev.Kind)
		}
		if ev.ReceivedAt.IsZero() {
			t.Error("ReceivedAt not set")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

func TestRedisTransportNonJSONPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	tr := NewRedisTransportFromClient(client)
	sess, err := tr.Subscribe(context.Background(), "orders")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sess.Close()

	mr.Publish("feedsync:orders", "ping")

	select {
	case ev := <-sess.Events():
		if string(ev.Payload) != "ping" {
			t.Errorf("Payload = %q, want ping", ev.Payload)
		}
		if ev.Kind != "" {
			t.Errorf("Kind = %q, want empty for opaque payload", ev.Kind)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

func TestRedisSessionCloseEndsEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	tr := NewRedisTransportFromClient(client)
	sess, err := tr.Subscribe(context.Background(), "orders")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	sess.Close()

	select {
	case _, ok := <-sess.Events():
		if ok {
			t.Error("received event after Close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("events channel not closed after Close")
	}
}
