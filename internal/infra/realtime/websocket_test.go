package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsTestServer upgrades, validates the subscribe frame and plays the given
// frames back to the client.
func wsTestServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer ws.Close()

		var sub wsSubscribeFrame
		if err := ws.ReadJSON(&sub); err != nil {
			t.Errorf("read subscribe frame: %v", err)
			return
		}
		if sub.Action != "subscribe" || sub.Resource == "" || sub.ID == "" {
			t.Errorf("bad subscribe frame: %+v", sub)
			return
		}

		for _, f := range frames {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebsocketTransportDeliversEvents(t *testing.T) {
	srv := wsTestServer(t, []string{
		`{"resource":"orders","kind":"insert","payload":{"id":9}}`,
		`{"resource":"invoices","kind":"update"}`, // other resource, filtered
		`{"resource":"orders","kind":"delete"}`,
	})
	defer srv.Close()

	tr := NewWebsocketTransport(wsURL(srv))
	sess, err := tr.Subscribe(context.Background(), "orders")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sess.Close()

	var kinds []string
	timeout := time.After(5 * time.Second)
	for len(kinds) < 2 {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				t.Fatalf("session dropped early: %v", sess.Err())
			}
			kinds = append(kinds, ev.Kind)
		case <-timeout:
			t.Fatalf("timed out, got kinds %v", kinds)
		}
	}

	if kinds[0] != "insert" || kinds[1] != "delete" {
		t.Errorf("kinds = %v, want [insert delete] (invoices frame filtered)", kinds)
	}
}

func TestWebsocketTransportDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := wsURL(srv)
	srv.Close()

	tr := NewWebsocketTransport(url)
	tr.DialTimeout = time.Second
	if _, err := tr.Subscribe(context.Background(), "orders"); err == nil {
		t.Fatal("Subscribe succeeded against closed server")
	}
}

func TestWebsocketSessionDropClosesEvents(t *testing.T) {
	srv := wsTestServer(t, nil)
	tr := NewWebsocketTransport(wsURL(srv))
	sess, err := tr.Subscribe(context.Background(), "orders")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sess.Close()

	srv.CloseClientConnections()

	select {
	case _, ok := <-sess.Events():
		if ok {
			t.Error("got event, want closed channel after server drop")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("events channel not closed after drop")
	}
	srv.Close()
}
