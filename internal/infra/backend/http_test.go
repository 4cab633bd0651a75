package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/feedsync/internal/core/domain"
)

func TestRESTBackendRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/orders" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1,"total":42.5},{"id":2,"total":7}]`))
	}))
	defer srv.Close()

	b := NewRESTBackend("rest", srv.URL, "secret", 5*time.Second)
	rows, err := b.Rows("/rest/orders")(context.Background())
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["id"].(float64) != 1 {
		t.Errorf("first row = %v, want id 1", rows[0])
	}
}

func TestRESTBackendClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		expect domain.FailureClass
	}{
		{"service unavailable", http.StatusServiceUnavailable, "down", domain.FailureTransient},
		{"internal error", http.StatusInternalServerError, "boom", domain.FailureTransient},
		{"schema cache miss", http.StatusNotFound,
			`{"code":"PGRST205","message":"Could not find the table in the schema cache"}`,
			domain.FailureTransient},
		{"not found", http.StatusNotFound, "no such route", domain.FailureNotFound},
		{"unauthorized", http.StatusUnauthorized, "bad jwt", domain.FailureAuth},
		{"forbidden", http.StatusForbidden, "nope", domain.FailureAuth},
		{"bad request", http.StatusBadRequest, "malformed filter", domain.FailureClient},
		{"unprocessable", http.StatusUnprocessableEntity, "invalid", domain.FailureClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			b := NewRESTBackend("rest", srv.URL, "", 5*time.Second)
			_, err := b.Rows("/anything")(context.Background())
			if err == nil {
				t.Fatal("query succeeded, want error")
			}
			if got := domain.Classify(err); got != tt.expect {
				t.Errorf("class = %v, want %v (err: %v)", got, tt.expect, err)
			}
		})
	}
}

func TestRESTBackendConnectionRefusedIsTransient(t *testing.T) {
	// Reserved but closed port.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	b := NewRESTBackend("rest", url, "", time.Second)
	_, err := b.Rows("/orders")(context.Background())
	if err == nil {
		t.Fatal("query succeeded against closed server")
	}
	if got := domain.Classify(err); got != domain.FailureTransient {
		t.Errorf("class = %v, want transient", got)
	}
}
