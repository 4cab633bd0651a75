package snapshot

import (
	"testing"

	"github.com/vietddude/feedsync/internal/core/domain"
)

func TestPutGet(t *testing.T) {
	s, err := NewStore(4)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	s.Put(Entry{
		Resource: "orders",
		Rows:     []domain.Row{{"id": 1}},
		ServedBy: domain.BackendSecondary,
		Failover: true,
	})

	e, ok := s.Get("orders")
	if !ok {
		t.Fatal("snapshot missing")
	}
	if e.ServedBy != domain.BackendSecondary || !e.Failover {
		t.Errorf("entry = %+v, want secondary/failover", e)
	}
	if e.FetchedAt.IsZero() {
		t.Error("FetchedAt not defaulted")
	}

	if _, ok := s.Get("invoices"); ok {
		t.Error("unexpected snapshot for unknown resource")
	}
}

func TestLatestWins(t *testing.T) {
	s, _ := NewStore(4)
	s.Put(Entry{Resource: "orders", Rows: []domain.Row{{"id": 1}}})
	s.Put(Entry{Resource: "orders", Rows: []domain.Row{{"id": 2}}})

	e, _ := s.Get("orders")
	if len(e.Rows) != 1 || e.Rows[0]["id"] != 2 {
		t.Errorf("Rows = %v, want latest [{id:2}]", e.Rows)
	}
}
