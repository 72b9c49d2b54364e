package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

type failingStorage struct {
	calls int
}

func (f *failingStorage) WriteBatch(_ context.Context, _ []domain.AuditEntry) error {
	f.calls++
	return errors.New("connection refused")
}

func TestReliableStorageTripsBreaker(t *testing.T) {
	next := &failingStorage{}
	rs := NewReliableStorage(next, time.Minute, 1)

	if !rs.Healthy() {
		t.Fatal("fresh storage must report healthy")
	}

	entries := []domain.AuditEntry{{Seq: 1, AgentID: "a"}}

	// Две подряд неудачные записи (каждая с ретраями внутри) выбивают CB.
	for i := 0; i < 2; i++ {
		if err := rs.WriteBatch(context.Background(), entries); err == nil {
			t.Fatalf("write %d should fail", i)
		}
	}

	if rs.Healthy() {
		t.Fatal("breaker must be open after consecutive failures")
	}

	// Ретраи реально происходили: больше одного вызова на запись.
	if next.calls < 4 {
		t.Fatalf("expected retried calls, got %d", next.calls)
	}
}

func TestReliableStoragePassesThrough(t *testing.T) {
	ok := &memStorage{}
	rs := NewReliableStorage(ok, time.Minute, 5)

	if err := rs.WriteBatch(context.Background(), []domain.AuditEntry{{Seq: 1}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rs.Healthy() {
		t.Fatal("healthy storage must stay healthy")
	}
	if len(ok.entries) != 1 {
		t.Fatal("entry not written")
	}
}
