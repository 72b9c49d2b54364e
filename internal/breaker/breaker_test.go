package breaker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

type fakeRepo struct {
	mu       sync.Mutex
	saved    []*domain.ApprovalTicket
	resolved []string
	saveErr  error
}

func (f *fakeRepo) SaveTicket(_ context.Context, t *domain.ApprovalTicket) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.saved = append(f.saved, &cp)
	return nil
}

func (f *fakeRepo) ResolveTicket(_ context.Context, actionID string, _ domain.ApprovalStatus, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, actionID)
	return nil
}

func (f *fakeRepo) ListTickets(_ context.Context) ([]*domain.ApprovalTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved, nil
}

func newTestBreaker(t *testing.T) (*Breaker, *fakeRepo) {
	t.Helper()
	repo := &fakeRepo{}
	return New(repo, nil, 0, zap.NewNop()), repo
}

func TestOpenCreatesPending(t *testing.T) {
	b, repo := newTestBreaker(t)

	ticket, err := b.Open(context.Background(), "agent-1", "drop_table", "db.users")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticket.ActionID == "" {
		t.Fatal("action_id must be assigned")
	}
	if ticket.Status != domain.StatusPending {
		t.Fatalf("status = %s, want PENDING", ticket.Status)
	}
	if len(repo.saved) != 1 {
		t.Fatalf("ticket not persisted: %d rows", len(repo.saved))
	}

	status, err := b.Status(ticket.ActionID)
	if err != nil || status != domain.StatusPending {
		t.Fatalf("Status = %s, %v", status, err)
	}
}

func TestOpenStorageFailure(t *testing.T) {
	repo := &fakeRepo{saveErr: errors.New("connection refused")}
	b := New(repo, nil, 0, zap.NewNop())

	_, err := b.Open(context.Background(), "agent-1", "drop_table", "db")
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("want ErrStorage, got %v", err)
	}
	if b.PendingCount() != 0 {
		t.Fatal("failed open must not leave a cached ticket")
	}
}

func TestResolveApprove(t *testing.T) {
	b, repo := newTestBreaker(t)
	ticket, _ := b.Open(context.Background(), "agent-1", "transmit_external", "api")

	if err := b.Resolve(context.Background(), ticket.ActionID, true, "alice"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	got, _ := b.Get(ticket.ActionID)
	if got.Status != domain.StatusApproved {
		t.Fatalf("status = %s, want APPROVED", got.Status)
	}
	if got.ReviewerID == nil || *got.ReviewerID != "alice" {
		t.Fatal("reviewer must be recorded")
	}
	if got.ResolvedAt == nil {
		t.Fatal("resolved_at must be set")
	}
	if len(repo.resolved) != 1 {
		t.Fatal("decision not persisted")
	}
}

func TestResolveTerminal(t *testing.T) {
	b, _ := newTestBreaker(t)
	ticket, _ := b.Open(context.Background(), "agent-1", "drop_table", "db")

	if err := b.Resolve(context.Background(), ticket.ActionID, false, "alice"); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}

	// Повторное решение — конфликт, даже с тем же исходом.
	err := b.Resolve(context.Background(), ticket.ActionID, false, "bob")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}

	got, _ := b.Get(ticket.ActionID)
	if *got.ReviewerID != "alice" {
		t.Fatal("second reviewer must not overwrite the decision")
	}
}

type captureSink struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (c *captureSink) Append(e domain.AuditEntry) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return uint64(len(c.entries))
}

func TestResolveAuditsDecision(t *testing.T) {
	b, _ := newTestBreaker(t)
	sink := &captureSink{}
	b.AttachLedger(sink)

	ok, _ := b.Open(context.Background(), "agent-1", "drop_table", "db.users")
	if err := b.Resolve(context.Background(), ok.ActionID, true, "alice"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	no, _ := b.Open(context.Background(), "agent-2", "transmit_external", "api")
	if err := b.Resolve(context.Background(), no.ActionID, false, "bob"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(sink.entries) != 2 {
		t.Fatalf("want 2 decision entries, got %d", len(sink.entries))
	}
	approved := sink.entries[0]
	if approved.Verdict != domain.VerdictApproved || approved.AgentID != "agent-1" {
		t.Fatalf("approved entry = %+v", approved)
	}
	if approved.Action != "drop_table -> db.users" {
		t.Fatalf("action = %q", approved.Action)
	}
	if !strings.Contains(approved.Reason, "alice") {
		t.Fatalf("reviewer missing from reason: %q", approved.Reason)
	}
	denied := sink.entries[1]
	if denied.Verdict != domain.VerdictDenied || denied.AgentID != "agent-2" {
		t.Fatalf("denied entry = %+v", denied)
	}
}

func TestResolveUnknown(t *testing.T) {
	b, _ := newTestBreaker(t)
	err := b.Resolve(context.Background(), "no-such-id", true, "alice")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestConcurrentResolveSingleWinner(t *testing.T) {
	b, _ := newTestBreaker(t)
	ticket, _ := b.Open(context.Background(), "agent-1", "drop_table", "db")

	var wins, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(approve bool) {
			defer wg.Done()
			err := b.Resolve(context.Background(), ticket.ActionID, approve, "reviewer")
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, domain.ErrConflict):
				atomic.AddInt32(&conflicts, 1)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
	if conflicts != 19 {
		t.Fatalf("conflicts = %d, want 19", conflicts)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	b, _ := newTestBreaker(t)

	t1, _ := b.Open(context.Background(), "agent-1", "drop_table", "db")
	b.now = func() time.Time { return time.Now().Add(time.Second) }
	t2, _ := b.Open(context.Background(), "agent-2", "send_report", "smtp")
	_ = b.Resolve(context.Background(), t1.ActionID, true, "alice")

	pending := b.List(domain.StatusPending)
	if len(pending) != 1 || pending[0].ActionID != t2.ActionID {
		t.Fatalf("pending filter broken: %d tickets", len(pending))
	}

	all := b.List("")
	if len(all) != 2 {
		t.Fatalf("unfiltered list = %d, want 2", len(all))
	}
	// Новые первыми
	if all[0].ActionID != t2.ActionID {
		t.Fatal("list must order newest first")
	}
}

func TestSweepStaleAutoDenies(t *testing.T) {
	repo := &fakeRepo{}
	b := New(repo, nil, time.Minute, zap.NewNop())

	base := time.Unix(1700000000, 0)
	b.now = func() time.Time { return base }
	ticket, _ := b.Open(context.Background(), "agent-1", "drop_table", "db")

	// Часы ушли вперед дальше дедлайна — janitor должен отклонить.
	b.now = func() time.Time { return base.Add(2 * time.Minute) }
	b.sweepStale(context.Background())

	got, _ := b.Get(ticket.ActionID)
	if got.Status != domain.StatusDenied {
		t.Fatalf("stale ticket status = %s, want DENIED", got.Status)
	}
	if got.ReviewerID == nil || *got.ReviewerID != AutoDenyReviewer {
		t.Fatal("auto-deny must be signed by the system reviewer")
	}
}

func TestWarmUpRestoresTickets(t *testing.T) {
	repo := &fakeRepo{}
	seed := New(repo, nil, 0, zap.NewNop())
	ticket, _ := seed.Open(context.Background(), "agent-1", "drop_table", "db")

	fresh := New(repo, nil, 0, zap.NewNop())
	if err := fresh.WarmUp(context.Background()); err != nil {
		t.Fatalf("warm-up failed: %v", err)
	}
	status, err := fresh.Status(ticket.ActionID)
	if err != nil || status != domain.StatusPending {
		t.Fatalf("restored ticket: %s, %v", status, err)
	}
}
