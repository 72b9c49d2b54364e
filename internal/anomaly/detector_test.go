package anomaly

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeRevoker struct {
	calls int32
}

func (f *fakeRevoker) Revoke(_ context.Context, _ string) error {
	atomic.AddInt32(&f.calls, 1)
	return nil
}

func TestRecordUnderThreshold(t *testing.T) {
	rev := &fakeRevoker{}
	d := NewDetector(time.Minute, 5, rev, zap.NewNop())

	for i := 1; i <= 5; i++ {
		res := d.Record(context.Background(), "agent-1", "read_file")
		if res.Breached {
			t.Fatalf("call %d breached below threshold", i)
		}
		if res.Count != i {
			t.Fatalf("count = %d, want %d", res.Count, i)
		}
	}
	if atomic.LoadInt32(&rev.calls) != 0 {
		t.Fatal("revoked without breach")
	}
}

func TestRecordBreach(t *testing.T) {
	rev := &fakeRevoker{}
	d := NewDetector(time.Minute, 5, rev, zap.NewNop())

	for i := 0; i < 5; i++ {
		d.Record(context.Background(), "agent-1", "read_file")
	}

	// Шестой вызов пробивает порог и сам получает отказ.
	res := d.Record(context.Background(), "agent-1", "read_file")
	if !res.Breached {
		t.Fatal("triggering call must be denied")
	}
	if !strings.Contains(res.Reason, "anomalous behavior") {
		t.Fatalf("reason: %q", res.Reason)
	}
	if atomic.LoadInt32(&rev.calls) != 1 {
		t.Fatalf("revoke calls = %d, want 1", rev.calls)
	}

	// Последующие вызовы тоже отказ, но без повторного отзыва.
	res = d.Record(context.Background(), "agent-1", "read_file")
	if !res.Breached {
		t.Fatal("post-breach call must stay denied")
	}
	if atomic.LoadInt32(&rev.calls) != 1 {
		t.Fatalf("revoke must fire exactly once, got %d", rev.calls)
	}
}

func TestRecordIsolatedPerIdentity(t *testing.T) {
	rev := &fakeRevoker{}
	d := NewDetector(time.Minute, 3, rev, zap.NewNop())

	for i := 0; i < 10; i++ {
		d.Record(context.Background(), "noisy", "scan_hosts")
	}

	res := d.Record(context.Background(), "quiet", "read_file")
	if res.Breached || res.Count != 1 {
		t.Fatalf("quiet agent affected by noisy one: %+v", res)
	}
}

func TestRecordWindowExpiry(t *testing.T) {
	rev := &fakeRevoker{}
	d := NewDetector(time.Minute, 5, rev, zap.NewNop())

	current := time.Unix(1700000000, 0)
	d.now = func() time.Time { return current }

	for i := 0; i < 5; i++ {
		d.Record(context.Background(), "agent-1", "read_file")
	}

	// Окно уехало — старые таймстемпы не считаются.
	current = current.Add(2 * time.Minute)
	res := d.Record(context.Background(), "agent-1", "read_file")
	if res.Breached {
		t.Fatal("stale stamps must not count toward the threshold")
	}
	if res.Count != 1 {
		t.Fatalf("count after expiry = %d, want 1", res.Count)
	}
}

func TestConcurrentBurstRevokesOnce(t *testing.T) {
	rev := &fakeRevoker{}
	d := NewDetector(time.Minute, 10, rev, zap.NewNop())

	var wg sync.WaitGroup
	var denied int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.Record(context.Background(), "agent-1", "query_db").Breached {
				atomic.AddInt32(&denied, 1)
			}
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&rev.calls) != 1 {
		t.Fatalf("revoke calls = %d, want exactly 1", rev.calls)
	}
	// 10 вызовов прошли, остальные 40 получили отказ.
	if denied != 40 {
		t.Fatalf("denied = %d, want 40", denied)
	}
}

func TestForgetResetsWindow(t *testing.T) {
	rev := &fakeRevoker{}
	d := NewDetector(time.Minute, 3, rev, zap.NewNop())

	for i := 0; i < 3; i++ {
		d.Record(context.Background(), "agent-1", "read_file")
	}
	d.Forget("agent-1")

	res := d.Record(context.Background(), "agent-1", "read_file")
	if res.Count != 1 {
		t.Fatalf("window survived Forget: count = %d", res.Count)
	}
}
