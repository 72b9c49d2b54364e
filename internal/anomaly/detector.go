package anomaly

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Revoker — то, что детектору нужно от Identity Store. Реализуется
// identity.Store; детектор в чужое состояние не лезет, только API.
type Revoker interface {
	Revoke(ctx context.Context, agentID string) error
}

// window — скользящее окно одной identity. Собственный мьютекс: окна разных
// агентов не контендят, increment-and-compare одного агента атомарен.
type window struct {
	mu       sync.Mutex
	stamps   []time.Time
	actions  map[string]struct{} // разнообразие действий, для форензики
	breached bool
}

// Result — исход регистрации одного вызова.
type Result struct {
	Breached bool
	Count    int
	Reason   string
}

// Detector отслеживает скорость запросов per-identity. Превышение порога
// в окне — отзыв identity и DENY для сработавшего и всех последующих вызовов.
type Detector struct {
	mu      sync.Mutex
	windows map[string]*window

	windowDur time.Duration
	threshold int

	revoker Revoker
	logger  *zap.Logger
	now     func() time.Time
}

func NewDetector(windowDur time.Duration, threshold int, revoker Revoker, logger *zap.Logger) *Detector {
	if windowDur <= 0 {
		windowDur = time.Minute
	}
	if threshold <= 0 {
		threshold = 20
	}
	return &Detector{
		windows:   make(map[string]*window),
		windowDur: windowDur,
		threshold: threshold,
		revoker:   revoker,
		logger:    logger.Named("anomaly"),
		now:       time.Now,
	}
}

// Record регистрирует вызов и пересчитывает счетчик в хвостовом окне.
// Критическая секция — per-identity: две гонящиеся горутины не могут
// обе увидеть допороговый счетчик и обе пройти.
func (d *Detector) Record(ctx context.Context, agentID, action string) Result {
	w := d.getWindow(agentID)

	w.mu.Lock()
	if w.breached {
		count := len(w.stamps)
		w.mu.Unlock()
		return Result{
			Breached: true,
			Count:    count,
			Reason:   "anomalous behavior detected: identity previously revoked by burst detector",
		}
	}

	now := d.now()
	w.stamps = append(w.stamps, now)
	w.prune(now.Add(-d.windowDur))
	w.actions[action] = struct{}{}
	count := len(w.stamps)

	if count <= d.threshold {
		w.mu.Unlock()
		return Result{Count: count}
	}

	// Порог пробит. Флаг ставим до вызова Revoke: triggering call уже DENY.
	w.breached = true
	diversity := len(w.actions)
	w.mu.Unlock()

	d.logger.Warn("anomaly threshold breached, revoking identity",
		zap.String("agent_id", agentID),
		zap.Int("count", count),
		zap.Int("threshold", d.threshold),
		zap.Int("action_diversity", diversity),
	)

	if err := d.revoker.Revoke(ctx, agentID); err != nil {
		// NotFound здесь означает гонку с параллельным отзывом — это не сбой
		d.logger.Warn("anomaly-triggered revocation", zap.String("agent_id", agentID), zap.Error(err))
	}

	return Result{
		Breached: true,
		Count:    count,
		Reason: fmt.Sprintf("anomalous behavior detected: %d requests within %s exceeds threshold %d, identity revoked",
			count, d.windowDur, d.threshold),
	}
}

// Forget сбрасывает окно identity. Регистрируется как revoke-hook стора:
// окно отозванного агента больше не нужно в RAM.
func (d *Detector) Forget(agentID string) {
	d.mu.Lock()
	delete(d.windows, agentID)
	d.mu.Unlock()
}

func (d *Detector) getWindow(agentID string) *window {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.windows[agentID]
	if !ok {
		w = &window{actions: make(map[string]struct{})}
		d.windows[agentID] = w
	}
	return w
}

// prune выкидывает таймстемпы старше cutoff. Вызывается под w.mu.
func (w *window) prune(cutoff time.Time) {
	i := 0
	for ; i < len(w.stamps); i++ {
		if !w.stamps[i].Before(cutoff) {
			break
		}
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
