package audit

/*
Файл ledger.go реализует Audit Ledger — append-only реестр решений движка.

Ключевые особенности архитектуры:
- Linearizable Append: глобальная позиция выдается под одним мьютексом,
  последовательность строго возрастает даже при конкурентных писателях.
- Tamper Evidence: каждая запись сцеплена с предыдущей blake3-хэшем.
  Подмена любой записи рвет цепочку, Verify это обнаруживает.
- Non-blocking Persistence: сама запись в БД идет пачками через фоновый
  воркер (канал + тикер), Hot Path не ждет Postgres. При переполнении
  буфера запись уходит в хранилище синхронно — события не теряются.
- Drain Pattern & Graceful Shutdown: при остановке буфер вычитывается
  полностью, финальный flush гарантирует отсутствие потерь при рестарте.
*/

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

// StorageInterface определяет, куда физически сохраняются записи реестра.
type StorageInterface interface {
	// WriteBatch сохраняет пачку записей за один раз.
	WriteBatch(ctx context.Context, entries []domain.AuditEntry) error
}

// healthReporter — опциональная способность хранилища сообщать о деградации
// (реализуется ReliableStorage через состояние circuit breaker).
type healthReporter interface {
	Healthy() bool
}

// recentCap — сколько последних записей держим в RAM для Tail и Verify.
const recentCap = 4096

type Ledger struct {
	mu       sync.Mutex
	seq      uint64
	prevHash string
	recent   []domain.AuditEntry

	ch     chan domain.AuditEntry
	repo   StorageInterface
	logger *zap.Logger
	wg     sync.WaitGroup

	// Атомарный флаг (0 - открыт, 1 - закрыт): защита от Log после Stop.
	isClosed int32
}

// NewLedger создает реестр. startSeq и startHash — хвост цепочки из БД
// (0 и "" для пустого хранилища), чтобы цепочка переживала рестарты.
func NewLedger(repo StorageInterface, startSeq uint64, startHash string, bufferSize int, logger *zap.Logger) *Ledger {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Ledger{
		seq:      startSeq,
		prevHash: startHash,
		recent:   make([]domain.AuditEntry, 0, 256),
		ch:       make(chan domain.AuditEntry, bufferSize),
		repo:     repo,
		logger:   logger.With(zap.String("mod", "ledger")),
	}
}

// Start запускает фоновый воркер персистентности.
func (l *Ledger) Start(flushInterval time.Duration) {
	l.wg.Add(1)
	go l.worker(flushInterval)
}

// Stop «запирает» вход и ждет, пока воркер допишет остатки буфера.
func (l *Ledger) Stop() {
	atomic.StoreInt32(&l.isClosed, 1)

	// Крошечная пауза, чтобы уже начатые Append успели проскочить
	time.Sleep(10 * time.Millisecond)

	l.logger.Info("stopping ledger: closing channel and flushing buffer...")
	close(l.ch)
	l.wg.Wait()
	l.logger.Info("ledger stopped gracefully")
}

// Append присваивает записи следующую глобальную позицию и вшивает ее
// в хэш-цепочку. Возвращает позицию. Никогда не теряет запись:
// при полном буфере пишет в хранилище синхронно.
func (l *Ledger) Append(entry domain.AuditEntry) uint64 {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	l.mu.Lock()
	l.seq++
	entry.Seq = l.seq
	entry.PrevHash = l.prevHash
	entry.Hash = chainHash(entry)
	l.prevHash = entry.Hash

	l.recent = append(l.recent, entry)
	if len(l.recent) > recentCap {
		l.recent = l.recent[len(l.recent)-recentCap:]
	}
	l.mu.Unlock()

	if atomic.LoadInt32(&l.isClosed) == 1 {
		// Реестр уже останавливается: дописываем напрямую, мимо воркера
		l.persistDirect(entry)
		return entry.Seq
	}

	select {
	case l.ch <- entry:
	default:
		// Backpressure: буфер полон. Load shedding здесь недопустим —
		// пропуск audit-записи ломает контракт. Пишем синхронно.
		l.logger.Warn("audit_buffer_overflow: falling back to direct write",
			zap.Uint64("seq", entry.Seq),
			zap.String("agent_id", entry.AgentID),
		)
		l.persistDirect(entry)
	}
	return entry.Seq
}

// Tail возвращает n последних записей в порядке добавления.
func (l *Ledger) Tail(n int) []domain.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || len(l.recent) == 0 {
		return []domain.AuditEntry{}
	}
	if n > len(l.recent) {
		n = len(l.recent)
	}
	out := make([]domain.AuditEntry, n)
	copy(out, l.recent[len(l.recent)-n:])
	return out
}

// Healthy сообщает, принимает ли нижележащее хранилище записи.
// На открытом circuit breaker оркестратор обязан fail-closed.
func (l *Ledger) Healthy() bool {
	if h, ok := l.repo.(healthReporter); ok {
		return h.Healthy()
	}
	return true
}

// VerifyRecent перепроверяет хэш-цепочку по записям в RAM.
func (l *Ledger) VerifyRecent() error {
	l.mu.Lock()
	entries := make([]domain.AuditEntry, len(l.recent))
	copy(entries, l.recent)
	l.mu.Unlock()
	return VerifyChain(entries)
}

// VerifyChain проверяет непрерывность цепочки на произвольном упорядоченном
// срезе (например, выбранном из БД).
func VerifyChain(entries []domain.AuditEntry) error {
	for i, e := range entries {
		if chainHash(e) != e.Hash {
			return fmt.Errorf("ledger: entry seq=%d hash mismatch, record tampered", e.Seq)
		}
		if i > 0 {
			prev := entries[i-1]
			if e.PrevHash != prev.Hash {
				return fmt.Errorf("ledger: chain broken between seq=%d and seq=%d", prev.Seq, e.Seq)
			}
			if e.Seq != prev.Seq+1 {
				return fmt.Errorf("ledger: sequence gap between %d and %d", prev.Seq, e.Seq)
			}
		}
	}
	return nil
}

func chainHash(e domain.AuditEntry) string {
	h := blake3.New()
	fmt.Fprintf(h, "%s|%d|%s|%s|%s|%s|%s|%d",
		e.PrevHash, e.Seq, e.ID, e.AgentID, e.Action, e.Verdict, e.Reason,
		e.Timestamp.UnixNano(),
	)
	return hex.EncodeToString(h.Sum(nil))
}

func (l *Ledger) persistDirect(entry domain.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.repo.WriteBatch(ctx, []domain.AuditEntry{entry}); err != nil {
		l.logger.Error("direct audit write failed", zap.Uint64("seq", entry.Seq), zap.Error(err))
	}
}

func (l *Ledger) worker(flushInterval time.Duration) {
	defer l.wg.Done()

	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}

	batch := make([]domain.AuditEntry, 0, 100)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст на Stop уже может быть закрыт
		if err := l.repo.WriteBatch(context.Background(), batch); err != nil {
			l.logger.Error("audit flush failed", zap.Int("batch", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-l.ch:
			if !ok {
				// Канал закрыт в Stop(): воркер сначала вычитал остатки,
				// потом получил ok == false. Финальный flush и выход.
				flush()
				l.logger.Info("ledger worker finished")
				return
			}
			batch = append(batch, entry)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
