package breaker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
	"github.com/Atharva-Mendhulkar/AVARA/internal/infra"
)

// AutoDenyReviewer — кем подписывается авто-отклонение зависших тикетов.
const AutoDenyReviewer = "system:auto-deny"

// AuditSink принимает записи о принятых решениях (реализуется audit.Ledger).
// Решение человека по тикету — терминальное событие, оно попадает в реестр
// наравне с вердиктами движка.
type AuditSink interface {
	Append(e domain.AuditEntry) uint64
}

// Repository — персистентность тикетов. Резолюция в БД обязана быть
// условной (только из PENDING), чтобы Double Decision не прошел даже
// между двумя инстансами движка.
type Repository interface {
	SaveTicket(ctx context.Context, t *domain.ApprovalTicket) error
	ResolveTicket(ctx context.Context, actionID string, status domain.ApprovalStatus, reviewerID string, at time.Time) error
	ListTickets(ctx context.Context) ([]*domain.ApprovalTicket, error)
}

// Breaker — human-in-the-loop предохранитель. Держит high-risk действия
// в PENDING до явного решения человека. Движок решений никого не
// нотифицирует: контракт взаимодействия — поллинг Status, он безопасен
// в любом количестве и без side effects.
type Breaker struct {
	mu      sync.Mutex
	tickets map[string]*domain.ApprovalTicket

	repo   Repository
	rdb    *redis.Client // nil допустим: wake-up сигналы тогда не шлются
	ledger AuditSink     // nil — решения не аудируются
	logger *zap.Logger
	now    func() time.Time

	// autoDenyAfter > 0 включает janitor: зависшие PENDING отклоняются
	// автоматически. По умолчанию 0 — тикет живет до решения человека.
	autoDenyAfter time.Duration
}

func New(repo Repository, rdb *redis.Client, autoDenyAfter time.Duration, logger *zap.Logger) *Breaker {
	return &Breaker{
		tickets:       make(map[string]*domain.ApprovalTicket),
		repo:          repo,
		rdb:           rdb,
		logger:        logger.Named("breaker"),
		now:           time.Now,
		autoDenyAfter: autoDenyAfter,
	}
}

// AttachLedger подключает аудит решений по тикетам.
func (b *Breaker) AttachLedger(l AuditSink) {
	b.ledger = l
}

// WarmUp загружает тикеты из БД при старте.
func (b *Breaker) WarmUp(ctx context.Context) error {
	tickets, err := b.repo.ListTickets(ctx)
	if err != nil {
		return fmt.Errorf("approval warm-up failed: %w", err)
	}

	b.mu.Lock()
	for _, t := range tickets {
		b.tickets[t.ActionID] = t
	}
	b.mu.Unlock()

	b.logger.Info("approval cache warmed", zap.Int("count", len(tickets)))
	return nil
}

// Open создает PENDING тикет для high-risk действия. Само действие не
// исполняется и автоматически не ретраится: вызывающий получает эскалацию
// и поллит Status.
func (b *Breaker) Open(ctx context.Context, agentID, actionType, target string) (*domain.ApprovalTicket, error) {
	t := &domain.ApprovalTicket{
		ActionID:   uuid.New().String(),
		AgentID:    agentID,
		ActionType: actionType,
		Target:     target,
		Status:     domain.StatusPending,
		CreatedAt:  b.now(),
	}

	if err := b.repo.SaveTicket(ctx, t); err != nil {
		return nil, fmt.Errorf("%w: persist approval ticket: %v", domain.ErrStorage, err)
	}

	b.mu.Lock()
	b.tickets[t.ActionID] = t
	b.mu.Unlock()

	b.logger.Info("circuit breaker opened",
		zap.String("action_id", t.ActionID),
		zap.String("agent_id", agentID),
		zap.String("action", actionType),
		zap.String("target", target))

	cp := *t
	return &cp, nil
}

// Resolve фиксирует решение человека. PENDING -> APPROVED | DENIED,
// оба терминальны. Повторная резолюция — Conflict, не тихое принятие.
// Проверка и переход атомарны, I/O под замком нет.
func (b *Breaker) Resolve(ctx context.Context, actionID string, approve bool, reviewerID string) error {
	next := domain.StatusDenied
	if approve {
		next = domain.StatusApproved
	}

	now := b.now()

	b.mu.Lock()
	t, ok := b.tickets[actionID]
	if !ok {
		b.mu.Unlock()
		return domain.ErrNotFound
	}
	if err := t.CanTransitionTo(next); err != nil {
		b.mu.Unlock()
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			return domain.ErrConflict
		}
		return err
	}
	t.Status = next
	t.ReviewerID = &reviewerID
	t.ResolvedAt = &now
	agentID, actionType, target := t.AgentID, t.ActionType, t.Target
	b.mu.Unlock()

	// Условный апдейт в БД: WHERE status='PENDING' отсекает гонку с другим
	// инстансом. RAM уже терминален, рассинхрон только логируем.
	if err := b.repo.ResolveTicket(ctx, actionID, next, reviewerID, now); err != nil {
		b.logger.Error("failed to persist approval decision",
			zap.String("action_id", actionID), zap.Error(err))
	}

	if b.ledger != nil {
		verdict := domain.VerdictDenied
		if next == domain.StatusApproved {
			verdict = domain.VerdictApproved
		}
		b.ledger.Append(domain.AuditEntry{
			AgentID: agentID,
			Action:  fmt.Sprintf("%s -> %s", actionType, target),
			Verdict: verdict,
			Reason:  fmt.Sprintf("approval %s %s by reviewer %s", actionID, next, reviewerID),
		})
	}

	b.publishDecision(ctx, actionID, next)

	b.logger.Info("approval resolved",
		zap.String("action_id", actionID),
		zap.String("status", string(next)),
		zap.String("reviewer", reviewerID))
	return nil
}

// Status — текущее состояние тикета. Читать можно сколько угодно.
func (b *Breaker) Status(actionID string) (domain.ApprovalStatus, error) {
	b.mu.Lock()
	t, ok := b.tickets[actionID]
	b.mu.Unlock()

	if !ok {
		return "", domain.ErrNotFound
	}
	return t.Status, nil
}

// Get возвращает копию тикета (детали для операторской очереди).
func (b *Breaker) Get(actionID string) (*domain.ApprovalTicket, error) {
	b.mu.Lock()
	t, ok := b.tickets[actionID]
	b.mu.Unlock()

	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// List — тикеты с данным статусом ("" — все), новые первыми.
func (b *Breaker) List(status domain.ApprovalStatus) []*domain.ApprovalTicket {
	b.mu.Lock()
	out := make([]*domain.ApprovalTicket, 0, len(b.tickets))
	for _, t := range b.tickets {
		if status != "" && t.Status != status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// PendingCount — для gauge-метрики.
func (b *Breaker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, t := range b.tickets {
		if t.Status == domain.StatusPending {
			n++
		}
	}
	return n
}

// StartJanitor авто-отклоняет PENDING тикеты старше autoDenyAfter.
// Не запускается, если опция выключена.
func (b *Breaker) StartJanitor(ctx context.Context) {
	if b.autoDenyAfter <= 0 {
		return
	}

	interval := b.autoDenyAfter / 4
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweepStale(ctx)
		}
	}
}

func (b *Breaker) sweepStale(ctx context.Context) {
	cutoff := b.now().Add(-b.autoDenyAfter)

	b.mu.Lock()
	var stale []string
	for id, t := range b.tickets {
		if t.Status == domain.StatusPending && t.CreatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	b.mu.Unlock()

	for _, id := range stale {
		if err := b.Resolve(ctx, id, false, AutoDenyReviewer); err != nil && !errors.Is(err, domain.ErrConflict) {
			b.logger.Error("auto-deny failed", zap.String("action_id", id), zap.Error(err))
		}
	}
}

// publishDecision будит ожидающих решение по тикету. Внешний контракт
// остается поллингом; сигнал — внутренняя оптимизация против busy-polling.
func (b *Breaker) publishDecision(ctx context.Context, actionID string, status domain.ApprovalStatus) {
	if b.rdb == nil {
		return
	}
	chanName := infra.ApprovalTicketChannel(actionID)
	if err := b.rdb.Publish(ctx, chanName, string(status)).Err(); err != nil {
		b.logger.Warn("decision signal delivery failed",
			zap.String("action_id", actionID), zap.Error(err))
	}
}
