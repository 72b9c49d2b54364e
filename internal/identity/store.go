package identity

import (
	"context"
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

// Repository описывает требования к персистентному хранилищу identity.
// Движок работает с RAM-копией (Hot Path), БД — источник правды при рестарте.
type Repository interface {
	SaveIdentity(ctx context.Context, a *domain.AgentIdentity) error
	MarkRevoked(ctx context.Context, id string, at time.Time) error
	ListIdentities(ctx context.Context) ([]*domain.AgentIdentity, error)
}

// AuditSink принимает lifecycle-события identity (реализуется audit.Ledger).
// Provision и отзыв — такие же подотчетные события, как и вердикты.
type AuditSink interface {
	Append(e domain.AuditEntry) uint64
}

// Store владеет жизненным циклом identity агентов. Все остальные компоненты
// ходят только через его API, во внутреннее состояние никто не лезет.
type Store struct {
	mu     sync.RWMutex
	agents map[string]*domain.AgentIdentity

	repo   Repository
	rdb    *redis.Client // nil — одиночный инстанс без сигналинга
	ledger AuditSink     // nil — lifecycle-события не аудируются
	logger *zap.Logger

	// Хуки отзыва: Anomaly Detector сбрасывает окно отозванного агента.
	revokeHooks []func(agentID string)

	now func() time.Time
}

func NewStore(repo Repository, rdb *redis.Client, logger *zap.Logger) *Store {
	return &Store{
		agents: make(map[string]*domain.AgentIdentity),
		repo:   repo,
		rdb:    rdb,
		logger: logger.Named("identity-store"),
		now:    time.Now,
	}
}

// AttachLedger подключает аудит lifecycle-событий (provision, revoke).
func (s *Store) AttachLedger(l AuditSink) {
	s.ledger = l
}

// OnRevoke регистрирует callback, вызываемый при отзыве identity
// (локальном или пришедшем по сигналу от другого инстанса).
func (s *Store) OnRevoke(hook func(agentID string)) {
	s.revokeHooks = append(s.revokeHooks, hook)
}

// WarmUp загружает identity из БД в RAM при старте сервиса.
func (s *Store) WarmUp(ctx context.Context) error {
	agents, err := s.repo.ListIdentities(ctx)
	if err != nil {
		return fmt.Errorf("identity warm-up failed: %w", err)
	}

	s.mu.Lock()
	for _, a := range agents {
		s.agents[a.ID] = a
	}
	s.mu.Unlock()

	s.logger.Info("identity cache warmed", zap.Int("count", len(agents)))
	return nil
}

// Provision выдает новую эфемерную identity. Идентификатор — свежий UUID,
// повторно никогда не используется. Дефолт TTL применяет вызывающая сторона
// (HTTP-хендлер из конфига), не store.
func (s *Store) Provision(ctx context.Context, role, description string, scopes []string, ttlSeconds int64) (*domain.AgentIdentity, error) {
	if len(scopes) == 0 {
		return nil, fmt.Errorf("identity: scopes must be a non-empty set")
	}
	if ttlSeconds <= 0 {
		return nil, fmt.Errorf("identity: ttl_seconds must be positive, got %d", ttlSeconds)
	}

	a := &domain.AgentIdentity{
		ID:          uuid.New().String(),
		RoleName:    role,
		Description: description,
		Scopes:      append([]string(nil), scopes...),
		TTLSeconds:  ttlSeconds,
		CreatedAt:   s.now(),
	}

	if err := s.repo.SaveIdentity(ctx, a); err != nil {
		return nil, fmt.Errorf("%w: persist identity: %v", domain.ErrStorage, err)
	}

	s.mu.Lock()
	s.agents[a.ID] = a
	s.mu.Unlock()

	if s.ledger != nil {
		s.ledger.Append(domain.AuditEntry{
			AgentID: a.ID,
			Action:  "identity.provision",
			Verdict: domain.VerdictAllow,
			Reason:  fmt.Sprintf("identity provisioned: role %s, ttl %ds", role, ttlSeconds),
		})
	}

	s.logger.Info("identity provisioned",
		zap.String("agent_id", a.ID),
		zap.String("role", role),
		zap.Int64("ttl", ttlSeconds))

	cp := *a
	return &cp, nil
}

// Lookup возвращает identity по ID. Истечение TTL вычисляется здесь же,
// при чтении — фонового реапера нет, гонок с таймером тоже.
func (s *Store) Lookup(id string) (*domain.AgentIdentity, error) {
	s.mu.RLock()
	a, ok := s.agents[id]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// Revoke отзывает identity. Идемпотентность: повторный отзыв и неизвестный
// ID — not-found, не фатальная ошибка. Физического удаления нет.
func (s *Store) Revoke(ctx context.Context, id string) error {
	now := s.now()

	s.mu.Lock()
	a, ok := s.agents[id]
	if !ok || a.Revoked {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	a.Revoked = true
	a.RevokedAt = &now
	s.mu.Unlock()

	if err := s.repo.MarkRevoked(ctx, id, now); err != nil {
		// RAM уже обновлен, доступ закрыт. Рассинхрон с БД логируем,
		// но отзыв не откатываем: безопасность важнее консистентности записи.
		s.logger.Error("failed to persist revocation", zap.String("agent_id", id), zap.Error(err))
	}

	s.publishRevocation(ctx, id)
	s.fireRevokeHooks(id)

	if s.ledger != nil {
		s.ledger.Append(domain.AuditEntry{
			AgentID: id,
			Action:  "identity.revoke",
			Verdict: domain.VerdictRevoked,
			Reason:  "identity revoked, all grants withdrawn",
		})
	}

	s.logger.Warn("identity revoked", zap.String("agent_id", id))
	return nil
}

// List возвращает все identity в порядке создания (для операторов).
func (s *Store) List() []*domain.AgentIdentity {
	s.mu.RLock()
	out := make([]*domain.AgentIdentity, 0, len(s.agents))
	for _, a := range s.agents {
		cp := *a
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// applyRemoteRevocation помечает identity отозванной по сигналу из Redis,
// без повторной публикации (иначе шторм сигналов между инстансами).
func (s *Store) applyRemoteRevocation(id string) {
	now := s.now()

	s.mu.Lock()
	a, ok := s.agents[id]
	if !ok || a.Revoked {
		s.mu.Unlock()
		return
	}
	a.Revoked = true
	a.RevokedAt = &now
	s.mu.Unlock()

	s.fireRevokeHooks(id)
	s.logger.Warn("identity revoked by remote signal", zap.String("agent_id", id))
}

func (s *Store) publishRevocation(ctx context.Context, id string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.SAdd(ctx, infra.RedisKeyRevokedAgents, id).Err(); err != nil {
		s.logger.Warn("failed to persist revocation set", zap.Error(err))
	}
	if err := s.rdb.Publish(ctx, infra.RedisChanRevocation, id).Err(); err != nil {
		s.logger.Warn("revocation signal delivery failed", zap.Error(err))
	}
}

func (s *Store) fireRevokeHooks(id string) {
	for _, hook := range s.revokeHooks {
		hook(id)
	}
}
