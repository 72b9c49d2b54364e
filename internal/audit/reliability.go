package audit

import (
	"context"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

// ReliableStorage оборачивает физическое хранилище реестра в Retries и
// Circuit Breaker. Пока CB открыт, Healthy() == false и движок fail-closed:
// вердикт без audit-записи не выдается.
type ReliableStorage struct {
	next StorageInterface
	cb   *gobreaker.CircuitBreaker
}

func NewReliableStorage(next StorageInterface, cbTimeout time.Duration, cbFailures uint32) *ReliableStorage {
	if cbTimeout <= 0 {
		cbTimeout = 30 * time.Second
	}
	if cbFailures == 0 {
		cbFailures = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "avara-audit-storage",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     cbTimeout, // через сколько CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > cbFailures
		},
	})

	return &ReliableStorage{next: next, cb: cb}
}

func (s *ReliableStorage) WriteBatch(ctx context.Context, entries []domain.AuditEntry) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return s.next.WriteBatch(tCtx, entries)
		})

		return nil, retryErr
	})
	return err
}

// Healthy — false, когда предохранитель выбило.
func (s *ReliableStorage) Healthy() bool {
	return s.cb.State() != gobreaker.StateOpen
}
