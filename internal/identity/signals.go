package identity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Atharva-Mendhulkar/AVARA/internal/infra"
)

// StartRevocationListener — «живучая» подписка на сигналы отзыва из Redis.
// Переподключается при обрыве, при каждом реконнекте синхронизирует RAM
// с revoked-set (сигналы, пропущенные в оффлайне, не теряются).
func (s *Store) StartRevocationListener(ctx context.Context) {
	if s.rdb == nil {
		return
	}

	for {
		pubsub := s.rdb.Subscribe(ctx, infra.RedisChanRevocation)

		if _, err := pubsub.Receive(ctx); err != nil {
			s.logger.Error("failed to subscribe", zap.String("chan", infra.RedisChanRevocation), zap.Error(err))
			pubsub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		// Синхронизация при каждом успешном коннекте
		if ids, err := s.rdb.SMembers(ctx, infra.RedisKeyRevokedAgents).Result(); err != nil {
			s.logger.Error("revocation sync failed on reconnect", zap.Error(err))
		} else {
			for _, id := range ids {
				s.applyRemoteRevocation(id)
			}
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // канал закрыт, идем на переподключение
				}
				s.applyRemoteRevocation(msg.Payload)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}
