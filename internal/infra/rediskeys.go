package infra

import "fmt"

const (
	// RedisNamespace — базовый префикс для изоляции данных проекта в Redis.
	RedisNamespace = "avara"
)

// Ключи для Sets (состояние).
const (
	RedisKeyRevokedAgents = RedisNamespace + ":agents:revoked_set"
)

// Каналы Pub/Sub (события).
const (
	// RedisChanRevocation транслирует отзыв identity между инстансами движка
	// (и от Console/оператора к hot path).
	RedisChanRevocation = RedisNamespace + ":agents:revocation-signal"

	// RedisChanApprovalDecisions — базовый канал для пробуждения ожидающих
	// решения по тикету. Полное имя: avara:approvals:ticket:{action_id}.
	RedisChanApprovalDecisions = RedisNamespace + ":approvals"
)

// ApprovalTicketChannel возвращает канал решения по конкретному тикету.
func ApprovalTicketChannel(actionID string) string {
	return fmt.Sprintf("%s:ticket:%s", RedisChanApprovalDecisions, actionID)
}
