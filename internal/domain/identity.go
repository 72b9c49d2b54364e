package domain

import "time"

// AgentIdentity — эфемерная личность агента. Физически не удаляется никогда
// (нужна для audit trail), только помечается отозванной.
type AgentIdentity struct {
	ID          string    `json:"agent_id"` // UUID, повторно не выдается
	RoleName    string    `json:"role_name"`
	Description string    `json:"description"`
	Scopes      []string  `json:"scopes"` // "*" — wildcard, покрывает всё
	TTLSeconds  int64     `json:"ttl_seconds"`
	CreatedAt   time.Time `json:"created_at"`

	Revoked   bool       `json:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// ExpiredAt момент истечения TTL.
func (a *AgentIdentity) ExpiredAt() time.Time {
	return a.CreatedAt.Add(time.Duration(a.TTLSeconds) * time.Second)
}

// ActiveAt вычисляет статус на момент now. Истечение TTL считается при чтении,
// а не фоновым таймером — иначе гонка между таймером и конкурентным Lookup.
func (a *AgentIdentity) ActiveAt(now time.Time) bool {
	return !a.Revoked && now.Before(a.ExpiredAt())
}

// HasScope проверяет, покрывает ли выданный набор scope запрошенный.
func (a *AgentIdentity) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == "*" || s == scope {
			return true
		}
	}
	return false
}
