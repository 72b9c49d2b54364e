package domain

import (
	"errors"
	"time"
)

// Статусы State Machine тикета: PENDING -> APPROVED | DENIED, оба терминальны.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "PENDING"
	StatusApproved ApprovalStatus = "APPROVED"
	StatusDenied   ApprovalStatus = "DENIED"
)

var (
	ErrInvalidTransition = errors.New("invalid approval status transition")
	ErrAlreadyProcessed  = errors.New("approval ticket already processed")
)

// ApprovalTicket — зависшее high-risk действие, ждущее решения человека.
// Одобрение НЕ исполняет действие задним числом: ответственность движка
// заканчивается на «действию можно идти», исполнение — забота вызывающего.
type ApprovalTicket struct {
	ActionID   string         `json:"action_id"`
	AgentID    string         `json:"agent_id"`
	ActionType string         `json:"action_type"`
	Target     string         `json:"target"`
	Status     ApprovalStatus `json:"status"`

	// ReviewerID — кто принял решение (подотчетность).
	ReviewerID *string `json:"reviewer_id,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// CanTransitionTo проверяет правила конечного автомата. Повторное решение
// по терминальному тикету — Conflict, статус при этом не меняется.
func (t *ApprovalTicket) CanTransitionTo(next ApprovalStatus) error {
	if t.Status != StatusPending {
		return ErrAlreadyProcessed
	}
	if next != StatusApproved && next != StatusDenied {
		return ErrInvalidTransition
	}
	return nil
}
