package domain

// RiskLevel — тир риска действия.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Rank для сравнения тиров. Неизвестная строка трактуется как MEDIUM:
// агент мог прислать мусор, занижать из-за этого нельзя.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskHigh:
		return 2
	default:
		return 1
	}
}

// MaxRisk возвращает более строгий из двух тиров.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ActionRequest — запрос на валидацию действия. Эфемерный, как сущность
// не персистится; в ledger попадает только его сводка.
type ActionRequest struct {
	AgentID        string                 `json:"agent_id"`
	TaskIntent     string                 `json:"task_intent"`
	ProposedAction string                 `json:"proposed_action"`
	TargetResource string                 `json:"target_resource"`
	ActionArgs     map[string]interface{} `json:"action_args"`

	// DeclaredRisk — самодекларация агента. Пишется в аудит,
	// на итоговое решение не влияет и эффективный риск не занижает.
	DeclaredRisk RiskLevel `json:"risk_level"`
}

// Verdict — терминальный исход валидации.
type Verdict string

const (
	VerdictAllow           Verdict = "ALLOW"
	VerdictDeny            Verdict = "DENY"
	VerdictPendingApproval Verdict = "PENDING_APPROVAL"
	VerdictApproved        Verdict = "APPROVED"
	VerdictDenied          Verdict = "DENIED"
	VerdictRevoked         Verdict = "REVOKED"
)

// Decision — результат работы оркестратора по одному запросу.
type Decision struct {
	Verdict  Verdict `json:"status"`
	Reason   string  `json:"reason"`
	AuditSeq uint64  `json:"audit_seq"`

	// ActionID заполняется только для PENDING_APPROVAL.
	ActionID string `json:"action_id,omitempty"`
}
