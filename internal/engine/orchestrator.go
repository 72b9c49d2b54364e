package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Atharva-Mendhulkar/AVARA/internal/anomaly"
	"github.com/Atharva-Mendhulkar/AVARA/internal/audit"
	"github.com/Atharva-Mendhulkar/AVARA/internal/breaker"
	"github.com/Atharva-Mendhulkar/AVARA/internal/contextgov"
	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
	"github.com/Atharva-Mendhulkar/AVARA/internal/identity"
	"github.com/Atharva-Mendhulkar/AVARA/internal/intent"
	"github.com/Atharva-Mendhulkar/AVARA/internal/provenance"
)

// ScopePrefix — scope, требуемый для исполнения действия:
// execute:<proposed_action>.
const ScopePrefix = "execute:"

// Orchestrator — входная точка движка. Прогоняет запрос через все стражи
// по порядку: identity -> anomaly -> intent -> scopes -> provenance ->
// risk merge -> HITL. Каждый терминальный исход пишет ровно одну запись
// в Audit Ledger до возврата: безаудитных вердиктов не существует.
type Orchestrator struct {
	identities *identity.Store
	detector   *anomaly.Detector
	validator  *intent.Validator
	firewall   *provenance.Firewall
	governor   *contextgov.Governor
	breaker    *breaker.Breaker
	ledger     *audit.Ledger
	metrics    *Metrics
	logger     *zap.Logger
}

func NewOrchestrator(
	ids *identity.Store,
	det *anomaly.Detector,
	val *intent.Validator,
	fw *provenance.Firewall,
	gov *contextgov.Governor,
	brk *breaker.Breaker,
	ledger *audit.Ledger,
	metrics *Metrics,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		identities: ids,
		detector:   det,
		validator:  val,
		firewall:   fw,
		governor:   gov,
		breaker:    brk,
		ledger:     ledger,
		metrics:    metrics,
		logger:     logger.Named("orchestrator"),
	}
}

// ValidateAction выносит вердикт по одному предложенному действию.
// Ошибка возвращается только для storage-класса (fail-closed, вердикта нет);
// все deny-исходы — это валидные Decision, и все они аудируются.
func (o *Orchestrator) ValidateAction(ctx context.Context, req domain.ActionRequest) (*domain.Decision, error) {
	start := time.Now()
	actionSummary := fmt.Sprintf("%s -> %s", req.ProposedAction, req.TargetResource)

	var verdict domain.Verdict
	defer func() {
		o.metrics.RequestDuration.WithLabelValues(string(verdict)).Observe(time.Since(start).Seconds())
		o.metrics.PendingApprovals.Set(float64(o.breaker.PendingCount()))
	}()

	// Fail-closed: без живого реестра вердикты не выносятся вообще.
	if !o.ledger.Healthy() {
		o.metrics.LedgerDegraded.Set(1)
		verdict = domain.VerdictDeny
		return nil, fmt.Errorf("%w: audit ledger degraded, refusing to render verdict", domain.ErrStorage)
	}
	o.metrics.LedgerDegraded.Set(0)

	entry := domain.AuditEntry{
		TraceID: extractTraceID(ctx),
		AgentID: req.AgentID,
		Action:  actionSummary,
	}

	// 1. Identity: отозванная или истекшая — немедленный отказ.
	agent, err := o.identities.Lookup(req.AgentID)
	if err != nil {
		verdict = domain.VerdictDeny
		return o.finish(entry, domain.VerdictDeny, "identity_unknown",
			fmt.Sprintf("unknown identity %s", req.AgentID)), nil
	}
	if agent.Revoked {
		verdict = domain.VerdictRevoked
		return o.finish(entry, domain.VerdictRevoked, "identity_revoked",
			"identity revoked, all actions denied"), nil
	}
	if !agent.ActiveAt(time.Now()) {
		verdict = domain.VerdictDeny
		return o.finish(entry, domain.VerdictDeny, "identity_expired",
			fmt.Sprintf("identity expired: ttl %ds elapsed", agent.TTLSeconds)), nil
	}

	// 2. Anomaly Detector: burst пробил порог — identity уже отозвана им.
	anomalyRes := o.detector.Record(ctx, req.AgentID, req.ProposedAction)
	if anomalyRes.Breached {
		o.metrics.AnomalyRevocations.Inc()
		verdict = domain.VerdictRevoked
		return o.finish(entry, domain.VerdictRevoked, "anomaly", anomalyRes.Reason), nil
	}

	// 3. Intent Validator: drift — отказ, заявленный риск не спасает.
	intentRes := o.validator.Validate(req.TaskIntent, req.ProposedAction, req.TargetResource, req.DeclaredRisk)
	if intentRes.Drift {
		verdict = domain.VerdictDeny
		return o.finish(entry, domain.VerdictDeny, "drift", intentRes.Reason), nil
	}
	effective := intentRes.Effective

	// 4. Scopes: действие вне выданных scope не запрещаем молча, а
	// эскалируем до HIGH — решит человек.
	scopeNote := ""
	if !agent.HasScope(ScopePrefix + req.ProposedAction) {
		effective = domain.RiskHigh
		scopeNote = fmt.Sprintf("; scope %s%s not granted, escalated to HIGH", ScopePrefix, req.ProposedAction)
	}

	// 5. Provenance Firewall: внешний контент без тега — отказ.
	provRes := o.firewall.Inspect(req.ActionArgs)
	if provRes.Evaluated && !provRes.Tagged {
		verdict = domain.VerdictDeny
		return o.finish(entry, domain.VerdictDeny, "provenance", provRes.Reason), nil
	}

	// 6. Risk merge: HIGH уходит за человеческим решением.
	if effective == domain.RiskHigh {
		ticket, err := o.breaker.Open(ctx, req.AgentID, req.ProposedAction, req.TargetResource)
		if err != nil {
			verdict = domain.VerdictDeny
			return nil, err // storage failure, fail-closed
		}

		reason := fmt.Sprintf("effective risk HIGH (declared %s)%s: halted for human approval",
			req.DeclaredRisk, scopeNote)
		verdict = domain.VerdictPendingApproval
		d := o.finish(entry, domain.VerdictPendingApproval, "hitl", reason)
		d.ActionID = ticket.ActionID
		return d, nil
	}

	verdict = domain.VerdictAllow
	reason := fmt.Sprintf("%s (effective risk %s, declared %s)%s",
		intentRes.Reason, effective, req.DeclaredRisk, scopeNote)
	return o.finish(entry, domain.VerdictAllow, "allow", reason), nil
}

// PrepareContext собирает контекстный блок под токен-бюджет. Исходы тоже
// аудируются: SATURATED — это такой же управляющий отказ, как и deny.
func (o *Orchestrator) PrepareContext(ctx context.Context, agentID, rawContext string, availableTokens int) (string, int, error) {
	entry := domain.AuditEntry{
		TraceID: extractTraceID(ctx),
		AgentID: agentID,
		Action:  fmt.Sprintf("prepare_context (budget %d)", availableTokens),
	}

	if !o.ledger.Healthy() {
		return "", 0, fmt.Errorf("%w: audit ledger degraded", domain.ErrStorage)
	}

	agent, err := o.identities.Lookup(agentID)
	if err != nil {
		o.finish(entry, domain.VerdictDeny, "identity_unknown", "context denied: unknown identity")
		return "", 0, domain.ErrNotFound
	}
	if agent.Revoked {
		o.finish(entry, domain.VerdictDeny, "identity_revoked", "context denied: identity revoked")
		return "", 0, domain.ErrRevoked
	}
	if !agent.ActiveAt(time.Now()) {
		o.finish(entry, domain.VerdictDeny, "identity_expired", "context denied: identity ttl elapsed")
		return "", 0, domain.ErrExpired
	}

	block, used, err := o.governor.Prepare(rawContext, availableTokens)
	if err != nil {
		o.finish(entry, domain.VerdictDeny, "saturated", err.Error())
		return "", 0, err
	}

	o.finish(entry, domain.VerdictAllow, "context", fmt.Sprintf("context prepared, %d tokens consumed", used))
	return block, used, nil
}

// finish дописывает запись в реестр и собирает Decision. Единственная
// точка выхода вердиктов — так гарантируется «ровно одна audit-запись
// на терминальный исход».
func (o *Orchestrator) finish(entry domain.AuditEntry, verdict domain.Verdict, class, reason string) *domain.Decision {
	entry.Verdict = verdict
	entry.Reason = reason
	seq := o.ledger.Append(entry)

	o.metrics.VerdictTotal.WithLabelValues(string(verdict), class).Inc()

	o.logger.Debug("verdict rendered",
		zap.String("agent_id", entry.AgentID),
		zap.String("verdict", string(verdict)),
		zap.Uint64("audit_seq", seq),
		zap.String("reason", reason))

	return &domain.Decision{
		Verdict:  verdict,
		Reason:   reason,
		AuditSeq: seq,
	}
}
