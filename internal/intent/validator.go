package intent

import (
	"fmt"
	"strings"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

// Result — выход валидатора намерений.
type Result struct {
	Effective domain.RiskLevel
	Drift     bool
	Reason    string
}

// Validator детектирует semantic drift: действие, не согласующееся с
// декларированным намерением, независимо от того, какой риск заявил агент.
// Чистая функция от (intent, action, таблица рисков): ни I/O, ни состояния,
// результат детерминирован для воспроизводимого тестирования.
type Validator struct {
	table *RiskTable
}

func NewValidator(table *RiskTable) *Validator {
	return &Validator{table: table}
}

// Validate вычисляет эффективный риск как максимум интринсик-тира действия
// и drift-штрафа. Контракт drift-детекции (часть публичного API):
// действие MEDIUM/HIGH-семейства считается дрейфом, если task_intent не
// содержит ни одного синонима этого семейства (по токен-префиксу).
// Для destructive-несовпадений эффективный риск — минимум HIGH.
// Декларированный агентом уровень записывается в аудит, но эффективный
// риск никогда не занижает и в формуле не участвует.
func (v *Validator) Validate(taskIntent, proposedAction, targetResource string, declared domain.RiskLevel) Result {
	tier, fam := v.table.Classify(proposedAction)

	if fam == nil || tier == domain.RiskLow {
		return Result{
			Effective: tier,
			Reason:    fmt.Sprintf("action %q within declared intent (declared risk %s recorded)", proposedAction, declared),
		}
	}

	if intentMentions(taskIntent, fam.Synonyms) {
		return Result{
			Effective: tier,
			Reason:    fmt.Sprintf("action %q consistent with declared intent, intrinsic tier %s", proposedAction, tier),
		}
	}

	// Дрейф: намерение не декларирует глагольное семейство действия.
	// Эскалация минимум на тир вверх; destructive/exfiltration-несовпадение
	// не может опуститься ниже интринсик-тира семейства (HIGH).
	effective := domain.MaxRisk(escalate(tier), fam.Tier)
	return Result{
		Effective: effective,
		Drift:     true,
		Reason: fmt.Sprintf("semantic drift: %s action %q on %q contradicts declared intent %q",
			fam.Name, proposedAction, targetResource, taskIntent),
	}
}

// escalate поднимает тир минимум на один уровень.
func escalate(t domain.RiskLevel) domain.RiskLevel {
	switch t {
	case domain.RiskLow:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

// intentMentions — содержит ли намерение хоть один синоним семейства.
// Матчинг по токен-префиксу: "emailing" декларирует "email".
func intentMentions(intent string, synonyms []string) bool {
	for _, token := range tokenize(intent) {
		for _, syn := range synonyms {
			if strings.HasPrefix(token, syn) {
				return true
			}
		}
	}
	return false
}

// tokenize режет текст на слова в нижнем регистре, буквы и цифры.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		return !isAlnum
	})
}
