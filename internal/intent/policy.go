package intent

import (
	"strings"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

// Family — семейство глаголов с общим интринсик-риском. Таблица заменяет
// ad hoc проверки на вхождение подстрок: матчинг только по точному токену
// или по токен-префиксу, поведение enumerable и воспроизводимо в тестах.
type Family struct {
	Name string
	Tier domain.RiskLevel

	// Verbs — первые сегменты имени действия ("drop" в "drop_table").
	Verbs []string

	// Synonyms — слова, которыми это семейство легитимно декларируется
	// в task_intent ("Email the report" декларирует exfiltration).
	Synonyms []string
}

// RiskTable — политика классификации, загружается один раз при старте.
type RiskTable struct {
	exact    map[string]domain.RiskLevel // переопределения: полное имя действия
	families []Family
}

// DefaultFamilies — встроенная политика. Порядок важен: первое совпадение
// побеждает, более строгие семейства идут раньше.
func DefaultFamilies() []Family {
	return []Family{
		{
			Name:     "destructive",
			Tier:     domain.RiskHigh,
			Verbs:    []string{"drop", "delete", "remove", "destroy", "truncate", "purge", "wipe", "kill", "terminate"},
			Synonyms: []string{"drop", "delete", "remove", "destroy", "truncate", "purge", "wipe", "erase", "clean", "kill", "terminate"},
		},
		{
			Name:     "exfiltration",
			Tier:     domain.RiskHigh,
			Verbs:    []string{"transmit", "send", "upload", "email", "exfiltrate", "publish", "export", "post"},
			Synonyms: []string{"transmit", "send", "upload", "email", "mail", "export", "publish", "share", "post"},
		},
		{
			Name:     "mutation",
			Tier:     domain.RiskMedium,
			Verbs:    []string{"write", "update", "create", "insert", "modify", "append", "set", "rename"},
			Synonyms: []string{"write", "update", "create", "insert", "modify", "append", "set", "edit", "change", "add", "save", "rename"},
		},
		{
			Name:     "read",
			Tier:     domain.RiskLow,
			Verbs:    []string{"read", "get", "list", "query", "fetch", "view", "search", "scan"},
			Synonyms: []string{"read", "get", "list", "query", "fetch", "view", "search", "scan", "look", "check", "inspect", "summarize"},
		},
	}
}

// NewRiskTable собирает таблицу. overrides — точечные переопределения из
// конфига ("deploy_service": "HIGH"); неизвестный тир игнорируется.
func NewRiskTable(overrides map[string]string) *RiskTable {
	exact := make(map[string]domain.RiskLevel, len(overrides))
	for action, tier := range overrides {
		switch domain.RiskLevel(strings.ToUpper(tier)) {
		case domain.RiskLow:
			exact[action] = domain.RiskLow
		case domain.RiskMedium:
			exact[action] = domain.RiskMedium
		case domain.RiskHigh:
			exact[action] = domain.RiskHigh
		}
	}
	return &RiskTable{
		exact:    exact,
		families: DefaultFamilies(),
	}
}

// Classify возвращает интринсик-тир действия и его семейство (nil, если
// действие вне таблицы — тогда тир LOW: решат последующие стражи).
func (t *RiskTable) Classify(action string) (domain.RiskLevel, *Family) {
	if tier, ok := t.exact[action]; ok {
		return tier, nil
	}

	verb := action
	if i := strings.IndexByte(action, '_'); i > 0 {
		verb = action[:i]
	}
	verb = strings.ToLower(verb)

	for i := range t.families {
		f := &t.families[i]
		for _, v := range f.Verbs {
			if verb == v {
				return f.Tier, f
			}
		}
	}
	return domain.RiskLow, nil
}
