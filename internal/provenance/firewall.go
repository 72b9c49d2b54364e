package provenance

import "fmt"

// Поля контракта provenance в action_args. Часть публичного API движка:
// внешний контент обязан приходить с тегом источника.
const (
	ContentField    = "content"
	ProvenanceField = "provenance"
	SourceIDField   = "source_id"
	SignatureField  = "signature"
)

// Result — вердикт файрвола по одному набору аргументов.
type Result struct {
	Evaluated bool // был ли в аргументах внешний контент
	Tagged    bool
	Reason    string
}

// Firewall валидирует provenance-теги извлеченного извне контента.
// Чисто декларативная проверка, никаких сетевых вызовов: криптографическая
// верификация подписи источника — забота поставщика контента, движок
// требует лишь наличия и формы тега.
type Firewall struct{}

func NewFirewall() *Firewall {
	return &Firewall{}
}

// Inspect проверяет action_args. Контент без поля content не оценивается
// (pass-through). Контент с content, но без валидного provenance-тега —
// отказ "untagged provenance", каким бы ни был декларированный риск.
func (f *Firewall) Inspect(args map[string]interface{}) Result {
	raw, ok := args[ContentField]
	if !ok {
		return Result{Reason: "no external content, provenance not evaluated"}
	}
	content, isString := raw.(string)
	if isString && content == "" {
		return Result{Reason: "empty content, provenance not evaluated"}
	}

	tag, ok := args[ProvenanceField].(map[string]interface{})
	if !ok {
		return Result{
			Evaluated: true,
			Reason:    "untagged provenance: external content carries no provenance tag",
		}
	}

	sourceID, _ := tag[SourceIDField].(string)
	signature, _ := tag[SignatureField].(string)
	if sourceID == "" || signature == "" {
		return Result{
			Evaluated: true,
			Reason:    fmt.Sprintf("untagged provenance: tag malformed, %s and %s are required", SourceIDField, SignatureField),
		}
	}

	return Result{
		Evaluated: true,
		Tagged:    true,
		Reason:    fmt.Sprintf("provenance verified, source %s", sourceID),
	}
}
