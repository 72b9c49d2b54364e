package intent

import (
	"strings"
	"testing"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

func TestValidateConsistentIntent(t *testing.T) {
	v := NewValidator(NewRiskTable(nil))

	tests := []struct {
		name   string
		intent string
		action string
		want   domain.RiskLevel
	}{
		{"read is always low", "Do anything at all", "read_file", domain.RiskLow},
		{"mutation declared", "Update the customer record", "update_record", domain.RiskMedium},
		{"destructive declared", "Delete stale rows from the staging table", "delete_rows", domain.RiskHigh},
		{"exfiltration declared", "Email the weekly report to the team", "email_report", domain.RiskHigh},
		{"synonym via prefix", "We are emailing the summary out", "send_summary", domain.RiskHigh},
		{"unknown verb defaults low", "Run the routine", "frobnicate_widget", domain.RiskLow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := v.Validate(tc.intent, tc.action, "res-1", domain.RiskLow)
			if res.Drift {
				t.Fatalf("unexpected drift: %s", res.Reason)
			}
			if res.Effective != tc.want {
				t.Fatalf("effective = %s, want %s", res.Effective, tc.want)
			}
		})
	}
}

func TestValidateDrift(t *testing.T) {
	v := NewValidator(NewRiskTable(nil))

	// Классика: намерение про чтение, действие — drop.
	res := v.Validate("Summarize customer feedback", "drop_table", "db.users", domain.RiskLow)
	if !res.Drift {
		t.Fatal("expected drift for destructive action under read-only intent")
	}
	if res.Effective != domain.RiskHigh {
		t.Fatalf("destructive mismatch must be HIGH, got %s", res.Effective)
	}
	if !strings.Contains(res.Reason, "semantic drift") {
		t.Fatalf("reason should name the drift: %q", res.Reason)
	}

	// Mutation вне намерения эскалируется, но не до HIGH.
	res = v.Validate("Summarize customer feedback", "update_record", "crm", domain.RiskLow)
	if !res.Drift {
		t.Fatal("expected drift for mutation under read-only intent")
	}
	if res.Effective != domain.RiskHigh {
		t.Fatalf("escalated mutation = %s, want HIGH", res.Effective)
	}
}

func TestDeclaredRiskNeverLowers(t *testing.T) {
	v := NewValidator(NewRiskTable(nil))

	// Агент заявил LOW — эффективный риск от этого не меняется.
	low := v.Validate("Summarize feedback", "drop_table", "db", domain.RiskLow)
	high := v.Validate("Summarize feedback", "drop_table", "db", domain.RiskHigh)
	if low.Effective != high.Effective {
		t.Fatalf("declared risk leaked into formula: %s vs %s", low.Effective, high.Effective)
	}
}

func TestValidateDeterministic(t *testing.T) {
	v := NewValidator(NewRiskTable(nil))

	first := v.Validate("Summarize feedback", "transmit_external", "api.example.com", domain.RiskLow)
	for i := 0; i < 10; i++ {
		again := v.Validate("Summarize feedback", "transmit_external", "api.example.com", domain.RiskLow)
		if again != first {
			t.Fatalf("non-deterministic result on iteration %d", i)
		}
	}
}

func TestRiskTableOverrides(t *testing.T) {
	table := NewRiskTable(map[string]string{
		"deploy_service": "high",
		"bogus_action":   "EXTREME", // неизвестный тир игнорируется
	})

	tier, fam := table.Classify("deploy_service")
	if tier != domain.RiskHigh || fam != nil {
		t.Fatalf("override: tier=%s fam=%v", tier, fam)
	}

	tier, _ = table.Classify("bogus_action")
	if tier != domain.RiskLow {
		t.Fatalf("invalid override tier must fall through to default, got %s", tier)
	}
}

func TestClassifyVerbSegment(t *testing.T) {
	table := NewRiskTable(nil)

	// Только первый сегмент до "_" — глагол.
	tier, fam := table.Classify("drop_table")
	if tier != domain.RiskHigh || fam == nil || fam.Name != "destructive" {
		t.Fatalf("drop_table: tier=%s", tier)
	}

	// "table_drop" глаголом "table" ни в одно семейство не попадает.
	tier, fam = table.Classify("table_drop")
	if tier != domain.RiskLow || fam != nil {
		t.Fatalf("table_drop should be unclassified, got %s", tier)
	}
}
