package compliance

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type mockInteractionSource struct {
	rules []*Interaction
	err   error
	calls int
}

func (m *mockInteractionSource) FindForMedication(ctx context.Context, name string) ([]*Interaction, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.rules, nil
}

func intPtr(v int) *int           { return &v }
func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func fullProfile() *SafetyProfile {
	return &SafetyProfile{
		Allergies:          []string{"Penicillin"},
		CurrentMedications: []string{"Lisinopril"},
		MedicalHistory:     []string{"hypertension"},
		Age:                intPtr(42),
	}
}

func hasFlag(eval Evaluation, flagType string) bool {
	for _, f := range eval.Flags {
		if f.Type == flagType {
			return true
		}
	}
	return false
}

func TestEvaluate_CleanProfileProceeds(t *testing.T) {
	e := NewEvaluator(&mockInteractionSource{})
	eval := e.Evaluate(context.Background(), fullProfile(), Medication{Name: "Sildenafil"})
	if eval.RecommendationAction != ActionProceed {
		t.Fatalf("expected PROCEED, got %s (flags: %+v)", eval.RecommendationAction, eval.Flags)
	}
	if eval.HasAbsoluteContraindications {
		t.Error("expected no absolute contraindications")
	}
}

func TestEvaluate_ExactAllergyBlocks(t *testing.T) {
	e := NewEvaluator(&mockInteractionSource{})
	eval := e.Evaluate(context.Background(), fullProfile(), Medication{Name: "Penicillin"})
	if eval.RecommendationAction != ActionBlock {
		t.Fatalf("expected BLOCK, got %s", eval.RecommendationAction)
	}
	if !eval.HasAbsoluteContraindications {
		t.Error("expected absolute contraindication")
	}
	if !hasFlag(eval, "allergy") {
		t.Error("expected an allergy flag")
	}
}

func TestEvaluate_CrossSensitivityWarns(t *testing.T) {
	e := NewEvaluator(&mockInteractionSource{})
	p := fullProfile()
	p.Allergies = []string{"sulfa"}
	eval := e.Evaluate(context.Background(), p, Medication{Name: "Sulfamethoxazole"})
	if !hasFlag(eval, "cross_sensitivity") {
		t.Fatal("expected a cross_sensitivity flag")
	}
	if eval.RecommendationAction != ActionManualReview {
		t.Errorf("expected MANUAL_REVIEW_REQUIRED, got %s", eval.RecommendationAction)
	}
	if eval.HasAbsoluteContraindications {
		t.Error("cross-sensitivity is not absolute")
	}
}

func TestEvaluate_InteractionWithCurrentMedication(t *testing.T) {
	src := &mockInteractionSource{rules: []*Interaction{{
		MedicationA: "sildenafil",
		MedicationB: "lisinopril",
		Severity:    "major",
		Description: strPtr("Additive hypotensive effect."),
	}}}
	e := NewEvaluator(src)
	eval := e.Evaluate(context.Background(), fullProfile(), Medication{Name: "Sildenafil"})
	if !hasFlag(eval, "drug_interaction") {
		t.Fatalf("expected a drug_interaction flag, got %+v", eval.Flags)
	}
	if eval.RecommendationAction != ActionManualReview {
		t.Errorf("expected MANUAL_REVIEW_REQUIRED, got %s", eval.RecommendationAction)
	}
}

func TestEvaluate_ContraindicatedInteractionBlocks(t *testing.T) {
	src := &mockInteractionSource{rules: []*Interaction{{
		MedicationA: "sildenafil",
		MedicationB: "nitroglycerin",
		Severity:    "contraindicated",
	}}}
	e := NewEvaluator(src)
	p := fullProfile()
	p.CurrentMedications = []string{"Nitroglycerin"}
	eval := e.Evaluate(context.Background(), p, Medication{Name: "Sildenafil"})
	if eval.RecommendationAction != ActionBlock {
		t.Fatalf("expected BLOCK, got %s", eval.RecommendationAction)
	}
	if !eval.HasAbsoluteContraindications {
		t.Error("contraindicated interaction should be absolute")
	}
}

func TestEvaluate_InteractionNotTakenIsIgnored(t *testing.T) {
	src := &mockInteractionSource{rules: []*Interaction{{
		MedicationA: "sildenafil",
		MedicationB: "nitroglycerin",
		Severity:    "contraindicated",
	}}}
	e := NewEvaluator(src)
	eval := e.Evaluate(context.Background(), fullProfile(), Medication{Name: "Sildenafil"})
	if hasFlag(eval, "drug_interaction") {
		t.Error("interaction partner is not among current medications")
	}
}

func TestEvaluate_SourceFailureNeverProceeds(t *testing.T) {
	src := &mockInteractionSource{err: errors.New("connection refused")}
	e := NewEvaluator(src)
	eval := e.Evaluate(context.Background(), fullProfile(), Medication{Name: "Sildenafil"})
	if eval.RecommendationAction == ActionProceed {
		t.Fatal("a failed rule source must not produce PROCEED")
	}
	var sysFlags int
	for _, f := range eval.Flags {
		if f.Type == "system_error" {
			sysFlags++
			if f.Severity != SeverityWarning {
				t.Errorf("system_error severity = %s, want warning", f.Severity)
			}
		}
	}
	if sysFlags != 1 {
		t.Errorf("expected exactly one system_error flag, got %d", sysFlags)
	}
}

func TestEvaluate_PregnancyContraindication(t *testing.T) {
	e := NewEvaluator(&mockInteractionSource{})
	p := fullProfile()
	p.Pregnant = boolPtr(true)
	eval := e.Evaluate(context.Background(), p, Medication{Name: "Finasteride 1mg"})
	if eval.RecommendationAction != ActionBlock {
		t.Fatalf("expected BLOCK, got %s", eval.RecommendationAction)
	}
	if !hasFlag(eval, "pregnancy_contraindication") {
		t.Error("expected a pregnancy_contraindication flag")
	}
}

func TestEvaluate_ConditionContraindicationBlocks(t *testing.T) {
	e := NewEvaluator(&mockInteractionSource{})
	p := fullProfile()
	p.MedicalHistory = []string{"Chronic liver disease"}
	eval := e.Evaluate(context.Background(), p, Medication{Name: "Finasteride 1mg"})
	if eval.RecommendationAction != ActionBlock {
		t.Fatalf("expected BLOCK, got %s (flags: %+v)", eval.RecommendationAction, eval.Flags)
	}
	if !eval.HasAbsoluteContraindications {
		t.Error("expected absolute contraindication")
	}
	if !hasFlag(eval, "condition_contraindication") {
		t.Error("expected a condition_contraindication flag")
	}
}

func TestEvaluate_UnrelatedHistoryIgnored(t *testing.T) {
	e := NewEvaluator(&mockInteractionSource{})
	p := fullProfile()
	p.MedicalHistory = []string{"seasonal asthma", "eczema"}
	eval := e.Evaluate(context.Background(), p, Medication{Name: "Finasteride 1mg"})
	if hasFlag(eval, "condition_contraindication") {
		t.Errorf("unrelated history raised a flag: %+v", eval.Flags)
	}
	if eval.RecommendationAction != ActionProceed {
		t.Errorf("expected PROCEED, got %s", eval.RecommendationAction)
	}
}

func TestEvaluate_NilProfileRequiresReview(t *testing.T) {
	e := NewEvaluator(&mockInteractionSource{})
	eval := e.Evaluate(context.Background(), nil, Medication{Name: "Sildenafil"})
	if eval.RecommendationAction != ActionManualReview {
		t.Fatalf("expected MANUAL_REVIEW_REQUIRED, got %s", eval.RecommendationAction)
	}
	if !hasFlag(eval, "missing_data") {
		t.Error("expected a missing_data flag")
	}
}

func TestEvaluate_MissingOptionalDataIsInfoOnly(t *testing.T) {
	e := NewEvaluator(&mockInteractionSource{})
	p := &SafetyProfile{Allergies: []string{"penicillin"}, CurrentMedications: []string{"lisinopril"}}
	eval := e.Evaluate(context.Background(), p, Medication{Name: "Sildenafil"})
	if eval.RecommendationAction != ActionProceed {
		t.Fatalf("missing age should not change control flow, got %s", eval.RecommendationAction)
	}
	found := false
	for _, f := range eval.Flags {
		if f.Type == "missing_data" && f.Severity == SeverityInfo && strings.Contains(f.Details, "age") {
			found = true
		}
	}
	if !found {
		t.Error("expected an info-level missing_data flag naming age")
	}
}

func TestEvaluate_LabValues(t *testing.T) {
	e := NewEvaluator(&mockInteractionSource{})
	p := fullProfile()
	p.CreatinineClearance = floatPtr(22)
	p.ALTLevel = floatPtr(180)
	eval := e.Evaluate(context.Background(), p, Medication{Name: "Sildenafil"})
	if !hasFlag(eval, "renal_impairment") {
		t.Error("expected a renal_impairment flag")
	}
	if !hasFlag(eval, "hepatic_impairment") {
		t.Error("expected a hepatic_impairment flag")
	}
	if eval.RecommendationAction != ActionManualReview {
		t.Errorf("expected MANUAL_REVIEW_REQUIRED, got %s", eval.RecommendationAction)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	src := &mockInteractionSource{rules: []*Interaction{{
		MedicationA: "sildenafil",
		MedicationB: "lisinopril",
		Severity:    "major",
	}}}
	e := NewEvaluator(src)
	first := e.Evaluate(context.Background(), fullProfile(), Medication{Name: "Sildenafil"})
	second := e.Evaluate(context.Background(), fullProfile(), Medication{Name: "Sildenafil"})
	if len(first.Flags) != len(second.Flags) {
		t.Fatalf("flag counts differ: %d vs %d", len(first.Flags), len(second.Flags))
	}
	for i := range first.Flags {
		if first.Flags[i] != second.Flags[i] {
			t.Errorf("flag %d differs between runs", i)
		}
	}
	if first.RecommendationAction != second.RecommendationAction {
		t.Error("recommendation differs between runs")
	}
}

func TestEvaluate_SkipsInteractionLookupWithNoCurrentMedications(t *testing.T) {
	src := &mockInteractionSource{err: errors.New("should not be called")}
	e := NewEvaluator(src)
	p := fullProfile()
	p.CurrentMedications = nil
	eval := e.Evaluate(context.Background(), p, Medication{Name: "Sildenafil"})
	if src.calls != 0 {
		t.Errorf("interaction source called %d times, want 0", src.calls)
	}
	if hasFlag(eval, "system_error") {
		t.Error("no lookup means no system_error flag")
	}
}
