package compliance

import (
	"context"
	"fmt"
	"strings"
)

// Evaluator screens a proposed medication against a patient safety profile.
// Evaluate is deterministic for a given profile, medication, and rule set,
// and never returns an error: internal failures degrade into a system_error
// flag with a MANUAL_REVIEW_REQUIRED recommendation.
type Evaluator struct {
	interactions InteractionSource
}

func NewEvaluator(interactions InteractionSource) *Evaluator {
	return &Evaluator{interactions: interactions}
}

// Medications with an absolute pregnancy contraindication. Matched on the
// lowercased leading token of the product name.
var pregnancyUnsafe = map[string]bool{
	"finasteride":  true,
	"dutasteride":  true,
	"isotretinoin": true,
	"methotrexate": true,
	"warfarin":     true,
}

// Documented conditions that rule a medication out. Keys are the lowercased
// leading token of the product name; values are matched as substrings of the
// patient's history entries.
var conditionContraindications = map[string][]string{
	"finasteride":  {"liver disease"},
	"isotretinoin": {"liver disease", "hyperlipidemia"},
	"methotrexate": {"liver disease", "renal failure"},
	"warfarin":     {"peptic ulcer", "bleeding disorder"},
	"sildenafil":   {"unstable angina", "recent stroke"},
	"minoxidil":    {"pheochromocytoma"},
}

// leadingToken lowers a product name to its first word, the form the rule
// tables are keyed on.
func leadingToken(medName string) string {
	if i := strings.IndexByte(medName, ' '); i > 0 {
		return medName[:i]
	}
	return medName
}

func (e *Evaluator) Evaluate(ctx context.Context, profile *SafetyProfile, med Medication) Evaluation {
	var flags []Flag
	degraded := false

	medName := strings.ToLower(strings.TrimSpace(med.Name))

	if profile == nil {
		flags = append(flags, Flag{
			Type:           "missing_data",
			Severity:       SeverityWarning,
			Title:          "No safety profile on file",
			Details:        "No allergy, medication, or history data is available for this patient.",
			Recommendation: "Collect a safety profile before prescribing.",
			Source:         "profile",
		})
		return finish(flags)
	}

	flags = append(flags, e.allergyFlags(profile, medName)...)

	interactionFlags, srcFailed := e.interactionFlags(ctx, profile, medName)
	flags = append(flags, interactionFlags...)
	degraded = degraded || srcFailed

	flags = append(flags, conditionFlags(profile, medName)...)
	flags = append(flags, pregnancyFlags(profile, medName)...)
	flags = append(flags, ageFlags(profile)...)
	flags = append(flags, labFlags(profile)...)
	flags = append(flags, missingDataFlags(profile)...)

	eval := finish(flags)
	if degraded && eval.RecommendationAction == ActionProceed {
		eval.RecommendationAction = ActionManualReview
	}
	return eval
}

func finish(flags []Flag) Evaluation {
	eval := Evaluation{Flags: flags, RecommendationAction: ActionProceed}
	for _, f := range flags {
		switch f.Severity {
		case SeverityCritical:
			eval.HasAbsoluteContraindications = true
			eval.RecommendationAction = ActionBlock
		case SeverityWarning:
			if eval.RecommendationAction != ActionBlock {
				eval.RecommendationAction = ActionManualReview
			}
		}
	}
	return eval
}

func (e *Evaluator) allergyFlags(profile *SafetyProfile, medName string) []Flag {
	var flags []Flag
	for _, allergy := range profile.Allergies {
		a := strings.ToLower(strings.TrimSpace(allergy))
		if a == "" {
			continue
		}
		if a == medName {
			flags = append(flags, Flag{
				Type:           "allergy",
				Severity:       SeverityCritical,
				Title:          fmt.Sprintf("Documented allergy to %s", allergy),
				Details:        fmt.Sprintf("Patient has a recorded allergy matching the proposed medication %q.", medName),
				Recommendation: "Do not prescribe. Select an alternative agent.",
				Source:         "allergy_list",
			})
			continue
		}
		if strings.Contains(medName, a) || strings.Contains(a, medName) {
			flags = append(flags, Flag{
				Type:           "cross_sensitivity",
				Severity:       SeverityWarning,
				Title:          fmt.Sprintf("Possible cross-sensitivity with %s allergy", allergy),
				Details:        fmt.Sprintf("Allergy %q partially matches the proposed medication %q.", allergy, medName),
				Recommendation: "Confirm the allergy is unrelated before prescribing.",
				Source:         "allergy_list",
			})
		}
	}
	return flags
}

func (e *Evaluator) interactionFlags(ctx context.Context, profile *SafetyProfile, medName string) ([]Flag, bool) {
	if e.interactions == nil || len(profile.CurrentMedications) == 0 {
		return nil, false
	}
	rules, err := e.interactions.FindForMedication(ctx, medName)
	if err != nil {
		return []Flag{{
			Type:           "system_error",
			Severity:       SeverityWarning,
			Title:          "Interaction screening unavailable",
			Details:        fmt.Sprintf("Drug interaction source failed: %v.", err),
			Recommendation: "Screen interactions manually before prescribing.",
			Source:         "interaction_db",
		}}, true
	}

	current := make(map[string]string, len(profile.CurrentMedications))
	for _, m := range profile.CurrentMedications {
		current[strings.ToLower(strings.TrimSpace(m))] = m
	}

	var flags []Flag
	for _, rule := range rules {
		other := rule.MedicationB
		if other == medName {
			other = rule.MedicationA
		}
		display, taking := current[other]
		if !taking {
			continue
		}
		severity := SeverityWarning
		if rule.Severity == "contraindicated" {
			severity = SeverityCritical
		}
		details := fmt.Sprintf("Patient is taking %s, which interacts with %s.", display, medName)
		if rule.Description != nil {
			details = *rule.Description
		}
		recommendation := "Review the combination before prescribing."
		if rule.Management != nil {
			recommendation = *rule.Management
		}
		source := "interaction_db"
		if rule.Source != nil {
			source = *rule.Source
		}
		flags = append(flags, Flag{
			Type:           "drug_interaction",
			Severity:       severity,
			Title:          fmt.Sprintf("%s interaction: %s + %s", rule.Severity, display, medName),
			Details:        details,
			Recommendation: recommendation,
			Source:         source,
		})
	}
	return flags, false
}

func conditionFlags(profile *SafetyProfile, medName string) []Flag {
	conditions := conditionContraindications[leadingToken(medName)]
	if len(conditions) == 0 || len(profile.MedicalHistory) == 0 {
		return nil
	}
	var flags []Flag
	for _, entry := range profile.MedicalHistory {
		h := strings.ToLower(strings.TrimSpace(entry))
		if h == "" {
			continue
		}
		for _, cond := range conditions {
			if strings.Contains(h, cond) {
				flags = append(flags, Flag{
					Type:           "condition_contraindication",
					Severity:       SeverityCritical,
					Title:          fmt.Sprintf("History of %s contraindicates %s", entry, medName),
					Details:        fmt.Sprintf("The patient's medical history records %q, which contraindicates the proposed medication.", entry),
					Recommendation: "Do not prescribe. Select an alternative agent.",
					Source:         "medical_history",
				})
			}
		}
	}
	return flags
}

func pregnancyFlags(profile *SafetyProfile, medName string) []Flag {
	if profile.Pregnant == nil || !*profile.Pregnant {
		return nil
	}
	if !pregnancyUnsafe[leadingToken(medName)] {
		return nil
	}
	return []Flag{{
		Type:           "pregnancy_contraindication",
		Severity:       SeverityCritical,
		Title:          fmt.Sprintf("%s is contraindicated in pregnancy", medName),
		Details:        "The patient is recorded as pregnant and the proposed medication carries an absolute pregnancy contraindication.",
		Recommendation: "Do not prescribe during pregnancy.",
		Source:         "pregnancy_rules",
	}}
}

func ageFlags(profile *SafetyProfile) []Flag {
	if profile.Age == nil {
		return nil
	}
	switch age := *profile.Age; {
	case age < 18:
		return []Flag{{
			Type:           "age_restriction",
			Severity:       SeverityWarning,
			Title:          "Patient is under 18",
			Details:        fmt.Sprintf("Recorded age is %d. Pediatric dosing and indication must be confirmed.", age),
			Recommendation: "Verify pediatric appropriateness before prescribing.",
			Source:         "demographics",
		}}
	case age >= 65:
		return []Flag{{
			Type:           "geriatric_caution",
			Severity:       SeverityInfo,
			Title:          "Patient is 65 or older",
			Details:        fmt.Sprintf("Recorded age is %d. Consider dose adjustment for older adults.", age),
			Recommendation: "Review geriatric dosing guidance.",
			Source:         "demographics",
		}}
	}
	return nil
}

func labFlags(profile *SafetyProfile) []Flag {
	var flags []Flag
	if profile.CreatinineClearance != nil && *profile.CreatinineClearance < 30 {
		flags = append(flags, Flag{
			Type:           "renal_impairment",
			Severity:       SeverityWarning,
			Title:          "Severe renal impairment",
			Details:        fmt.Sprintf("Creatinine clearance is %.1f mL/min.", *profile.CreatinineClearance),
			Recommendation: "Confirm renal dosing before prescribing.",
			Source:         "lab_values",
		})
	}
	if profile.ALTLevel != nil && *profile.ALTLevel > 120 {
		flags = append(flags, Flag{
			Type:           "hepatic_impairment",
			Severity:       SeverityWarning,
			Title:          "Elevated liver enzymes",
			Details:        fmt.Sprintf("ALT is %.1f U/L, more than three times the upper reference limit.", *profile.ALTLevel),
			Recommendation: "Confirm hepatic dosing before prescribing.",
			Source:         "lab_values",
		})
	}
	return flags
}

func missingDataFlags(profile *SafetyProfile) []Flag {
	var missing []string
	if len(profile.Allergies) == 0 {
		missing = append(missing, "allergies")
	}
	if len(profile.CurrentMedications) == 0 {
		missing = append(missing, "current medications")
	}
	if profile.Age == nil {
		missing = append(missing, "age")
	}
	if len(missing) == 0 {
		return nil
	}
	return []Flag{{
		Type:           "missing_data",
		Severity:       SeverityInfo,
		Title:          "Incomplete safety profile",
		Details:        fmt.Sprintf("No data recorded for: %s.", strings.Join(missing, ", ")),
		Recommendation: "Screening confidence is reduced; confirm with the patient.",
		Source:         "profile",
	}}
}
