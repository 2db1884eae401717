package validator

import (
	"testing"
	"time"

	"github.com/aks129/fhirspective/pkg/models"
)

// --- helpers ---

func newTestEngine(t *testing.T, framework string, dimensions []string, remediation string) *Engine {
	t.Helper()
	fw, err := New(framework)
	if err != nil {
		t.Fatalf("unexpected error creating framework: %v", err)
	}
	e := NewEngine(fw, dimensions, remediation)
	// Pin the clock so future-date checks are deterministic.
	e.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return e
}

func completePatient() models.Resource {
	return models.Resource{
		"resourceType": "Patient",
		"id":           "pat-1",
		"gender":       "female",
		"birthDate":    "1987-04-12",
		"name": []any{
			map[string]any{"family": "Chen", "given": []any{"Mei"}},
		},
		"identifier": []any{
			map[string]any{"system": "http://hospital.example.org/mrn", "value": "MRN-1001"},
		},
	}
}

func allDimensions() []string {
	return []string{models.DimensionCompleteness, models.DimensionConformity, models.DimensionPlausibility}
}

func issuesForField(report *TypeReport, field string) []models.QualityIssue {
	var out []models.QualityIssue
	for _, issue := range report.Issues {
		if issue.Field == field {
			out = append(out, issue)
		}
	}
	return out
}

// --- framework factory ---

func TestNew_UnknownFramework(t *testing.T) {
	_, err := New("hl7v2")
	if err == nil {
		t.Fatal("expected error for unknown framework")
	}
}

func TestNew_KnownFrameworks(t *testing.T) {
	for _, name := range []string{models.FrameworkBasic, models.FrameworkUSCore} {
		fw, err := New(name)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", name, err)
		}
		if fw.Name() != name {
			t.Errorf("expected framework name %s, got %s", name, fw.Name())
		}
	}
}

func TestRules_UnknownTypeFallsBackToBase(t *testing.T) {
	fw, _ := New(models.FrameworkBasic)
	rs := fw.Rules("Procedure")
	if len(rs.Required) != 1 || rs.Required[0] != "id" {
		t.Errorf("expected base rules for unknown type, got %+v", rs.Required)
	}
}

func TestRules_USCoreExtendsBasic(t *testing.T) {
	basic, _ := New(models.FrameworkBasic)
	uscore, _ := New(models.FrameworkUSCore)

	basicReq := basic.Rules("Patient").Required
	uscoreReq := uscore.Rules("Patient").Required
	if len(uscoreReq) <= len(basicReq) {
		t.Errorf("expected uscore to require more Patient elements than basic: %d vs %d",
			len(uscoreReq), len(basicReq))
	}
}

// --- completeness ---

func TestEvaluateType_CompletePatientScoresFull(t *testing.T) {
	e := newTestEngine(t, models.FrameworkBasic, allDimensions(), models.RemediationReport)

	report := e.EvaluateType("Patient", []models.Resource{completePatient()})

	if report.Evaluated != 1 {
		t.Fatalf("expected 1 evaluated, got %d", report.Evaluated)
	}
	if len(report.Issues) != 0 {
		t.Fatalf("expected no issues, got %+v", report.Issues)
	}
	if score := report.OverallScore(); score != 100 {
		t.Errorf("expected score 100, got %g", score)
	}
	if g := Grade(report.OverallScore()); g != "A" {
		t.Errorf("expected grade A, got %s", g)
	}
}

func TestEvaluateType_MissingRequiredIsError(t *testing.T) {
	e := newTestEngine(t, models.FrameworkBasic, []string{models.DimensionCompleteness}, models.RemediationReport)

	patient := completePatient()
	delete(patient, "gender")
	report := e.EvaluateType("Patient", []models.Resource{patient})

	issues := issuesForField(report, "gender")
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue for gender, got %d", len(issues))
	}
	if issues[0].Severity != models.SeverityError {
		t.Errorf("expected error severity, got %s", issues[0].Severity)
	}
	if issues[0].Dimension != models.DimensionCompleteness {
		t.Errorf("expected completeness dimension, got %s", issues[0].Dimension)
	}

	scores := report.DimensionScores()
	if len(scores) != 1 {
		t.Fatalf("expected 1 dimension score, got %d", len(scores))
	}
	if scores[0].Passed != 0 || scores[0].Evaluated != 1 {
		t.Errorf("expected 0/1 passed, got %d/%d", scores[0].Passed, scores[0].Evaluated)
	}
}

func TestEvaluateType_MissingRecommendedIsWarningOnly(t *testing.T) {
	e := newTestEngine(t, models.FrameworkBasic, []string{models.DimensionCompleteness}, models.RemediationReport)

	patient := completePatient()
	delete(patient, "birthDate")
	report := e.EvaluateType("Patient", []models.Resource{patient})

	issues := issuesForField(report, "birthDate")
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue for birthDate, got %d", len(issues))
	}
	if issues[0].Severity != models.SeverityWarning {
		t.Errorf("expected warning severity, got %s", issues[0].Severity)
	}

	// Warnings do not fail the dimension.
	scores := report.DimensionScores()
	if scores[0].Passed != 1 {
		t.Errorf("expected resource to still pass completeness, got %d/%d",
			scores[0].Passed, scores[0].Evaluated)
	}
}

// --- conformity ---

func TestEvaluateType_InvalidCodeFailsConformity(t *testing.T) {
	e := newTestEngine(t, models.FrameworkBasic, []string{models.DimensionConformity}, models.RemediationReport)

	patient := completePatient()
	patient["gender"] = "W"
	report := e.EvaluateType("Patient", []models.Resource{patient})

	issues := issuesForField(report, "gender")
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	if issues[0].Severity != models.SeverityError {
		t.Errorf("expected error severity, got %s", issues[0].Severity)
	}
	if report.DimensionScores()[0].Passed != 0 {
		t.Error("expected resource to fail conformity")
	}
}

func TestEvaluateType_MalformedDateFailsConformity(t *testing.T) {
	e := newTestEngine(t, models.FrameworkBasic, []string{models.DimensionConformity}, models.RemediationReport)

	patient := completePatient()
	patient["birthDate"] = "12/04/1987"
	report := e.EvaluateType("Patient", []models.Resource{patient})

	if len(issuesForField(report, "birthDate")) != 1 {
		t.Fatalf("expected malformed date issue, got %+v", report.Issues)
	}
}

func TestEvaluateType_BadReferenceFailsConformity(t *testing.T) {
	e := newTestEngine(t, models.FrameworkBasic, []string{models.DimensionConformity}, models.RemediationReport)

	obs := models.Resource{
		"resourceType": "Observation",
		"id":           "obs-1",
		"status":       "final",
		"code": map[string]any{
			"coding": []any{map[string]any{"system": "http://loinc.org", "code": "8867-4"}},
		},
		"subject": map[string]any{"reference": "not a reference"},
	}
	report := e.EvaluateType("Observation", []models.Resource{obs})

	if len(issuesForField(report, "subject.reference")) != 1 {
		t.Fatalf("expected reference issue, got %+v", report.Issues)
	}
}

func TestEvaluateType_ResourceTypeMismatch(t *testing.T) {
	e := newTestEngine(t, models.FrameworkBasic, []string{models.DimensionConformity}, models.RemediationReport)

	report := e.EvaluateType("Patient", []models.Resource{{
		"resourceType": "OperationOutcome",
		"id":           "oo-1",
	}})

	if len(issuesForField(report, "resourceType")) != 1 {
		t.Fatalf("expected resourceType mismatch issue, got %+v", report.Issues)
	}
}

// --- plausibility ---

func TestEvaluateType_FutureBirthDate(t *testing.T) {
	e := newTestEngine(t, models.FrameworkBasic, []string{models.DimensionPlausibility}, models.RemediationReport)

	patient := completePatient()
	patient["birthDate"] = "2031-01-01"
	report := e.EvaluateType("Patient", []models.Resource{patient})

	issues := issuesForField(report, "birthDate")
	if len(issues) != 1 {
		t.Fatalf("expected 1 future-date issue, got %d", len(issues))
	}
	if issues[0].Severity != models.SeverityWarning {
		t.Errorf("expected warning severity, got %s", issues[0].Severity)
	}
}

func TestEvaluateType_ImplausibleAge(t *testing.T) {
	e := newTestEngine(t, models.FrameworkBasic, []string{models.DimensionPlausibility}, models.RemediationReport)

	patient := completePatient()
	patient["birthDate"] = "1880-01-01"
	report := e.EvaluateType("Patient", []models.Resource{patient})

	if len(issuesForField(report, "birthDate")) != 1 {
		t.Fatalf("expected implausible age issue, got %+v", report.Issues)
	}
}

func TestEvaluateType_ObservationValueOutOfRange(t *testing.T) {
	e := newTestEngine(t, models.FrameworkBasic, []string{models.DimensionPlausibility}, models.RemediationReport)

	obs := models.Resource{
		"resourceType": "Observation",
		"id":           "obs-2",
		"status":       "final",
		"code": map[string]any{
			"coding": []any{map[string]any{"code": "8310-5"}},
		},
		"valueQuantity": map[string]any{"value": 99999.0, "unit": "Cel"},
	}
	report := e.EvaluateType("Observation", []models.Resource{obs})

	if len(issuesForField(report, "valueQuantity.value")) != 1 {
		t.Fatalf("expected out-of-range issue, got %+v", report.Issues)
	}
}

// --- scoring & grading ---

func TestDimensionScores_MixedSample(t *testing.T) {
	e := newTestEngine(t, models.FrameworkBasic, []string{models.DimensionCompleteness}, models.RemediationReport)

	broken := completePatient()
	delete(broken, "gender")
	report := e.EvaluateType("Patient", []models.Resource{
		completePatient(), completePatient(), completePatient(), broken,
	})

	scores := report.DimensionScores()
	if scores[0].Evaluated != 4 || scores[0].Passed != 3 {
		t.Fatalf("expected 3/4 passed, got %d/%d", scores[0].Passed, scores[0].Evaluated)
	}
	if scores[0].Score != 75.0 {
		t.Errorf("expected score 75, got %g", scores[0].Score)
	}
	if g := Grade(report.OverallScore()); g != "C" {
		t.Errorf("expected grade C, got %s", g)
	}
}

func TestGrade_Boundaries(t *testing.T) {
	tests := []struct {
		score    float64
		expected string
	}{
		{100, "A"}, {90, "A"}, {89.9, "B"}, {80, "B"},
		{79.9, "C"}, {70, "C"}, {69.9, "D"}, {60, "D"}, {59.9, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		if got := Grade(tt.score); got != tt.expected {
			t.Errorf("Grade(%g) = %s, expected %s", tt.score, got, tt.expected)
		}
	}
}

func TestCounts_BySeverity(t *testing.T) {
	e := newTestEngine(t, models.FrameworkBasic, allDimensions(), models.RemediationReport)

	patient := completePatient()
	delete(patient, "gender")    // completeness error
	delete(patient, "birthDate") // completeness warning
	report := e.EvaluateType("Patient", []models.Resource{patient})

	errs, warns, _ := report.Counts()
	if errs != 1 {
		t.Errorf("expected 1 error, got %d", errs)
	}
	if warns != 1 {
		t.Errorf("expected 1 warning, got %d", warns)
	}
}

// --- remediation modes ---

func TestAutofix_AttachesSuggestedFix(t *testing.T) {
	e := newTestEngine(t, models.FrameworkBasic, []string{models.DimensionCompleteness}, models.RemediationAutofix)

	patient := completePatient()
	delete(patient, "gender")
	report := e.EvaluateType("Patient", []models.Resource{patient})

	issues := issuesForField(report, "gender")
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	if issues[0].SuggestedFix == nil {
		t.Fatal("expected a suggested fix in autofix mode")
	}
}

func TestReport_NoSuggestedFix(t *testing.T) {
	e := newTestEngine(t, models.FrameworkBasic, []string{models.DimensionCompleteness}, models.RemediationReport)

	patient := completePatient()
	delete(patient, "gender")
	report := e.EvaluateType("Patient", []models.Resource{patient})

	if report.Issues[0].SuggestedFix != nil {
		t.Error("expected no suggested fix in report mode")
	}
}

// --- empty sample ---

func TestEvaluateType_EmptySample(t *testing.T) {
	e := newTestEngine(t, models.FrameworkBasic, allDimensions(), models.RemediationReport)

	report := e.EvaluateType("Patient", nil)
	if report.Evaluated != 0 {
		t.Errorf("expected 0 evaluated, got %d", report.Evaluated)
	}
	if report.OverallScore() != 100 {
		t.Errorf("expected score 100 for empty sample, got %g", report.OverallScore())
	}
}
