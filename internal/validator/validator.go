// Package validator scores FHIR resources across quality dimensions.
package validator

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/aks129/fhirspective/pkg/models"
)

// Format regexes compiled once at package init.
var (
	// FHIR date / dateTime, from year precision down to full timestamps.
	reFHIRDate = regexp.MustCompile(`^\d{4}(-\d{2}(-\d{2}(T\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:\d{2})?)?)?)?$`)
	// Relative literal reference (Type/id), contained (#id), or absolute URL.
	reReference = regexp.MustCompile(`^(#.+|https?://.+|[A-Za-z]+/[A-Za-z0-9\-\.]{1,64})$`)
)

const maxPlausibleAgeYears = 120

// Engine applies one framework's rules to sampled resources and tallies
// per-dimension pass rates.
type Engine struct {
	framework  Framework
	dimensions map[string]bool
	autofix    bool
	now        func() time.Time
}

// NewEngine creates an Engine. dimensions selects which quality dimensions
// are evaluated; remediation models.RemediationAutofix attaches suggested
// fixes to fixable issues.
func NewEngine(framework Framework, dimensions []string, remediation string) *Engine {
	dims := make(map[string]bool, len(dimensions))
	for _, d := range dimensions {
		dims[d] = true
	}
	return &Engine{
		framework:  framework,
		dimensions: dims,
		autofix:    remediation == models.RemediationAutofix,
		now:        time.Now,
	}
}

// TypeReport is the tally for one resource type's sample.
type TypeReport struct {
	ResourceType string
	Evaluated    int
	Issues       []models.QualityIssue

	tallies map[string]*tally
}

type tally struct {
	evaluated int
	passed    int
}

// EvaluateType runs every enabled dimension over the sample and returns the
// tallied report.
func (e *Engine) EvaluateType(resourceType string, resources []models.Resource) *TypeReport {
	report := &TypeReport{
		ResourceType: resourceType,
		Evaluated:    len(resources),
		Issues:       []models.QualityIssue{},
		tallies:      map[string]*tally{},
	}
	for dim := range e.dimensions {
		report.tallies[dim] = &tally{}
	}

	rules := e.framework.Rules(resourceType)

	for _, res := range resources {
		if e.dimensions[models.DimensionCompleteness] {
			e.checkCompleteness(report, rules, resourceType, res)
		}
		if e.dimensions[models.DimensionConformity] {
			e.checkConformity(report, rules, resourceType, res)
		}
		if e.dimensions[models.DimensionPlausibility] {
			e.checkPlausibility(report, rules, resourceType, res)
		}
	}

	return report
}

// checkCompleteness fails a resource when any required element is missing.
// Missing recommended elements surface as warnings without failing it.
func (e *Engine) checkCompleteness(report *TypeReport, rules RuleSet, resourceType string, res models.Resource) {
	t := report.tallies[models.DimensionCompleteness]
	t.evaluated++

	required := map[string]bool{}
	failed := false
	for _, field := range rules.Required {
		if required[field] {
			continue
		}
		required[field] = true
		if _, ok := res.Field(field); !ok {
			failed = true
			report.add(e.issue(resourceType, res, models.DimensionCompleteness, models.SeverityError,
				field, fmt.Sprintf("missing required element %s", field)))
		}
	}
	for _, field := range rules.Recommended {
		if required[field] {
			continue
		}
		if _, ok := res.Field(field); !ok {
			report.add(e.issue(resourceType, res, models.DimensionCompleteness, models.SeverityWarning,
				field, fmt.Sprintf("missing recommended element %s", field)))
		}
	}

	if !failed {
		t.passed++
	}
}

// checkConformity fails a resource on type mismatches, codes outside their
// value set, malformed dates, and malformed references.
func (e *Engine) checkConformity(report *TypeReport, rules RuleSet, resourceType string, res models.Resource) {
	t := report.tallies[models.DimensionConformity]
	t.evaluated++
	failed := false

	if got := res.ResourceType(); got != resourceType {
		failed = true
		report.add(e.issue(resourceType, res, models.DimensionConformity, models.SeverityError,
			"resourceType", fmt.Sprintf("expected resourceType %s, got %q", resourceType, got)))
	}

	for _, rule := range rules.Coded {
		val, ok := res.FieldString(rule.Field)
		if !ok {
			continue
		}
		if !contains(rule.Allowed, val) {
			failed = true
			report.add(e.issue(resourceType, res, models.DimensionConformity, models.SeverityError,
				rule.Field, fmt.Sprintf("code %q is not in the allowed value set", val)))
		}
	}

	for _, field := range rules.Dates {
		val, ok := res.FieldString(field)
		if !ok {
			continue
		}
		if !reFHIRDate.MatchString(val) {
			failed = true
			report.add(e.issue(resourceType, res, models.DimensionConformity, models.SeverityError,
				field, fmt.Sprintf("%q is not a valid FHIR date", val)))
		}
	}

	for _, field := range rules.References {
		val, ok := res.FieldString(field)
		if !ok {
			continue
		}
		if !reReference.MatchString(val) {
			failed = true
			report.add(e.issue(resourceType, res, models.DimensionConformity, models.SeverityError,
				field, fmt.Sprintf("%q is not a resolvable reference", val)))
		}
	}

	if !failed {
		t.passed++
	}
}

// checkPlausibility fails a resource on future dates, implausible ages, and
// numeric values outside their expected range.
func (e *Engine) checkPlausibility(report *TypeReport, rules RuleSet, resourceType string, res models.Resource) {
	t := report.tallies[models.DimensionPlausibility]
	t.evaluated++
	failed := false
	now := e.now().UTC()

	for _, field := range rules.Dates {
		val, ok := res.FieldString(field)
		if !ok {
			continue
		}
		parsed, ok := parseFHIRDate(val)
		if !ok {
			continue // conformity owns format problems
		}
		if parsed.After(now) {
			failed = true
			report.add(e.issue(resourceType, res, models.DimensionPlausibility, models.SeverityWarning,
				field, fmt.Sprintf("%s is in the future", field)))
		}
		if field == "birthDate" {
			if age := now.Sub(parsed).Hours() / 24 / 365.25; age > maxPlausibleAgeYears {
				failed = true
				report.add(e.issue(resourceType, res, models.DimensionPlausibility, models.SeverityWarning,
					field, fmt.Sprintf("implied age %.0f exceeds %d years", age, maxPlausibleAgeYears)))
			}
		}
	}

	for _, rule := range rules.Ranges {
		val, ok := res.FieldNumber(rule.Field)
		if !ok {
			continue
		}
		if val < rule.Min || val > rule.Max {
			failed = true
			report.add(e.issue(resourceType, res, models.DimensionPlausibility, models.SeverityWarning,
				rule.Field, fmt.Sprintf("value %g outside plausible range [%g, %g]: %s",
					val, rule.Min, rule.Max, rule.Description)))
		}
	}

	if !failed {
		t.passed++
	}
}

func (e *Engine) issue(resourceType string, res models.Resource, dimension, severity, field, description string) models.QualityIssue {
	issue := models.QualityIssue{
		ResourceType: resourceType,
		ResourceID:   res.ID(),
		Dimension:    dimension,
		Severity:     severity,
		Field:        field,
		Description:  description,
	}
	if e.autofix {
		if hint, ok := autofixHints[field]; ok {
			issue.SuggestedFix = &hint
		}
	}
	return issue
}

func (r *TypeReport) add(issue models.QualityIssue) {
	r.Issues = append(r.Issues, issue)
}

// DimensionScores returns pass rates per evaluated dimension, in a stable
// dimension order.
func (r *TypeReport) DimensionScores() []models.DimensionScore {
	order := []string{models.DimensionCompleteness, models.DimensionConformity, models.DimensionPlausibility}
	scores := make([]models.DimensionScore, 0, len(r.tallies))
	for _, dim := range order {
		t, ok := r.tallies[dim]
		if !ok {
			continue
		}
		score := 100.0
		if t.evaluated > 0 {
			score = float64(t.passed) / float64(t.evaluated) * 100
		}
		scores = append(scores, models.DimensionScore{
			Dimension: dim,
			Evaluated: t.evaluated,
			Passed:    t.passed,
			Score:     round1(score),
		})
	}
	return scores
}

// OverallScore is the mean of the dimension scores, 0..100.
func (r *TypeReport) OverallScore() float64 {
	scores := r.DimensionScores()
	if len(scores) == 0 {
		return 100
	}
	var sum float64
	for _, s := range scores {
		sum += s.Score
	}
	return round1(sum / float64(len(scores)))
}

// Grade maps a 0..100 score to a letter grade.
func Grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// Counts returns issue totals by severity.
func (r *TypeReport) Counts() (errors, warnings, infos int) {
	for _, issue := range r.Issues {
		switch issue.Severity {
		case models.SeverityError:
			errors++
		case models.SeverityWarning:
			warnings++
		case models.SeverityInfo:
			infos++
		}
	}
	return errors, warnings, infos
}

// parseFHIRDate handles the year, month, day, and timestamp precisions.
func parseFHIRDate(val string) (time.Time, bool) {
	for _, layout := range []string{"2006", "2006-01", "2006-01-02", time.RFC3339} {
		if ts, err := time.Parse(layout, val); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
