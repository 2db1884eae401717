package models

import (
	"time"

	"github.com/google/uuid"
)

// Issue severities, ordered error > warning > info.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// QualityIssue is a single failed validation rule on a fetched resource.
type QualityIssue struct {
	ResourceType string  `json:"resource_type"`
	ResourceID   string  `json:"resource_id"`
	Dimension    string  `json:"dimension"`
	Severity     string  `json:"severity"`
	Field        string  `json:"field"`
	Description  string  `json:"description"`
	SuggestedFix *string `json:"suggested_fix,omitempty"`
}

// DimensionScore is the pass rate for one quality dimension over one
// resource type's sample.
type DimensionScore struct {
	Dimension string  `json:"dimension"`
	Evaluated int     `json:"evaluated"`
	Passed    int     `json:"passed"`
	Score     float64 `json:"score"`
}

// AssessmentResult holds the scored outcome for one resource type within an
// assessment run. DimensionScores and Issues are stored as JSONB.
type AssessmentResult struct {
	ID                 uuid.UUID        `db:"id"                  json:"id"`
	AssessmentID       uuid.UUID        `db:"assessment_id"       json:"assessment_id"`
	TenantID           uuid.UUID        `db:"tenant_id"           json:"tenant_id"`
	ResourceType       string           `db:"resource_type"       json:"resource_type"`
	ResourcesEvaluated int              `db:"resources_evaluated" json:"resources_evaluated"`
	ErrorCount         int              `db:"error_count"         json:"error_count"`
	WarningCount       int              `db:"warning_count"       json:"warning_count"`
	InfoCount          int              `db:"info_count"          json:"info_count"`
	DimensionScores    []DimensionScore `db:"dimension_scores"    json:"dimension_scores"`
	Issues             []QualityIssue   `db:"issues"              json:"issues"`
	Score              float64          `db:"score"               json:"score"`
	Grade              string           `db:"grade"               json:"grade"`
	CreatedAt          time.Time        `db:"created_at"          json:"created_at"`
}
