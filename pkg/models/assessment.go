package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AssessmentStatusCreated   = "created"
	AssessmentStatusRunning   = "running"
	AssessmentStatusCompleted = "completed"
	AssessmentStatusFailed    = "failed"
)

// Validation frameworks. "basic" checks base FHIR R4 expectations; "uscore"
// layers US Core profile requirements on top.
const (
	FrameworkBasic  = "basic"
	FrameworkUSCore = "uscore"
)

// Quality dimensions an assessment can evaluate.
const (
	DimensionCompleteness = "completeness"
	DimensionConformity   = "conformity"
	DimensionPlausibility = "plausibility"
)

// Remediation modes. "report" records issues only; "autofix" additionally
// records a suggested fix per fixable issue. The source server is never mutated.
const (
	RemediationReport  = "report"
	RemediationAutofix = "autofix"
)

// Assessment is a configured quality run against a FHIR server.
// POST /api/v1/assessments/{id}/run returns immediately; the client polls
// GET /api/v1/assessments/{id}/status until status is completed or failed.
type Assessment struct {
	ID            uuid.UUID  `db:"id"             json:"id"`
	TenantID      uuid.UUID  `db:"tenant_id"      json:"tenant_id"`
	ServerID      uuid.UUID  `db:"server_id"      json:"server_id"`
	Name          string     `db:"name"           json:"name"`
	ResourceTypes []string   `db:"resource_types" json:"resource_types"`
	SampleSize    int        `db:"sample_size"    json:"sample_size"`
	Framework     string     `db:"framework"      json:"framework"`
	Dimensions    []string   `db:"dimensions"     json:"dimensions"`
	Purpose       string     `db:"purpose"        json:"purpose,omitempty"`
	Remediation   string     `db:"remediation"    json:"remediation"`
	Status        string     `db:"status"         json:"status"`
	ErrorMessage  *string    `db:"error_message"  json:"error_message,omitempty"`
	StartedAt     *time.Time `db:"started_at"     json:"started_at,omitempty"`
	CompletedAt   *time.Time `db:"completed_at"   json:"completed_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"     json:"updated_at"`
}
