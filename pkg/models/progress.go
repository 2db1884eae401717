package models

import (
	"time"

	"github.com/google/uuid"
)

// Progress is the transient per-run progress record served to status polls.
// It lives in the cache with a TTL; the assessment row is the durable record
// a poll falls back to when the cache entry has expired.
type Progress struct {
	AssessmentID       uuid.UUID `json:"assessment_id"`
	Status             string    `json:"status"`
	TotalTypes         int       `json:"total_types"`
	CompletedTypes     int       `json:"completed_types"`
	CurrentType        string    `json:"current_type,omitempty"`
	ResourcesFetched   int       `json:"resources_fetched"`
	ResourcesValidated int       `json:"resources_validated"`
	Percent            float64   `json:"percent"`
	UpdatedAt          time.Time `json:"updated_at"`
}
