package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func AssessmentStatusKey(assessmentID uuid.UUID) string {
	return fmt.Sprintf("assessment:status:%s", assessmentID)
}

func ProgressKey(assessmentID uuid.UUID) string {
	return fmt.Sprintf("assessment:progress:%s", assessmentID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

func SampleKey(serverID uuid.UUID, resourceType string, sampleSize int) string {
	return fmt.Sprintf("fhir:sample:%s:%s:%d", serverID, resourceType, sampleSize)
}
