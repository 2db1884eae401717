package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aks129/fhirspective/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid assessment status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	CreateServer(ctx context.Context, srv *models.Server) error
	GetServer(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Server, error)
	ListServers(ctx context.Context, tenantID uuid.UUID) ([]*models.Server, error)
	UpdateServer(ctx context.Context, srv *models.Server) error
	DeleteServer(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	CreateAssessment(ctx context.Context, a *models.Assessment) error
	GetAssessment(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Assessment, error)
	ListAssessments(ctx context.Context, filter AssessmentFilter) ([]*models.Assessment, int, error)
	UpdateAssessmentStatus(ctx context.Context, id uuid.UUID, status string, opts ...AssessmentUpdateOption) error

	CreateAssessmentResult(ctx context.Context, result *models.AssessmentResult) error
	ListAssessmentResults(ctx context.Context, assessmentID uuid.UUID, tenantID uuid.UUID) ([]*models.AssessmentResult, error)

	GetDatabricksConfig(ctx context.Context, tenantID uuid.UUID) (*models.DatabricksConfig, error)
	UpsertDatabricksConfig(ctx context.Context, cfg *models.DatabricksConfig) (*models.DatabricksConfig, error)
}

type AssessmentFilter struct {
	TenantID uuid.UUID
	ServerID uuid.UUID
	Status   string
	Since    time.Time
	Page     int
	Limit    int
}

type assessmentUpdateParams struct {
	ErrorMessage *string
}

type AssessmentUpdateOption func(*assessmentUpdateParams)

func WithErrorMessage(msg string) AssessmentUpdateOption {
	return func(p *assessmentUpdateParams) {
		p.ErrorMessage = &msg
	}
}
