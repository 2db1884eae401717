// Package assessment orchestrates quality runs against registered FHIR servers.
package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aks129/fhirspective/internal/cache"
	"github.com/aks129/fhirspective/internal/fhir"
	"github.com/aks129/fhirspective/internal/store"
	"github.com/aks129/fhirspective/internal/validator"
	"github.com/aks129/fhirspective/pkg/fhirsearch"
	"github.com/aks129/fhirspective/pkg/models"
)

// statusTTL bounds how long run status and progress stay in the cache after
// the last update. Polls after expiry fall back to the assessment row.
const statusTTL = 30 * time.Minute

// Service runs assessments in the background and answers status polls.
type Service struct {
	store          store.Store
	cache          cache.Cache
	clients        fhir.Factory
	runTimeout     time.Duration
	sampleCacheTTL time.Duration
}

// NewService creates a new Service.
func NewService(st store.Store, ca cache.Cache, clients fhir.Factory, runTimeout, sampleCacheTTL time.Duration) *Service {
	return &Service{
		store:          st,
		cache:          ca,
		clients:        clients,
		runTimeout:     runTimeout,
		sampleCacheTTL: sampleCacheTTL,
	}
}

// Start transitions the assessment to running and dispatches the run in a
// background goroutine. Returns immediately; a second Start on the same
// assessment fails with store.ErrInvalidTransition.
func (s *Service) Start(ctx context.Context, a *models.Assessment, srv *models.Server) error {
	if err := s.store.UpdateAssessmentStatus(ctx, a.ID, models.AssessmentStatusRunning); err != nil {
		return fmt.Errorf("starting assessment: %w", err)
	}

	_ = s.cache.SetAssessmentStatus(ctx, a.ID, models.AssessmentStatusRunning, statusTTL)
	s.setProgress(ctx, &models.Progress{
		AssessmentID: a.ID,
		Status:       models.AssessmentStatusRunning,
		TotalTypes:   len(a.ResourceTypes),
	})

	go s.run(a, srv)

	return nil
}

// run performs the fetch-and-score loop in a goroutine. It recovers from
// panics and always leaves the assessment completed or failed.
func (s *Service) run(a *models.Assessment, srv *models.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in assessment run", "error", r, "assessment_id", a.ID)
			s.fail(ctx, a.ID, fmt.Sprintf("panic: %v", r))
		}
	}()

	framework, err := validator.New(a.Framework)
	if err != nil {
		s.fail(ctx, a.ID, err.Error())
		return
	}
	engine := validator.NewEngine(framework, a.Dimensions, a.Remediation)
	client := s.clients(srv)

	progress := &models.Progress{
		AssessmentID: a.ID,
		Status:       models.AssessmentStatusRunning,
		TotalTypes:   len(a.ResourceTypes),
	}

	for _, resourceType := range a.ResourceTypes {
		progress.CurrentType = resourceType
		s.setProgress(ctx, progress)

		resources, err := s.fetchSample(ctx, client, srv.ID, resourceType, a.SampleSize)
		if err != nil {
			s.fail(ctx, a.ID, fmt.Sprintf("fetching %s sample: %v", resourceType, err))
			return
		}
		progress.ResourcesFetched += len(resources)
		s.setProgress(ctx, progress)

		report := engine.EvaluateType(resourceType, resources)
		errs, warns, infos := report.Counts()
		score := report.OverallScore()

		result := &models.AssessmentResult{
			ID:                 uuid.New(),
			AssessmentID:       a.ID,
			TenantID:           a.TenantID,
			ResourceType:       resourceType,
			ResourcesEvaluated: report.Evaluated,
			ErrorCount:         errs,
			WarningCount:       warns,
			InfoCount:          infos,
			DimensionScores:    report.DimensionScores(),
			Issues:             report.Issues,
			Score:              score,
			Grade:              validator.Grade(score),
			CreatedAt:          time.Now().UTC(),
		}
		if err := s.store.CreateAssessmentResult(ctx, result); err != nil {
			s.fail(ctx, a.ID, fmt.Sprintf("storing %s result: %v", resourceType, err))
			return
		}

		progress.ResourcesValidated += report.Evaluated
		progress.CompletedTypes++
		s.setProgress(ctx, progress)
	}

	// Terminal writes are detached from the run deadline; a run that finishes
	// right at the deadline must still leave the running state.
	done, cancelDone := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancelDone()

	if err := s.store.UpdateAssessmentStatus(done, a.ID, models.AssessmentStatusCompleted); err != nil {
		slog.Error("marking assessment completed", "error", err, "assessment_id", a.ID)
		return
	}
	_ = s.cache.SetAssessmentStatus(done, a.ID, models.AssessmentStatusCompleted, statusTTL)
	progress.Status = models.AssessmentStatusCompleted
	progress.CurrentType = ""
	s.setProgress(done, progress)
}

// fetchSample returns the newest resources of one type, consulting the cache
// so repeated runs against the same server reuse a recent sample.
func (s *Service) fetchSample(ctx context.Context, client fhir.Client, serverID uuid.UUID, resourceType string, sampleSize int) ([]models.Resource, error) {
	key := cache.SampleKey(serverID, resourceType, sampleSize)
	if data, found, err := s.cache.Get(ctx, key); err == nil && found {
		var resources []models.Resource
		if err := json.Unmarshal(data, &resources); err == nil {
			return resources, nil
		}
	}

	builder := fhirsearch.Builder{}
	resources, err := client.Search(ctx, fhir.SearchRequest{
		ResourceType: resourceType,
		Query:        builder.BuildSampleQuery(fhirsearch.SampleParams{Count: sampleSize}),
		MaxResults:   sampleSize,
	})
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(resources); err == nil {
		_ = s.cache.Set(ctx, key, data, s.sampleCacheTTL)
	}

	return resources, nil
}

// fail records a failed run. The run context may itself be the failure cause
// (its deadline expired), so the status and cache writes run on a detached
// context; otherwise a timed-out run could never leave running.
func (s *Service) fail(ctx context.Context, id uuid.UUID, msg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := s.store.UpdateAssessmentStatus(ctx, id, models.AssessmentStatusFailed,
		store.WithErrorMessage(msg)); err != nil {
		slog.Error("marking assessment failed", "error", err, "assessment_id", id)
	}
	_ = s.cache.SetAssessmentStatus(ctx, id, models.AssessmentStatusFailed, statusTTL)

	if p, found, err := s.cache.GetProgress(ctx, id); err == nil && found {
		p.Status = models.AssessmentStatusFailed
		s.setProgress(ctx, p)
	}
}

func (s *Service) setProgress(ctx context.Context, p *models.Progress) {
	if p.TotalTypes > 0 {
		p.Percent = float64(p.CompletedTypes) / float64(p.TotalTypes) * 100
	}
	p.UpdatedAt = time.Now().UTC()
	_ = s.cache.SetProgress(ctx, p, statusTTL)
}

// Status answers a poll. The cached progress record is preferred; once it
// expires the durable assessment row is projected into a Progress.
func (s *Service) Status(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Progress, error) {
	if p, found, err := s.cache.GetProgress(ctx, id); err == nil && found {
		return p, nil
	}

	a, err := s.store.GetAssessment(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}

	p := &models.Progress{
		AssessmentID: a.ID,
		Status:       a.Status,
		TotalTypes:   len(a.ResourceTypes),
		UpdatedAt:    a.UpdatedAt,
	}
	if a.Status == models.AssessmentStatusCompleted {
		p.CompletedTypes = len(a.ResourceTypes)
		p.Percent = 100
	}
	return p, nil
}
