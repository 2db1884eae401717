package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/aks129/fhirspective/internal/api/middleware"
	"github.com/aks129/fhirspective/internal/api/response"
	"github.com/aks129/fhirspective/internal/store"
	"github.com/aks129/fhirspective/pkg/models"
)

// AssessmentStore defines the store methods the assessment handlers depend on.
type AssessmentStore interface {
	CreateAssessment(ctx context.Context, a *models.Assessment) error
	GetAssessment(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Assessment, error)
	ListAssessments(ctx context.Context, filter store.AssessmentFilter) ([]*models.Assessment, int, error)
	GetServer(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Server, error)
	ListAssessmentResults(ctx context.Context, assessmentID uuid.UUID, tenantID uuid.UUID) ([]*models.AssessmentResult, error)
}

// Runner defines the assessment service methods the run/status handlers depend on.
type Runner interface {
	Start(ctx context.Context, a *models.Assessment, srv *models.Server) error
	Status(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Progress, error)
}

type assessmentRequest struct {
	Name          string   `json:"name"`
	ServerID      string   `json:"server_id"`
	ResourceTypes []string `json:"resource_types"`
	SampleSize    int      `json:"sample_size"`
	Framework     string   `json:"framework"`
	Dimensions    []string `json:"dimensions"`
	Purpose       string   `json:"purpose"`
	Remediation   string   `json:"remediation"`
}

func (req *assessmentRequest) validate(maxSampleSize int) (string, bool) {
	if req.Name == "" {
		return "name is required", false
	}
	if req.ServerID == "" {
		return "server_id is required", false
	}
	if len(req.ResourceTypes) == 0 {
		return "resource_types must not be empty", false
	}
	for _, rt := range req.ResourceTypes {
		if rt == "" {
			return "resource_types must not contain empty entries", false
		}
	}
	if req.SampleSize == 0 {
		req.SampleSize = 100
	}
	if req.SampleSize < 1 || req.SampleSize > maxSampleSize {
		return "sample_size must be in 1.." + strconv.Itoa(maxSampleSize), false
	}
	if req.Framework == "" {
		req.Framework = models.FrameworkBasic
	}
	if req.Framework != models.FrameworkBasic && req.Framework != models.FrameworkUSCore {
		return "framework must be basic or uscore", false
	}
	if len(req.Dimensions) == 0 {
		req.Dimensions = []string{
			models.DimensionCompleteness,
			models.DimensionConformity,
			models.DimensionPlausibility,
		}
	}
	for _, d := range req.Dimensions {
		switch d {
		case models.DimensionCompleteness, models.DimensionConformity, models.DimensionPlausibility:
		default:
			return "dimensions must be a subset of completeness, conformity, plausibility", false
		}
	}
	if req.Remediation == "" {
		req.Remediation = models.RemediationReport
	}
	if req.Remediation != models.RemediationReport && req.Remediation != models.RemediationAutofix {
		return "remediation must be report or autofix", false
	}
	return "", true
}

// NewCreateAssessmentHandler returns an http.HandlerFunc for POST /api/v1/assessments.
func NewCreateAssessmentHandler(st AssessmentStore, maxSampleSize int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req assessmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if msg, ok := req.validate(maxSampleSize); !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
			return
		}

		serverID, err := uuid.Parse(req.ServerID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid server_id", nil)
			return
		}
		if _, err := st.GetServer(r.Context(), serverID, tenantID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Server not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		now := time.Now().UTC()
		a := &models.Assessment{
			ID:            uuid.New(),
			TenantID:      tenantID,
			ServerID:      serverID,
			Name:          req.Name,
			ResourceTypes: req.ResourceTypes,
			SampleSize:    req.SampleSize,
			Framework:     req.Framework,
			Dimensions:    req.Dimensions,
			Purpose:       req.Purpose,
			Remediation:   req.Remediation,
			Status:        models.AssessmentStatusCreated,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if err := st.CreateAssessment(r.Context(), a); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Created(w, a)
	}
}

// NewListAssessmentsHandler returns an http.HandlerFunc for GET /api/v1/assessments.
// Supports server_id, status, since, page, and limit query parameters.
func NewListAssessmentsHandler(st AssessmentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		filter := store.AssessmentFilter{TenantID: tenantID}
		q := r.URL.Query()

		if v := q.Get("server_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid server_id", nil)
				return
			}
			filter.ServerID = id
		}
		if v := q.Get("status"); v != "" {
			switch v {
			case models.AssessmentStatusCreated, models.AssessmentStatusRunning,
				models.AssessmentStatusCompleted, models.AssessmentStatusFailed:
				filter.Status = v
			default:
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"status must be one of created, running, completed, failed", nil)
				return
			}
		}
		if v := q.Get("since"); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"since must be a valid RFC3339 timestamp", nil)
				return
			}
			filter.Since = ts
		}
		filter.Page, _ = strconv.Atoi(q.Get("page"))
		filter.Limit, _ = strconv.Atoi(q.Get("limit"))
		if filter.Page <= 0 {
			filter.Page = 1
		}
		if filter.Limit <= 0 {
			filter.Limit = 20
		}

		assessments, total, err := st.ListAssessments(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if assessments == nil {
			assessments = []*models.Assessment{}
		}

		response.Collection(w, assessments, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.Limit,
			Total:   total,
			HasNext: filter.Page*filter.Limit < total,
		})
	}
}

// NewGetAssessmentHandler returns an http.HandlerFunc for GET /api/v1/assessments/{assessmentID}.
func NewGetAssessmentHandler(st AssessmentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "assessmentID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid assessment id", nil)
			return
		}

		a, err := st.GetAssessment(r.Context(), id, tenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Assessment not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, a)
	}
}

// NewRunAssessmentHandler returns an http.HandlerFunc for POST /api/v1/assessments/{assessmentID}/run.
// The run is dispatched in the background; the client polls the status endpoint.
func NewRunAssessmentHandler(st AssessmentStore, runner Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "assessmentID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid assessment id", nil)
			return
		}

		a, err := st.GetAssessment(r.Context(), id, tenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Assessment not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		srv, err := st.GetServer(r.Context(), a.ServerID, tenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Server not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		if err := runner.Start(r.Context(), a, srv); err != nil {
			if errors.Is(err, store.ErrInvalidTransition) {
				response.Error(w, http.StatusConflict, "ALREADY_RUN",
					"Assessment has already been run", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Accepted(w, map[string]any{
			"assessment_id": a.ID,
			"status":        models.AssessmentStatusRunning,
		})
	}
}

// NewAssessmentStatusHandler returns an http.HandlerFunc for GET /api/v1/assessments/{assessmentID}/status.
func NewAssessmentStatusHandler(runner Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "assessmentID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid assessment id", nil)
			return
		}

		progress, err := runner.Status(r.Context(), id, tenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Assessment not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, progress)
	}
}

// NewAssessmentResultsHandler returns an http.HandlerFunc for GET /api/v1/assessments/{assessmentID}/results.
func NewAssessmentResultsHandler(st AssessmentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "assessmentID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid assessment id", nil)
			return
		}

		a, err := st.GetAssessment(r.Context(), id, tenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Assessment not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		results, err := st.ListAssessmentResults(r.Context(), id, tenantID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if results == nil {
			results = []*models.AssessmentResult{}
		}

		response.JSON(w, map[string]any{
			"assessment": a,
			"results":    results,
		})
	}
}
