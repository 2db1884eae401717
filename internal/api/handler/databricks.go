package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	mw "github.com/aks129/fhirspective/internal/api/middleware"
	"github.com/aks129/fhirspective/internal/api/response"
	"github.com/aks129/fhirspective/internal/databricks"
	"github.com/aks129/fhirspective/internal/store"
	"github.com/aks129/fhirspective/pkg/models"
)

// DatabricksStore defines the store methods the Databricks handlers depend on.
type DatabricksStore interface {
	GetDatabricksConfig(ctx context.Context, tenantID uuid.UUID) (*models.DatabricksConfig, error)
	UpsertDatabricksConfig(ctx context.Context, cfg *models.DatabricksConfig) (*models.DatabricksConfig, error)
	GetAssessment(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Assessment, error)
	ListAssessmentResults(ctx context.Context, assessmentID uuid.UUID, tenantID uuid.UUID) ([]*models.AssessmentResult, error)
}

// ProfileLoader resolves a fallback workspace config when a tenant has not
// stored one.
type ProfileLoader func() (*models.DatabricksConfig, error)

type databricksConfigResponse struct {
	WorkspaceURL string `json:"workspace_url"`
	TokenSet     bool   `json:"token_set"`
	ClusterID    string `json:"cluster_id,omitempty"`
	Active       bool   `json:"active"`
}

func maskConfig(cfg *models.DatabricksConfig) databricksConfigResponse {
	return databricksConfigResponse{
		WorkspaceURL: cfg.WorkspaceURL,
		TokenSet:     cfg.AccessToken != "",
		ClusterID:    cfg.ClusterID,
		Active:       cfg.Active,
	}
}

// resolveConfig returns the tenant's stored config, falling back to the
// profile loader when nothing is stored.
func resolveConfig(ctx context.Context, st DatabricksStore, tenantID uuid.UUID, profile ProfileLoader) (*models.DatabricksConfig, error) {
	cfg, err := st.GetDatabricksConfig(ctx, tenantID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if profile == nil {
		return nil, databricks.ErrNoWorkspace
	}
	return profile()
}

// NewGetDatabricksConfigHandler returns an http.HandlerFunc for GET /api/v1/databricks/config.
// The access token is never echoed back, only whether one is set.
func NewGetDatabricksConfigHandler(st DatabricksStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		cfg, err := st.GetDatabricksConfig(r.Context(), tenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "No Databricks config stored", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, maskConfig(cfg))
	}
}

// NewPutDatabricksConfigHandler returns an http.HandlerFunc for PUT /api/v1/databricks/config.
// An empty access_token on update keeps the stored token.
func NewPutDatabricksConfigHandler(st DatabricksStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req struct {
			WorkspaceURL string `json:"workspace_url"`
			AccessToken  string `json:"access_token"`
			ClusterID    string `json:"cluster_id"`
			Active       *bool  `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.WorkspaceURL == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "workspace_url is required", nil)
			return
		}
		u, err := url.Parse(req.WorkspaceURL)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"workspace_url must be an absolute https URL", nil)
			return
		}

		active := true
		if req.Active != nil {
			active = *req.Active
		}

		now := time.Now().UTC()
		saved, err := st.UpsertDatabricksConfig(r.Context(), &models.DatabricksConfig{
			ID:           uuid.New(),
			TenantID:     tenantID,
			WorkspaceURL: req.WorkspaceURL,
			AccessToken:  req.AccessToken,
			ClusterID:    req.ClusterID,
			Active:       active,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, maskConfig(saved))
	}
}

// NewTestDatabricksHandler returns an http.HandlerFunc for POST /api/v1/databricks/test.
func NewTestDatabricksHandler(st DatabricksStore, connector databricks.Connector, profile ProfileLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		cfg, err := resolveConfig(r.Context(), st, tenantID, profile)
		if err != nil {
			if errors.Is(err, databricks.ErrNoWorkspace) {
				response.Error(w, http.StatusNotFound, "NO_WORKSPACE",
					"No Databricks workspace configured", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		info, err := connector.TestConnection(r.Context(), cfg)
		if err != nil {
			response.Error(w, http.StatusBadGateway, "WORKSPACE_UNREACHABLE",
				"Could not authenticate against the Databricks workspace", nil)
			return
		}

		response.JSON(w, info)
	}
}

// NewExportDatabricksHandler returns an http.HandlerFunc for POST /api/v1/databricks/export.
// It writes one assessment's results as a JSON file to DBFS.
func NewExportDatabricksHandler(st DatabricksStore, connector databricks.Connector, profile ProfileLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req struct {
			AssessmentID string `json:"assessment_id"`
			Path         string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		assessmentID, err := uuid.Parse(req.AssessmentID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid assessment_id", nil)
			return
		}

		a, err := st.GetAssessment(r.Context(), assessmentID, tenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Assessment not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if a.Status != models.AssessmentStatusCompleted {
			response.Error(w, http.StatusConflict, "NOT_COMPLETED",
				"Only completed assessments can be exported", nil)
			return
		}

		results, err := st.ListAssessmentResults(r.Context(), assessmentID, tenantID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		cfg, err := resolveConfig(r.Context(), st, tenantID, profile)
		if err != nil {
			if errors.Is(err, databricks.ErrNoWorkspace) {
				response.Error(w, http.StatusNotFound, "NO_WORKSPACE",
					"No Databricks workspace configured", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		path := req.Path
		if path == "" {
			path = fmt.Sprintf("/fhirspective/exports/%s.json", a.ID)
		}

		payload, err := json.Marshal(map[string]any{
			"assessment": a,
			"results":    results,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		if err := connector.Export(r.Context(), cfg, path, payload); err != nil {
			response.Error(w, http.StatusBadGateway, "EXPORT_FAILED",
				"Export to the Databricks workspace failed", nil)
			return
		}

		response.JSON(w, map[string]any{
			"assessment_id": a.ID,
			"path":          path,
			"bytes":         len(payload),
		})
	}
}
