package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aks129/fhirspective/internal/api"
	mw "github.com/aks129/fhirspective/internal/api/middleware"
	"github.com/aks129/fhirspective/internal/cache"
	"github.com/aks129/fhirspective/internal/store"
	"github.com/aks129/fhirspective/pkg/models"
)

// --- stub store that returns empty results (all auth fails) ---

type stubStore struct{}

func (s *stubStore) Ping(_ context.Context) error { return nil }

func (s *stubStore) GetDefaultTenant(_ context.Context) (*models.Tenant, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *stubStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *stubStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *stubStore) ListAPIKeys(_ context.Context, _ uuid.UUID) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *stubStore) RevokeAPIKey(_ context.Context, _ uuid.UUID, _ uuid.UUID) error { return nil }
func (s *stubStore) CreateServer(_ context.Context, _ *models.Server) error         { return nil }
func (s *stubStore) GetServer(_ context.Context, _ uuid.UUID, _ uuid.UUID) (*models.Server, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) ListServers(_ context.Context, _ uuid.UUID) ([]*models.Server, error) {
	return nil, nil
}
func (s *stubStore) UpdateServer(_ context.Context, _ *models.Server) error         { return nil }
func (s *stubStore) DeleteServer(_ context.Context, _ uuid.UUID, _ uuid.UUID) error { return nil }
func (s *stubStore) CreateAssessment(_ context.Context, _ *models.Assessment) error { return nil }
func (s *stubStore) GetAssessment(_ context.Context, _ uuid.UUID, _ uuid.UUID) (*models.Assessment, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) ListAssessments(_ context.Context, _ store.AssessmentFilter) ([]*models.Assessment, int, error) {
	return nil, 0, nil
}
func (s *stubStore) UpdateAssessmentStatus(_ context.Context, _ uuid.UUID, _ string, _ ...store.AssessmentUpdateOption) error {
	return nil
}
func (s *stubStore) CreateAssessmentResult(_ context.Context, _ *models.AssessmentResult) error {
	return nil
}
func (s *stubStore) ListAssessmentResults(_ context.Context, _ uuid.UUID, _ uuid.UUID) ([]*models.AssessmentResult, error) {
	return nil, nil
}
func (s *stubStore) GetDatabricksConfig(_ context.Context, _ uuid.UUID) (*models.DatabricksConfig, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) UpsertDatabricksConfig(_ context.Context, cfg *models.DatabricksConfig) (*models.DatabricksConfig, error) {
	return cfg, nil
}

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}
func (c *stubCache) Delete(_ context.Context, _ string) error { return nil }
func (c *stubCache) Ping(_ context.Context) error             { return nil }
func (c *stubCache) SetAssessmentStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetAssessmentStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (c *stubCache) SetProgress(_ context.Context, _ *models.Progress, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetProgress(_ context.Context, _ uuid.UUID) (*models.Progress, bool, error) {
	return nil, false, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// --- router tests ---

func newTestRouter() http.Handler {
	return api.NewRouter(api.Dependencies{
		Auth:           mw.NewAuth(&stubStore{}, false, uuid.Nil),
		RateLimit:      mw.NewRateLimit(&stubCache{}, 60),
		AllowedOrigins: []string{"*"},
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
	})
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter()

	serverID := uuid.New()
	assessmentID := uuid.New()

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/servers"},
		{"GET", "/api/v1/servers"},
		{"GET", "/api/v1/servers/" + serverID.String()},
		{"PUT", "/api/v1/servers/" + serverID.String()},
		{"DELETE", "/api/v1/servers/" + serverID.String()},
		{"POST", "/api/v1/servers/" + serverID.String() + "/test"},
		{"POST", "/api/v1/assessments"},
		{"GET", "/api/v1/assessments"},
		{"GET", "/api/v1/assessments/" + assessmentID.String()},
		{"POST", "/api/v1/assessments/" + assessmentID.String() + "/run"},
		{"GET", "/api/v1/assessments/" + assessmentID.String() + "/status"},
		{"GET", "/api/v1/assessments/" + assessmentID.String() + "/results"},
		{"GET", "/api/v1/databricks/config"},
		{"PUT", "/api/v1/databricks/config"},
		{"POST", "/api/v1/databricks/test"},
		{"POST", "/api/v1/databricks/export"},
		{"POST", "/api/v1/admin/keys"},
		{"GET", "/api/v1/admin/keys"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_DemoMode_SkipsAuth(t *testing.T) {
	demoTenant := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	router := api.NewRouter(api.Dependencies{
		Auth:           mw.NewAuth(&stubStore{}, true, demoTenant),
		RateLimit:      mw.NewRateLimit(&stubCache{}, 60),
		AllowedOrigins: []string{"*"},
	})

	// No Authorization header; demo mode still reaches the route. The
	// handler is unset, so the 501 placeholder answers.
	req := httptest.NewRequest("GET", "/api/v1/servers", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("OPTIONS", "/api/v1/servers", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Verify unused interfaces are satisfied
var _ store.Store = (*stubStore)(nil)
var _ cache.Cache = (*stubCache)(nil)
