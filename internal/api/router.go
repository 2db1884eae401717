package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	mw "github.com/aks129/fhirspective/internal/api/middleware"
	"github.com/aks129/fhirspective/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth           *mw.Auth
	RateLimit      *mw.RateLimit
	AllowedOrigins []string

	HealthHandler http.HandlerFunc

	CreateServer http.HandlerFunc
	ListServers  http.HandlerFunc
	GetServer    http.HandlerFunc
	UpdateServer http.HandlerFunc
	DeleteServer http.HandlerFunc
	TestServer   http.HandlerFunc

	CreateAssessment  http.HandlerFunc
	ListAssessments   http.HandlerFunc
	GetAssessment     http.HandlerFunc
	RunAssessment     http.HandlerFunc
	AssessmentStatus  http.HandlerFunc
	AssessmentResults http.HandlerFunc

	GetDatabricksConfig http.HandlerFunc
	PutDatabricksConfig http.HandlerFunc
	TestDatabricks      http.HandlerFunc
	ExportDatabricks    http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/servers", orNotImplemented(deps.CreateServer))
		r.Get("/api/v1/servers", orNotImplemented(deps.ListServers))
		r.Get("/api/v1/servers/{serverID}", orNotImplemented(deps.GetServer))
		r.Put("/api/v1/servers/{serverID}", orNotImplemented(deps.UpdateServer))
		r.Delete("/api/v1/servers/{serverID}", orNotImplemented(deps.DeleteServer))
		r.Post("/api/v1/servers/{serverID}/test", orNotImplemented(deps.TestServer))

		r.Post("/api/v1/assessments", orNotImplemented(deps.CreateAssessment))
		r.Get("/api/v1/assessments", orNotImplemented(deps.ListAssessments))
		r.Get("/api/v1/assessments/{assessmentID}", orNotImplemented(deps.GetAssessment))
		r.Post("/api/v1/assessments/{assessmentID}/run", orNotImplemented(deps.RunAssessment))
		r.Get("/api/v1/assessments/{assessmentID}/status", orNotImplemented(deps.AssessmentStatus))
		r.Get("/api/v1/assessments/{assessmentID}/results", orNotImplemented(deps.AssessmentResults))

		r.Get("/api/v1/databricks/config", orNotImplemented(deps.GetDatabricksConfig))
		r.Put("/api/v1/databricks/config", orNotImplemented(deps.PutDatabricksConfig))
		r.Post("/api/v1/databricks/test", orNotImplemented(deps.TestDatabricks))
		r.Post("/api/v1/databricks/export", orNotImplemented(deps.ExportDatabricks))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
