package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/aks129/fhirspective/internal/api/middleware"
	"github.com/aks129/fhirspective/internal/api/response"
	"github.com/aks129/fhirspective/internal/fhir"
	"github.com/aks129/fhirspective/internal/store"
	"github.com/aks129/fhirspective/pkg/models"
)

// ServerStore defines the store methods the server handlers depend on.
type ServerStore interface {
	CreateServer(ctx context.Context, srv *models.Server) error
	GetServer(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Server, error)
	ListServers(ctx context.Context, tenantID uuid.UUID) ([]*models.Server, error)
	UpdateServer(ctx context.Context, srv *models.Server) error
	DeleteServer(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
}

type serverRequest struct {
	Name        string  `json:"name"`
	BaseURL     string  `json:"base_url"`
	AuthType    string  `json:"auth_type"`
	Username    *string `json:"username,omitempty"`
	Password    *string `json:"password,omitempty"`
	Token       *string `json:"token,omitempty"`
	TimeoutSecs int     `json:"timeout_secs"`
}

func (req *serverRequest) validate() (string, bool) {
	if req.Name == "" {
		return "name is required", false
	}
	if req.BaseURL == "" {
		return "base_url is required", false
	}
	u, err := url.Parse(req.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "base_url must be an absolute http(s) URL", false
	}
	if req.AuthType == "" {
		req.AuthType = models.ServerAuthNone
	}
	switch req.AuthType {
	case models.ServerAuthNone:
	case models.ServerAuthBasic:
		if req.Username == nil || req.Password == nil {
			return "basic auth requires username and password", false
		}
	case models.ServerAuthToken:
		if req.Token == nil {
			return "token auth requires token", false
		}
	default:
		return "auth_type must be one of none, basic, token", false
	}
	if req.TimeoutSecs < 0 {
		return "timeout_secs must not be negative", false
	}
	return "", true
}

// NewCreateServerHandler returns an http.HandlerFunc for POST /api/v1/servers.
func NewCreateServerHandler(st ServerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req serverRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if msg, ok := req.validate(); !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
			return
		}

		now := time.Now().UTC()
		srv := &models.Server{
			ID:          uuid.New(),
			TenantID:    tenantID,
			Name:        req.Name,
			BaseURL:     req.BaseURL,
			AuthType:    req.AuthType,
			Username:    req.Username,
			Password:    req.Password,
			Token:       req.Token,
			TimeoutSecs: req.TimeoutSecs,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := st.CreateServer(r.Context(), srv); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_NAME",
					"A server with this name already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Created(w, srv)
	}
}

// NewListServersHandler returns an http.HandlerFunc for GET /api/v1/servers.
func NewListServersHandler(st ServerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		servers, err := st.ListServers(r.Context(), tenantID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if servers == nil {
			servers = []*models.Server{}
		}

		response.JSON(w, servers)
	}
}

// NewGetServerHandler returns an http.HandlerFunc for GET /api/v1/servers/{serverID}.
func NewGetServerHandler(st ServerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "serverID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid server id", nil)
			return
		}

		srv, err := st.GetServer(r.Context(), id, tenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Server not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, srv)
	}
}

// NewUpdateServerHandler returns an http.HandlerFunc for PUT /api/v1/servers/{serverID}.
func NewUpdateServerHandler(st ServerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "serverID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid server id", nil)
			return
		}

		var req serverRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if msg, ok := req.validate(); !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
			return
		}

		existing, err := st.GetServer(r.Context(), id, tenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Server not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		existing.Name = req.Name
		existing.BaseURL = req.BaseURL
		existing.AuthType = req.AuthType
		// Absent credentials keep their stored values so clients can update
		// a server without re-sending secrets.
		if req.Username != nil {
			existing.Username = req.Username
		}
		if req.Password != nil {
			existing.Password = req.Password
		}
		if req.Token != nil {
			existing.Token = req.Token
		}
		existing.TimeoutSecs = req.TimeoutSecs

		if err := st.UpdateServer(r.Context(), existing); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Server not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, existing)
	}
}

// NewDeleteServerHandler returns an http.HandlerFunc for DELETE /api/v1/servers/{serverID}.
func NewDeleteServerHandler(st ServerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "serverID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid server id", nil)
			return
		}

		if err := st.DeleteServer(r.Context(), id, tenantID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Server not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.NoContent(w)
	}
}

type testServerResponse struct {
	Reachable     bool     `json:"reachable"`
	FHIRVersion   string   `json:"fhir_version,omitempty"`
	Software      string   `json:"software,omitempty"`
	ResourceTypes []string `json:"resource_types,omitempty"`
}

// NewTestServerHandler returns an http.HandlerFunc for POST /api/v1/servers/{serverID}/test.
// It fetches the server's CapabilityStatement to verify connectivity.
func NewTestServerHandler(st ServerStore, clients fhir.Factory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "serverID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid server id", nil)
			return
		}

		srv, err := st.GetServer(r.Context(), id, tenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Server not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		cs, err := clients(srv).Metadata(r.Context())
		if err != nil {
			switch {
			case errors.Is(err, fhir.ErrTimeout):
				response.Error(w, http.StatusGatewayTimeout, "SERVER_TIMEOUT",
					"The FHIR server did not respond in time", nil)
			case errors.Is(err, fhir.ErrServerUnreachable):
				response.Error(w, http.StatusBadGateway, "SERVER_UNREACHABLE",
					"The FHIR server could not be reached", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.JSON(w, testServerResponse{
			Reachable:     true,
			FHIRVersion:   cs.FHIRVersion,
			Software:      cs.Software.Name,
			ResourceTypes: cs.SupportedResourceTypes(),
		})
	}
}
