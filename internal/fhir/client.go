package fhir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aks129/fhirspective/pkg/models"
)

// Sentinel errors for FHIR client failures.
var (
	ErrServerUnreachable = errors.New("fhir server unreachable")
	ErrSearchFailed      = errors.New("fhir search failed")
	ErrTimeout           = errors.New("fhir request timeout")
)

// Client is the interface for talking to a FHIR server.
type Client interface {
	Metadata(ctx context.Context) (*CapabilityStatement, error)
	Search(ctx context.Context, req SearchRequest) ([]models.Resource, error)
}

// SearchRequest defines parameters for a FHIR type-level search.
type SearchRequest struct {
	ResourceType string
	// Query is the encoded search parameter string, without a leading "?".
	Query string
	// MaxResults caps how many resources are collected across pages.
	MaxResults int
}

// Factory builds a Client for a registered server. Indirection exists so
// handlers and the assessment runner can be tested against fakes.
type Factory func(srv *models.Server) Client

// DefaultFactory returns a Factory producing HTTP clients. defaultTimeout
// applies when the server row carries no timeout of its own.
func DefaultFactory(defaultTimeout time.Duration) Factory {
	return func(srv *models.Server) Client {
		return NewHTTPClient(srv, defaultTimeout)
	}
}

// HTTPClient implements Client against a FHIR R4 REST endpoint.
type HTTPClient struct {
	baseURL  string
	authType string
	username string
	password string
	token    string
	client   *http.Client
}

// NewHTTPClient creates a client for one registered server.
func NewHTTPClient(srv *models.Server, defaultTimeout time.Duration) *HTTPClient {
	timeout := defaultTimeout
	if srv.TimeoutSecs > 0 {
		timeout = time.Duration(srv.TimeoutSecs) * time.Second
	}
	c := &HTTPClient{
		baseURL:  strings.TrimRight(srv.BaseURL, "/"),
		authType: srv.AuthType,
		client:   &http.Client{Timeout: timeout},
	}
	if srv.Username != nil {
		c.username = *srv.Username
	}
	if srv.Password != nil {
		c.password = *srv.Password
	}
	if srv.Token != nil {
		c.token = *srv.Token
	}
	return c
}

// Metadata fetches the server's CapabilityStatement. Used by connection tests.
func (c *HTTPClient) Metadata(ctx context.Context) (*CapabilityStatement, error) {
	u := fmt.Sprintf("%s/metadata", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: metadata status %d", ErrServerUnreachable, resp.StatusCode)
	}

	var cs CapabilityStatement
	if err := json.NewDecoder(resp.Body).Decode(&cs); err != nil {
		return nil, fmt.Errorf("decoding capability statement: %w", err)
	}
	return &cs, nil
}

// Search runs a type-level search and follows bundle next links until
// MaxResults resources are collected or the server runs out of pages.
func (c *HTTPClient) Search(ctx context.Context, req SearchRequest) ([]models.Resource, error) {
	u := fmt.Sprintf("%s/%s", c.baseURL, req.ResourceType)
	if req.Query != "" {
		u += "?" + req.Query
	}

	var resources []models.Resource
	for u != "" {
		bundle, err := c.fetchBundle(ctx, u)
		if err != nil {
			return nil, err
		}

		for _, entry := range bundle.Entry {
			if len(entry.Resource) == 0 {
				continue
			}
			var res models.Resource
			if err := json.Unmarshal(entry.Resource, &res); err != nil {
				return nil, fmt.Errorf("decoding bundle entry: %w", err)
			}
			resources = append(resources, res)
			if req.MaxResults > 0 && len(resources) >= req.MaxResults {
				return resources, nil
			}
		}

		u = bundle.NextLink()
	}

	if resources == nil {
		return []models.Resource{}, nil
	}
	return resources, nil
}

func (c *HTTPClient) fetchBundle(ctx context.Context, u string) (*Bundle, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrSearchFailed, resp.StatusCode)
	}

	var bundle Bundle
	if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("decoding bundle: %w", err)
	}
	return &bundle, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/fhir+json")
	switch c.authType {
	case models.ServerAuthBasic:
		req.SetBasicAuth(c.username, c.password)
	case models.ServerAuthToken:
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrServerUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrServerUnreachable, err)
}

// --- FHIR wire types ---

// Bundle is a FHIR searchset bundle. Entry resources stay raw until decoded
// into models.Resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        int           `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// NextLink returns the bundle's "next" paging link, or "" when this is the
// last page.
func (b *Bundle) NextLink() string {
	for _, l := range b.Link {
		if l.Relation == "next" {
			return l.URL
		}
	}
	return ""
}

// CapabilityStatement is the subset of /metadata needed for connection tests.
type CapabilityStatement struct {
	ResourceType string `json:"resourceType"`
	FHIRVersion  string `json:"fhirVersion"`
	Software     struct {
		Name    string `json:"name,omitempty"`
		Version string `json:"version,omitempty"`
	} `json:"software,omitempty"`
	Rest []struct {
		Mode     string `json:"mode,omitempty"`
		Resource []struct {
			Type string `json:"type"`
		} `json:"resource,omitempty"`
	} `json:"rest,omitempty"`
}

// SupportedResourceTypes flattens the rest/resource declarations into the
// resource type names the server serves.
func (cs *CapabilityStatement) SupportedResourceTypes() []string {
	var types []string
	seen := make(map[string]bool)
	for _, rest := range cs.Rest {
		for _, res := range rest.Resource {
			if res.Type == "" || seen[res.Type] {
				continue
			}
			seen[res.Type] = true
			types = append(types, res.Type)
		}
	}
	return types
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
