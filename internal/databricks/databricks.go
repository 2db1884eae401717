// Package databricks pushes assessment results to a Databricks workspace.
package databricks

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/databricks/databricks-sdk-go"
	"github.com/databricks/databricks-sdk-go/service/files"
	"gopkg.in/ini.v1"

	"github.com/aks129/fhirspective/pkg/models"
)

// ErrNoWorkspace is returned when neither a stored config nor a profile
// fallback yields workspace credentials.
var ErrNoWorkspace = errors.New("no databricks workspace configured")

// maxBlockSize is the DBFS add-block payload limit (1 MB, pre-encoding).
const maxBlockSize = 1024 * 1024

// ConnectionInfo describes a verified workspace connection.
type ConnectionInfo struct {
	User         string `json:"user"`
	WorkspaceURL string `json:"workspace_url"`
	ClusterState string `json:"cluster_state,omitempty"`
}

// Connector verifies workspace credentials and exports result files.
// Indirection exists so handlers can be tested against fakes.
type Connector interface {
	TestConnection(ctx context.Context, cfg *models.DatabricksConfig) (*ConnectionInfo, error)
	Export(ctx context.Context, cfg *models.DatabricksConfig, path string, data []byte) error
}

// SDK implements Connector with the official workspace client.
type SDK struct{}

// NewSDK creates the SDK-backed Connector.
func NewSDK() *SDK {
	return &SDK{}
}

func (s *SDK) client(cfg *models.DatabricksConfig) (*databricks.WorkspaceClient, error) {
	if cfg == nil || cfg.WorkspaceURL == "" {
		return nil, ErrNoWorkspace
	}
	w, err := databricks.NewWorkspaceClient(&databricks.Config{
		Host:  cfg.WorkspaceURL,
		Token: cfg.AccessToken,
	})
	if err != nil {
		return nil, fmt.Errorf("creating workspace client: %w", err)
	}
	return w, nil
}

// TestConnection authenticates against the workspace and, when a cluster id
// is configured, reports the cluster's state.
func (s *SDK) TestConnection(ctx context.Context, cfg *models.DatabricksConfig) (*ConnectionInfo, error) {
	w, err := s.client(cfg)
	if err != nil {
		return nil, err
	}

	me, err := w.CurrentUser.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticating against workspace: %w", err)
	}

	info := &ConnectionInfo{
		User:         me.UserName,
		WorkspaceURL: cfg.WorkspaceURL,
	}

	if cfg.ClusterID != "" {
		cluster, err := w.Clusters.GetByClusterId(ctx, cfg.ClusterID)
		if err != nil {
			return nil, fmt.Errorf("looking up cluster %s: %w", cfg.ClusterID, err)
		}
		info.ClusterState = string(cluster.State)
	}

	return info, nil
}

// Export writes data to a DBFS path using the streaming create/add-block/close
// API, chunking the payload under the add-block size limit.
func (s *SDK) Export(ctx context.Context, cfg *models.DatabricksConfig, path string, data []byte) error {
	w, err := s.client(cfg)
	if err != nil {
		return err
	}

	handle, err := w.Dbfs.Create(ctx, files.Create{
		Path:      path,
		Overwrite: true,
	})
	if err != nil {
		return fmt.Errorf("creating dbfs file %s: %w", path, err)
	}

	for offset := 0; offset < len(data); offset += maxBlockSize {
		end := offset + maxBlockSize
		if end > len(data) {
			end = len(data)
		}
		block := files.AddBlock{
			Handle: handle.Handle,
			Data:   base64.StdEncoding.EncodeToString(data[offset:end]),
		}
		if err := w.Dbfs.AddBlock(ctx, block); err != nil {
			return fmt.Errorf("writing dbfs block at %d: %w", offset, err)
		}
	}

	if err := w.Dbfs.Close(ctx, files.Close{Handle: handle.Handle}); err != nil {
		return fmt.Errorf("closing dbfs file %s: %w", path, err)
	}
	return nil
}

// LoadProfile reads a ~/.databrickscfg profile as a fallback workspace
// connection for tenants without a stored config.
func LoadProfile(path, profile string) (*models.DatabricksConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading databricks config file: %w", err)
	}

	section := cfg.Section(profile)
	host := section.Key("host").String()
	token := section.Key("token").String()
	if host == "" || token == "" {
		return nil, fmt.Errorf("%w: profile %s has no host or token", ErrNoWorkspace, profile)
	}

	return &models.DatabricksConfig{
		WorkspaceURL: host,
		AccessToken:  token,
		ClusterID:    section.Key("cluster_id").String(),
		Active:       true,
	}, nil
}

// Compile-time check that SDK implements Connector.
var _ Connector = (*SDK)(nil)
