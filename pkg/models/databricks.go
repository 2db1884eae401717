package models

import (
	"time"

	"github.com/google/uuid"
)

// DatabricksConfig is a per-tenant Databricks workspace connection used to
// export completed assessment summaries. The access token is write-only:
// it is accepted on PUT and never echoed back.
type DatabricksConfig struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	TenantID     uuid.UUID `db:"tenant_id"     json:"tenant_id"`
	WorkspaceURL string    `db:"workspace_url" json:"workspace_url"`
	AccessToken  string    `db:"access_token"  json:"-"`
	ClusterID    string    `db:"cluster_id"    json:"cluster_id,omitempty"`
	Active       bool      `db:"active"        json:"active"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}
