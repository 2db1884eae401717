package models

import (
	"time"

	"github.com/google/uuid"
)

// Auth modes supported when connecting to a FHIR server.
const (
	ServerAuthNone  = "none"
	ServerAuthBasic = "basic"
	ServerAuthToken = "token"
)

// Server is a registered FHIR server connection. Credentials are write-only:
// they are accepted on create/update and never serialized back to clients.
type Server struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	TenantID    uuid.UUID `db:"tenant_id"    json:"tenant_id"`
	Name        string    `db:"name"         json:"name"`
	BaseURL     string    `db:"base_url"     json:"base_url"`
	AuthType    string    `db:"auth_type"    json:"auth_type"`
	Username    *string   `db:"username"     json:"-"`
	Password    *string   `db:"password"     json:"-"`
	Token       *string   `db:"token"        json:"-"`
	TimeoutSecs int       `db:"timeout_secs" json:"timeout_secs"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updated_at"`
}
