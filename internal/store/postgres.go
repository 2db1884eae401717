package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aks129/fhirspective/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tenants ---

func (s *PostgresStore) GetDefaultTenant(ctx context.Context) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM tenants WHERE name = 'default' LIMIT 1`,
	).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default tenant: %w", err)
	}
	return &t, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, id, tenantID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- FHIR Servers ---

const serverColumns = `id, tenant_id, name, base_url, auth_type, username, password, token, timeout_secs, created_at, updated_at`

func scanServer(row pgx.Row) (*models.Server, error) {
	var srv models.Server
	err := row.Scan(&srv.ID, &srv.TenantID, &srv.Name, &srv.BaseURL, &srv.AuthType,
		&srv.Username, &srv.Password, &srv.Token, &srv.TimeoutSecs, &srv.CreatedAt, &srv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &srv, nil
}

func (s *PostgresStore) CreateServer(ctx context.Context, srv *models.Server) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fhir_servers (id, tenant_id, name, base_url, auth_type, username, password, token, timeout_secs, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		srv.ID, srv.TenantID, srv.Name, srv.BaseURL, srv.AuthType,
		srv.Username, srv.Password, srv.Token, srv.TimeoutSecs, srv.CreatedAt, srv.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create server: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetServer(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Server, error) {
	srv, err := scanServer(s.pool.QueryRow(ctx,
		`SELECT `+serverColumns+` FROM fhir_servers WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get server: %w", err)
	}
	return srv, nil
}

func (s *PostgresStore) ListServers(ctx context.Context, tenantID uuid.UUID) ([]*models.Server, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+serverColumns+` FROM fhir_servers WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer rows.Close()

	var servers []*models.Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

func (s *PostgresStore) UpdateServer(ctx context.Context, srv *models.Server) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE fhir_servers SET name = $3, base_url = $4, auth_type = $5, username = $6,
		   password = $7, token = $8, timeout_secs = $9, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2`,
		srv.ID, srv.TenantID, srv.Name, srv.BaseURL, srv.AuthType,
		srv.Username, srv.Password, srv.Token, srv.TimeoutSecs)
	if err != nil {
		return fmt.Errorf("update server: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteServer(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM fhir_servers WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Assessments ---

const assessmentColumns = `id, tenant_id, server_id, name, resource_types, sample_size, framework,
	dimensions, purpose, remediation, status, error_message, started_at, completed_at, created_at, updated_at`

func scanAssessment(row pgx.Row) (*models.Assessment, error) {
	var a models.Assessment
	err := row.Scan(&a.ID, &a.TenantID, &a.ServerID, &a.Name, &a.ResourceTypes, &a.SampleSize,
		&a.Framework, &a.Dimensions, &a.Purpose, &a.Remediation, &a.Status, &a.ErrorMessage,
		&a.StartedAt, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) CreateAssessment(ctx context.Context, a *models.Assessment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO assessments (id, tenant_id, server_id, name, resource_types, sample_size, framework,
		   dimensions, purpose, remediation, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.TenantID, a.ServerID, a.Name, a.ResourceTypes, a.SampleSize, a.Framework,
		a.Dimensions, a.Purpose, a.Remediation, a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAssessment(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Assessment, error) {
	a, err := scanAssessment(s.pool.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]*models.Assessment, int, error) {
	// Build WHERE clause dynamically
	conditions := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	argIdx := 2

	if filter.ServerID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("server_id = $%d", argIdx))
		args = append(args, filter.ServerID)
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	// Count query
	var total int
	countQuery := "SELECT COUNT(*) FROM assessments WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count assessments: %w", err)
	}

	// Normalize pagination
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	// Data query
	dataQuery := fmt.Sprintf(
		`SELECT `+assessmentColumns+` FROM assessments WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	var assessments []*models.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan assessment: %w", err)
		}
		assessments = append(assessments, a)
	}
	return assessments, total, rows.Err()
}

var validTransitions = map[string][]string{
	models.AssessmentStatusCreated: {models.AssessmentStatusRunning},
	models.AssessmentStatusRunning: {models.AssessmentStatusCompleted, models.AssessmentStatusFailed},
}

func (s *PostgresStore) UpdateAssessmentStatus(ctx context.Context, id uuid.UUID, status string, opts ...AssessmentUpdateOption) error {
	params := &assessmentUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	// Fetch current status
	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM assessments WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get assessment status: %w", err)
	}

	// Validate transition
	allowed := validTransitions[currentStatus]
	valid := false
	for _, a := range allowed {
		if a == status {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE assessments SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if status == models.AssessmentStatusRunning {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status == models.AssessmentStatusCompleted || status == models.AssessmentStatusFailed {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}

	query += " WHERE id = $1"

	_, err = s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update assessment status: %w", err)
	}
	return nil
}

// --- Assessment Results ---

func (s *PostgresStore) CreateAssessmentResult(ctx context.Context, result *models.AssessmentResult) error {
	scores, err := json.Marshal(result.DimensionScores)
	if err != nil {
		return fmt.Errorf("marshal dimension scores: %w", err)
	}
	issues, err := json.Marshal(result.Issues)
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO assessment_results (id, assessment_id, tenant_id, resource_type, resources_evaluated,
		   error_count, warning_count, info_count, dimension_scores, issues, score, grade, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		result.ID, result.AssessmentID, result.TenantID, result.ResourceType, result.ResourcesEvaluated,
		result.ErrorCount, result.WarningCount, result.InfoCount, scores, issues,
		result.Score, result.Grade, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("create assessment result: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAssessmentResults(ctx context.Context, assessmentID uuid.UUID, tenantID uuid.UUID) ([]*models.AssessmentResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, assessment_id, tenant_id, resource_type, resources_evaluated,
		   error_count, warning_count, info_count, dimension_scores, issues, score, grade, created_at
		 FROM assessment_results WHERE assessment_id = $1 AND tenant_id = $2 ORDER BY resource_type`,
		assessmentID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list assessment results: %w", err)
	}
	defer rows.Close()

	var results []*models.AssessmentResult
	for rows.Next() {
		var r models.AssessmentResult
		var scores, issues []byte
		if err := rows.Scan(&r.ID, &r.AssessmentID, &r.TenantID, &r.ResourceType, &r.ResourcesEvaluated,
			&r.ErrorCount, &r.WarningCount, &r.InfoCount, &scores, &issues,
			&r.Score, &r.Grade, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan assessment result: %w", err)
		}
		if err := json.Unmarshal(scores, &r.DimensionScores); err != nil {
			return nil, fmt.Errorf("unmarshal dimension scores: %w", err)
		}
		if err := json.Unmarshal(issues, &r.Issues); err != nil {
			return nil, fmt.Errorf("unmarshal issues: %w", err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

// --- Databricks Config ---

func (s *PostgresStore) GetDatabricksConfig(ctx context.Context, tenantID uuid.UUID) (*models.DatabricksConfig, error) {
	var c models.DatabricksConfig
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, workspace_url, access_token, cluster_id, active, created_at, updated_at
		 FROM databricks_configs WHERE tenant_id = $1`, tenantID,
	).Scan(&c.ID, &c.TenantID, &c.WorkspaceURL, &c.AccessToken, &c.ClusterID, &c.Active,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get databricks config: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) UpsertDatabricksConfig(ctx context.Context, cfg *models.DatabricksConfig) (*models.DatabricksConfig, error) {
	var result models.DatabricksConfig
	err := s.pool.QueryRow(ctx,
		`INSERT INTO databricks_configs (id, tenant_id, workspace_url, access_token, cluster_id, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (tenant_id) DO UPDATE SET
		   workspace_url = EXCLUDED.workspace_url,
		   access_token = CASE WHEN EXCLUDED.access_token <> '' THEN EXCLUDED.access_token ELSE databricks_configs.access_token END,
		   cluster_id = EXCLUDED.cluster_id,
		   active = EXCLUDED.active,
		   updated_at = NOW()
		 RETURNING id, tenant_id, workspace_url, access_token, cluster_id, active, created_at, updated_at`,
		cfg.ID, cfg.TenantID, cfg.WorkspaceURL, cfg.AccessToken, cfg.ClusterID, cfg.Active,
		cfg.CreatedAt, cfg.UpdatedAt,
	).Scan(&result.ID, &result.TenantID, &result.WorkspaceURL, &result.AccessToken, &result.ClusterID,
		&result.Active, &result.CreatedAt, &result.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert databricks config: %w", err)
	}
	return &result, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
