package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/tenantsvc/pkg/models"
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

const tenantColumns = `t.id, t.tenant_code, t.tenant_name, t.queue_id, COALESCE(q.queue_name, ''),
	t.description, t.create_time, t.update_time`

const tenantFrom = ` FROM tenants t LEFT JOIN queues q ON q.id = t.queue_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*models.Tenant, error) {
	var t models.Tenant
	if err := row.Scan(&t.ID, &t.TenantCode, &t.TenantName, &t.QueueID, &t.QueueName,
		&t.Description, &t.CreateTime, &t.UpdateTime); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) CreateTenant(ctx context.Context, t *models.Tenant) error {
	err := s.conn(ctx).QueryRow(ctx,
		`INSERT INTO tenants (tenant_code, tenant_name, queue_id, description, create_time, update_time)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, COALESCE((SELECT queue_name FROM queues WHERE id = queue_id), '')`,
		t.TenantCode, t.TenantName, t.QueueID, t.Description, t.CreateTime, t.UpdateTime,
	).Scan(&t.ID, &t.QueueName)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return ErrForeignKey
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, id int64) (*models.Tenant, error) {
	t, err := scanTenant(s.conn(ctx).QueryRow(ctx,
		`SELECT `+tenantColumns+tenantFrom+` WHERE t.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// GetTenantForUpdate reads a tenant and locks its row until the surrounding
// transaction ends. Only meaningful inside WithTx.
func (s *PostgresStore) GetTenantForUpdate(ctx context.Context, id int64) (*models.Tenant, error) {
	t, err := scanTenant(s.conn(ctx).QueryRow(ctx,
		`SELECT `+tenantColumns+tenantFrom+` WHERE t.id = $1 FOR UPDATE OF t`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant for update: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) GetTenantByCode(ctx context.Context, code string) (*models.Tenant, error) {
	t, err := scanTenant(s.conn(ctx).QueryRow(ctx,
		`SELECT `+tenantColumns+tenantFrom+` WHERE t.tenant_code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by code: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) UpdateTenant(ctx context.Context, t *models.Tenant) error {
	err := s.conn(ctx).QueryRow(ctx,
		`UPDATE tenants
		 SET tenant_code = $2, tenant_name = $3, queue_id = $4, description = $5, update_time = $6
		 WHERE id = $1
		 RETURNING COALESCE((SELECT queue_name FROM queues WHERE id = queue_id), '')`,
		t.ID, t.TenantCode, t.TenantName, t.QueueID, t.Description, t.UpdateTime,
	).Scan(&t.QueueName)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return ErrForeignKey
		}
		return fmt.Errorf("update tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTenant(ctx context.Context, id int64) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrForeignKey
		}
		return fmt.Errorf("delete tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+tenantColumns+tenantFrom+` ORDER BY t.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []*models.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *PostgresStore) SearchTenants(ctx context.Context, filter TenantFilter) ([]*models.Tenant, int, error) {
	where := ""
	args := []any{}
	argIdx := 1

	if search := strings.TrimSpace(filter.Search); search != "" {
		where = fmt.Sprintf(" WHERE (t.tenant_code ILIKE $%d OR t.tenant_name ILIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+escapeLike(search)+"%")
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	// The window count is evaluated before LIMIT, so total and page come from
	// the same snapshot.
	dataQuery := fmt.Sprintf(`SELECT %s, COUNT(*) OVER()%s%s ORDER BY t.id ASC LIMIT $%d OFFSET $%d`,
		tenantColumns, tenantFrom, where, argIdx, argIdx+1)

	rows, err := s.conn(ctx).Query(ctx, dataQuery, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search tenants: %w", err)
	}
	defer rows.Close()

	tenants := []*models.Tenant{}
	total := 0
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.TenantCode, &t.TenantName, &t.QueueID, &t.QueueName,
			&t.Description, &t.CreateTime, &t.UpdateTime, &total); err != nil {
			return nil, 0, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("search tenants: %w", err)
	}
	if len(tenants) > 0 {
		return tenants, total, nil
	}

	// An empty page carries no window row; count separately.
	if err := s.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM tenants t"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tenants: %w", err)
	}
	return tenants, total, nil
}

// --- Queues ---

func (s *PostgresStore) QueueExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM queues WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("queue exists: %w", err)
	}
	return exists, nil
}

// --- Users ---

const userColumns = `id, user_name, user_type, tenant_id, create_time, update_time`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.UserName, &u.UserType, &u.TenantID, &u.CreateTime, &u.UpdateTime); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(s.conn(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	u, err := scanUser(s.conn(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by name: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) CountUsersByTenant(ctx context.Context, tenantID int64) (int, error) {
	var n int
	err := s.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE tenant_id = $1`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users by tenant: %w", err)
	}
	return n, nil
}

// --- API Keys ---

const apiKeyColumns = `id, user_id, name, key_hash, key_prefix, last_used_at, deleted_at, created_at, updated_at`

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	return s.queryAPIKeys(ctx, "get api key by prefix",
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.conn(ctx).Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.conn(ctx).Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return ErrForeignKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID int64) ([]*models.APIKey, error) {
	return s.queryAPIKeys(ctx, "list api keys",
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`,
		userID)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.conn(ctx).Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) queryAPIKeys(ctx context.Context, op, query string, args ...any) ([]*models.APIKey, error) {
	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// escapeLike escapes LIKE metacharacters so the search value matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isForeignKeyError checks if a pgx error is a foreign key violation.
func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}
