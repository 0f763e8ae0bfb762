package store_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/tenantsvc/internal/store"
	"github.com/kiranshivaraju/tenantsvc/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("tenantsvc_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations
	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// defaultQueueID returns the id of the seeded default queue.
func defaultQueueID(t *testing.T, pool *pgxpool.Pool) int64 {
	t.Helper()
	var id int64
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT id FROM queues WHERE queue_name = 'default'`).Scan(&id))
	return id
}

func newTenant(code string, queueID int64) *models.Tenant {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Tenant{
		TenantCode:  code,
		TenantName:  "Tenant " + code,
		QueueID:     queueID,
		Description: "desc " + code,
		CreateTime:  now,
		UpdateTime:  now,
	}
}

func addUser(t *testing.T, pool *pgxpool.Pool, name string, tenantID int64) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (user_name, user_type, tenant_id) VALUES ($1, 'GENERAL_USER', $2)`, name, tenantID)
	require.NoError(t, err)
}

// --- Tenant Tests ---

func TestTenant_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	tn := newTenant("team_a", defaultQueueID(t, pool))
	require.NoError(t, s.CreateTenant(ctx, tn))
	assert.NotZero(t, tn.ID)
	assert.Equal(t, "default", tn.QueueName)

	got, err := s.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, "team_a", got.TenantCode)
	assert.Equal(t, "Tenant team_a", got.TenantName)
	assert.Equal(t, "default", got.QueueName)
	assert.Equal(t, "desc team_a", got.Description)
	assert.True(t, got.CreateTime.Equal(tn.CreateTime))

	byCode, err := s.GetTenantByCode(ctx, "team_a")
	require.NoError(t, err)
	assert.Equal(t, tn.ID, byCode.ID)
}

func TestTenant_CodeIsCaseSensitive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	q := defaultQueueID(t, pool)

	require.NoError(t, s.CreateTenant(ctx, newTenant("Team", q)))
	require.NoError(t, s.CreateTenant(ctx, newTenant("team", q)))

	_, err := s.GetTenantByCode(ctx, "TEAM")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTenant_DuplicateCode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	q := defaultQueueID(t, pool)

	require.NoError(t, s.CreateTenant(ctx, newTenant("dup", q)))
	err := s.CreateTenant(ctx, newTenant("dup", q))
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestTenant_UnknownQueue(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.CreateTenant(context.Background(), newTenant("orphan", 9999))
	assert.ErrorIs(t, err, store.ErrForeignKey)
}

func TestTenant_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, err := s.GetTenant(ctx, 424242)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetTenantByCode(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTenant_Update(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	q := defaultQueueID(t, pool)

	var etl int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO queues (queue_name, queue) VALUES ('etl', 'etl') RETURNING id`).Scan(&etl))

	tn := newTenant("before", q)
	require.NoError(t, s.CreateTenant(ctx, tn))
	created := tn.CreateTime

	tn.TenantCode = "after"
	tn.TenantName = "After"
	tn.QueueID = etl
	tn.Description = ""
	tn.UpdateTime = tn.UpdateTime.Add(time.Minute)
	require.NoError(t, s.UpdateTenant(ctx, tn))
	assert.Equal(t, "etl", tn.QueueName)

	got, err := s.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.TenantCode)
	assert.Equal(t, "etl", got.QueueName)
	assert.Equal(t, "", got.Description)
	assert.True(t, got.CreateTime.Equal(created))
	assert.True(t, got.UpdateTime.After(created))
}

func TestTenant_UpdateConflicts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	q := defaultQueueID(t, pool)

	a := newTenant("a", q)
	b := newTenant("b", q)
	require.NoError(t, s.CreateTenant(ctx, a))
	require.NoError(t, s.CreateTenant(ctx, b))

	b.TenantCode = "a"
	assert.ErrorIs(t, s.UpdateTenant(ctx, b), store.ErrDuplicateKey)

	b.TenantCode = "b"
	b.QueueID = 9999
	assert.ErrorIs(t, s.UpdateTenant(ctx, b), store.ErrForeignKey)

	missing := newTenant("ghost", q)
	missing.ID = 424242
	assert.ErrorIs(t, s.UpdateTenant(ctx, missing), store.ErrNotFound)
}

func TestTenant_Delete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	tn := newTenant("gone", defaultQueueID(t, pool))
	require.NoError(t, s.CreateTenant(ctx, tn))

	require.NoError(t, s.DeleteTenant(ctx, tn.ID))
	_, err := s.GetTenant(ctx, tn.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.DeleteTenant(ctx, tn.ID), store.ErrNotFound)

	// The code is free again.
	require.NoError(t, s.CreateTenant(ctx, newTenant("gone", tn.QueueID)))
}

func TestTenant_DeleteReferencedByUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	tn := newTenant("busy", defaultQueueID(t, pool))
	require.NoError(t, s.CreateTenant(ctx, tn))
	addUser(t, pool, "alice", tn.ID)

	n, err := s.CountUsersByTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.ErrorIs(t, s.DeleteTenant(ctx, tn.ID), store.ErrForeignKey)
	_, err = s.GetTenant(ctx, tn.ID)
	assert.NoError(t, err)
}

func TestTenant_ListOrderedByID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	q := defaultQueueID(t, pool)

	empty, err := s.ListTenants(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for _, code := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.CreateTenant(ctx, newTenant(code, q)))
	}

	all, err := s.ListTenants(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "zeta", all[0].TenantCode)
	assert.Equal(t, "alpha", all[1].TenantCode)
	assert.Equal(t, "mid", all[2].TenantCode)
	assert.Less(t, all[0].ID, all[1].ID)
}

func TestTenant_SearchPaging(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	q := defaultQueueID(t, pool)

	for i := 1; i <= 12; i++ {
		require.NoError(t, s.CreateTenant(ctx, newTenant(fmt.Sprintf("team_%02d", i), q)))
	}
	require.NoError(t, s.CreateTenant(ctx, newTenant("other", q)))

	page, total, err := s.SearchTenants(ctx, store.TenantFilter{Offset: 5, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 13, total)
	require.Len(t, page, 5)
	assert.Equal(t, "team_06", page[0].TenantCode)

	page, total, err = s.SearchTenants(ctx, store.TenantFilter{Search: "TEAM", Offset: 10, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	require.Len(t, page, 2)
	assert.Equal(t, "team_11", page[0].TenantCode)
	assert.Equal(t, "team_12", page[1].TenantCode)

	page, total, err = s.SearchTenants(ctx, store.TenantFilter{Search: "team", Offset: 100, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	assert.NotNil(t, page)
	assert.Empty(t, page)
}

func TestTenant_SearchTotalCountsWholeMatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	q := defaultQueueID(t, pool)

	page, total, err := s.SearchTenants(ctx, store.TenantFilter{Offset: 0, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NotNil(t, page)
	assert.Empty(t, page)

	for i := 1; i <= 7; i++ {
		require.NoError(t, s.CreateTenant(ctx, newTenant(fmt.Sprintf("ops_%d", i), q)))
	}

	// The total comes with every row of the page and covers rows beyond it.
	page, total, err = s.SearchTenants(ctx, store.TenantFilter{Search: "ops", Offset: 0, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, page, 3)
	assert.Equal(t, "ops_1", page[0].TenantCode)
	assert.Equal(t, "default", page[0].QueueName)

	page, total, err = s.SearchTenants(ctx, store.TenantFilter{Search: "ops", Offset: 6, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, page, 1)
	assert.Equal(t, "ops_7", page[0].TenantCode)

	page, total, err = s.SearchTenants(ctx, store.TenantFilter{Search: "missing", Offset: 0, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, page)
}

func TestTenant_SearchMatchesNameAndEscapesWildcards(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	q := defaultQueueID(t, pool)

	pct := newTenant("pct", q)
	pct.TenantName = "100% Growth"
	require.NoError(t, s.CreateTenant(ctx, pct))
	require.NoError(t, s.CreateTenant(ctx, newTenant("plain", q)))

	page, total, err := s.SearchTenants(ctx, store.TenantFilter{Search: "growth", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, "pct", page[0].TenantCode)

	_, total, err = s.SearchTenants(ctx, store.TenantFilter{Search: "%", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

// --- Queue / User Tests ---

func TestQueueExists(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	ok, err := s.QueueExists(ctx, defaultQueueID(t, pool))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.QueueExists(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUser_SeededAdmin(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	admin, err := s.GetUserByName(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.UserTypeAdmin, admin.UserType)
	assert.Nil(t, admin.TenantID)

	byID, err := s.GetUser(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", byID.UserName)

	_, err = s.GetUser(ctx, 424242)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Transaction Tests ---

func TestWithTx_RollbackOnError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	q := defaultQueueID(t, pool)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.CreateTenant(ctx, newTenant("rolled_back", q)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetTenantByCode(ctx, "rolled_back")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTx_Commit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	q := defaultQueueID(t, pool)

	err := s.WithTx(ctx, func(ctx context.Context) error {
		return s.CreateTenant(ctx, newTenant("kept", q))
	})
	require.NoError(t, err)

	_, err = s.GetTenantByCode(ctx, "kept")
	assert.NoError(t, err)
}

func TestWithTx_NestedSavepoint(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	q := defaultQueueID(t, pool)

	err := s.WithTx(ctx, func(ctx context.Context) error {
		if err := s.CreateTenant(ctx, newTenant("outer", q)); err != nil {
			return err
		}
		inner := s.WithTx(ctx, func(ctx context.Context) error {
			require.NoError(t, s.CreateTenant(ctx, newTenant("inner", q)))
			return errors.New("undo inner")
		})
		assert.Error(t, inner)
		return nil
	})
	require.NoError(t, err)

	_, err = s.GetTenantByCode(ctx, "outer")
	assert.NoError(t, err)
	_, err = s.GetTenantByCode(ctx, "inner")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetTenantForUpdate_BlocksConcurrentDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	tn := newTenant("locked", defaultQueueID(t, pool))
	require.NoError(t, s.CreateTenant(ctx, tn))

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithTx(ctx, func(ctx context.Context) error {
			if _, err := s.GetTenantForUpdate(ctx, tn.ID); err != nil {
				close(locked)
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	deleted := make(chan error, 1)
	go func() { deleted <- s.DeleteTenant(ctx, tn.ID) }()

	select {
	case err := <-deleted:
		t.Fatalf("delete finished while row was locked: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, <-deleted)
}

// --- API Key Tests ---

func adminID(t *testing.T, s *store.PostgresStore) int64 {
	t.Helper()
	u, err := s.GetUserByName(context.Background(), "admin")
	require.NoError(t, err)
	return u.ID
}

func TestAPIKey_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := &models.APIKey{
		ID:        uuid.New(),
		UserID:    adminID(t, s),
		Name:      "test-key",
		KeyHash:   "bcrypt-hash-here",
		KeyPrefix: "tsk_abcd",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "tsk_abcd")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, key.UserID, keys[0].UserID)
	assert.Equal(t, "bcrypt-hash-here", keys[0].KeyHash)
	assert.Nil(t, keys[0].LastUsedAt)
}

func TestAPIKey_UnknownUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	now := time.Now().UTC()
	err := s.CreateAPIKey(context.Background(), &models.APIKey{
		ID: uuid.New(), UserID: 424242, Name: "x", KeyHash: "h", KeyPrefix: "tsk_xxxx",
		CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, store.ErrForeignKey)
}

func TestAPIKey_ListAndRevoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	uid := adminID(t, s)

	now := time.Now().UTC()
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		k := &models.APIKey{
			ID:        uuid.New(),
			UserID:    uid,
			Name:      fmt.Sprintf("key-%d", i),
			KeyHash:   "hash",
			KeyPrefix: fmt.Sprintf("tsk_%04d", i),
			CreatedAt: now.Add(time.Duration(i) * time.Second),
			UpdatedAt: now,
		}
		require.NoError(t, s.CreateAPIKey(ctx, k))
		ids = append(ids, k.ID)
	}

	keys, err := s.ListAPIKeys(ctx, uid)
	require.NoError(t, err)
	require.Len(t, keys, 3)
	assert.Equal(t, "key-2", keys[0].Name)

	require.NoError(t, s.RevokeAPIKey(ctx, ids[0]))
	assert.ErrorIs(t, s.RevokeAPIKey(ctx, ids[0]), store.ErrNotFound)

	keys, err = s.ListAPIKeys(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	byPrefix, err := s.GetAPIKeyByPrefix(ctx, "tsk_0000")
	require.NoError(t, err)
	assert.Empty(t, byPrefix)
}

func TestAPIKey_UpdateLastUsed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now().UTC()
	key := &models.APIKey{
		ID: uuid.New(), UserID: adminID(t, s), Name: "used", KeyHash: "h", KeyPrefix: "tsk_used",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))
	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))

	keys, err := s.GetAPIKeyByPrefix(ctx, "tsk_used")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	assert.NoError(t, s.Ping(context.Background()))
}

var _ store.Store = (*store.PostgresStore)(nil)
