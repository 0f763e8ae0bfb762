package tenant_test

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kiranshivaraju/tenantsvc/internal/store"
	"github.com/kiranshivaraju/tenantsvc/pkg/models"
)

// memStore is an in-memory Repository, QueueLookup and UserRepository. Like
// the Postgres schema it rejects duplicate codes, unknown queues and deletes
// of referenced tenants.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	tenants map[int64]*models.Tenant
	queues  map[int64]string
	users   map[int64]int // tenant id -> user count

	// hideCodes makes GetTenantByCode always miss, simulating a concurrent
	// writer that slipped in after the service-level check.
	hideCodes bool

	createErr error
	searchErr error
	listErr   error
	countErr  error

	searchCalls int
	txCalls     int
}

func newMemStore() *memStore {
	return &memStore{
		tenants: make(map[int64]*models.Tenant),
		queues:  map[int64]string{1: "default", 2: "etl"},
		users:   make(map[int64]int),
	}
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.txCalls++
	m.mu.Unlock()
	return fn(ctx)
}

func (m *memStore) CreateTenant(_ context.Context, t *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.tenants {
		if existing.TenantCode == t.TenantCode {
			return store.ErrDuplicateKey
		}
	}
	name, ok := m.queues[t.QueueID]
	if !ok {
		return store.ErrForeignKey
	}
	m.nextID++
	t.ID = m.nextID
	t.QueueName = name
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *memStore) GetTenant(_ context.Context, id int64) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) GetTenantForUpdate(ctx context.Context, id int64) (*models.Tenant, error) {
	return m.GetTenant(ctx, id)
}

func (m *memStore) GetTenantByCode(_ context.Context, code string) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hideCodes {
		return nil, store.ErrNotFound
	}
	for _, t := range m.tenants {
		if t.TenantCode == code {
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) UpdateTenant(_ context.Context, t *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[t.ID]; !ok {
		return store.ErrNotFound
	}
	for id, existing := range m.tenants {
		if id != t.ID && existing.TenantCode == t.TenantCode {
			return store.ErrDuplicateKey
		}
	}
	name, ok := m.queues[t.QueueID]
	if !ok {
		return store.ErrForeignKey
	}
	t.QueueName = name
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *memStore) DeleteTenant(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[id]; !ok {
		return store.ErrNotFound
	}
	if m.users[id] > 0 {
		return store.ErrForeignKey
	}
	delete(m.tenants, id)
	return nil
}

func (m *memStore) sorted() []*models.Tenant {
	out := make([]*models.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) ListTenants(_ context.Context) ([]*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sorted(), nil
}

func (m *memStore) SearchTenants(_ context.Context, f store.TenantFilter) ([]*models.Tenant, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	if m.searchErr != nil {
		return nil, 0, m.searchErr
	}

	needle := strings.ToLower(strings.TrimSpace(f.Search))
	var matched []*models.Tenant
	for _, t := range m.sorted() {
		if needle == "" ||
			strings.Contains(strings.ToLower(t.TenantCode), needle) ||
			strings.Contains(strings.ToLower(t.TenantName), needle) {
			matched = append(matched, t)
		}
	}

	total := len(matched)
	if f.Offset >= total {
		return []*models.Tenant{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

func (m *memStore) QueueExists(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.queues[id]
	return ok, nil
}

func (m *memStore) CountUsersByTenant(_ context.Context, tenantID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.users[tenantID], nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tenants)
}

// alwaysQueue answers yes for every queue id.
type alwaysQueue struct{}

func (alwaysQueue) QueueExists(_ context.Context, _ int64) (bool, error) { return true, nil }
