package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantsvc/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrForeignKey = errors.New("foreign key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// WithTx runs fn inside a transaction carried on the returned context.
	// Store calls made with that context join the transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateTenant(ctx context.Context, t *models.Tenant) error
	GetTenant(ctx context.Context, id int64) (*models.Tenant, error)
	GetTenantForUpdate(ctx context.Context, id int64) (*models.Tenant, error)
	GetTenantByCode(ctx context.Context, code string) (*models.Tenant, error)
	UpdateTenant(ctx context.Context, t *models.Tenant) error
	DeleteTenant(ctx context.Context, id int64) error
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	SearchTenants(ctx context.Context, filter TenantFilter) ([]*models.Tenant, int, error)

	QueueExists(ctx context.Context, id int64) (bool, error)

	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByName(ctx context.Context, name string) (*models.User, error)
	CountUsersByTenant(ctx context.Context, tenantID int64) (int, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID int64) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// TenantFilter selects one page of tenants. Search matches tenant code or
// name as a case-insensitive substring; empty means no filter.
type TenantFilter struct {
	Search string
	Offset int
	Limit  int
}
