// Package tenant implements the tenant lifecycle: creation with unique codes,
// queue binding, paged search, update and reference-checked deletion.
package tenant

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/kiranshivaraju/tenantsvc/internal/store"
	"github.com/kiranshivaraju/tenantsvc/pkg/models"
)

// Repository persists tenants. The storage layer must enforce uniqueness of
// tenant codes and the queue reference; it reports violations as
// store.ErrDuplicateKey and store.ErrForeignKey.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateTenant(ctx context.Context, t *models.Tenant) error
	GetTenant(ctx context.Context, id int64) (*models.Tenant, error)
	GetTenantForUpdate(ctx context.Context, id int64) (*models.Tenant, error)
	GetTenantByCode(ctx context.Context, code string) (*models.Tenant, error)
	UpdateTenant(ctx context.Context, t *models.Tenant) error
	DeleteTenant(ctx context.Context, id int64) error
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	SearchTenants(ctx context.Context, filter store.TenantFilter) ([]*models.Tenant, int, error)
}

// QueueLookup resolves queue references.
type QueueLookup interface {
	QueueExists(ctx context.Context, id int64) (bool, error)
}

// UserRepository answers whether users still reference a tenant.
type UserRepository interface {
	CountUsersByTenant(ctx context.Context, tenantID int64) (int, error)
}

// Page is one page of a tenant listing, ordered by id ascending.
type Page struct {
	TotalCount int              `json:"totalCount"`
	PageNo     int              `json:"pageNo"`
	PageSize   int              `json:"pageSize"`
	Items      []*models.Tenant `json:"totalList"`
}

// Service is a stateless facade over the tenant repository. It is safe for
// concurrent use; the repository is the source of truth.
type Service struct {
	repo   Repository
	queues QueueLookup
	users  UserRepository
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new Service.
func NewService(repo Repository, queues QueueLookup, users UserRepository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		queues: queues,
		users:  users,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTenant validates f, checks code uniqueness and the queue reference,
// and persists a new tenant with creation and update time set to now.
func (s *Service) CreateTenant(ctx context.Context, caller models.Principal, f Fields) (*models.Tenant, error) {
	s.logger.InfoContext(ctx, "create tenant", "user", caller.UserName,
		"tenant_code", f.Code, "tenant_name", f.Name, "queue_id", f.QueueID)

	if !caller.IsAdmin() {
		return nil, PermissionDenied()
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	if err := s.ensureCodeAvailable(ctx, f.Code, 0); err != nil {
		return nil, s.fail(ctx, opCreate, err)
	}
	if err := s.ensureQueue(ctx, f.QueueID); err != nil {
		return nil, s.fail(ctx, opCreate, err)
	}

	now := s.now().UTC()
	t := &models.Tenant{
		TenantCode:  f.Code,
		TenantName:  f.Name,
		QueueID:     f.QueueID,
		Description: f.Description,
		CreateTime:  now,
		UpdateTime:  now,
	}

	if err := s.repo.CreateTenant(ctx, t); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateKey):
			return nil, duplicateTenantCode(f.Code)
		case errors.Is(err, store.ErrForeignKey):
			return nil, queueNotFound(f.QueueID)
		}
		return nil, s.fail(ctx, opCreate, err)
	}

	s.logger.InfoContext(ctx, "tenant created", "tenant_id", t.ID, "tenant_code", t.TenantCode)
	return t, nil
}

// QueryTenantListPaging returns the requested page of tenants whose code or
// name contains searchVal, ignoring case. A page past the end is empty.
func (s *Service) QueryTenantListPaging(ctx context.Context, caller models.Principal, searchVal string, pageNo, pageSize int) (*Page, error) {
	s.logger.InfoContext(ctx, "query tenant list paging", "user", caller.UserName,
		"page_no", pageNo, "page_size", pageSize, "search_val", searchVal)

	if err := CheckPageParams(pageNo, pageSize); err != nil {
		return nil, err
	}

	offset := math.MaxInt32
	if pageNo-1 <= math.MaxInt32/pageSize {
		offset = (pageNo - 1) * pageSize
	}

	items, total, err := s.repo.SearchTenants(ctx, store.TenantFilter{
		Search: searchVal,
		Offset: offset,
		Limit:  pageSize,
	})
	if err != nil {
		return nil, s.fail(ctx, opPaging, err)
	}
	if items == nil {
		items = []*models.Tenant{}
	}

	return &Page{
		TotalCount: total,
		PageNo:     pageNo,
		PageSize:   pageSize,
		Items:      items,
	}, nil
}

// QueryTenantList returns every tenant, unpaged, in the same id order as
// QueryTenantListPaging.
func (s *Service) QueryTenantList(ctx context.Context, caller models.Principal) ([]*models.Tenant, error) {
	s.logger.InfoContext(ctx, "query tenant list", "user", caller.UserName)

	tenants, err := s.repo.ListTenants(ctx)
	if err != nil {
		return nil, s.fail(ctx, opList, err)
	}
	if tenants == nil {
		tenants = []*models.Tenant{}
	}
	return tenants, nil
}

// UpdateTenant replaces the mutable fields of tenant id and refreshes its
// update time. The id and creation time never change.
func (s *Service) UpdateTenant(ctx context.Context, caller models.Principal, id int64, f Fields) (*models.Tenant, error) {
	s.logger.InfoContext(ctx, "update tenant", "user", caller.UserName, "tenant_id", id,
		"tenant_code", f.Code, "tenant_name", f.Name, "queue_id", f.QueueID)

	if !caller.IsAdmin() {
		return nil, PermissionDenied()
	}
	if err := f.validate(); err != nil {
		return nil, err
	}

	current, err := s.repo.GetTenant(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, tenantNotFound(id)
	}
	if err != nil {
		return nil, s.fail(ctx, opUpdate, err)
	}

	if current.TenantCode != f.Code {
		if err := s.ensureCodeAvailable(ctx, f.Code, id); err != nil {
			return nil, s.fail(ctx, opUpdate, err)
		}
	}
	if err := s.ensureQueue(ctx, f.QueueID); err != nil {
		return nil, s.fail(ctx, opUpdate, err)
	}

	updated := *current
	updated.TenantCode = f.Code
	updated.TenantName = f.Name
	updated.QueueID = f.QueueID
	updated.Description = f.Description
	updated.UpdateTime = s.now().UTC()

	if err := s.repo.UpdateTenant(ctx, &updated); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, tenantNotFound(id)
		case errors.Is(err, store.ErrDuplicateKey):
			return nil, duplicateTenantCode(f.Code)
		case errors.Is(err, store.ErrForeignKey):
			return nil, queueNotFound(f.QueueID)
		}
		return nil, s.fail(ctx, opUpdate, err)
	}

	s.logger.InfoContext(ctx, "tenant updated", "tenant_id", id, "tenant_code", updated.TenantCode)
	return &updated, nil
}

// DeleteTenantByID permanently removes a tenant that no user references. The
// reference check and the delete share one transaction.
func (s *Service) DeleteTenantByID(ctx context.Context, caller models.Principal, id int64) error {
	s.logger.InfoContext(ctx, "delete tenant", "user", caller.UserName, "tenant_id", id)

	if !caller.IsAdmin() {
		return PermissionDenied()
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetTenantForUpdate(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return tenantNotFound(id)
		}
		if err != nil {
			return err
		}

		users, err := s.users.CountUsersByTenant(ctx, id)
		if err != nil {
			return err
		}
		if users > 0 {
			s.logger.InfoContext(ctx, "tenant still referenced", "tenant_id", id, "users", users)
			return tenantInUse(t.TenantCode)
		}

		switch err := s.repo.DeleteTenant(ctx, id); {
		case errors.Is(err, store.ErrNotFound):
			return tenantNotFound(id)
		case errors.Is(err, store.ErrForeignKey):
			return tenantInUse(t.TenantCode)
		default:
			return err
		}
	})
	if err != nil {
		return s.fail(ctx, opDelete, err)
	}

	s.logger.InfoContext(ctx, "tenant deleted", "tenant_id", id)
	return nil
}

// VerifyTenantCode returns nil when code is well-formed and not held by any
// tenant. The answer is point-in-time; a later create may still fail with
// DuplicateTenantCode.
func (s *Service) VerifyTenantCode(ctx context.Context, code string) error {
	s.logger.InfoContext(ctx, "verify tenant code", "tenant_code", code)

	if err := ValidateCode(code); err != nil {
		return err
	}
	if err := s.ensureCodeAvailable(ctx, code, 0); err != nil {
		return s.fail(ctx, opVerify, err)
	}
	return nil
}

// ensureCodeAvailable fails with DuplicateTenantCode when a tenant other than
// self holds code. Pass self = 0 when there is no current tenant.
func (s *Service) ensureCodeAvailable(ctx context.Context, code string, self int64) error {
	t, err := s.repo.GetTenantByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if t.ID == self {
		return nil
	}
	return duplicateTenantCode(code)
}

func (s *Service) ensureQueue(ctx context.Context, queueID int64) error {
	ok, err := s.queues.QueueExists(ctx, queueID)
	if err != nil {
		return err
	}
	if !ok {
		return queueNotFound(queueID)
	}
	return nil
}

// fail passes classified errors through and turns anything else into the
// operation's internal error, logging the cause.
func (s *Service) fail(ctx context.Context, op operation, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	s.logger.ErrorContext(ctx, op.msg, "op", op.name, "error", err)
	return internal(op, err)
}
