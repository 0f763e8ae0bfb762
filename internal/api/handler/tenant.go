package handler

import (
	"context"
	"errors"
	"net/http"

	mw "github.com/kiranshivaraju/tenantsvc/internal/api/middleware"
	"github.com/kiranshivaraju/tenantsvc/internal/api/response"
	"github.com/kiranshivaraju/tenantsvc/internal/tenant"
	"github.com/kiranshivaraju/tenantsvc/pkg/models"
)

// TenantService defines the tenant operations the handlers depend on.
type TenantService interface {
	CreateTenant(ctx context.Context, caller models.Principal, f tenant.Fields) (*models.Tenant, error)
	QueryTenantListPaging(ctx context.Context, caller models.Principal, searchVal string, pageNo, pageSize int) (*tenant.Page, error)
	QueryTenantList(ctx context.Context, caller models.Principal) ([]*models.Tenant, error)
	UpdateTenant(ctx context.Context, caller models.Principal, id int64, f tenant.Fields) (*models.Tenant, error)
	DeleteTenantByID(ctx context.Context, caller models.Principal, id int64) error
	VerifyTenantCode(ctx context.Context, code string) error
}

// NewCreateTenantHandler returns an http.HandlerFunc for POST /tenant/create.
func NewCreateTenantHandler(svc TenantService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := admin(w, r)
		if !ok {
			return
		}
		f, err := fieldsParam(r)
		if err != nil {
			writeError(w, err)
			return
		}

		t, err := svc.CreateTenant(r.Context(), caller, f)
		if err != nil {
			writeError(w, err)
			return
		}
		response.Created(w, t)
	}
}

// NewListTenantsPagingHandler returns an http.HandlerFunc for GET /tenant/list-paging.
func NewListTenantsPagingHandler(svc TenantService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := principal(w, r)
		if !ok {
			return
		}
		pageNo, err := intParam(r, "pageNo")
		if err != nil {
			writeError(w, err)
			return
		}
		pageSize, err := intParam(r, "pageSize")
		if err != nil {
			writeError(w, err)
			return
		}

		page, err := svc.QueryTenantListPaging(r.Context(), caller, r.FormValue("searchVal"), pageNo, pageSize)
		if err != nil {
			writeError(w, err)
			return
		}
		response.Paged(w, response.PageData{
			TotalCount: page.TotalCount,
			PageNo:     page.PageNo,
			PageSize:   page.PageSize,
			TotalList:  page.Items,
		})
	}
}

// NewListTenantsHandler returns an http.HandlerFunc for GET /tenant/list.
func NewListTenantsHandler(svc TenantService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := principal(w, r)
		if !ok {
			return
		}
		tenants, err := svc.QueryTenantList(r.Context(), caller)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, tenants)
	}
}

// NewUpdateTenantHandler returns an http.HandlerFunc for POST /tenant/update.
func NewUpdateTenantHandler(svc TenantService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := admin(w, r)
		if !ok {
			return
		}
		id, err := int64Param(r, "id")
		if err != nil {
			writeError(w, err)
			return
		}
		f, err := fieldsParam(r)
		if err != nil {
			writeError(w, err)
			return
		}

		t, err := svc.UpdateTenant(r.Context(), caller, id, f)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, t)
	}
}

// NewDeleteTenantHandler returns an http.HandlerFunc for POST /tenant/delete.
func NewDeleteTenantHandler(svc TenantService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := admin(w, r)
		if !ok {
			return
		}
		id, err := int64Param(r, "id")
		if err != nil {
			writeError(w, err)
			return
		}

		if err := svc.DeleteTenantByID(r.Context(), caller, id); err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, nil)
	}
}

// NewVerifyTenantCodeHandler returns an http.HandlerFunc for
// GET /tenant/verify-tenant-code.
func NewVerifyTenantCodeHandler(svc TenantService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := principal(w, r); !ok {
			return
		}
		if err := svc.VerifyTenantCode(r.Context(), r.FormValue("tenantCode")); err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, nil)
	}
}

func principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := mw.GetPrincipal(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, response.CodeUnauthorized, "Missing principal", nil)
	}
	return p, ok
}

// admin is principal for the mutating routes. Non-admins are refused before
// any parameter is parsed.
func admin(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := principal(w, r)
	if ok && !p.IsAdmin() {
		writeError(w, tenant.PermissionDenied())
		return p, false
	}
	return p, ok
}

// writeError maps a tenant.Error to its HTTP status and envelope. Anything
// unclassified is reported without its cause.
func writeError(w http.ResponseWriter, err error) {
	var e *tenant.Error
	if !errors.As(err, &e) {
		response.Error(w, http.StatusInternalServerError,
			response.CodeInternalError, "An unexpected error occurred", nil)
		return
	}
	response.Error(w, statusFor(e.Kind), e.Code, e.Msg, nil)
}

func statusFor(k tenant.Kind) int {
	switch k {
	case tenant.KindInvalidParameter:
		return http.StatusBadRequest
	case tenant.KindPermissionDenied:
		return http.StatusForbidden
	case tenant.KindTenantNotFound, tenant.KindQueueNotFound:
		return http.StatusNotFound
	case tenant.KindDuplicateTenantCode, tenant.KindTenantInUse:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
