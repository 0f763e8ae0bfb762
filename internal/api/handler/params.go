package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/tenantsvc/internal/tenant"
)

// Parameters come from the query string or a form-encoded body.

func intParam(r *http.Request, name string) (int, error) {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return 0, tenant.InvalidParameter(name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, tenant.InvalidParameter(name)
	}
	return n, nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return 0, tenant.InvalidParameter(name)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, tenant.InvalidParameter(name)
	}
	return n, nil
}

// descParam reads "desc", falling back to "description".
func descParam(r *http.Request) string {
	if v := r.FormValue("desc"); v != "" {
		return v
	}
	return r.FormValue("description")
}

func fieldsParam(r *http.Request) (tenant.Fields, error) {
	queueID, err := int64Param(r, "queueId")
	if err != nil {
		return tenant.Fields{}, err
	}
	return tenant.Fields{
		Code:        r.FormValue("tenantCode"),
		Name:        r.FormValue("tenantName"),
		QueueID:     queueID,
		Description: descParam(r),
	}, nil
}
