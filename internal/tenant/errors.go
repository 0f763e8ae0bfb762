package tenant

import (
	"errors"
	"fmt"
)

// Kind classifies a failed tenant operation.
type Kind string

const (
	KindInvalidParameter    Kind = "InvalidParameter"
	KindDuplicateTenantCode Kind = "DuplicateTenantCode"
	KindQueueNotFound       Kind = "QueueNotFound"
	KindTenantNotFound      Kind = "TenantNotFound"
	KindTenantInUse         Kind = "TenantInUse"
	KindPermissionDenied    Kind = "PermissionDenied"
	KindInternal            Kind = "InternalError"
)

// Stable result codes. Internal errors carry the code of the operation that
// failed rather than a shared one.
const (
	CodeSuccess             = 0
	CodeInvalidParameter    = 10001
	CodeDuplicateTenantCode = 10009
	CodeTenantNotFound      = 10017
	CodeQueueNotFound       = 10128
	CodeTenantInUse         = 10134
	CodePermissionDenied    = 30001

	CodeCreateTenantError      = 10041
	CodeQueryTenantPagingError = 10042
	CodeQueryTenantListError   = 10043
	CodeUpdateTenantError      = 10044
	CodeDeleteTenantError      = 10045
	CodeVerifyTenantCodeError  = 10046
)

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrInvalidParameter    = &Error{Kind: KindInvalidParameter}
	ErrDuplicateTenantCode = &Error{Kind: KindDuplicateTenantCode}
	ErrQueueNotFound       = &Error{Kind: KindQueueNotFound}
	ErrTenantNotFound      = &Error{Kind: KindTenantNotFound}
	ErrTenantInUse         = &Error{Kind: KindTenantInUse}
	ErrPermissionDenied    = &Error{Kind: KindPermissionDenied}
	ErrInternal            = &Error{Kind: KindInternal}
)

// Error is the structured failure returned by every Service operation.
// Code and Msg are safe to show to callers; Err is the internal cause and
// is never exposed.
type Error struct {
	Kind Kind
	Code int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// InvalidParameter reports a missing or malformed request field.
func InvalidParameter(field string) *Error {
	return &Error{
		Kind: KindInvalidParameter,
		Code: CodeInvalidParameter,
		Msg:  fmt.Sprintf("request parameter %s is not valid", field),
	}
}

func duplicateTenantCode(code string) *Error {
	return &Error{
		Kind: KindDuplicateTenantCode,
		Code: CodeDuplicateTenantCode,
		Msg:  fmt.Sprintf("tenant code %s already exists", code),
	}
}

func queueNotFound(id int64) *Error {
	return &Error{
		Kind: KindQueueNotFound,
		Code: CodeQueueNotFound,
		Msg:  fmt.Sprintf("queue %d not exists", id),
	}
}

func tenantNotFound(id int64) *Error {
	return &Error{
		Kind: KindTenantNotFound,
		Code: CodeTenantNotFound,
		Msg:  fmt.Sprintf("tenant %d not exists", id),
	}
}

func tenantInUse(code string) *Error {
	return &Error{
		Kind: KindTenantInUse,
		Code: CodeTenantInUse,
		Msg:  fmt.Sprintf("tenant %s is still referenced by users", code),
	}
}

// PermissionDenied reports a caller that may not modify tenants.
func PermissionDenied() *Error {
	return &Error{
		Kind: KindPermissionDenied,
		Code: CodePermissionDenied,
		Msg:  "user has no operation privilege",
	}
}

// operation names the service call for internal error codes and logging.
type operation struct {
	name string
	code int
	msg  string
}

var (
	opCreate = operation{"create_tenant", CodeCreateTenantError, "create tenant error"}
	opPaging = operation{"query_tenant_list_paging", CodeQueryTenantPagingError, "query tenant list paging error"}
	opList   = operation{"query_tenant_list", CodeQueryTenantListError, "query tenant list error"}
	opUpdate = operation{"update_tenant", CodeUpdateTenantError, "update tenant error"}
	opDelete = operation{"delete_tenant", CodeDeleteTenantError, "delete tenant by id error"}
	opVerify = operation{"verify_tenant_code", CodeVerifyTenantCodeError, "verify tenant code error"}
)

func internal(op operation, cause error) *Error {
	return &Error{Kind: KindInternal, Code: op.code, Msg: op.msg, Err: cause}
}
