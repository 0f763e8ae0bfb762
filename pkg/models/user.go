package models

import "time"

// User types.
const (
	UserTypeAdmin   = "ADMIN_USER"
	UserTypeGeneral = "GENERAL_USER"
)

// User is a platform account. A non-nil TenantID pins the user to a tenant,
// which blocks that tenant from being deleted.
type User struct {
	ID         int64     `db:"id"          json:"id"`
	UserName   string    `db:"user_name"   json:"userName"`
	UserType   string    `db:"user_type"   json:"userType"`
	TenantID   *int64    `db:"tenant_id"   json:"tenantId,omitempty"`
	CreateTime time.Time `db:"create_time" json:"createTime"`
	UpdateTime time.Time `db:"update_time" json:"updateTime"`
}

// Principal returns the caller identity for this user.
func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, UserName: u.UserName, UserType: u.UserType}
}

// Principal is the authenticated caller passed into every service call.
type Principal struct {
	UserID   int64
	UserName string
	UserType string
}

func (p Principal) IsAdmin() bool {
	return p.UserType == UserTypeAdmin
}
