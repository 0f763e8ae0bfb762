package models

import "time"

// Tenant is an isolation unit grouping users and workflow executions under one
// resource queue. TenantCode is unique across all tenants.
type Tenant struct {
	ID          int64     `db:"id"          json:"id"`
	TenantCode  string    `db:"tenant_code" json:"tenantCode"`
	TenantName  string    `db:"tenant_name" json:"tenantName"`
	QueueID     int64     `db:"queue_id"    json:"queueId"`
	QueueName   string    `db:"queue_name"  json:"queueName,omitempty"`
	Description string    `db:"description" json:"description"`
	CreateTime  time.Time `db:"create_time" json:"createTime"`
	UpdateTime  time.Time `db:"update_time" json:"updateTime"`
}
