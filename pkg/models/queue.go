package models

import "time"

// Queue is a resource-allocation grouping that tenants bind to. Queues are
// managed elsewhere; this service only reads them.
type Queue struct {
	ID         int64     `db:"id"          json:"id"`
	QueueName  string    `db:"queue_name"  json:"queueName"`
	Queue      string    `db:"queue"       json:"queue"`
	CreateTime time.Time `db:"create_time" json:"createTime"`
	UpdateTime time.Time `db:"update_time" json:"updateTime"`
}
