package cache

import (
	"context"
	"log/slog"
	"time"
)

type queueLookup interface {
	QueueExists(ctx context.Context, id int64) (bool, error)
}

// QueueLookup remembers queues known to exist for ttl. Misses are never
// cached, so a newly created queue is visible immediately. Cache errors fall
// through to the underlying lookup.
type QueueLookup struct {
	next  queueLookup
	cache Cache
	ttl   time.Duration
}

// NewQueueLookup wraps next with a positive-answer cache.
func NewQueueLookup(next queueLookup, c Cache, ttl time.Duration) *QueueLookup {
	return &QueueLookup{next: next, cache: c, ttl: ttl}
}

func (q *QueueLookup) QueueExists(ctx context.Context, id int64) (bool, error) {
	key := QueueExistsKey(id)

	if _, found, err := q.cache.Get(ctx, key); err != nil {
		slog.Warn("queue cache get failed", "queue_id", id, "error", err)
	} else if found {
		return true, nil
	}

	exists, err := q.next.QueueExists(ctx, id)
	if err != nil || !exists {
		return exists, err
	}

	if err := q.cache.Set(ctx, key, []byte("1"), q.ttl); err != nil {
		slog.Warn("queue cache set failed", "queue_id", id, "error", err)
	}
	return true, nil
}
