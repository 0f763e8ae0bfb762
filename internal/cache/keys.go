package cache

import "fmt"

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

func QueueExistsKey(queueID int64) string {
	return fmt.Sprintf("queue:exists:%d", queueID)
}
