package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQuotaExceeded is returned by SendQuota.Check when the monthly send
// budget is spent. Batches are rejected before any recipient is contacted.
var ErrQuotaExceeded = errors.New("monthly send quota exceeded")

// SendQuota tracks the number of messages sent in the current calendar
// month against a Redis counter. A nil client disables quota tracking.
type SendQuota struct {
	client       *redis.Client
	monthlyLimit int
}

// NewSendQuota creates a SendQuota with the given Redis client and limit.
func NewSendQuota(client *redis.Client, monthlyLimit int) *SendQuota {
	return &SendQuota{client: client, monthlyLimit: monthlyLimit}
}

// Check returns ErrQuotaExceeded when the current month's counter has
// reached the limit, nil otherwise.
func (q *SendQuota) Check(ctx context.Context) error {
	if q == nil || q.client == nil {
		return nil
	}

	key := quotaKey()
	count, err := q.client.Get(ctx, key).Int64()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("check send quota: %w", err)
	}

	if int(count) >= q.monthlyLimit {
		return fmt.Errorf("%w (%d/%d)", ErrQuotaExceeded, count, q.monthlyLimit)
	}
	return nil
}

// Increment adds one sent message to the current month's counter.
func (q *SendQuota) Increment(ctx context.Context) error {
	if q == nil || q.client == nil {
		return nil
	}

	key := quotaKey()
	pipe := q.client.Pipeline()
	pipe.Incr(ctx, key)
	// Expiry covers the rest of the month plus a day of slack.
	pipe.Expire(ctx, key, daysUntilEndOfMonth()+24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment send quota: %w", err)
	}
	return nil
}

// quotaKey returns the counter key for the current year-month.
func quotaKey() string {
	return "quota:sent:" + time.Now().UTC().Format("2006-01")
}

// daysUntilEndOfMonth returns the duration from now until the end of the
// current month.
func daysUntilEndOfMonth() time.Duration {
	now := time.Now().UTC()
	year, month, _ := now.Date()
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNext.Sub(now)
}
