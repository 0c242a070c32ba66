// Package ratelimit implements the per-provider call budgets enforced before
// every outbound provider API call. Counters live in Redis so concurrently
// running sync tasks share one budget; the limiter is advisory, so the
// check-then-increment pair is not made atomic across callers.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"synchub/integration"
)

// Window is the fixed rate-limit window. Counts reset at window boundaries
// rather than sliding, so bursts straddling a boundary can briefly exceed the
// budget.
const Window = 60 * time.Second

// DefaultDailyLimit caps video-provider API calls per UTC day when no
// override is configured.
const DefaultDailyLimit = 1000

// Default per-minute budgets; unlisted providers fall back to 50.
var defaultLimits = map[integration.Provider]int{
	integration.ProviderGoogle:         100,
	integration.ProviderOutlook:        60,
	integration.ProviderMicrosoftTeams: 60,
	integration.ProviderZoom:           80,
}

const fallbackLimit = 50

// Limiter tracks fixed-window call counts per (provider, organizer).
type Limiter struct {
	client     *redis.Client
	limits     map[integration.Provider]int
	dailyLimit int
	now        func() time.Time
}

// New creates a limiter. Overrides replace the default budget for the given
// providers; a zero dailyLimit selects DefaultDailyLimit.
func New(client *redis.Client, overrides map[integration.Provider]int, dailyLimit int) *Limiter {
	limits := make(map[integration.Provider]int, len(defaultLimits))
	for p, l := range defaultLimits {
		limits[p] = l
	}
	for p, l := range overrides {
		if l > 0 {
			limits[p] = l
		}
	}
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	return &Limiter{client: client, limits: limits, dailyLimit: dailyLimit, now: time.Now}
}

func (l *Limiter) limit(provider integration.Provider) int {
	if limit, ok := l.limits[provider]; ok {
		return limit
	}
	return fallbackLimit
}

func windowKey(provider integration.Provider, organizerID string) string {
	return fmt.Sprintf("rate_limit:%s:%s", provider, organizerID)
}

func dailyKey(provider integration.Provider, organizerID string) string {
	return fmt.Sprintf("rate_limit_daily:%s:%s", provider, organizerID)
}

// Check returns a *integration.RateLimitError when the current window count
// has reached the provider's budget.
func (l *Limiter) Check(ctx context.Context, provider integration.Provider, organizerID string) error {
	count, err := l.client.Get(ctx, windowKey(provider, organizerID)).Int()
	if err == redis.Nil {
		count = 0
	} else if err != nil {
		return fmt.Errorf("rate limit lookup failed: %w", err)
	}

	limit := l.limit(provider)
	if count >= limit {
		return &integration.RateLimitError{Provider: provider, Current: count, Limit: limit}
	}
	return nil
}

// Record counts one API call, creating the window counter with its expiry
// when absent.
func (l *Limiter) Record(ctx context.Context, provider integration.Provider, organizerID string) error {
	key := windowKey(provider, organizerID)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("rate limit increment failed: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, Window).Err(); err != nil {
			return fmt.Errorf("rate limit expiry failed: %w", err)
		}
	}
	return nil
}

// CheckDaily enforces the daily budget video providers consult before every
// create, update or delete.
func (l *Limiter) CheckDaily(ctx context.Context, provider integration.Provider, organizerID string) error {
	count, err := l.client.Get(ctx, dailyKey(provider, organizerID)).Int()
	if err == redis.Nil {
		count = 0
	} else if err != nil {
		return fmt.Errorf("daily rate limit lookup failed: %w", err)
	}
	if count >= l.dailyLimit {
		return &integration.RateLimitError{Provider: provider, Current: count, Limit: l.dailyLimit}
	}
	return nil
}

// RecordDaily counts one call against the daily budget. The counter expires
// at the next UTC midnight.
func (l *Limiter) RecordDaily(ctx context.Context, provider integration.Provider, organizerID string) error {
	key := dailyKey(provider, organizerID)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("daily rate limit increment failed: %w", err)
	}
	if count == 1 {
		now := l.now().UTC()
		midnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		if err := l.client.Expire(ctx, key, midnight.Sub(now)).Err(); err != nil {
			return fmt.Errorf("daily rate limit expiry failed: %w", err)
		}
	}
	return nil
}
