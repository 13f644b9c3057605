package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/Proton-105/account-ledger/pkg/metrics"
)

// AdaptiveLimiter delegates to a primary (Redis) limiter and falls back to
// a stricter in-memory limiter when the primary fails.
type AdaptiveLimiter struct {
	primary  Limiter
	fallback Limiter
	log      *slog.Logger
}

func NewAdaptiveLimiter(primary, fallback Limiter, log *slog.Logger) *AdaptiveLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &AdaptiveLimiter{primary: primary, fallback: fallback, log: log}
}

// Check evaluates the limit on the primary backend. On a backend error the
// fallback enforces half the limit. A rejection returns ErrLimitExceeded
// alongside the result.
func (a *AdaptiveLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	result, err := a.primary.Check(ctx, key, limit, window)
	if err == nil {
		return a.verdict("redis", result)
	}

	metrics.RecordRateLimitBackendError()
	a.log.WarnContext(ctx, "redis limiter failed, falling back to in-memory", slog.String("key", key), slog.Any("error", err))

	fallbackLimit := limit / 2
	if fallbackLimit <= 0 {
		fallbackLimit = 1
	}

	result, err = a.fallback.Check(ctx, key, fallbackLimit, window)
	if err != nil {
		return result, err
	}

	return a.verdict("fallback", result)
}

func (a *AdaptiveLimiter) verdict(backend string, result *Result) (*Result, error) {
	metrics.RecordRateLimitCheck(backend, result.Allowed)
	if !result.Allowed {
		return result, ErrLimitExceeded
	}
	return result, nil
}
