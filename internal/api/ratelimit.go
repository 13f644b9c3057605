package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Proton-105/account-ledger/internal/ratelimit"
)

// RateLimit throttles coin mutations per account. Limiter failures let the
// request through.
func RateLimit(limiter ratelimit.Limiter, rules *ratelimit.Rules, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || !rules.Enabled() {
			c.Next()
			return
		}

		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil || rules.IsWhitelisted(uint32(id)) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		limit, window := rules.MutationLimit()
		result, err := limiter.Check(ctx, ratelimit.AccountKey(uint32(id)), limit, window)
		if err != nil && !errors.Is(err, ratelimit.ErrLimitExceeded) {
			log.WarnContext(ctx, "rate limiter error", slog.Uint64("account_id", id), slog.Any("error", err))
			c.Next()
			return
		}
		if err == nil && result.Allowed {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			c.Next()
			return
		}

		log.WarnContext(ctx, "coin mutation rate limit exceeded", slog.Uint64("account_id", id))
		if result != nil {
			if wait := result.RetryAfter(time.Now()); wait > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			}
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, Response{Code: "E429", Message: "Too many coin operations, try again later."})
	}
}
