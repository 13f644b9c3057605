package api

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Proton-105/account-ledger/pkg/logger"
)

// NewRouter mounts the ledger routes under /api/v1. guards run in front of
// the coin mutation route only.
func NewRouter(h *Handler, log *slog.Logger, guards ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("panic in api handler", slog.Any("panic", recovered), slog.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, Response{Code: "E500", Message: "internal error"})
	}))
	r.Use(requestLogger(log))

	v1 := r.Group("/api/v1")
	{
		accounts := v1.Group("/accounts/:id")
		accounts.GET("/balances", h.GetBalances)
		accounts.GET("/players", h.GetPlayers)
		accounts.POST("/coins", append(slices.Clone(guards), h.ApplyCoins)...)
	}

	return r
}

// requestLogger stamps a correlation id on the request context and logs the
// outcome.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader("X-Correlation-ID"); id != "" {
			ctx = logger.ContextWithCorrelationID(ctx, id)
		} else {
			ctx = logger.WithCorrelationID(ctx)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-ID", logger.CorrelationIDFromContext(ctx))

		start := time.Now()
		c.Next()

		log.InfoContext(ctx, "api request",
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("correlation_id", logger.CorrelationIDFromContext(ctx)),
		)
	}
}
