package errors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/account-ledger/pkg/logger"
	"github.com/Proton-105/account-ledger/pkg/metrics"
)

const fallbackUserMessage = "Something went wrong. Please try again later."

// Handler is the single place failures leave the system: it logs them,
// counts them by kind and forwards high and critical ones to Sentry.
type Handler struct {
	log    *slog.Logger
	sentry bool
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{log: log, sentry: sentryEnabled}
}

// Handle records err and returns the message safe to show an operator
// together with whether the operation may be retried.
func (h *Handler) Handle(ctx context.Context, err error) (string, bool) {
	if err == nil {
		return "", false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	appErr := classify(err)
	correlationID := logger.CorrelationIDFromContext(ctx)

	attrs := []slog.Attr{
		slog.String("kind", appErr.Kind.String()),
		slog.String("code", appErr.Code),
		slog.String("severity", string(appErr.Severity)),
		slog.Bool("retryable", appErr.Retryable),
		slog.String("error", err.Error()),
	}
	if correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}

	level := slog.LevelError
	if appErr.Severity == SeverityLow || appErr.Severity == SeverityMedium {
		level = slog.LevelWarn
	}
	h.log.LogAttrs(ctx, level, "operation failed", attrs...)
	metrics.RecordError(appErr.Kind.String(), appErr.Code)

	if h.sentry && (appErr.Severity == SeverityHigh || appErr.Severity == SeverityCritical) {
		report(err, appErr, correlationID)
	}

	if appErr.UserMessage == "" {
		return fallbackUserMessage, appErr.Retryable
	}
	return appErr.UserMessage, appErr.Retryable
}

// classify returns the AppError inside err. Foreign errors become a
// non-retryable database failure with the generic message.
func classify(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr
	}

	return &AppError{
		Kind:        KindDatabase,
		Code:        "E500",
		Message:     err.Error(),
		UserMessage: fallbackUserMessage,
		Severity:    SeverityHigh,
		cause:       err,
	}
}

func report(err error, appErr *AppError, correlationID string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("kind", appErr.Kind.String())
		scope.SetTag("code", appErr.Code)
		scope.SetTag("severity", string(appErr.Severity))
		if correlationID != "" {
			scope.SetTag("correlation_id", correlationID)
		}
		// One Sentry issue per kind rather than per message text.
		scope.SetFingerprint([]string{"{{ default }}", appErr.Kind.String()})

		sentry.CaptureException(err)
	})
}
