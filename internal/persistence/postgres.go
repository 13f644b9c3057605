package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"

	apperrors "github.com/Proton-105/account-ledger/internal/errors"
	"github.com/Proton-105/account-ledger/pkg/config"
	"github.com/Proton-105/account-ledger/pkg/metrics"
)

// Open connects to PostgreSQL, applies pool settings and waits for the first
// successful ping, retrying transient failures.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	pingErr := apperrors.WithRetry(ctx, apperrors.DefaultRetryPolicy, func() error {
		if err := db.PingContext(ctx); err != nil {
			log.Warn("database ping failed", slog.String("host", cfg.Database.Host), slog.Any("error", err))
			return apperrors.NewDatabaseError(err)
		}
		return nil
	})
	if pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	log.Info("database connected",
		slog.String("host", cfg.Database.Host),
		slog.String("name", cfg.Database.Name),
		slog.Int("max_open_conns", cfg.Database.MaxOpenConns),
	)

	return db, nil
}

// Executor is the QueryExecutor used in production: it guards *sql.DB with
// a circuit breaker and records query metrics.
type Executor struct {
	db      *sql.DB
	breaker *apperrors.CircuitBreaker
	log     *slog.Logger
}

var _ QueryExecutor = (*Executor)(nil)

// NewExecutor wraps db. A nil breaker uses the default settings.
func NewExecutor(db *sql.DB, breaker *apperrors.CircuitBreaker, log *slog.Logger) *Executor {
	if breaker == nil {
		breaker = apperrors.NewCircuitBreaker(apperrors.DefaultBreakerSettings)
	}
	if log == nil {
		log = slog.Default()
	}

	return &Executor{db: db, breaker: breaker, log: log}
}

func (e *Executor) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows

	err := e.run(ctx, query, func() error {
		var queryErr error
		rows, queryErr = e.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	if err != nil {
		return nil, err
	}

	return rows, nil
}

func (e *Executor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result

	err := e.run(ctx, query, func() error {
		var execErr error
		result, execErr = e.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// HealthCheck pings the database without going through the breaker.
func (e *Executor) HealthCheck(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// BreakerState exposes the breaker state for diagnostics.
func (e *Executor) BreakerState() apperrors.State {
	return e.breaker.State()
}

func (e *Executor) run(ctx context.Context, query string, fn func() error) error {
	statement := statementName(query)
	start := time.Now()

	err := e.breaker.Call(fn)
	metrics.ObserveQuery(statement, time.Since(start), err)

	if err != nil {
		e.log.ErrorContext(ctx, "store round-trip failed",
			slog.String("statement", statement),
			slog.Any("error", err),
		)
	}

	return err
}

func statementName(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "unknown"
	}

	return strings.ToLower(fields[0])
}
