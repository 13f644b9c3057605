package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Proton-105/account-ledger/internal/account"
	"github.com/Proton-105/account-ledger/internal/api"
	"github.com/Proton-105/account-ledger/internal/database"
	apperrors "github.com/Proton-105/account-ledger/internal/errors"
	"github.com/Proton-105/account-ledger/internal/events"
	"github.com/Proton-105/account-ledger/internal/health"
	"github.com/Proton-105/account-ledger/internal/i18n"
	"github.com/Proton-105/account-ledger/internal/idempotency"
	"github.com/Proton-105/account-ledger/internal/jobs"
	"github.com/Proton-105/account-ledger/internal/jobs/handlers"
	"github.com/Proton-105/account-ledger/internal/ledger"
	"github.com/Proton-105/account-ledger/internal/lifecycle"
	"github.com/Proton-105/account-ledger/internal/persistence"
	"github.com/Proton-105/account-ledger/internal/ratelimit"
	"github.com/Proton-105/account-ledger/internal/rostercache"
	"github.com/Proton-105/account-ledger/pkg/config"
	"github.com/Proton-105/account-ledger/pkg/graceful"
	"github.com/Proton-105/account-ledger/pkg/logger"
	"github.com/Proton-105/account-ledger/pkg/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("account ledger server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, v, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	appLog := logger.New(*cfg)
	defer func() { _ = appLog.Close() }()
	log := appLog.Logger
	slog.SetDefault(log)

	config.Watch(v, func(next *config.Config) {
		appLog.SetLevel(next.Logger.Level)
		log.Info("configuration reloaded", slog.String("log_level", next.Logger.Level))
	}, func(err error) {
		log.Warn("configuration reload rejected", slog.Any("error", err))
	})

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.AppEnv,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	log.Info("starting account ledger server",
		slog.String("env", cfg.AppEnv),
		slog.String("http_port", cfg.Server.Port),
		slog.String("jobs_backend", cfg.Jobs.Backend),
	)

	db, err := persistence.Open(ctx, cfg, log)
	if err != nil {
		return err
	}

	if _, err := database.NewMigrator(db, log).Apply(ctx, os.DirFS(cfg.Database.MigrationsDir)); err != nil {
		_ = db.Close()
		return fmt.Errorf("apply migrations: %w", err)
	}

	executor := persistence.NewExecutor(db, apperrors.NewCircuitBreaker(apperrors.DefaultBreakerSettings), log)

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		_ = db.Close()
		return err
	}

	publisher, err := newPublisher(cfg.Kafka, log)
	if err != nil {
		_ = rdb.Close()
		_ = db.Close()
		return err
	}

	submitter, worker := newJobs(cfg, rdb, log)
	errs := apperrors.NewHandler(log, cfg.Sentry.Enabled)
	worker.RegisterHandler(account.TaskTypeCoinTransaction, reportFailures(handlers.NewCoinTransactionHandler(executor, publisher, log), errs))
	if err := worker.Start(); err != nil {
		return fmt.Errorf("start jobs worker: %w", err)
	}

	idem := idempotency.NewManager(idempotency.NewRedisStore(rdb.Client, log), cfg.Ledger.LockTTL, log)
	service := ledger.NewService(executor, submitter,
		ledger.WithLocking(rdb.Client, cfg.Ledger.LockTTL),
		ledger.WithIdempotency(idem, cfg.Ledger.IdempotencyTTL),
		ledger.WithRosterCache(rostercache.NewCache(rdb.Client), cfg.Ledger.RosterCacheTTL),
		ledger.WithLogger(log),
	)

	cleanerCtx, stopCleaner := context.WithCancel(ctx)
	go idempotency.NewCleaner(rdb.Client, time.Hour, cfg.Ledger.IdempotencyTTL+time.Hour, log).Run(cleanerCtx)

	fallback := ratelimit.NewMemoryLimiter(log)
	go fallback.Run(cleanerCtx, time.Minute, 2*cfg.RateLimit.Window)
	guard := api.RateLimit(
		ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(rdb.Client, log), fallback, log),
		ratelimit.NewRules(cfg.RateLimit),
		log,
	)

	checker := health.NewChecker(2*time.Second, log)
	checker.AddCheck("postgres", health.NewDBChecker(db))
	checker.AddCheck("redis", health.NewRedisChecker(rdb))
	checker.AddCheck("postgres_breaker", health.CheckFunc(func(context.Context) error {
		if state := executor.BreakerState(); state == apperrors.StateOpen {
			return fmt.Errorf("circuit %s", state)
		}
		return nil
	}))
	probes := lifecycle.NewProbes(checker, log)

	translations, err := i18n.Load("en")
	if err != nil {
		stopCleaner()
		return fmt.Errorf("load translations: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", probes.LivenessHandler())
	mux.Handle("/readyz", probes.ReadinessHandler())
	mux.Handle("/health", checker.Handler())
	mux.Handle("/api/", api.NewRouter(api.NewHandler(service, errs, log, api.WithTranslations(translations)), log, guard))

	server := graceful.NewServer(net.JoinHostPort("", cfg.Server.Port), logger.Middleware(log)(mux), cfg.Server.ShutdownTimeout, log)

	shutdown := lifecycle.NewShutdown(log)
	shutdown.Register(lifecycle.PhaseWorkers, "jobs", func(context.Context) error {
		worker.Shutdown()
		return submitter.Close()
	})
	shutdown.Register(lifecycle.PhaseWorkers, "cleaners", func(context.Context) error {
		stopCleaner()
		return nil
	})
	shutdown.Register(lifecycle.PhaseBackends, "kafka", func(context.Context) error { return publisher.Close() })
	shutdown.Register(lifecycle.PhaseBackends, "redis", func(context.Context) error { return rdb.Close() })
	shutdown.Register(lifecycle.PhaseBackends, "postgres", func(context.Context) error { return db.Close() })

	serveErr := server.ListenAndServe(ctx)
	probes.MarkDraining()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	return errors.Join(serveErr, shutdown.Execute(shutdownCtx))
}

func newPublisher(cfg config.KafkaConfig, log *slog.Logger) (events.Publisher, error) {
	if !cfg.Enabled {
		return events.Nop{}, nil
	}
	return events.NewKafkaPublisher(cfg, log)
}

// newJobs returns the submitter accounts write to and the worker draining it.
func newJobs(cfg *config.Config, rdb *redis.Client, log *slog.Logger) (jobs.Manager, jobs.Worker) {
	if cfg.Jobs.Backend == jobs.BackendLocal {
		q := jobs.NewLocalQueue(cfg.Jobs.QueueSize, cfg.Jobs.Concurrency, apperrors.DefaultRetryPolicy, log)
		return q, q
	}

	opt := rdb.AsynqOpt()
	return jobs.NewManager(opt, log), jobs.NewWorker(opt, cfg.Jobs.Queues, cfg.Jobs.Concurrency, log)
}

func reportFailures(next asynq.Handler, errs *apperrors.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		err := next.ProcessTask(ctx, task)
		if err != nil {
			errs.Handle(ctx, err)
		}
		return err
	})
}
