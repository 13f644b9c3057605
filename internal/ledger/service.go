// Package ledger applies coin operations to accounts identified by id,
// serializing work per account and replaying retried requests.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/account-ledger/internal/account"
	apperrors "github.com/Proton-105/account-ledger/internal/errors"
	"github.com/Proton-105/account-ledger/internal/idempotency"
	"github.com/Proton-105/account-ledger/internal/lock"
	"github.com/Proton-105/account-ledger/internal/persistence"
	"github.com/Proton-105/account-ledger/internal/rostercache"
	"github.com/Proton-105/account-ledger/pkg/logger"
	"github.com/Proton-105/account-ledger/pkg/metrics"
)

const (
	defaultLockTTL        = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	lockRetryInterval     = 50 * time.Millisecond
	lockMaxRetries        = 100
)

// Request describes one coin mutation.
type Request struct {
	AccountID   uint32
	Operation   account.TransactionType
	CoinType    account.CoinType
	Amount      uint32
	Description string
	// RequestID, when set, makes the request idempotent per account.
	RequestID string
}

// Balances is the state returned after an operation.
type Balances struct {
	AccountID       uint32 `json:"account_id"`
	Coins           uint32 `json:"coins"`
	TournamentCoins uint32 `json:"tournament_coins"`
}

type Service struct {
	db    persistence.QueryExecutor
	tasks persistence.TaskSubmitter
	log   *slog.Logger

	locks        redis.Cmdable
	lockTTL      time.Duration
	lockInterval time.Duration
	lockRetries  int

	idem    idempotency.Manager
	idemTTL time.Duration

	roster    *rostercache.Cache
	rosterTTL time.Duration
}

type Option func(*Service)

// WithLocking serializes operations on one account across processes.
func WithLocking(client redis.Cmdable, ttl time.Duration) Option {
	return func(s *Service) {
		s.locks = client
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithIdempotency stores results of requests carrying a RequestID.
func WithIdempotency(m idempotency.Manager, ttl time.Duration) Option {
	return func(s *Service) {
		s.idem = m
		if ttl > 0 {
			s.idemTTL = ttl
		}
	}
}

// WithRosterCache serves Players from cache for ttl after the first load.
func WithRosterCache(cache *rostercache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.roster = cache
			s.rosterTTL = ttl
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func NewService(db persistence.QueryExecutor, tasks persistence.TaskSubmitter, opts ...Option) *Service {
	s := &Service{
		db:           db,
		tasks:        tasks,
		log:          slog.Default(),
		lockTTL:      defaultLockTTL,
		lockInterval: lockRetryInterval,
		lockRetries:  lockMaxRetries,
		idemTTL:      defaultIdempotencyTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "ledger"))

	return s
}

// Apply performs req and returns the balances it left behind.
func (s *Service) Apply(ctx context.Context, req Request) (Balances, error) {
	if logger.CorrelationIDFromContext(ctx) == "" {
		ctx = logger.WithCorrelationID(ctx)
	}
	if req.AccountID == 0 {
		return Balances{}, apperrors.New(apperrors.KindInvalidID, "account id is zero")
	}

	if req.RequestID == "" || s.idem == nil {
		out, err := s.apply(ctx, req)
		if err != nil {
			return Balances{}, err
		}
		return out, nil
	}

	key := idempotency.CoinOperationKey(req.AccountID, req.RequestID)
	res, err := s.idem.Execute(ctx, key, req.fingerprint(), s.idemTTL, func(ctx context.Context) (any, error) {
		out, err := s.apply(ctx, req)
		switch {
		case errors.Is(err, account.ErrAuditNotRecorded):
			// The balance is durable; a retry must see it, not apply again.
			return nil, idempotency.Commit(out, err)
		case errors.Is(err, account.ErrSaveOutcomeUnknown):
			return nil, idempotency.Commit(nil, err)
		case err != nil:
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return Balances{}, replayError(err)
	}

	var out Balances
	if err := res.Decode(&out); err != nil {
		return Balances{}, apperrors.Wrap(apperrors.KindDatabase, err, "decode stored result")
	}
	if res.FromCache {
		s.log.InfoContext(ctx, "coin operation replayed",
			slog.String("correlation_id", logger.CorrelationIDFromContext(ctx)),
			slog.String("request_id", req.RequestID),
			slog.Uint64("account_id", uint64(req.AccountID)),
		)
	}

	return out, nil
}

func (s *Service) apply(ctx context.Context, req Request) (Balances, error) {
	var out Balances

	err := s.withAccountLock(ctx, req.AccountID, func() error {
		acc, err := s.load(ctx, account.ByID(req.AccountID))
		if err != nil {
			return err
		}

		applyErr := acc.Apply(ctx, req.Operation, req.CoinType, req.Amount, req.Description)
		if applyErr != nil && !errors.Is(applyErr, account.ErrAuditNotRecorded) {
			return applyErr
		}

		out, err = balancesOf(acc)
		if err != nil {
			return err
		}
		return applyErr
	})
	if errors.Is(err, account.ErrAuditNotRecorded) {
		s.log.ErrorContext(ctx, "coin balance saved without audit record",
			slog.String("correlation_id", logger.CorrelationIDFromContext(ctx)),
			slog.Uint64("account_id", uint64(req.AccountID)),
			slog.String("operation", req.Operation.String()),
			slog.String("coin_type", req.CoinType.String()),
			slog.Uint64("amount", uint64(req.Amount)),
			slog.Any("error", err),
		)
		metrics.RecordAuditWrite("not_submitted")
		return out, err
	}
	if err != nil {
		s.log.WarnContext(ctx, "coin operation failed",
			slog.String("correlation_id", logger.CorrelationIDFromContext(ctx)),
			slog.Uint64("account_id", uint64(req.AccountID)),
			slog.String("operation", req.Operation.String()),
			slog.String("coin_type", req.CoinType.String()),
			slog.String("kind", apperrors.KindOf(err).String()),
			slog.Any("error", err),
		)
		return Balances{}, err
	}

	return out, nil
}

// fingerprint identifies the parameters of req so a reused RequestID with a
// different operation is rejected instead of replayed.
func (req Request) fingerprint() string {
	return idempotency.GenerateKey(req.Operation, req.CoinType, req.Amount, req.Description)
}

// replayError maps idempotency outcomes onto the ledger's error kinds.
// Neither a reused key nor an unknown first outcome gets better on retry.
func replayError(err error) error {
	switch {
	case errors.Is(err, idempotency.ErrRequestInProgress):
		return apperrors.Wrap(apperrors.KindDatabase, err, "apply coin operation")
	case errors.Is(err, idempotency.ErrFingerprintMismatch), errors.Is(err, idempotency.ErrOutcomeUnknown):
		appErr := apperrors.Wrap(apperrors.KindDatabase, err, "apply coin operation")
		appErr.Retryable = false
		return appErr
	default:
		return err
	}
}

// Balances loads the account and reports both balances.
func (s *Service) Balances(ctx context.Context, accountID uint32) (Balances, error) {
	acc, err := s.load(ctx, account.ByID(accountID))
	if err != nil {
		return Balances{}, err
	}
	return balancesOf(acc)
}

// Players lists the characters of the account.
func (s *Service) Players(ctx context.Context, accountID uint32) ([]account.Player, error) {
	if s.roster != nil {
		players, hit, err := s.roster.Get(ctx, accountID)
		if err != nil {
			s.log.WarnContext(ctx, "roster cache read failed", slog.Uint64("account_id", uint64(accountID)), slog.Any("error", err))
		} else if hit {
			return players, nil
		}
	}

	acc, err := s.load(ctx, account.ByID(accountID))
	if err != nil {
		return nil, err
	}
	players, err := acc.GetAccountPlayers(ctx)
	if err != nil {
		return nil, err
	}

	if s.roster != nil {
		if err := s.roster.Set(ctx, accountID, players, s.rosterTTL); err != nil {
			s.log.WarnContext(ctx, "roster cache write failed", slog.Uint64("account_id", uint64(accountID)), slog.Any("error", err))
		}
	}

	return players, nil
}

// Account loads the account ref points to.
func (s *Service) Account(ctx context.Context, ref account.Ref) (*account.Account, error) {
	return s.load(ctx, ref)
}

func (s *Service) load(ctx context.Context, ref account.Ref) (*account.Account, error) {
	acc := account.New(ref,
		account.WithQueryExecutor(s.db),
		account.WithTaskSubmitter(s.tasks),
		account.WithLogger(s.log),
	)
	if err := acc.Load(ctx); err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *Service) withAccountLock(ctx context.Context, accountID uint32, fn func() error) error {
	if s.locks == nil {
		return fn()
	}

	mutex := lock.NewMutex(s.locks, lock.AccountKey(accountID), s.lockTTL)
	if err := mutex.Lock(ctx, s.lockInterval, s.lockRetries); err != nil {
		return apperrors.Wrap(apperrors.KindDatabase, err, fmt.Sprintf("lock account %d", accountID))
	}
	defer func() {
		if err := mutex.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.log.WarnContext(ctx, "account lock release failed", slog.String("key", mutex.Key()), slog.Any("error", err))
		}
	}()

	return fn()
}

func balancesOf(acc *account.Account) (Balances, error) {
	coins, err := acc.GetCoins()
	if err != nil {
		return Balances{}, err
	}
	tournament, err := acc.GetTournamentCoins()
	if err != nil {
		return Balances{}, err
	}

	return Balances{AccountID: acc.ID(), Coins: coins, TournamentCoins: tournament}, nil
}
