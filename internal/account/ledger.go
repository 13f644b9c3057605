package account

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/bits"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Proton-105/account-ledger/internal/errors"
	"github.com/Proton-105/account-ledger/pkg/metrics"
)

// TaskTypeCoinTransaction is the task carrying a CoinTransaction payload.
const TaskTypeCoinTransaction = "coins:transaction"

// CoinTransaction is the audit record submitted after every successful
// balance mutation. Reference makes the insert idempotent on redelivery.
type CoinTransaction struct {
	Reference   uuid.UUID       `json:"reference"`
	AccountID   uint32          `json:"account_id"`
	Type        TransactionType `json:"type"`
	Amount      uint32          `json:"amount"`
	CoinType    CoinType        `json:"coin_type"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// GetCoins returns the in-memory standard coin balance.
func (a *Account) GetCoins() (uint32, error) {
	return a.balance(CoinTypeCoin)
}

// GetTournamentCoins returns the in-memory tournament coin balance.
func (a *Account) GetTournamentCoins() (uint32, error) {
	return a.balance(CoinTypeTournament)
}

func (a *Account) AddCoins(ctx context.Context, amount uint32, description string) error {
	return a.mutate(ctx, TransactionAdd, CoinTypeCoin, amount, description)
}

func (a *Account) AddTournamentCoins(ctx context.Context, amount uint32, description string) error {
	return a.mutate(ctx, TransactionAdd, CoinTypeTournament, amount, description)
}

func (a *Account) RemoveCoins(ctx context.Context, amount uint32, description string) error {
	return a.mutate(ctx, TransactionRemove, CoinTypeCoin, amount, description)
}

func (a *Account) RemoveTournamentCoins(ctx context.Context, amount uint32, description string) error {
	return a.mutate(ctx, TransactionRemove, CoinTypeTournament, amount, description)
}

// Apply runs the mutation selected by tx and coinType.
func (a *Account) Apply(ctx context.Context, tx TransactionType, coinType CoinType, amount uint32, description string) error {
	return a.mutate(ctx, tx, coinType, amount, description)
}

func (a *Account) balance(coinType CoinType) (uint32, error) {
	if a.db == nil || a.rec.id == 0 {
		return 0, fail(apperrors.KindNotInitialized, "account is not loaded")
	}

	wallet := a.wallet(coinType)
	if wallet == nil {
		return 0, fail(apperrors.KindCoinsQuery, "unknown coin type "+coinType.String())
	}
	return *wallet, nil
}

func (a *Account) wallet(coinType CoinType) *uint32 {
	switch coinType {
	case CoinTypeCoin:
		return &a.rec.coins
	case CoinTypeTournament:
		return &a.rec.tournamentCoins
	default:
		return nil
	}
}

// mutate validates, updates memory, saves, then submits the audit record.
// A failed save keeps the in-memory balance and skips the audit record.
func (a *Account) mutate(ctx context.Context, tx TransactionType, coinType CoinType, amount uint32, description string) (err error) {
	defer func() {
		metrics.RecordCoinOperation(tx.String(), coinType.String(), apperrors.KindOf(err).String(), amount)
	}()

	switch {
	case a.db == nil:
		return fail(apperrors.KindNotInitialized, "no query executor")
	case a.tasks == nil:
		return fail(apperrors.KindNotInitialized, "no task submitter")
	case a.rec.id == 0:
		return fail(apperrors.KindInvalidID, "account is not loaded")
	}

	wallet := a.wallet(coinType)
	if wallet == nil {
		return fail(apperrors.KindCoinsQuery, "unknown coin type "+coinType.String())
	}
	if amount == 0 {
		return nil
	}

	next, err := nextBalance(*wallet, tx, amount)
	if err != nil {
		return err
	}
	*wallet = next

	log := a.log.With(
		slog.Uint64("account_id", uint64(a.rec.id)),
		slog.String("operation", tx.String()),
		slog.String("coin_type", coinType.String()),
		slog.Uint64("amount", uint64(amount)),
	)

	if err := a.Save(ctx); err != nil {
		log.Error("balance changed in memory but was not persisted", slog.Any("error", err))
		return err
	}

	if err := a.submitTransaction(ctx, tx, coinType, amount, description); err != nil {
		log.Error("coin transaction record rejected", slog.Any("error", err))
		return err
	}

	log.Info("coin balance updated", slog.Uint64("balance", uint64(next)))
	return nil
}

func nextBalance(current uint32, tx TransactionType, amount uint32) (uint32, error) {
	switch tx {
	case TransactionAdd:
		sum, carry := bits.Add32(current, amount, 0)
		if carry != 0 {
			return current, fail(apperrors.KindValueOverflow, "coin balance would overflow")
		}
		return sum, nil
	case TransactionRemove:
		if amount > current {
			return current, fail(apperrors.KindInsufficientCoins, "insufficient coins")
		}
		return current - amount, nil
	default:
		return current, fail(apperrors.KindCoinsQuery, "unknown transaction type "+tx.String())
	}
}

func (a *Account) submitTransaction(ctx context.Context, tx TransactionType, coinType CoinType, amount uint32, description string) error {
	payload, err := json.Marshal(CoinTransaction{
		Reference:   uuid.New(),
		AccountID:   a.rec.id,
		Type:        tx,
		Amount:      amount,
		CoinType:    coinType,
		Description: description,
		CreatedAt:   a.now().UTC(),
	})
	if err != nil {
		return failWith(apperrors.KindDatabase, mark(ErrAuditNotRecorded, err), "encode coin transaction")
	}

	if err := a.tasks.Submit(ctx, TaskTypeCoinTransaction, payload); err != nil {
		return failWith(apperrors.KindDatabase, mark(ErrAuditNotRecorded, err), "submit coin transaction")
	}
	return nil
}
