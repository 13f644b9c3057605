package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/account-ledger/internal/account"
	apperrors "github.com/Proton-105/account-ledger/internal/errors"
	"github.com/Proton-105/account-ledger/internal/events"
	"github.com/Proton-105/account-ledger/internal/persistence"
	"github.com/Proton-105/account-ledger/pkg/metrics"
)

const insertCoinTransaction = `
	INSERT INTO coins_transactions (reference, account_id, type, amount, coin_type, description, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (reference) DO NOTHING
`

// CoinTransactionHandler stores audit records and forwards them to the
// event stream.
type CoinTransactionHandler struct {
	db        persistence.QueryExecutor
	publisher events.Publisher
	log       *slog.Logger
}

func NewCoinTransactionHandler(db persistence.QueryExecutor, publisher events.Publisher, log *slog.Logger) *CoinTransactionHandler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}

	return &CoinTransactionHandler{db: db, publisher: publisher, log: log}
}

// ProcessTask inserts the record once. A redelivered record is a no-op
// insert, so a store failure is safe to retry.
func (h *CoinTransactionHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var tx account.CoinTransaction
	if err := json.Unmarshal(t.Payload(), &tx); err != nil {
		metrics.RecordAuditWrite("invalid")
		h.log.ErrorContext(ctx, "coin transaction: failed to decode payload", slog.String("task_type", t.Type()), slog.Any("error", err))
		return fmt.Errorf("decode coin transaction: %v: %w", err, asynq.SkipRetry)
	}

	if tx.AccountID == 0 || tx.Amount == 0 {
		metrics.RecordAuditWrite("invalid")
		return fmt.Errorf("coin transaction %s has no account or amount: %w", tx.Reference, asynq.SkipRetry)
	}

	res, err := h.db.ExecContext(ctx, insertCoinTransaction,
		tx.Reference.String(),
		int64(tx.AccountID),
		int64(tx.Type),
		int64(tx.Amount),
		int64(tx.CoinType),
		tx.Description,
		tx.CreatedAt.UTC(),
	)
	if err != nil {
		metrics.RecordAuditWrite("failed")
		h.log.ErrorContext(ctx, "coin transaction: insert failed", slog.String("reference", tx.Reference.String()), slog.Any("error", err))
		return apperrors.NewDatabaseError(err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		metrics.RecordAuditWrite("failed")
		return apperrors.NewDatabaseError(err)
	}
	if inserted == 0 {
		metrics.RecordAuditWrite("duplicate")
		h.log.InfoContext(ctx, "coin transaction: already recorded", slog.String("reference", tx.Reference.String()))
		return nil
	}
	metrics.RecordAuditWrite("stored")

	event := events.CoinTransactionEvent{
		Reference:   tx.Reference.String(),
		AccountID:   tx.AccountID,
		Type:        tx.Type.String(),
		CoinType:    tx.CoinType.String(),
		Amount:      tx.Amount,
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt,
	}
	// The row is committed; a redelivery would not publish again, so a
	// publish failure is logged and not returned.
	if err := h.publisher.PublishCoinTransaction(ctx, event); err != nil {
		h.log.WarnContext(ctx, "coin transaction: publish failed", slog.String("reference", event.Reference), slog.Any("error", err))
	}

	return nil
}
