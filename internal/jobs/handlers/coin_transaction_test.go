package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/account-ledger/internal/account"
	apperrors "github.com/Proton-105/account-ledger/internal/errors"
	"github.com/Proton-105/account-ledger/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishCoinTransaction(ctx context.Context, event events.CoinTransactionEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockPublisher) Close() error { return nil }

func newTask(t *testing.T, tx account.CoinTransaction) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(tx)
	require.NoError(t, err)
	return asynq.NewTask(account.TaskTypeCoinTransaction, payload)
}

func sampleTransaction() account.CoinTransaction {
	return account.CoinTransaction{
		Reference:   uuid.MustParse("0b6f1c1e-5c9a-4c53-9d7e-1e2f3a4b5c6d"),
		AccountID:   42,
		Type:        account.TransactionRemove,
		Amount:      25,
		CoinType:    account.CoinTypeTournament,
		Description: "entry fee",
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func setup(t *testing.T) (*CoinTransactionHandler, sqlmock.Sqlmock, *mockPublisher) {
	t.Helper()

	db, sm, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	pub := &mockPublisher{}
	t.Cleanup(func() {
		assert.NoError(t, sm.ExpectationsWereMet())
		pub.AssertExpectations(t)
		_ = db.Close()
	})

	return NewCoinTransactionHandler(db, pub, testLogger()), sm, pub
}

func TestCoinTransactionHandler_StoresAndPublishes(t *testing.T) {
	h, sm, pub := setup(t)
	tx := sampleTransaction()

	sm.ExpectExec(insertCoinTransaction).
		WithArgs(tx.Reference.String(), int64(42), int64(account.TransactionRemove), int64(25), int64(account.CoinTypeTournament), "entry fee", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	pub.On("PublishCoinTransaction", mock.Anything, mock.MatchedBy(func(e events.CoinTransactionEvent) bool {
		return e.Reference == tx.Reference.String() && e.Type == "remove" && e.CoinType == "tournament"
	})).Return(nil).Once()

	require.NoError(t, h.ProcessTask(context.Background(), newTask(t, tx)))
}

func TestCoinTransactionHandler_DuplicateIsNotRepublished(t *testing.T) {
	h, sm, pub := setup(t)

	sm.ExpectExec(insertCoinTransaction).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, h.ProcessTask(context.Background(), newTask(t, sampleTransaction())))
	pub.AssertNotCalled(t, "PublishCoinTransaction", mock.Anything, mock.Anything)
}

func TestCoinTransactionHandler_StoreFailureIsRetryable(t *testing.T) {
	h, sm, _ := setup(t)

	sm.ExpectExec(insertCoinTransaction).WillReturnError(errors.New("deadlock detected"))

	err := h.ProcessTask(context.Background(), newTask(t, sampleTransaction()))
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestCoinTransactionHandler_PublishFailureIsSwallowed(t *testing.T) {
	h, sm, pub := setup(t)

	sm.ExpectExec(insertCoinTransaction).WillReturnResult(sqlmock.NewResult(0, 1))
	pub.On("PublishCoinTransaction", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	assert.NoError(t, h.ProcessTask(context.Background(), newTask(t, sampleTransaction())))
}

func TestCoinTransactionHandler_RejectsBadPayload(t *testing.T) {
	h, _, _ := setup(t)

	err := h.ProcessTask(context.Background(), asynq.NewTask(account.TaskTypeCoinTransaction, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	empty := sampleTransaction()
	empty.Amount = 0
	err = h.ProcessTask(context.Background(), newTask(t, empty))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
