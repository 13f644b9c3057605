package persistence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/account-ledger/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecutor_PassesBoundArguments(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery(`SELECT id FROM accounts WHERE email = \$1`).
		WithArgs("a@b.c").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(`UPDATE accounts SET coins = \$1 WHERE id = \$2`).
		WithArgs(10, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	exec := NewExecutor(db, nil, testLogger())
	ctx := context.Background()

	rows, err := exec.QueryContext(ctx, "SELECT id FROM accounts WHERE email = $1", "a@b.c")
	require.NoError(t, err)
	require.True(t, rows.Next())
	var id int64
	require.NoError(t, rows.Scan(&id))
	require.NoError(t, rows.Close())
	assert.Equal(t, int64(7), id)

	res, err := exec.ExecContext(ctx, "UPDATE accounts SET coins = $1 WHERE id = $2", 10, 7)
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_BreakerRejectsAfterFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	failure := errors.New("connection refused")
	mock.ExpectExec(`UPDATE accounts`).WillReturnError(failure)
	mock.ExpectExec(`UPDATE accounts`).WillReturnError(failure)

	breaker := apperrors.NewCircuitBreaker(apperrors.BreakerSettings{
		ErrorThreshold:      0.5,
		MinRequests:         2,
		OpenTimeout:         time.Hour,
		HalfOpenMaxRequests: 1,
	})
	exec := NewExecutor(db, breaker, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := exec.ExecContext(ctx, "UPDATE accounts SET coins = 1")
		assert.ErrorIs(t, err, failure)
	}

	_, err = exec.ExecContext(ctx, "UPDATE accounts SET coins = 1")
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.Equal(t, apperrors.StateOpen, exec.BreakerState())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatementName(t *testing.T) {
	assert.Equal(t, "select", statementName("\n\t\tSELECT id FROM accounts"))
	assert.Equal(t, "insert", statementName("insert into players"))
	assert.Equal(t, "unknown", statementName("   "))
}

func TestTaskSubmitterFunc(t *testing.T) {
	var gotType string
	submitter := TaskSubmitterFunc(func(_ context.Context, taskType string, _ []byte) error {
		gotType = taskType
		return nil
	})

	require.NoError(t, submitter.Submit(context.Background(), "coins:transaction", nil))
	assert.Equal(t, "coins:transaction", gotType)
}
