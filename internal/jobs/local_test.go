package jobs

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/account-ledger/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fastRetry = apperrors.RetryPolicy{
	MaxRetries:        2,
	InitialBackoff:    time.Millisecond,
	MaxBackoff:        2 * time.Millisecond,
	BackoffMultiplier: 1,
}

func TestLocalQueue_ProcessesSubmittedTasks(t *testing.T) {
	q := NewLocalQueue(8, 2, fastRetry, testLogger())

	var (
		mu   sync.Mutex
		seen []string
	)
	q.RegisterHandler("coins:transaction", asynq.HandlerFunc(func(_ context.Context, task *asynq.Task) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(task.Payload()))
		return nil
	}))

	require.NoError(t, q.Start())
	ctx := context.Background()
	require.NoError(t, q.Submit(ctx, "coins:transaction", []byte("a")))
	require.NoError(t, q.Submit(ctx, "coins:transaction", []byte("b")))
	q.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b"}, seen)
}

func TestLocalQueue_RejectsWhenFull(t *testing.T) {
	q := NewLocalQueue(1, 1, fastRetry, testLogger())
	q.RegisterHandler("coins:transaction", asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return nil }))

	ctx := context.Background()
	require.NoError(t, q.Submit(ctx, "coins:transaction", []byte("first")))
	assert.ErrorIs(t, q.Submit(ctx, "coins:transaction", []byte("second")), ErrQueueFull)

	q.Shutdown()
	assert.ErrorIs(t, q.Submit(ctx, "coins:transaction", []byte("late")), ErrQueueClosed)
	assert.ErrorIs(t, q.Start(), ErrQueueClosed)
}

func TestLocalQueue_RetriesRetryableFailures(t *testing.T) {
	q := NewLocalQueue(4, 1, fastRetry, testLogger())

	var attempts atomic.Int32
	q.RegisterHandler("coins:transaction", asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		if attempts.Add(1) < 3 {
			return apperrors.NewDatabaseError(assert.AnError)
		}
		return nil
	}))

	require.NoError(t, q.Start())
	require.NoError(t, q.Submit(context.Background(), "coins:transaction", nil))
	q.Shutdown()

	assert.Equal(t, int32(3), attempts.Load())
}

func TestLocalQueue_DoesNotRetrySkipRetry(t *testing.T) {
	q := NewLocalQueue(4, 1, fastRetry, testLogger())

	var attempts atomic.Int32
	q.RegisterHandler("coins:transaction", asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		attempts.Add(1)
		return asynq.SkipRetry
	}))

	require.NoError(t, q.Start())
	require.NoError(t, q.Submit(context.Background(), "coins:transaction", nil))
	q.Shutdown()

	assert.Equal(t, int32(1), attempts.Load())
}

func TestNewTask_RoutesCoinTransactionsToCriticalQueue(t *testing.T) {
	task := NewTask("coins:transaction", []byte("{}"))
	assert.Equal(t, "coins:transaction", task.Type())

	other := NewTask("something:else", nil)
	assert.Equal(t, "something:else", other.Type())
}
