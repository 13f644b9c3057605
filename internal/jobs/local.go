package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hibiken/asynq"

	apperrors "github.com/Proton-105/account-ledger/internal/errors"
	"github.com/Proton-105/account-ledger/pkg/metrics"
)

var (
	ErrQueueFull   = errors.New("jobs: local queue is full")
	ErrQueueClosed = errors.New("jobs: local queue is closed")
)

// LocalQueue runs submitted tasks in-process on a bounded channel. It is both
// the TaskSubmitter and the Worker when no Redis queue is deployed.
type LocalQueue struct {
	mux     *asynq.ServeMux
	tasks   chan *asynq.Task
	retry   apperrors.RetryPolicy
	workers int
	log     *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

var (
	_ Worker  = (*LocalQueue)(nil)
	_ Manager = (*LocalQueue)(nil)
)

// NewLocalQueue builds a queue holding at most size pending tasks.
func NewLocalQueue(size, workers int, retry apperrors.RetryPolicy, log *slog.Logger) *LocalQueue {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}

	return &LocalQueue{
		mux:     asynq.NewServeMux(),
		tasks:   make(chan *asynq.Task, size),
		retry:   retry,
		workers: workers,
		log:     log,
	}
}

func (q *LocalQueue) RegisterHandler(taskType string, handler asynq.Handler) {
	q.mux.Handle(taskType, handler)
}

// Submit never blocks: a full or closed queue rejects the task.
func (q *LocalQueue) Submit(ctx context.Context, taskType string, payload []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var err error
	if q.closed {
		err = ErrQueueClosed
	} else {
		select {
		case q.tasks <- asynq.NewTask(taskType, payload):
			metrics.SetLocalQueueDepth(len(q.tasks))
		default:
			err = ErrQueueFull
		}
	}

	metrics.RecordTaskSubmission(taskType, BackendLocal, err)
	if err != nil {
		q.log.WarnContext(ctx, "jobs: local submit rejected", slog.String("task_type", taskType), slog.Any("error", err))
		return fmt.Errorf("submit %s: %w", taskType, err)
	}

	return nil
}

// Start launches the worker goroutines.
func (q *LocalQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.started {
		return nil
	}
	q.started = true

	q.log.Info("jobs: local queue starting", slog.Int("workers", q.workers), slog.Int("capacity", cap(q.tasks)))
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.loop()
	}

	return nil
}

// Shutdown stops accepting tasks and waits until the pending ones are done.
func (q *LocalQueue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	started := q.started
	close(q.tasks)
	q.mu.Unlock()

	if !started {
		// Drain on the caller's goroutine so accepted tasks are not lost.
		q.wg.Add(1)
		q.loop()
	}
	q.wg.Wait()

	q.log.Info("jobs: local queue stopped")
}

// Close implements Manager.
func (q *LocalQueue) Close() error {
	q.Shutdown()
	return nil
}

func (q *LocalQueue) loop() {
	defer q.wg.Done()

	for task := range q.tasks {
		metrics.SetLocalQueueDepth(len(q.tasks))
		q.process(task)
	}
}

func (q *LocalQueue) process(task *asynq.Task) {
	ctx := context.Background()

	err := apperrors.WithRetry(ctx, q.retry, func() error {
		return q.mux.ProcessTask(ctx, task)
	})
	if err != nil {
		q.log.Error("jobs: local task failed",
			slog.String("task_type", task.Type()),
			slog.Bool("skip_retry", errors.Is(err, asynq.SkipRetry)),
			slog.Any("error", err),
		)
	}
}
