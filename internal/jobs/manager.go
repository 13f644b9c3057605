package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/account-ledger/internal/persistence"
	"github.com/Proton-105/account-ledger/pkg/metrics"
)

// Manager is a TaskSubmitter that owns its queue connection.
type Manager interface {
	persistence.TaskSubmitter
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

var _ Manager = (*manager)(nil)

// NewManager builds a Manager that enqueues into Redis through asynq.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		client: asynq.NewClient(redisOpt),
		log:    log,
	}
}

func (m *manager) Submit(ctx context.Context, taskType string, payload []byte) error {
	info, err := m.client.EnqueueContext(ctx, NewTask(taskType, payload))
	metrics.RecordTaskSubmission(taskType, BackendAsynq, err)
	if err != nil {
		m.log.ErrorContext(ctx, "jobs: enqueue failed", slog.String("task_type", taskType), slog.Any("error", err))
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}

	m.log.DebugContext(ctx, "jobs: task enqueued",
		slog.String("task_type", taskType),
		slog.String("task_id", info.ID),
		slog.String("queue", info.Queue),
	)

	return nil
}

func (m *manager) Close() error {
	return m.client.Close()
}
