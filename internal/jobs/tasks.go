package jobs

import (
	"github.com/hibiken/asynq"

	"github.com/Proton-105/account-ledger/internal/account"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

const (
	BackendAsynq = "asynq"
	BackendLocal = "local"
)

// DefaultQueues is the asynq priority map used when none is configured.
var DefaultQueues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

const coinTransactionMaxRetry = 10

// NewTask wraps a submitted payload in an asynq task routed to the queue
// its type belongs to.
func NewTask(taskType string, payload []byte) *asynq.Task {
	switch taskType {
	case account.TaskTypeCoinTransaction:
		return asynq.NewTask(taskType, payload, asynq.Queue(QueueCritical), asynq.MaxRetry(coinTransactionMaxRetry))
	default:
		return asynq.NewTask(taskType, payload, asynq.Queue(QueueDefault))
	}
}
