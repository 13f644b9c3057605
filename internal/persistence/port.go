// Package persistence defines the ports the account core uses to reach the
// store and the task queue, and the Postgres implementation of the former.
package persistence

import (
	"context"
	"database/sql"
)

// QueryExecutor runs parameterized statements synchronously. Dynamic values
// are always passed as args and bound by the driver.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// TaskSubmitter queues a unit of persistence work without waiting for it to
// run. Only a rejected submission is reported back.
type TaskSubmitter interface {
	Submit(ctx context.Context, taskType string, payload []byte) error
}

// TaskSubmitterFunc adapts a function to TaskSubmitter.
type TaskSubmitterFunc func(ctx context.Context, taskType string, payload []byte) error

func (f TaskSubmitterFunc) Submit(ctx context.Context, taskType string, payload []byte) error {
	return f(ctx, taskType, payload)
}
