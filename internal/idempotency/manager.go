// Package idempotency makes retried ledger requests return their first result.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrRequestInProgress = errors.New("idempotency: request with this key is already in progress")
	// ErrFingerprintMismatch is returned when a key is reused with different
	// request parameters.
	ErrFingerprintMismatch = errors.New("idempotency: key reused with different parameters")
	// ErrOutcomeUnknown is returned for a key whose first attempt failed
	// after it may have changed state.
	ErrOutcomeUnknown = errors.New("idempotency: outcome of the first attempt is unknown")
)

// Operation produces the JSON-encodable result stored under a key.
type Operation func(ctx context.Context) (any, error)

// Committed is returned by an Operation that failed after its effect became
// durable. The key is kept: Result, when set, is stored and replayed to
// later callers; a nil Result marks the key indeterminate. The caller of
// Execute receives Err.
type Committed struct {
	Result any
	Err    error
}

func (c *Committed) Error() string { return c.Err.Error() }

func (c *Committed) Unwrap() error { return c.Err }

// Commit wraps err as a Committed failure carrying result.
func Commit(result any, err error) error {
	return &Committed{Result: result, Err: err}
}

// Result is the encoded outcome of an Operation.
type Result struct {
	Response  json.RawMessage
	FromCache bool
}

// Decode unmarshals the stored response into v.
func (r *Result) Decode(v any) error {
	return json.Unmarshal(r.Response, v)
}

type Manager interface {
	// Execute runs fn once per key within ttl. A non-empty fingerprint must
	// match the one the key was first used with.
	Execute(ctx context.Context, key, fingerprint string, ttl time.Duration, fn Operation) (*Result, error)
}

type manager struct {
	store    Store
	lockTTL  time.Duration
	pollWait time.Duration
	log      *slog.Logger
}

func NewManager(store Store, lockTTL time.Duration, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}

	return &manager{
		store:    store,
		lockTTL:  lockTTL,
		pollWait: 100 * time.Millisecond,
		log:      log,
	}
}

// Execute runs fn once per key within ttl. A concurrent caller holding the
// same key gets ErrRequestInProgress; later callers get the stored result.
// Failed operations are not stored unless they return a Committed error.
func (m *manager) Execute(ctx context.Context, key, fingerprint string, ttl time.Duration, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, errors.New("idempotency: operation fn cannot be nil")
	}

	for {
		record, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if res, done, err := m.settled(ctx, key, fingerprint, record); done {
			return res, err
		}

		unlock, err := m.store.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return nil, err
		}
		if unlock != nil {
			return m.run(ctx, key, fingerprint, ttl, fn, unlock)
		}
		if record != nil && record.Status == StatusProcessing {
			return nil, ErrRequestInProgress
		}

		// Lock held but no record yet: the holder is between Lock and Set,
		// or has just finished.
		timer := time.NewTimer(m.pollWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// settled answers from a finished record. It reports false when fn still
// has to run.
func (m *manager) settled(ctx context.Context, key, fingerprint string, record *Record) (*Result, bool, error) {
	if record == nil || record.Status == StatusProcessing {
		return nil, false, nil
	}
	if fingerprint != "" && record.Fingerprint != "" && record.Fingerprint != fingerprint {
		m.log.WarnContext(ctx, "idempotency: key reused with different parameters", slog.String("key", key))
		return nil, true, ErrFingerprintMismatch
	}

	switch record.Status {
	case StatusCompleted:
		m.log.DebugContext(ctx, "idempotency: replaying stored result",
			slog.String("key", key),
			slog.Duration("age", time.Since(record.CreatedAt)),
		)
		return &Result{Response: record.Response, FromCache: true}, true, nil
	case StatusIndeterminate:
		return nil, true, ErrOutcomeUnknown
	default:
		return nil, false, nil
	}
}

func (m *manager) run(ctx context.Context, key, fingerprint string, ttl time.Duration, fn Operation, unlock Unlock) (*Result, error) {
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			m.log.WarnContext(ctx, "idempotency: release lock failed", slog.String("key", key), slog.Any("error", err))
		}
	}()

	// Another holder may have finished between our Get and Lock.
	record, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if res, done, err := m.settled(ctx, key, fingerprint, record); done {
		return res, err
	}

	started := time.Now()
	processing := &Record{Status: StatusProcessing, Fingerprint: fingerprint, CreatedAt: started}
	if err := m.store.Set(ctx, key, processing, m.lockTTL); err != nil {
		return nil, err
	}

	out, err := fn(ctx)
	if err != nil {
		var committed *Committed
		if errors.As(err, &committed) {
			m.keep(ctx, key, fingerprint, ttl, started, committed)
			return nil, committed.Err
		}

		if delErr := m.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			m.log.WarnContext(ctx, "idempotency: clear failed record", slog.String("key", key), slog.Any("error", delErr))
		}
		return nil, err
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("idempotency: encode result: %w", err)
	}

	done := &Record{Status: StatusCompleted, Response: encoded, Fingerprint: fingerprint, CreatedAt: started}
	if err := m.store.Set(ctx, key, done, ttl); err != nil {
		return nil, err
	}

	return &Result{Response: encoded}, nil
}

// keep stores the outcome of a Committed failure so retries do not run fn again.
func (m *manager) keep(ctx context.Context, key, fingerprint string, ttl time.Duration, started time.Time, committed *Committed) {
	record := &Record{Status: StatusIndeterminate, Fingerprint: fingerprint, CreatedAt: started}
	if committed.Result != nil {
		encoded, err := json.Marshal(committed.Result)
		if err == nil {
			record.Status = StatusCompleted
			record.Response = encoded
		} else {
			m.log.WarnContext(ctx, "idempotency: encode committed result", slog.String("key", key), slog.Any("error", err))
		}
	}

	if err := m.store.Set(context.WithoutCancel(ctx), key, record, ttl); err != nil {
		m.log.ErrorContext(ctx, "idempotency: store committed outcome failed",
			slog.String("key", key),
			slog.String("status", record.Status),
			slog.Any("error", err),
		)
	}
}
