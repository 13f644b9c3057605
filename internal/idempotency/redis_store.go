package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/account-ledger/internal/lock"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	// StatusIndeterminate marks a key whose first attempt may have changed
	// state without producing a result.
	StatusIndeterminate = "indeterminate"
)

const keyPrefix = "ledger:idempotency:"

// Record is the state stored under one request key.
type Record struct {
	Status   string
	Response []byte
	// Fingerprint identifies the request parameters the key was first used with.
	Fingerprint string
	CreatedAt   time.Time
}

// Unlock releases a processing lock taken with Store.Lock.
type Unlock func(ctx context.Context) error

type Store interface {
	// Lock makes one attempt at the processing lock of key. It returns a
	// nil Unlock and nil error when another caller holds the lock.
	Lock(ctx context.Context, key string, lockTTL time.Duration) (Unlock, error)
	// Get returns nil when no record exists.
	Get(ctx context.Context, key string) (*Record, error)
	Set(ctx context.Context, key string, record *Record, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisStore keeps records as hashes and locks keys with lock.Mutex, so a
// holder whose lock expired cannot release a successor's lock.
type RedisStore struct {
	client redis.Cmdable
	log    *slog.Logger
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client redis.Cmdable, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{client: client, log: log}
}

func (s *RedisStore) Lock(ctx context.Context, key string, lockTTL time.Duration) (Unlock, error) {
	mutex := lock.NewMutex(s.client, lockKey(key), lockTTL)

	acquired, err := mutex.TryLock(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "idempotency lock failed", slog.String("key", key), slog.Any("error", err))
		return nil, err
	}
	if !acquired {
		return nil, nil
	}

	return func(ctx context.Context) error {
		err := mutex.Unlock(ctx)
		if errors.Is(err, lock.ErrNotHeld) {
			s.log.WarnContext(ctx, "idempotency lock expired before release", slog.String("key", key))
			return nil
		}
		return err
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	fields, err := s.client.HGetAll(ctx, recordKey(key)).Result()
	if err != nil {
		s.log.ErrorContext(ctx, "idempotency record read failed", slog.String("key", key), slog.Any("error", err))
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	record := &Record{
		Status:      fields["status"],
		Response:    []byte(fields["response"]),
		Fingerprint: fields["fingerprint"],
	}
	if created, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		record.CreatedAt = time.UnixMilli(created)
	}

	return record, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	if record == nil {
		return nil
	}

	created := record.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, recordKey(key),
			"status", record.Status,
			"response", string(record.Response),
			"fingerprint", record.Fingerprint,
			"created_at", created.UnixMilli(),
		)
		pipe.Expire(ctx, recordKey(key), ttl)
		return nil
	})
	if err != nil {
		s.log.ErrorContext(ctx, "idempotency record write failed", slog.String("key", key), slog.Any("error", err))
		return err
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, recordKey(key)).Err()
}

func recordKey(key string) string {
	return keyPrefix + key
}

func lockKey(key string) string {
	return keyPrefix + key + ":lock"
}
