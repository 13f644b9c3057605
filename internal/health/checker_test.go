package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func TestChecker_ReportsEachComponent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewChecker(time.Second, testLogger())
	c.AddCheck("redis", NewRedisChecker(client))
	c.AddCheck("postgres", NewDBChecker(fakePinger{err: errors.New("connection refused")}))
	c.AddCheck("", CheckFunc(func(context.Context) error { return nil }))

	results := c.Check(context.Background())
	assert.Equal(t, map[string]string{
		"redis":    "OK",
		"postgres": "connection refused",
	}, results)

	err := c.Err(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: connection refused")
}

func TestChecker_Handler(t *testing.T) {
	c := NewChecker(time.Second, testLogger())
	c.AddCheck("postgres", NewDBChecker(fakePinger{}))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.AddCheck("kafka", CheckFunc(func(context.Context) error { return errors.New("no brokers") }))
	rec = httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "no brokers", body["kafka"])
}

func TestCheckers_NilTargets(t *testing.T) {
	assert.Error(t, NewDBChecker(nil).HealthCheck(context.Background()))
	assert.ErrorIs(t, NewRedisChecker(nil).HealthCheck(context.Background()), redis.ErrClosed)
}
