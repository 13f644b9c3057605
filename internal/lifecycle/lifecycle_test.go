package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type readiness struct{ err error }

func (r readiness) Err(context.Context) error { return r.err }

func TestShutdown_RunsPhasesInOrder(t *testing.T) {
	s := NewShutdown(testLogger())

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	s.Register(PhaseBackends, "redis", record("redis"))
	s.Register(PhaseIngress, "http", record("http"))
	s.Register(PhaseWorkers, "jobs", record("jobs"))
	s.Register(PhaseWorkers, "nil", nil)

	require.NoError(t, s.Execute(context.Background()))
	assert.Equal(t, []string{"http", "jobs", "redis"}, order)
}

func TestShutdown_JoinsErrors(t *testing.T) {
	s := NewShutdown(testLogger())
	boom := errors.New("boom")

	s.Register(PhaseIngress, "http", func(context.Context) error { return boom })
	s.Register(PhaseBackends, "db", func(context.Context) error { return nil })

	err := s.Execute(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "http: boom")
}

func TestProbes_Readiness(t *testing.T) {
	p := NewProbes(readiness{}, testLogger())
	assert.NoError(t, p.Readiness(context.Background()))

	rec := httptest.NewRecorder()
	p.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	p.MarkDraining()
	assert.ErrorIs(t, p.Readiness(context.Background()), ErrShuttingDown)
	assert.NoError(t, p.Liveness(context.Background()))

	rec = httptest.NewRecorder()
	p.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProbes_DependencyFailure(t *testing.T) {
	p := NewProbes(readiness{err: errors.New("postgres: down")}, testLogger())
	assert.EqualError(t, p.Readiness(context.Background()), "postgres: down")
}
