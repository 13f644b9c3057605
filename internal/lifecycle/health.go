package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
)

var ErrShuttingDown = errors.New("lifecycle: shutting down")

// ReadinessCheck reports whether dependencies are usable.
type ReadinessCheck interface {
	Err(ctx context.Context) error
}

// Probes backs the liveness and readiness endpoints.
type Probes struct {
	log      *slog.Logger
	ready    ReadinessCheck
	draining atomic.Bool
}

// NewProbes builds probes; a nil check makes readiness follow only the
// draining flag.
func NewProbes(ready ReadinessCheck, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{log: log, ready: ready}
}

// Liveness reports success while the process runs.
func (p *Probes) Liveness(ctx context.Context) error {
	return nil
}

// Readiness fails once draining has begun or any dependency check fails.
func (p *Probes) Readiness(ctx context.Context) error {
	if p.draining.Load() {
		return ErrShuttingDown
	}
	if p.ready == nil {
		return nil
	}
	return p.ready.Err(ctx)
}

// MarkDraining makes readiness fail so load balancers stop routing here.
func (p *Probes) MarkDraining() {
	if !p.draining.Swap(true) {
		p.log.Info("readiness probe switched to draining")
	}
}

func (p *Probes) LivenessHandler() http.Handler {
	return probeHandler(p.Liveness, p.log)
}

func (p *Probes) ReadinessHandler() http.Handler {
	return probeHandler(p.Readiness, p.log)
}

func probeHandler(probe func(context.Context) error, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := probe(r.Context()); err != nil {
			log.Debug("probe failed", slog.String("path", r.URL.Path), slog.Any("error", err))
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
