package lifecycle

import "context"

// Hook describes a named shutdown hook.
type Hook struct {
	Name string
	// Phase orders hooks: lower phases finish before higher ones start.
	Phase int
	Fn    func(ctx context.Context) error
}

// Shutdown phases used by the server binary.
const (
	PhaseIngress  = 0
	PhaseWorkers  = 1
	PhaseBackends = 2
)
