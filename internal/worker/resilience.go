package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aristath/relaxpool/internal/engine"
)

// NewEngineBreaker creates the circuit breaker a worker routes its engine
// calls through. A relaxer that fails five jobs in a row is almost certainly
// broken (missing model, dead GPU), so further jobs fail fast with error
// reports instead of burning a full computation each; the breaker probes for
// recovery after 30 seconds.
func NewEngineBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3, // Test requests allowed in half-open state
		Interval:    0, // Never clear counts automatically
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("engine breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Shutdown mid-relaxation is not an engine failure.
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})
}

// relax runs one relaxation, through the breaker when one is configured.
// There is no per-job retry: a failed computation is abandoned and reported,
// never re-run by this pipeline.
func relax(ctx context.Context, br *gobreaker.CircuitBreaker, eng engine.Engine, structure []byte, opts engine.Options) (engine.Result, error) {
	if br == nil {
		return eng.Relax(ctx, structure, opts)
	}
	result, err := br.Execute(func() (interface{}, error) {
		return eng.Relax(ctx, structure, opts)
	})
	if err != nil {
		return engine.Result{}, err
	}
	return result.(engine.Result), nil
}

// sleep pauses for d or until ctx is cancelled, whichever comes first.
// The loops' only suspension points.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
