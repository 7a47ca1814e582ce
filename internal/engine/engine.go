// Package engine abstracts the external relaxation computation. The pipeline
// only needs the capability "relax this structure under these convergence
// settings and hand back a score and a final structure"; everything about the
// model, the device, and the physics lives behind the Engine interface.
package engine

import (
	"context"
)

// Options are the stage parameters passed through to the relaxer. The
// pipeline treats them as opaque: screen and refine stages differ only in
// how tight these are.
type Options struct {
	Fmax     float64 // Convergence threshold
	MaxSteps int     // Iteration cap
}

// Result is a completed relaxation.
type Result struct {
	Energy    float64 // Relaxed energy; the pipeline's ranking key
	Structure []byte  // Final structure
}

// Engine runs relaxations. Relax blocks for the full computation; the
// pipeline imposes no timeout on it, so a hung engine blocks its worker
// until the context is cancelled.
type Engine interface {
	Relax(ctx context.Context, structure []byte, opts Options) (Result, error)
}

// Func adapts a plain function to the Engine interface. Used by tests and by
// in-process relaxers.
type Func func(ctx context.Context, structure []byte, opts Options) (Result, error)

// Relax implements Engine.
func (f Func) Relax(ctx context.Context, structure []byte, opts Options) (Result, error) {
	return f(ctx, structure, opts)
}
