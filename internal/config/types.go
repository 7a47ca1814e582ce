package config

import (
	"time"
)

// StageConfig holds the convergence parameters for one relaxation stage.
// The screen stage is loose and fast; the refine stage is tight and slow.
type StageConfig struct {
	Fmax     float64 `json:"fmax"`      // Convergence threshold
	MaxSteps int     `json:"max_steps"` // Iteration cap
}

// EngineConfig describes the external relaxer binary.
type EngineConfig struct {
	Command string   `json:"command"`          // Relaxer binary name
	Args    []string `json:"args,omitempty"`   // Extra args for every invocation
	Model   string   `json:"model,omitempty"`  // Model name (e.g., "GRACE-2L-OMAT")
	Device  string   `json:"device,omitempty"` // "cpu" or "cuda"
}

// PipelineConfig is the top-level configuration shared by all binaries.
type PipelineConfig struct {
	Root           string       `json:"root"`             // Pipeline root directory
	PoolCapacity   int          `json:"pool_capacity"`    // Waiting pool soft cap
	PollIntervalMS int          `json:"poll_interval_ms"` // Fast worker go-signal poll
	IdleSleepMS    int          `json:"idle_sleep_ms"`    // Slow worker empty-pool sleep
	Screen         StageConfig  `json:"screen"`
	Refine         StageConfig  `json:"refine"`
	Engine         EngineConfig `json:"engine"`
}

// PollInterval returns the fast worker polling interval as a duration.
func (c *PipelineConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// IdleSleep returns the slow worker idle sleep as a duration.
func (c *PipelineConfig) IdleSleep() time.Duration {
	return time.Duration(c.IdleSleepMS) * time.Millisecond
}
