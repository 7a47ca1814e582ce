// Package task defines the unit of work flowing through the pipeline and its
// on-disk metadata record.
package task

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
)

// WorstEnergy is the sentinel ranking key assigned to entries whose metadata
// is missing or unparsable. It sorts after every real energy, so corrupt
// entries are preferred for eviction and serviced last.
const WorstEnergy = math.MaxFloat64

// Stamp is the human-readable timestamp format used in metadata and reports.
const Stamp = "2006-01-02 15:04:05"

// Meta is the metadata record carried by a task from screening through
// refinement. The screen-stage fields are written by fast workers; the
// refine-stage fields are added by the slow worker that completes the task.
type Meta struct {
	TaskID       string  `json:"task_id"`
	SourceSlot   int     `json:"source_slot"`
	EnergyScreen float64 `json:"energy_screen"`
	FmaxScreen   float64 `json:"fmax_screen"`
	MaxStepsScreen int   `json:"max_steps_screen"`
	ElapsedScreen  float64 `json:"elapsed_screen_s"`

	EnergyFinal   *float64 `json:"energy_final,omitempty"`
	FmaxRefine    float64  `json:"fmax_refine,omitempty"`
	MaxStepsRefine int     `json:"max_steps_refine,omitempty"`
	ElapsedRefine float64  `json:"elapsed_refine_s,omitempty"`
	WorkerID      string   `json:"worker_id,omitempty"`

	Timestamp string `json:"stamp"`
}

// NewID builds a pool-unique task identifier: a nanosecond timestamp for
// rough arrival ordering, the originating slot, and a short random suffix
// against same-nanosecond collisions.
func NewID(slot int) string {
	return fmt.Sprintf("%d_%d_%s", time.Now().UnixNano(), slot, uuid.NewString()[:8])
}

// Now returns the current time in the metadata stamp format.
func Now() string {
	return time.Now().Format(Stamp)
}

// ReadMeta parses a metadata file.
func ReadMeta(path string) (Meta, error) {
	var m Meta
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}

// ReadEnergy recovers the ranking key from a metadata file. Missing files,
// unparsable JSON, and records without an energy_screen field all yield
// WorstEnergy rather than an error: eviction and claim ordering degrade
// gracefully instead of failing.
func ReadEnergy(path string) float64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return WorstEnergy
	}
	var m struct {
		EnergyScreen *float64 `json:"energy_screen"`
	}
	if err := json.Unmarshal(data, &m); err != nil || m.EnergyScreen == nil {
		return WorstEnergy
	}
	return *m.EnergyScreen
}
