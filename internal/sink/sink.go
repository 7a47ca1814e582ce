// Package sink emits refined results into the outbox namespace and terminal
// status reports for the controller. Results follow the stage-then-rename
// discipline; reports are single durable writes keyed by task_id.
package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aristath/relaxpool/internal/fsatomic"
	"github.com/aristath/relaxpool/internal/pool"
	"github.com/aristath/relaxpool/internal/task"
)

// File names inside an outbox entry.
const (
	RefinedFile = "CONTCAR"
	EnergyFile  = "energy"
)

// Report is the terminal per-task record the controller consumes and deletes.
// Success reports carry energies; error reports carry status and message.
type Report struct {
	TaskID       string   `json:"task_id"`
	EnergyFinal  *float64 `json:"energy_final,omitempty"`
	EnergyScreen *float64 `json:"energy_screen,omitempty"`
	WorkerID     string   `json:"worker_id"`
	Status       string   `json:"status,omitempty"`
	Error        string   `json:"error,omitempty"`
	Timestamp    string   `json:"stamp"`
}

// Sink writes to one outbox and one reports namespace on behalf of a worker.
type Sink struct {
	outboxDir  string
	reportsDir string
	workerID   string
}

// New creates a sink for the given worker identity.
func New(outboxDir, reportsDir, workerID string) *Sink {
	return &Sink{outboxDir: outboxDir, reportsDir: reportsDir, workerID: workerID}
}

// Result is a completed refinement ready for emission.
type Result struct {
	Meta      task.Meta // Updated metadata, refine fields populated
	Refined   []byte    // Final structure
	StatePath string    // Source for the optional aux blob; may not exist
}

// Emit publishes a refined result: the outbox entry is fully built under a
// temp name and made visible by one rename, then the success report is
// written. The caller removes its working claim afterward, never before.
func (s *Sink) Emit(r Result) error {
	id := r.Meta.TaskID

	staging := filepath.Join(s.outboxDir, fsatomic.TempPrefix+id)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("staging result %s: %w", id, err)
	}
	defer os.RemoveAll(staging)

	if err := fsatomic.WriteFile(filepath.Join(staging, RefinedFile), r.Refined); err != nil {
		return err
	}
	if r.Meta.EnergyFinal == nil {
		return fmt.Errorf("result %s has no final energy", id)
	}
	energy := fmt.Sprintf("%.12f\n", *r.Meta.EnergyFinal)
	if err := fsatomic.WriteFile(filepath.Join(staging, EnergyFile), []byte(energy)); err != nil {
		return err
	}
	if err := fsatomic.WriteJSON(filepath.Join(staging, pool.MetaFile), r.Meta); err != nil {
		return err
	}
	// Aux blob passes through when the claim carried one.
	if r.StatePath != "" {
		if err := fsatomic.CopyFile(r.StatePath, filepath.Join(staging, pool.StateFile)); err != nil {
			return err
		}
	}

	if err := fsatomic.Move(staging, filepath.Join(s.outboxDir, id)); err != nil {
		return fmt.Errorf("publishing result %s: %w", id, err)
	}

	screen := r.Meta.EnergyScreen
	return s.writeReport(Report{
		TaskID:       id,
		EnergyFinal:  r.Meta.EnergyFinal,
		EnergyScreen: &screen,
		WorkerID:     s.workerID,
		Timestamp:    task.Now(),
	})
}

// EmitError reports a failed refinement. No outbox entry is written: the
// controller learns the outcome solely from the report.
func (s *Sink) EmitError(taskID string, jobErr error) error {
	return s.writeReport(Report{
		TaskID:    taskID,
		Status:    "error",
		Error:     jobErr.Error(),
		WorkerID:  s.workerID,
		Timestamp: task.Now(),
	})
}

func (s *Sink) writeReport(r Report) error {
	path := filepath.Join(s.reportsDir, r.TaskID+".json")
	if err := fsatomic.WriteJSON(path, r); err != nil {
		return fmt.Errorf("writing report for %s: %w", r.TaskID, err)
	}
	return nil
}
