package worker

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/relaxpool/internal/counter"
	"github.com/aristath/relaxpool/internal/engine"
	"github.com/aristath/relaxpool/internal/handshake"
	"github.com/aristath/relaxpool/internal/layout"
	"github.com/aristath/relaxpool/internal/pool"
	"github.com/aristath/relaxpool/internal/task"
)

// okEngine returns a fixed energy and echoes the structure back.
func okEngine(energy float64) engine.Engine {
	return engine.Func(func(_ context.Context, structure []byte, _ engine.Options) (engine.Result, error) {
		return engine.Result{Energy: energy, Structure: append([]byte("relaxed "), structure...)}, nil
	})
}

// failEngine always raises.
func failEngine(msg string) engine.Engine {
	return engine.Func(func(_ context.Context, _ []byte, _ engine.Options) (engine.Result, error) {
		return engine.Result{}, errors.New(msg)
	})
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newFastFixture(t *testing.T, eng engine.Engine) (*Fast, *handshake.Slot, layout.Root) {
	t.Helper()
	root := layout.Root(t.TempDir())
	if err := root.EnsureAll(); err != nil {
		t.Fatal(err)
	}
	f := NewFast(FastConfig{
		Slot:         0,
		Root:         root,
		Engine:       eng,
		Screen:       engine.Options{Fmax: 0.10, MaxSteps: 30},
		PoolCapacity: 4,
		Counters:     counter.New(root.Counters()),
		Logger:       quietLogger(),
	})
	return f, handshake.NewSlot(root.Fast(), 0), root
}

// TestFast_ProcessOne_InsertsIntoPool verifies the success path: pool entry
// with full metadata, slot released, counter bumped.
func TestFast_ProcessOne_InsertsIntoPool(t *testing.T) {
	f, slot, root := newFastFixture(t, okEngine(-3.25))

	if err := slot.Request([]byte("POSCAR data"), []byte("SAVE data")); err != nil {
		t.Fatal(err)
	}
	if err := f.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}

	p := pool.New(root.Pool())
	entries, err := p.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("pool population = %d, want 1", len(entries))
	}
	if entries[0].Energy != -3.25 {
		t.Errorf("energy = %v, want -3.25", entries[0].Energy)
	}

	m, err := task.ReadMeta(filepath.Join(entries[0].Path, pool.MetaFile))
	if err != nil {
		t.Fatal(err)
	}
	if m.SourceSlot != 0 || m.FmaxScreen != 0.10 || m.MaxStepsScreen != 30 {
		t.Errorf("meta = %+v", m)
	}
	payload, _ := os.ReadFile(filepath.Join(entries[0].Path, pool.PayloadFile))
	if string(payload) != "relaxed POSCAR data" {
		t.Errorf("payload = %q", payload)
	}
	state, _ := os.ReadFile(filepath.Join(entries[0].Path, pool.StateFile))
	if string(state) != "SAVE data" {
		t.Errorf("state = %q", state)
	}

	if !slot.Done() || slot.Pending() {
		t.Error("slot not released: done should be posted, go cleared")
	}
	if got := counter.New(root.Counters()).Read("fast_count"); got != 1 {
		t.Errorf("fast_count = %d, want 1", got)
	}
}

// TestFast_ProcessOne_EngineFailureStillReleasesSlot runs the contract
// scenario: a raising relaxation leaves the slot reusable and creates no
// pool entry, but the job counter still ticks.
func TestFast_ProcessOne_EngineFailureStillReleasesSlot(t *testing.T) {
	f, slot, root := newFastFixture(t, failEngine("model exploded"))

	if err := slot.Request([]byte("POSCAR data"), nil); err != nil {
		t.Fatal(err)
	}
	err := f.ProcessOne(context.Background())
	if err == nil {
		t.Fatal("expected the engine error to surface for logging")
	}

	if !slot.Done() {
		t.Error("done-signal must be posted on failure")
	}
	if slot.Pending() {
		t.Error("go-signal must be cleared on failure")
	}
	if n, _ := pool.New(root.Pool()).Len(); n != 0 {
		t.Errorf("pool population = %d, want 0", n)
	}
	if got := counter.New(root.Counters()).Read("fast_count"); got != 1 {
		t.Errorf("fast_count = %d, want 1", got)
	}
}

// TestFast_ProcessOne_DropsUncompetitiveCandidate verifies the full-pool
// drop path keeps the slot handshake intact.
func TestFast_ProcessOne_DropsUncompetitiveCandidate(t *testing.T) {
	root := layout.Root(t.TempDir())
	if err := root.EnsureAll(); err != nil {
		t.Fatal(err)
	}
	p := pool.New(root.Pool())
	for i, e := range []float64{1.0, 2.0} {
		_, _, err := p.Insert(pool.Candidate{
			Meta:    task.Meta{TaskID: task.NewID(9), EnergyScreen: e, Timestamp: task.Now()},
			Payload: []byte("seed"),
		}, 2)
		if err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	f := NewFast(FastConfig{
		Slot:         0,
		Root:         root,
		Engine:       okEngine(5.0), // Worse than everything pooled
		PoolCapacity: 2,
		Logger:       quietLogger(),
	})
	slot := handshake.NewSlot(root.Fast(), 0)
	if err := slot.Request([]byte("s"), nil); err != nil {
		t.Fatal(err)
	}

	if err := f.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if n, _ := p.Len(); n != 2 {
		t.Errorf("pool population = %d, want unchanged 2", n)
	}
	if !slot.Done() || slot.Pending() {
		t.Error("slot not released after drop")
	}
}

// TestFast_Run_ServicesRequestsUntilCancelled runs the real polling loop
// against a live slot.
func TestFast_Run_ServicesRequestsUntilCancelled(t *testing.T) {
	root := layout.Root(t.TempDir())
	if err := root.EnsureAll(); err != nil {
		t.Fatal(err)
	}
	f := NewFast(FastConfig{
		Slot:         1,
		Root:         root,
		Engine:       okEngine(-1.0),
		PollInterval: 5 * time.Millisecond,
		Logger:       quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	slot := handshake.NewSlot(root.Fast(), 1)
	if err := slot.Request([]byte("POSCAR"), nil); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for !slot.Done() {
		select {
		case <-deadline:
			t.Fatal("worker never serviced the request")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancellation")
	}

	if n, _ := pool.New(root.Pool()).Len(); n != 1 {
		t.Errorf("pool population = %d, want 1", n)
	}
}
