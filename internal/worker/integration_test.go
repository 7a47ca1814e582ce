package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/relaxpool/internal/engine"
	"github.com/aristath/relaxpool/internal/events"
	"github.com/aristath/relaxpool/internal/handshake"
	"github.com/aristath/relaxpool/internal/layout"
	"github.com/aristath/relaxpool/internal/sink"
	"github.com/aristath/relaxpool/internal/task"
)

// TestPipeline_EndToEnd pushes tasks through the whole pipeline: controller
// handshakes feed two fast workers, two slow workers race over the pool, and
// every task ends as exactly one outbox entry plus one report.
func TestPipeline_EndToEnd(t *testing.T) {
	root := layout.Root(t.TempDir())
	if err := root.EnsureAll(); err != nil {
		t.Fatal(err)
	}

	// Screen assigns an energy derived from the structure; refine improves it.
	screenEngine := engine.Func(func(_ context.Context, structure []byte, _ engine.Options) (engine.Result, error) {
		return engine.Result{Energy: float64(len(structure)), Structure: structure}, nil
	})
	refineEngine := engine.Func(func(_ context.Context, structure []byte, _ engine.Options) (engine.Result, error) {
		return engine.Result{Energy: float64(len(structure)) - 0.5, Structure: structure}, nil
	})

	bus := events.NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for k := 0; k < 2; k++ {
		f := NewFast(FastConfig{
			Slot:         k,
			Root:         root,
			Engine:       screenEngine,
			PoolCapacity: 8,
			PollInterval: 5 * time.Millisecond,
			Bus:          bus,
			Logger:       quietLogger(),
		})
		g.Go(func() error { return f.Run(gctx) })
	}
	for w := 0; w < 2; w++ {
		s := NewSlow(SlowConfig{
			WorkerID:  fmt.Sprintf("slow-%02d", w),
			Root:      root,
			Engine:    refineEngine,
			IdleSleep: 5 * time.Millisecond,
			Bus:       bus,
			Logger:    quietLogger(),
		})
		g.Go(func() error { return s.Run(gctx) })
	}

	// Controller side: feed each slot a few structures of distinct length.
	const rounds = 3
	slots := []*handshake.Slot{
		handshake.NewSlot(root.Fast(), 0),
		handshake.NewSlot(root.Fast(), 1),
	}
	for r := 0; r < rounds; r++ {
		for _, slot := range slots {
			structure := make([]byte, 10+r*2+slot.Index())
			if err := slot.Request(structure, nil); err != nil {
				t.Fatal(err)
			}
			waitFor(t, 2*time.Second, slot.Done)
			if err := slot.ClearDone(); err != nil {
				t.Fatal(err)
			}
		}
	}

	// All screened tasks must surface as reports.
	total := rounds * len(slots)
	waitFor(t, 5*time.Second, func() bool {
		reports, _ := os.ReadDir(root.Reports())
		return len(reports) == total
	})

	cancel()
	if err := g.Wait(); err != nil {
		t.Errorf("workers returned %v", err)
	}

	// Each report has a matching, fully refined outbox entry, and nothing is
	// left in the pool or work namespaces.
	reports, err := os.ReadDir(root.Reports())
	if err != nil {
		t.Fatal(err)
	}
	for _, rep := range reports {
		id := rep.Name()[:len(rep.Name())-len(".json")]
		m, err := task.ReadMeta(filepath.Join(root.Outbox(), id, "meta.json"))
		if err != nil {
			t.Errorf("outbox meta for %s: %v", id, err)
			continue
		}
		if m.EnergyFinal == nil {
			t.Errorf("task %s missing final energy", id)
		}
		if _, err := os.Stat(filepath.Join(root.Outbox(), id, sink.RefinedFile)); err != nil {
			t.Errorf("task %s missing refined structure: %v", id, err)
		}
	}

	for _, dir := range []string{root.Pool(), root.Work()} {
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Errorf("%s not drained: %d entries", dir, len(entries))
		}
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition never met")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
