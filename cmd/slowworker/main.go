// Command slowworker runs refinement loops. Each loop claims the
// lowest-energy waiting-pool entry, refines it through the external relaxer,
// and emits the final result and a status report for the controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/relaxpool/internal/config"
	"github.com/aristath/relaxpool/internal/counter"
	"github.com/aristath/relaxpool/internal/engine"
	"github.com/aristath/relaxpool/internal/events"
	"github.com/aristath/relaxpool/internal/journal"
	"github.com/aristath/relaxpool/internal/layout"
	"github.com/aristath/relaxpool/internal/worker"
)

func main() {
	var (
		rootFlag    = flag.String("root", "", "pipeline root directory (overrides config)")
		idFlag      = flag.String("worker-id", "slow-00", "worker identity recorded in results")
		workersFlag = flag.Int("workers", 1, "number of concurrent refinement loops")
	)
	flag.Parse()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *rootFlag != "" {
		cfg.Root = *rootFlag
	}
	if *workersFlag < 1 {
		fmt.Fprintln(os.Stderr, "Error: -workers must be at least 1")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := layout.Root(cfg.Root)
	if err := root.EnsureAll(); err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing namespaces: %v\n", err)
		os.Exit(1)
	}

	pm := engine.NewProcessManager()
	go func() {
		<-ctx.Done()
		if err := pm.KillAll(); err != nil {
			log.Printf("Error killing relaxer subprocesses: %v", err)
		}
	}()

	eng, err := engine.NewCommandEngine(engine.Config{
		Command: cfg.Engine.Command,
		Args:    cfg.Engine.Args,
		Model:   cfg.Engine.Model,
		Device:  cfg.Engine.Device,
	}, pm)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating engine: %v\n", err)
		os.Exit(1)
	}

	bus := events.NewBus()
	defer bus.Close()
	startDiagnostics(ctx, bus, cfg.Root)

	counters := counter.New(root.Counters())
	breaker := worker.NewEngineBreaker("refine")

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < *workersFlag; w++ {
		id := *idFlag
		if *workersFlag > 1 {
			id = fmt.Sprintf("%s-%02d", *idFlag, w)
		}
		s := worker.NewSlow(worker.SlowConfig{
			WorkerID:  id,
			Root:      root,
			Engine:    eng,
			Refine:    engine.Options{Fmax: cfg.Refine.Fmax, MaxSteps: cfg.Refine.MaxSteps},
			IdleSleep: cfg.IdleSleep(),
			Counters:  counters,
			Bus:       bus,
			Breaker:   breaker,
		})
		g.Go(func() error { return s.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// startDiagnostics wires the event bus to stderr logging and the job journal.
func startDiagnostics(ctx context.Context, bus *events.Bus, rootDir string) {
	j, err := journal.Open(ctx, filepath.Join(rootDir, "journal.db"))
	if err != nil {
		log.Printf("journal disabled: %v", err)
	} else {
		go j.Follow(ctx, bus.SubscribeAll(256))
	}

	go func() {
		for ev := range bus.SubscribeAll(256) {
			log.Printf("%s %s", ev.EventType(), ev.TaskID())
		}
	}()
}
