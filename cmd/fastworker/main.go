// Command fastworker runs screening loops for one or more handshake slots.
// Each slot polls for controller go-signals, screens the staged structure
// through the external relaxer, and pushes survivors into the waiting pool.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
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
		rootFlag  = flag.String("root", "", "pipeline root directory (overrides config)")
		slotsFlag = flag.String("slots", "0", "comma-separated handshake slot indices to serve")
		capFlag   = flag.Int("pool-cap", 0, "waiting pool capacity (overrides config)")
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
	if *capFlag > 0 {
		cfg.PoolCapacity = *capFlag
	}

	slots, err := parseSlots(*slotsFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing -slots: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := layout.Root(cfg.Root)
	if err := root.EnsureAll(); err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing namespaces: %v\n", err)
		os.Exit(1)
	}

	// Relaxer subprocesses are killed as whole process groups on shutdown.
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
	breaker := worker.NewEngineBreaker("screen")

	g, gctx := errgroup.WithContext(ctx)
	for _, slot := range slots {
		f := worker.NewFast(worker.FastConfig{
			Slot:         slot,
			Root:         root,
			Engine:       eng,
			Screen:       engine.Options{Fmax: cfg.Screen.Fmax, MaxSteps: cfg.Screen.MaxSteps},
			PoolCapacity: cfg.PoolCapacity,
			PollInterval: cfg.PollInterval(),
			Counters:     counters,
			Bus:          bus,
			Breaker:      breaker,
		})
		g.Go(func() error { return f.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseSlots turns "0,1,2" into slot indices.
func parseSlots(s string) ([]int, error) {
	var slots []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, err := strconv.Atoi(part)
		if err != nil || k < 0 {
			return nil, fmt.Errorf("invalid slot %q", part)
		}
		slots = append(slots, k)
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("no slots given")
	}
	return slots, nil
}

// startDiagnostics wires the event bus to stderr logging and the job journal.
// Both are best-effort: a journal that fails to open only costs history.
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
