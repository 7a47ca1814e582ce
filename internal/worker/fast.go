// Package worker implements the two pipeline stages as single-goroutine
// cooperative polling loops. Each loop contains every error raised by a job:
// nothing short of context cancellation stops a worker.
package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aristath/relaxpool/internal/counter"
	"github.com/aristath/relaxpool/internal/engine"
	"github.com/aristath/relaxpool/internal/events"
	"github.com/aristath/relaxpool/internal/fsatomic"
	"github.com/aristath/relaxpool/internal/handshake"
	"github.com/aristath/relaxpool/internal/layout"
	"github.com/aristath/relaxpool/internal/pool"
	"github.com/aristath/relaxpool/internal/task"
)

// FastConfig configures one screening loop.
type FastConfig struct {
	Slot         int
	Root         layout.Root
	Engine       engine.Engine
	Screen       engine.Options            // Coarse-stage convergence settings
	PoolCapacity int                       // Waiting pool soft cap (default 128)
	PollInterval time.Duration             // Go-signal poll (default 50ms)
	Counters     *counter.Service          // nil disables counters
	Bus          *events.Bus               // nil disables events
	Breaker      *gobreaker.CircuitBreaker // nil disables the engine breaker
	Logger       *log.Logger               // nil gets a slot-tagged stderr logger
}

// Fast is the screening worker bound to one handshake slot: it waits for
// go-signals, runs the coarse relaxation, and pushes survivors into the
// waiting pool.
type Fast struct {
	cfg  FastConfig
	slot *handshake.Slot
	pool *pool.Pool
	logf *log.Logger
}

// NewFast creates a screening worker.
func NewFast(cfg FastConfig) *Fast {
	if cfg.PoolCapacity <= 0 {
		cfg.PoolCapacity = 128
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	logf := cfg.Logger
	if logf == nil {
		logf = log.New(os.Stderr, fmt.Sprintf("[fast %d] ", cfg.Slot), log.LstdFlags)
	}
	return &Fast{
		cfg:  cfg,
		slot: handshake.NewSlot(cfg.Root.Fast(), cfg.Slot),
		pool: pool.New(cfg.Root.Pool()),
		logf: logf,
	}
}

// Run polls the slot until ctx is cancelled. Cancellation is honored at the
// top of the loop only: an in-flight relaxation is not preemptible, so
// shutdown can lag by up to one computation.
func (f *Fast) Run(ctx context.Context) error {
	// Interrupted writes from a prior life are invisible; sweep them anyway.
	if err := fsatomic.SweepTemp(f.pool.Dir()); err != nil {
		f.logf.Printf("temp sweep: %v", err)
	}
	f.logf.Printf("initialized @ %s", string(f.cfg.Root))

	for {
		if ctx.Err() != nil {
			f.logf.Printf("bye")
			return nil
		}
		if !f.slot.Pending() {
			sleep(ctx, f.cfg.PollInterval)
			continue
		}
		if err := f.ProcessOne(ctx); err != nil {
			f.logf.Printf("ERROR: %v", err)
		}
	}
}

// ProcessOne handles a single posted go-signal end to end. The slot is
// always released (done posted, go cleared) whatever happens in between;
// that is the one handshake obligation a fast worker can never skip.
func (f *Fast) ProcessOne(ctx context.Context) (err error) {
	defer func() {
		if cerr := f.slot.Complete(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if f.cfg.Counters != nil {
		if cerr := f.cfg.Counters.Increment("fast_count"); cerr != nil {
			f.logf.Printf("counter: %v", cerr)
		}
	}

	structure, err := f.slot.ReadStructure(ctx)
	if err != nil {
		return err
	}
	state, err := f.slot.ReadState()
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := relax(ctx, f.cfg.Breaker, f.cfg.Engine, structure, f.cfg.Screen)
	if err != nil {
		f.publish(events.TopicScreen, events.TaskFailedEvent{
			ID:        fmt.Sprintf("slot%d", f.cfg.Slot),
			Stage:     "screen",
			Err:       err,
			Timestamp: time.Now(),
		})
		return fmt.Errorf("screen relaxation: %w", err)
	}
	elapsed := time.Since(start)

	id := task.NewID(f.cfg.Slot)
	f.publish(events.TopicScreen, events.TaskScreenedEvent{
		ID:        id,
		Slot:      f.cfg.Slot,
		Energy:    res.Energy,
		Elapsed:   elapsed,
		Timestamp: time.Now(),
	})

	cand := pool.Candidate{
		Meta: task.Meta{
			TaskID:         id,
			SourceSlot:     f.cfg.Slot,
			EnergyScreen:   res.Energy,
			FmaxScreen:     f.cfg.Screen.Fmax,
			MaxStepsScreen: f.cfg.Screen.MaxSteps,
			ElapsedScreen:  roundSeconds(elapsed),
			Timestamp:      task.Now(),
		},
		Payload: res.Structure,
		State:   state,
	}

	inserted, evicted, err := f.pool.Insert(cand, f.cfg.PoolCapacity)
	if err != nil {
		return fmt.Errorf("pool insert: %w", err)
	}
	if !inserted {
		// Normal outcome: the pool is full of strictly better candidates.
		f.logf.Printf("drop candidate E=%.6f due to pool full", res.Energy)
		f.publish(events.TopicScreen, events.TaskDroppedEvent{
			ID: id, Energy: res.Energy, Timestamp: time.Now(),
		})
		return nil
	}
	f.publish(events.TopicScreen, events.TaskInsertedEvent{
		ID: id, Energy: res.Energy, Evicted: evicted, Timestamp: time.Now(),
	})
	return nil
}

func (f *Fast) publish(topic string, ev events.Event) {
	if f.cfg.Bus != nil {
		f.cfg.Bus.Publish(topic, ev)
	}
}

// roundSeconds reports a duration as seconds with millisecond precision,
// the resolution the metadata records have always used.
func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(time.Millisecond)) / float64(time.Second)
}
