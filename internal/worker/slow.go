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
	"github.com/aristath/relaxpool/internal/layout"
	"github.com/aristath/relaxpool/internal/pool"
	"github.com/aristath/relaxpool/internal/sink"
	"github.com/aristath/relaxpool/internal/task"
)

// SlowConfig configures one refinement loop.
type SlowConfig struct {
	WorkerID  string
	Root      layout.Root
	Engine    engine.Engine
	Refine    engine.Options            // Tight-stage convergence settings
	IdleSleep time.Duration             // Empty-pool sleep (default 200ms)
	Counters  *counter.Service          // nil disables counters
	Bus       *events.Bus               // nil disables events
	Breaker   *gobreaker.CircuitBreaker // nil disables the engine breaker
	Logger    *log.Logger               // nil gets a worker-tagged stderr logger
}

// Slow is a refinement worker: it races other slow workers for the
// lowest-energy pool entry, refines it, and emits the result and report.
type Slow struct {
	cfg  SlowConfig
	pool *pool.Pool
	sink *sink.Sink
	logf *log.Logger
}

// NewSlow creates a refinement worker.
func NewSlow(cfg SlowConfig) *Slow {
	if cfg.WorkerID == "" {
		cfg.WorkerID = "slow-00"
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = 200 * time.Millisecond
	}
	logf := cfg.Logger
	if logf == nil {
		logf = log.New(os.Stderr, fmt.Sprintf("[%s] ", cfg.WorkerID), log.LstdFlags)
	}
	return &Slow{
		cfg:  cfg,
		pool: pool.New(cfg.Root.Pool()),
		sink: sink.New(cfg.Root.Outbox(), cfg.Root.Reports(), cfg.WorkerID),
		logf: logf,
	}
}

// Run claims and refines until ctx is cancelled. An empty pool, or a pool
// whose every entry was won by a competitor, parks the worker for the idle
// sleep; a lost race is not an error.
func (s *Slow) Run(ctx context.Context) error {
	if err := fsatomic.SweepTemp(s.cfg.Root.Outbox()); err != nil {
		s.logf.Printf("temp sweep: %v", err)
	}
	s.logf.Printf("initialized @ %s", string(s.cfg.Root))

	for {
		if ctx.Err() != nil {
			s.logf.Printf("bye")
			return nil
		}
		claimed, err := s.pool.Claim(s.cfg.Root.Work())
		if err != nil {
			s.logf.Printf("ERROR: claim scan: %v", err)
			sleep(ctx, s.cfg.IdleSleep)
			continue
		}
		if claimed == nil {
			sleep(ctx, s.cfg.IdleSleep)
			continue
		}
		s.ProcessClaim(ctx, claimed)
	}
}

// ProcessClaim refines one exclusively owned entry. Every outcome writes a
// terminal report, and the working claim is removed as the unconditional
// last step: a crash before that point orphans the claim instead of losing
// the task silently.
func (s *Slow) ProcessClaim(ctx context.Context, claimed *pool.Claimed) {
	defer func() {
		if err := claimed.Remove(); err != nil {
			s.logf.Printf("cleanup: %v", err)
		}
	}()

	if s.cfg.Counters != nil {
		if err := s.cfg.Counters.Increment("slow_count"); err != nil {
			s.logf.Printf("counter: %v", err)
		}
	}

	// Unreadable metadata degrades to a bare record keyed by the directory
	// name; the task is still refined and reported.
	meta, err := claimed.Meta()
	if err != nil {
		s.logf.Printf("metadata unreadable for %s: %v", claimed.ID, err)
		meta = task.Meta{TaskID: claimed.ID, EnergyScreen: task.WorstEnergy}
	}
	if meta.TaskID == "" {
		meta.TaskID = claimed.ID
	}

	s.publish(events.TaskClaimedEvent{
		ID: meta.TaskID, WorkerID: s.cfg.WorkerID, Energy: meta.EnergyScreen, Timestamp: time.Now(),
	})

	if err := s.refine(ctx, claimed, meta); err != nil {
		s.logf.Printf("ERROR: %v", err)
		s.publish(events.TaskFailedEvent{
			ID: meta.TaskID, Stage: "refine", WorkerID: s.cfg.WorkerID, Err: err, Timestamp: time.Now(),
		})
		if rerr := s.sink.EmitError(meta.TaskID, err); rerr != nil {
			s.logf.Printf("ERROR: error report for %s: %v", meta.TaskID, rerr)
		}
	}
}

// refine runs the tight relaxation and publishes the result.
func (s *Slow) refine(ctx context.Context, claimed *pool.Claimed, meta task.Meta) error {
	structure, err := claimed.Payload()
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := relax(ctx, s.cfg.Breaker, s.cfg.Engine, structure, s.cfg.Refine)
	if err != nil {
		return fmt.Errorf("refine relaxation: %w", err)
	}
	elapsed := time.Since(start)

	energyFinal := res.Energy
	meta.EnergyFinal = &energyFinal
	meta.FmaxRefine = s.cfg.Refine.Fmax
	meta.MaxStepsRefine = s.cfg.Refine.MaxSteps
	meta.ElapsedRefine = roundSeconds(elapsed)
	meta.WorkerID = s.cfg.WorkerID
	meta.Timestamp = task.Now()

	if err := s.sink.Emit(sink.Result{
		Meta:      meta,
		Refined:   res.Structure,
		StatePath: claimed.StatePath(),
	}); err != nil {
		return fmt.Errorf("emitting result: %w", err)
	}

	s.publish(events.TaskRefinedEvent{
		ID: meta.TaskID, WorkerID: s.cfg.WorkerID, Energy: res.Energy, Elapsed: elapsed, Timestamp: time.Now(),
	})
	return nil
}

func (s *Slow) publish(ev events.Event) {
	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(events.TopicRefine, ev)
	}
}
