// Package frame drives the per-frame loop: input snapshot, stage schedules,
// instance batching and presentation.
package frame

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edwinsyarief/mugen"
	"github.com/edwinsyarief/mugen/batch"
	"github.com/edwinsyarief/mugen/logging"
	"github.com/edwinsyarief/mugen/scheduler"
	"github.com/edwinsyarief/mugen/transform"
)

// maxBehind is how many frame intervals Run may lag before it stops trying to
// catch up and rebases its deadline.
const maxBehind = 2

// Report describes one frame. It is published on the world's EventBus after
// every Step that reaches presentation.
type Report struct {
	// Err is the submission failure of a dropped frame.
	Err       error
	Faults    []scheduler.Fault
	Stages    []string
	Frame     uint64
	RunID     uuid.UUID
	Delta     time.Duration
	Duration  time.Duration
	Batches   int
	Instances int
	Rejected  int
	Degraded  bool
	Dropped   bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger shared by the orchestrator and its stages.
func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithTargetFPS caps Run at fps frames per second. Zero is uncapped.
func WithTargetFPS(fps float64) Option {
	return func(o *Orchestrator) {
		o.targetFPS = max(fps, 0)
	}
}

// WithWorkers sets the worker pool size of every stage scheduler.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		o.workers = n
	}
}

// WithSpin sets the barrier spin count of every stage scheduler.
func WithSpin(n int) Option {
	return func(o *Orchestrator) {
		o.spin = n
	}
}

// WithParallelism caps the transform system's concurrent chunks.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) {
		o.parallelism = n
	}
}

// WithValidation validates world storage after every wave.
func WithValidation(on bool) Option {
	return func(o *Orchestrator) {
		o.validate = on
	}
}

// WithAssets drops sprites whose mesh or material the catalog rejects.
func WithAssets(c AssetCatalog) Option {
	return func(o *Orchestrator) {
		o.assets = c
	}
}

// WithStatsInterval sets how often frame stats are logged. Zero disables
// them.
func WithStatsInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.statsInterval = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator owns the frame loop. Step and Run must be called from a single
// goroutine; Quit and the stage methods may be called from any, including
// from systems.
type Orchestrator struct {
	world     *mugen.World
	presenter Presenter
	input     InputSource
	assets    AssetCatalog
	log       logging.Logger
	now       func() time.Time
	batcher   *batch.Batcher
	stats     *stats
	runners   []*stageRunner
	idle      []*stageRunner
	pending   []*stageRunner
	subs      []Submission
	quit      chan struct{}
	lastTick  time.Time
	quitOnce  sync.Once

	// mu guards the planned stage lists. Step reconciles runners with them
	// between frames.
	mu     sync.Mutex
	stages []Stage
	paused []Stage
	dirty  bool

	runID         uuid.UUID
	frame         uint64
	elapsed       time.Duration
	targetFPS     float64
	statsInterval time.Duration
	workers       int
	spin          int
	parallelism   int
	validate      bool
	started       bool
	closed        bool
}

// New creates an orchestrator drawing w through presenter. input may be nil,
// in which case frames carry only timing.
func New(w *mugen.World, presenter Presenter, input InputSource, opts ...Option) (*Orchestrator, error) {
	if w == nil || presenter == nil {
		return nil, errors.New("frame: world and presenter are required")
	}
	o := &Orchestrator{
		world:         w,
		presenter:     presenter,
		input:         input,
		log:           logging.Nop(),
		now:           time.Now,
		quit:          make(chan struct{}),
		runID:         uuid.New(),
		statsInterval: time.Second,
		spin:          64,
	}
	for _, opt := range opts {
		opt(o)
	}

	var bopts []batch.Option
	bopts = append(bopts, batch.WithLogger(o.log))
	if o.assets != nil {
		assets := o.assets
		bopts = append(bopts, batch.WithFilter(func(k batch.Key) bool {
			return assets.ValidMesh(k.Mesh) && assets.ValidMaterial(k.Material)
		}))
	}
	o.batcher = batch.New(w, bopts...)
	o.stages = []Stage{{
		Name: RenderStage,
		Systems: []scheduler.System{
			transform.NewMotionSystem(w),
			transform.NewSystem(w, transform.WithParallelism(o.parallelism), transform.WithLogger(o.log)),
		},
	}}
	o.dirty = true
	return o, nil
}

// RunID identifies this orchestrator in reports and logs.
func (o *Orchestrator) RunID() uuid.UUID {
	return o.runID
}

// World returns the world being driven.
func (o *Orchestrator) World() *mugen.World {
	return o.world
}

// Frame returns the number of frames stepped so far.
func (o *Orchestrator) Frame() uint64 {
	return o.frame
}

func (o *Orchestrator) schedulerOptions() []scheduler.Option {
	return []scheduler.Option{
		scheduler.WithWorkers(o.workers),
		scheduler.WithSpin(o.spin),
		scheduler.WithLogger(o.log),
		scheduler.WithValidation(o.validate),
	}
}

// start builds every stage and runs their startup systems. A failed start
// closes the orchestrator without running shutdown systems.
func (o *Orchestrator) start(ctx context.Context) error {
	if err := o.syncStages(ctx); err != nil {
		o.closed = true
		o.closeRunners()
		o.log.Error("frame loop failed to start", "run", o.runID.String(), "err", err)
		return err
	}
	o.mu.Lock()
	o.started = true
	o.mu.Unlock()
	o.lastTick = o.now()
	o.stats = newStats(o.log, o.statsInterval, o.lastTick)
	o.log.Info("frame loop started", "run", o.runID.String(), "stages", len(o.runners))
	return nil
}

// runOnce runs a one-shot system list on a throwaway single-worker scheduler.
func (o *Orchestrator) runOnce(ctx context.Context, stage string, systems []scheduler.System) error {
	if len(systems) == 0 {
		return nil
	}
	sch, err := scheduler.New(o.world, systems, scheduler.WithWorkers(1), scheduler.WithLogger(o.log))
	if err != nil {
		return fmt.Errorf("stage %q: %w", stage, err)
	}
	defer sch.Close()
	res, err := sch.RunFrame(ctx, scheduler.Tick{Frame: o.frame, Elapsed: o.elapsed})
	if err != nil {
		return fmt.Errorf("stage %q: %w", stage, err)
	}
	if res.Degraded {
		o.log.Warn("one-shot systems faulted", "run", o.runID.String(), "stage", stage, "faults", len(res.Faults))
	}
	return nil
}

// Step runs exactly one frame: apply queued stage changes, snapshot input,
// tick due stages, batch, present and swap. A presenter failure drops the
// frame and is reported, not returned. Errors returned are fatal: storage
// invariant violations, cancellation, or a failed start.
func (o *Orchestrator) Step(ctx context.Context) (Report, error) {
	if o.closed {
		return Report{}, ErrClosed
	}
	if !o.started {
		if err := o.start(ctx); err != nil {
			return Report{}, err
		}
	} else if err := o.syncStages(ctx); err != nil {
		return Report{}, err
	}
	start := o.now()
	rep := Report{Frame: o.frame, RunID: o.runID}

	snap := Snapshot{}
	if o.input != nil {
		snap = o.input.Snapshot()
	}
	if snap.Delta <= 0 {
		snap.Delta = start.Sub(o.lastTick)
	}
	o.lastTick = start
	o.elapsed += snap.Delta
	snap.Frame, snap.Elapsed = o.frame, o.elapsed
	mugen.SetResource(o.world.Resources(), snap)
	rep.Delta = snap.Delta

	for _, r := range o.runners {
		delta, due := r.timer.Update(snap.Delta)
		if !due {
			continue
		}
		r.elapsed += delta
		res, err := r.process.RunFrame(ctx, scheduler.Tick{Frame: o.frame, Delta: delta, Elapsed: r.elapsed})
		rep.Stages = append(rep.Stages, r.name)
		rep.Faults = append(rep.Faults, res.Faults...)
		rep.Degraded = rep.Degraded || res.Degraded
		if err != nil {
			rep.Degraded = true
			rep.Duration = o.now().Sub(start)
			o.frame++
			if errors.Is(err, mugen.ErrStorageInvariant) {
				o.log.Error("storage invariant violated", "run", o.runID.String(), "frame", rep.Frame, "stage", r.name, "err", err)
			}
			return rep, fmt.Errorf("stage %q: %w", r.name, err)
		}
	}

	set := o.batcher.Build()
	rep.Batches, rep.Instances, rep.Rejected = set.Len(), set.Instances(), set.Rejected()
	if err := o.present(set); err != nil {
		rep.Dropped = true
		rep.Err = err
		o.log.Warn("frame dropped", "run", o.runID.String(), "frame", rep.Frame, "err", err)
	}
	o.batcher.Swap()

	rep.Duration = o.now().Sub(start)
	o.frame++
	mugen.Publish(o.world.Events(), rep)
	o.stats.tick(&rep, o.now())
	return rep, nil
}

func (o *Orchestrator) present(set *batch.Set) error {
	target, err := o.presenter.Target()
	if err != nil {
		return fmt.Errorf("%w: acquire target: %w", ErrSubmission, err)
	}
	o.subs = o.subs[:0]
	set.Each(func(b *batch.Batch) {
		o.subs = append(o.subs, Submission{Key: b.Key, Instances: b.Instances})
	})
	if err := o.presenter.Submit(target, o.subs); err != nil {
		return fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	return nil
}

// Run steps frames until Quit is called, ctx is done, or a step fails
// fatally, then runs shutdown systems. It returns nil after Quit and ctx.Err()
// after cancellation.
//
// An error wrapping mugen.ErrStorageInvariant means world storage is corrupt.
// Callers must treat it as fatal and exit instead of stepping again:
//
//	if err := o.Run(ctx); errors.Is(err, mugen.ErrStorageInvariant) {
//	    log.Fatal(err)
//	}
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	defer func() {
		if serr := o.Shutdown(context.WithoutCancel(ctx)); serr != nil && err == nil {
			err = serr
		}
	}()

	var interval time.Duration
	if o.targetFPS > 0 {
		interval = time.Duration(float64(time.Second) / o.targetFPS)
	}
	var timer *time.Timer
	next := o.now()
	for {
		select {
		case <-o.quit:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := o.Step(ctx); err != nil {
			return err
		}
		if interval == 0 {
			continue
		}
		next = next.Add(interval)
		now := o.now()
		if now.Sub(next) > maxBehind*interval {
			o.log.Debug("frame pacing rebased", "run", o.runID.String(), "frame", o.frame, "behind", now.Sub(next))
			next = now
			continue
		}
		wait := next.Sub(now)
		if wait <= 0 {
			continue
		}
		if timer == nil {
			timer = time.NewTimer(wait)
			defer timer.Stop()
		} else {
			timer.Reset(wait)
		}
		select {
		case <-timer.C:
		case <-o.quit:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Quit makes Run return after the current frame. It is safe to call more
// than once and from any goroutine.
func (o *Orchestrator) Quit() {
	o.quitOnce.Do(func() {
		close(o.quit)
	})
}

// Shutdown runs the shutdown systems of every started stage once, running
// stages first and then paused ones, drops the Snapshot resource and releases
// the worker pools. Later calls do nothing.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if o.closed {
		return nil
	}
	o.closed = true
	defer o.closeRunners()
	if !o.started {
		return nil
	}
	var errs []error
	for _, r := range slices.Concat(o.runners, o.idle) {
		if !r.ready {
			continue
		}
		if err := o.runOnce(ctx, r.name, r.shutdown); err != nil {
			errs = append(errs, err)
		}
	}
	mugen.RemoveResource[Snapshot](o.world.Resources())
	o.log.Info("frame loop stopped", "run", o.runID.String(), "frames", o.frame)
	return errors.Join(errs...)
}

func (o *Orchestrator) closeRunners() {
	for _, r := range slices.Concat(o.runners, o.idle, o.pending) {
		r.process.Close()
	}
	o.runners, o.idle, o.pending = nil, nil, nil
}
