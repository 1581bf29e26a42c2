// Package scheduler runs systems in conflict-free waves on a fixed worker
// pool. Systems that read or write overlapping component types never run at
// the same time; everything else in a wave runs in parallel.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edwinsyarief/mugen"
	"github.com/edwinsyarief/mugen/logging"
)

// State is the per-frame scheduler state.
type State int32

const (
	Idle State = iota
	Dispatching
	Running
	Joined
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dispatching:
		return "dispatching"
	case Running:
		return "running"
	case Joined:
		return "joined"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Result summarizes one frame.
type Result struct {
	Faults        []Fault
	Frame         uint64
	Duration      time.Duration
	Waves         int
	CommandErrors int
	Degraded      bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the worker pool size. Values below one fall back to
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		s.workers = n
	}
}

// WithSpin sets how many yields the frame goroutine spends polling a wave
// before it blocks.
func WithSpin(n int) Option {
	return func(s *Scheduler) {
		s.spin = max(n, 0)
	}
}

// WithLogger sets the logger used for faults and command errors.
func WithLogger(l logging.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithValidation makes the scheduler validate world storage after every
// barrier. A violation aborts the frame.
func WithValidation(on bool) Option {
	return func(s *Scheduler) {
		s.validate = on
	}
}

// Scheduler owns the compiled wave plan for a fixed system list.
type Scheduler struct {
	world     *mugen.World
	log       logging.Logger
	pool      *pool
	barrier   *barrier
	systems   []System
	waves     [][]int
	commands  []mugen.Commands
	faults    []*Fault
	contexts  []Context
	state     atomic.Int32
	closed    atomic.Bool
	closeOnce sync.Once
	workers   int
	spin      int
	validate  bool
}

// New validates systems, computes the wave plan, and starts the worker pool.
func New(w *mugen.World, systems []System, opts ...Option) (*Scheduler, error) {
	if err := Validate(systems); err != nil {
		return nil, err
	}
	s := &Scheduler{
		world:   w,
		log:     logging.Nop(),
		systems: append([]System(nil), systems...),
		spin:    64,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers < 1 {
		s.workers = runtime.GOMAXPROCS(0)
	}
	s.waves = buildWaves(s.systems)
	s.commands = make([]mugen.Commands, len(s.systems))
	s.faults = make([]*Fault, len(s.systems))
	s.contexts = make([]Context, len(s.systems))
	s.pool = newPool(s.workers)
	s.barrier = newBarrier(s.spin)
	s.log.Debug("scheduler built", "systems", len(s.systems), "waves", len(s.waves), "workers", s.workers)
	return s, nil
}

// State returns the current frame state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Workers returns the pool size.
func (s *Scheduler) Workers() int {
	return s.workers
}

// Waves returns the system names of each wave, in execution order.
func (s *Scheduler) Waves() [][]string {
	out := make([][]string, len(s.waves))
	for i, wave := range s.waves {
		for _, idx := range wave {
			out[i] = append(out[i], s.systems[idx].Name)
		}
	}
	return out
}

// Close stops the worker pool. It waits for nothing but idle workers since
// RunFrame always joins before returning.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.pool.close()
	})
}

// RunFrame executes every wave once. Waves run in order with a full join
// between them; deferred structural commands are applied at each join in
// system declaration order.
//
// A system that panics or returns an error is recorded as a Fault and marks
// the frame degraded; the rest of the frame still runs. A fault caused by
// mugen.ErrStorageInvariant, or a failed storage validation, aborts the frame
// and is returned as an error. Cancelling ctx stops the frame between waves.
func (s *Scheduler) RunFrame(ctx context.Context, tick Tick) (Result, error) {
	if s.closed.Load() {
		return Result{}, ErrClosed
	}
	if !s.state.CompareAndSwap(int32(Idle), int32(Dispatching)) {
		return Result{}, ErrBusy
	}
	defer s.state.Store(int32(Idle))

	start := time.Now()
	res := Result{Frame: tick.Frame}

	for wi, wave := range s.waves {
		if err := ctx.Err(); err != nil {
			res.Degraded = true
			res.Duration = time.Since(start)
			return res, err
		}
		s.state.Store(int32(Dispatching))
		s.runWave(wi, wave, tick)
		s.state.Store(int32(Joined))
		res.Waves++

		var fatal error
		for _, idx := range wave {
			f := s.faults[idx]
			if f == nil {
				continue
			}
			s.faults[idx] = nil
			res.Faults = append(res.Faults, *f)
			res.Degraded = true
			s.log.Error("system fault", "system", f.System, "wave", f.Wave, "frame", tick.Frame, "err", f.Err)
			if errors.Is(f.Err, mugen.ErrStorageInvariant) && fatal == nil {
				fatal = f
			}
		}
		if fatal != nil {
			s.discardCommands()
			res.Duration = time.Since(start)
			return res, fmt.Errorf("frame %d aborted: %w", tick.Frame, fatal)
		}
		n, faults := s.flush(wi, wave, tick.Frame)
		res.CommandErrors += n
		for _, f := range faults {
			res.Faults = append(res.Faults, f)
			res.Degraded = true
			s.log.Error("deferred command fault", "system", f.System, "wave", f.Wave, "frame", tick.Frame, "err", f.Err)
			if errors.Is(f.Err, mugen.ErrStorageInvariant) && fatal == nil {
				fatal = f
			}
		}
		if fatal != nil {
			s.discardCommands()
			res.Duration = time.Since(start)
			return res, fmt.Errorf("frame %d aborted: %w", tick.Frame, fatal)
		}
		if s.validate {
			if err := s.world.Validate(); err != nil {
				res.Degraded = true
				res.Duration = time.Since(start)
				return res, fmt.Errorf("frame %d aborted after wave %d: %w", tick.Frame, wi, err)
			}
		}
	}
	res.Duration = time.Since(start)
	return res, nil
}

// runWave dispatches a wave and joins it. The world is sealed for the
// duration so systems can only queue structural changes.
func (s *Scheduler) runWave(wi int, wave []int, tick Tick) {
	s.world.Seal()
	defer s.world.Unseal()

	var local []int
	pooled := 0
	for _, idx := range wave {
		if s.systems[idx].ThreadLocal {
			local = append(local, idx)
		} else {
			pooled++
		}
	}
	s.barrier.arm(pooled)
	for _, idx := range wave {
		if s.systems[idx].ThreadLocal {
			continue
		}
		s.prepare(idx, wi, tick)
		s.pool.submit(func() {
			defer s.barrier.leave()
			s.invoke(idx)
		})
	}
	s.state.Store(int32(Running))
	for _, idx := range local {
		s.prepare(idx, wi, tick)
		s.invoke(idx)
	}
	if pooled > 0 {
		s.barrier.wait()
	}
}

func (s *Scheduler) prepare(idx, wave int, tick Tick) {
	s.contexts[idx] = Context{
		World:    s.world,
		Commands: &s.commands[idx],
		System:   s.systems[idx].Name,
		Frame:    tick.Frame,
		Wave:     wave,
		Delta:    tick.Delta,
		Elapsed:  tick.Elapsed,
	}
}

// invoke runs one system and records its fault, if any, in its own slot.
func (s *Scheduler) invoke(idx int) {
	ctx := &s.contexts[idx]
	defer func() {
		if r := recover(); r != nil {
			s.faults[idx] = &Fault{System: ctx.System, Wave: ctx.Wave, Err: panicError(r)}
		}
	}()
	if err := s.systems[idx].Run(ctx); err != nil {
		s.faults[idx] = &Fault{System: ctx.System, Wave: ctx.Wave, Err: fmt.Errorf("%w: %w", ErrSystemFault, err)}
	}
}

// flush applies the wave's command buffers in declaration order. A buffer
// whose command panics is dropped and reported as a fault of its system; the
// remaining buffers still apply.
func (s *Scheduler) flush(wi int, wave []int, frame uint64) (n int, faults []Fault) {
	for _, idx := range wave {
		if s.commands[idx].Len() == 0 {
			continue
		}
		errs, f := s.apply(wi, idx)
		for _, err := range errs {
			n++
			s.log.Warn("deferred command failed", "system", s.systems[idx].Name, "frame", frame, "err", err)
		}
		if f != nil {
			faults = append(faults, *f)
		}
	}
	return n, faults
}

func (s *Scheduler) apply(wi, idx int) (errs []error, f *Fault) {
	defer func() {
		if r := recover(); r != nil {
			f = &Fault{System: s.systems[idx].Name, Wave: wi, Err: fmt.Errorf("deferred command: %w", panicError(r))}
		}
	}()
	return s.commands[idx].Apply(s.world), nil
}

func (s *Scheduler) discardCommands() {
	for i := range s.commands {
		s.commands[i].Reset()
	}
}
