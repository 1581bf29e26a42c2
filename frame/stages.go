package frame

import (
	"context"
	"fmt"
	"slices"

	"github.com/edwinsyarief/mugen/scheduler"
)

// Placement positions a stage relative to a running one.
type Placement struct {
	name  string
	after bool
}

// Before places a stage right before the running stage name.
func Before(name string) Placement {
	return Placement{name: name}
}

// After places a stage right after the running stage name. Nothing can be
// placed after the render stage.
func After(name string) Placement {
	return Placement{name: name, after: true}
}

// AddStage adds a stage. Without a placement it goes right before the render
// stage; with several, the last one wins. A stage named RenderStage replaces
// the built-in one, which is only allowed before the first frame.
//
// Stages can be added while frames run. The change is queued and applied at
// the start of the next Step, which first runs the new stage's startup
// systems.
//
// Parameters:
//   - s: The stage. Its system lists are validated immediately.
//   - at: Optional position, Before or After a running stage.
//
// Returns:
//   - An error wrapping scheduler.ErrInvalidSystem, scheduler.ErrDuplicateSystem,
//     ErrDuplicateStage, ErrUnknownStage, ErrRenderStage or ErrStarted.
func (o *Orchestrator) AddStage(s Stage, at ...Placement) error {
	if s.Name == "" {
		return fmt.Errorf("%w: stage has no name", scheduler.ErrInvalidSystem)
	}
	for _, list := range [][]scheduler.System{s.Startup, s.Systems, s.Shutdown} {
		if err := scheduler.Validate(list); err != nil {
			return fmt.Errorf("stage %q: %w", s.Name, err)
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if s.Name == RenderStage {
		if o.started {
			return ErrStarted
		}
		o.stages[len(o.stages)-1] = s
		o.dirty = true
		return nil
	}
	if indexOf(o.stages, s.Name) >= 0 || indexOf(o.paused, s.Name) >= 0 {
		return fmt.Errorf("%w: %q", ErrDuplicateStage, s.Name)
	}
	i, err := o.position(at)
	if err != nil {
		return err
	}
	o.stages = slices.Insert(o.stages, i, s)
	o.dirty = true
	return nil
}

// PauseStage stops ticking a running stage from the next frame on. The stage
// keeps its scheduler and state; ResumeStage brings it back.
func (o *Orchestrator) PauseStage(name string) error {
	if name == RenderStage {
		return fmt.Errorf("%w: cannot pause %q", ErrRenderStage, name)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	i := indexOf(o.stages, name)
	if i < 0 {
		return fmt.Errorf("%w: %q is not running", ErrUnknownStage, name)
	}
	o.paused = append(o.paused, o.stages[i])
	o.stages = slices.Delete(o.stages, i, i+1)
	o.dirty = true
	return nil
}

// ResumeStage puts a paused stage back to work from the next frame on, at the
// given placement or right before the render stage.
func (o *Orchestrator) ResumeStage(name string, at ...Placement) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	j := indexOf(o.paused, name)
	if j < 0 {
		return fmt.Errorf("%w: %q is not paused", ErrUnknownStage, name)
	}
	i, err := o.position(at)
	if err != nil {
		return err
	}
	s := o.paused[j]
	o.paused = slices.Delete(o.paused, j, j+1)
	o.stages = slices.Insert(o.stages, i, s)
	o.dirty = true
	return nil
}

// SetStageFrequency changes the tick rate of a running or paused stage from
// the next frame on. Zero ticks on every frame. Time accumulated at the old
// rate is dropped.
func (o *Orchestrator) SetStageFrequency(name string, ticksPerSecond uint32) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, list := range [][]Stage{o.stages, o.paused} {
		if i := indexOf(list, name); i >= 0 {
			list[i].Frequency = ticksPerSecond
			o.dirty = true
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

// Stages returns the running stage names in execution order, including
// changes not applied yet.
func (o *Orchestrator) Stages() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return names(o.stages)
}

// PausedStages returns the paused stage names in the order they were paused.
func (o *Orchestrator) PausedStages() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return names(o.paused)
}

// position resolves a placement against the running stages. o.mu is held.
func (o *Orchestrator) position(at []Placement) (int, error) {
	last := len(o.stages) - 1
	if len(at) == 0 {
		return last, nil
	}
	p := at[len(at)-1]
	i := indexOf(o.stages, p.name)
	if i < 0 {
		return 0, fmt.Errorf("%w: %q is not running", ErrUnknownStage, p.name)
	}
	if p.after {
		i++
	}
	if i > last {
		return 0, fmt.Errorf("%w: nothing runs after %q", ErrRenderStage, RenderStage)
	}
	return i, nil
}

// syncStages applies queued stage changes, then runs the startup systems of
// stages that have not started yet. A stage whose startup fails is retried
// on the next call.
func (o *Orchestrator) syncStages(ctx context.Context) error {
	o.mu.Lock()
	dirty := o.dirty
	var stages, paused []Stage
	if dirty {
		stages, paused = slices.Clone(o.stages), slices.Clone(o.paused)
		o.dirty = false
	}
	o.mu.Unlock()
	if dirty {
		if err := o.arrange(stages, paused); err != nil {
			o.mu.Lock()
			o.dirty = true
			o.mu.Unlock()
			return err
		}
	}
	for len(o.pending) > 0 {
		r := o.pending[0]
		if err := o.runOnce(ctx, r.name, r.startup); err != nil {
			return err
		}
		r.ready = true
		o.pending = o.pending[1:]
	}
	return nil
}

// arrange rebuilds the running and paused runner lists from the planned
// stages, creating runners for stages seen for the first time.
func (o *Orchestrator) arrange(stages, paused []Stage) error {
	known := make(map[string]*stageRunner, len(o.runners)+len(o.idle))
	for _, r := range slices.Concat(o.runners, o.idle) {
		known[r.name] = r
	}
	var fresh []*stageRunner
	runnerFor := func(s Stage) (*stageRunner, error) {
		if r, ok := known[s.Name]; ok {
			if r.frequency != s.Frequency {
				r.timer.SetFrequency(s.Frequency)
				r.frequency = s.Frequency
				o.log.Debug("stage frequency changed", "run", o.runID.String(), "stage", s.Name, "frequency", s.Frequency)
			}
			return r, nil
		}
		sch, err := scheduler.New(o.world, s.Systems, o.schedulerOptions()...)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", s.Name, err)
		}
		r := &stageRunner{
			name:      s.Name,
			timer:     NewPulseTimer(s.Frequency),
			process:   sch,
			startup:   s.Startup,
			shutdown:  s.Shutdown,
			frequency: s.Frequency,
		}
		fresh = append(fresh, r)
		o.log.Debug("stage ready", "run", o.runID.String(), "stage", s.Name, "waves", len(sch.Waves()), "frequency", s.Frequency)
		return r, nil
	}
	busy := make([]*stageRunner, 0, len(stages))
	idle := make([]*stageRunner, 0, len(paused))
	for _, s := range stages {
		r, err := runnerFor(s)
		if err != nil {
			closeAll(fresh)
			return err
		}
		busy = append(busy, r)
	}
	for _, s := range paused {
		r, err := runnerFor(s)
		if err != nil {
			closeAll(fresh)
			return err
		}
		idle = append(idle, r)
	}
	o.runners, o.idle = busy, idle
	o.pending = append(o.pending, fresh...)
	return nil
}

func closeAll(runners []*stageRunner) {
	for _, r := range runners {
		r.process.Close()
	}
}

func indexOf(stages []Stage, name string) int {
	return slices.IndexFunc(stages, func(s Stage) bool { return s.Name == name })
}

func names(stages []Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = s.Name
	}
	return out
}
