package frame

import (
	"time"

	"github.com/edwinsyarief/mugen/scheduler"
)

// RenderStage is the name of the built-in stage holding the motion and
// transform systems. It always runs last.
const RenderStage = "render"

// Stage is a named group of systems with its own tick frequency.
type Stage struct {
	Name string
	// Frequency is the number of ticks per second. Zero runs the stage on
	// every frame.
	Frequency uint32
	// Startup systems run once before the first frame.
	Startup []scheduler.System
	// Systems run on every tick of the stage.
	Systems []scheduler.System
	// Shutdown systems run once after the last frame.
	Shutdown []scheduler.System
}

// PulseTimer decides on which frames a stage ticks.
type PulseTimer struct {
	period  time.Duration
	pending time.Duration
	ticks   uint64
}

// NewPulseTimer returns a timer firing ticksPerSecond times per second, or on
// every update when ticksPerSecond is zero.
func NewPulseTimer(ticksPerSecond uint32) PulseTimer {
	var p PulseTimer
	p.SetFrequency(ticksPerSecond)
	return p
}

// SetFrequency changes the tick rate and drops accumulated time.
func (p *PulseTimer) SetFrequency(ticksPerSecond uint32) {
	p.period = 0
	if ticksPerSecond > 0 {
		p.period = time.Second / time.Duration(ticksPerSecond)
	}
	p.pending = 0
}

// Frequency returns the tick rate, zero meaning every frame.
func (p *PulseTimer) Frequency() uint32 {
	if p.period == 0 {
		return 0
	}
	return uint32(time.Second / p.period)
}

// Update advances the timer by delta and reports whether the stage ticks,
// along with the delta to hand to the stage. A timer that fell more than one
// period behind skips the backlog.
func (p *PulseTimer) Update(delta time.Duration) (time.Duration, bool) {
	if p.period == 0 {
		p.ticks++
		return delta, true
	}
	p.pending += delta
	if p.pending < p.period {
		return 0, false
	}
	p.pending -= p.period
	if p.pending >= p.period {
		p.pending = 0
	}
	p.ticks++
	return p.period, true
}

// Ticks returns how many times the timer fired.
func (p *PulseTimer) Ticks() uint64 {
	return p.ticks
}

type stageRunner struct {
	name      string
	timer     PulseTimer
	process   *scheduler.Scheduler
	startup   []scheduler.System
	shutdown  []scheduler.System
	elapsed   time.Duration
	frequency uint32
	// ready is set once the startup systems ran.
	ready bool
}
