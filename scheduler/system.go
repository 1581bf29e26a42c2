package scheduler

import (
	"time"

	"github.com/edwinsyarief/mugen"
)

// System describes one unit of per-frame logic and the component types it
// touches. The scheduler derives ordering and parallelism from Reads and
// Writes alone, so both sets must cover every component type Run accesses.
type System struct {
	// Name identifies the system in logs, faults and Waves. It must be unique.
	Name string
	// Reads is the set of component types Run only reads.
	Reads mugen.Mask
	// Writes is the set of component types Run mutates.
	Writes mugen.Mask
	// Exclusive systems conflict with every other system.
	Exclusive bool
	// ThreadLocal systems run on the goroutine calling RunFrame instead of
	// on a pool worker.
	ThreadLocal bool
	// Run is invoked once per frame.
	Run func(ctx *Context) error
}

// Context is handed to every system invocation.
type Context struct {
	World    *mugen.World
	Commands *mugen.Commands
	System   string
	Frame    uint64
	Wave     int
	Delta    time.Duration
	Elapsed  time.Duration
}

// Tick carries the per-frame timing handed to RunFrame.
type Tick struct {
	Frame   uint64
	Delta   time.Duration
	Elapsed time.Duration
}

// conflicts reports whether a and b must not run concurrently.
func conflicts(a, b *System) bool {
	if a.Exclusive || b.Exclusive {
		return true
	}
	return a.Writes.Intersects(b.Writes) ||
		a.Writes.Intersects(b.Reads) ||
		a.Reads.Intersects(b.Writes)
}
