package transform

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/edwinsyarief/mugen"
	"github.com/edwinsyarief/mugen/logging"
	"github.com/edwinsyarief/mugen/scheduler"
)

const (
	// SystemName is the name of the system built by NewSystem.
	SystemName = "transform"
	// MotionSystemName is the name of the system built by NewMotionSystem.
	MotionSystemName = "motion"
)

// Option configures the transform system.
type Option func(*options)

type options struct {
	log         logging.Logger
	parallelism int
}

// WithParallelism caps how many chunks are composed concurrently. Values
// below one use GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(o *options) {
		o.parallelism = n
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// NewSystem returns the system that refreshes Transform.World for every
// entity holding a Transform. Chunks are composed in parallel.
func NewSystem(w *mugen.World, opts ...Option) scheduler.System {
	o := options{log: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.parallelism < 1 {
		o.parallelism = runtime.GOMAXPROCS(0)
	}
	id := mugen.Register[Transform](w)
	filter := mugen.NewFilter[Transform](w)
	var chunks [][]Transform

	return scheduler.System{
		Name:   SystemName,
		Writes: mugen.MaskOf(id),
		Run: func(*scheduler.Context) error {
			filter.Reset()
			chunks = chunks[:0]
			for filter.NextChunk() {
				_, ts := filter.Chunk()
				chunks = append(chunks, ts)
			}
			if len(chunks) == 1 || o.parallelism == 1 {
				for _, ts := range chunks {
					ComputeLanes(ts)
				}
				return nil
			}
			var g errgroup.Group
			g.SetLimit(o.parallelism)
			for _, ts := range chunks {
				g.Go(func() (err error) {
					defer func() {
						if r := recover(); r != nil {
							err = fmt.Errorf("transform: compose chunk: %v", r)
						}
					}()
					ComputeLanes(ts)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				o.log.Error("transform chunk failed", "system", SystemName, "err", err)
				return err
			}
			return nil
		},
	}
}

// NewMotionSystem returns the system that integrates Motion into Transform
// position and rotation by the frame delta. Declare it before the transform
// system so matrices reflect the new pose in the same frame.
func NewMotionSystem(w *mugen.World) scheduler.System {
	motionID := mugen.Register[Motion](w)
	transformID := mugen.Register[Transform](w)
	filter := mugen.NewFilter2[Motion, Transform](w)

	return scheduler.System{
		Name:   MotionSystemName,
		Reads:  mugen.MaskOf(motionID),
		Writes: mugen.MaskOf(transformID),
		Run: func(ctx *scheduler.Context) error {
			dt := float32(ctx.Delta.Seconds())
			if dt == 0 {
				return nil
			}
			filter.Reset()
			for filter.NextChunk() {
				_, ms, ts := filter.Chunk()
				for i := range ts {
					m := &ms[i]
					t := &ts[i]
					t.Position.X += m.Velocity.X * dt
					t.Position.Y += m.Velocity.Y * dt
					t.Rotation += m.Spin * dt
				}
			}
			return nil
		},
	}
}
