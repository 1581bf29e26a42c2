// Profiling:
// go build ./profile/transform
// go tool pprof -http=":8000" -nodefraction=0.001 ./transform cpu.prof

package main

import (
	"context"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/edwinsyarief/mugen"
	"github.com/edwinsyarief/mugen/scheduler"
	"github.com/edwinsyarief/mugen/transform"
)

func main() {
	// CPU Profiling
	f, _ := os.Create("cpu.prof")
	_ = pprof.StartCPUProfile(f)
	defer pprof.StopCPUProfile()

	rounds := 10
	iters := 200
	entities := 1_000_000
	run(rounds, iters, entities)

	// Memory Profiling
	memFile, _ := os.Create("mem.prof")
	defer memFile.Close()
	runtime.GC()
	_ = pprof.WriteHeapProfile(memFile)
}

func run(rounds, iters, numEntities int) {
	for range rounds {
		w := mugen.NewWorld(numEntities)
		mugen.NewBuilder2[transform.Transform, transform.Motion](w).NewEntitiesWith(numEntities,
			func(i int, _ mugen.Entity, t *transform.Transform, m *transform.Motion) {
				*t = transform.New(transform.Vec2{X: float32(i)})
				t.Rotation = float32(i%360) * 0.0174533
				m.Spin = 1
			})
		s, err := scheduler.New(w, []scheduler.System{transform.NewMotionSystem(w), transform.NewSystem(w)})
		if err != nil {
			panic(err)
		}
		for i := range iters {
			if _, err := s.RunFrame(context.Background(), scheduler.Tick{Frame: uint64(i), Delta: 16_666_667}); err != nil {
				panic(err)
			}
		}
		s.Close()
	}
}
