// Profiling:
// go build ./profile/entities
// go tool pprof -http=":8000" -nodefraction=0.001 ./entities mem.pprof

package main

import (
	"github.com/pkg/profile"

	"github.com/edwinsyarief/mugen"
	"github.com/edwinsyarief/mugen/batch"
	"github.com/edwinsyarief/mugen/transform"
)

func main() {
	rounds := 50
	iters := 1000
	entities := 10000
	p := profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
	run(rounds, iters, entities)
	p.Stop()
}

// run churns sprites through spawn, attach, detach and deferred destroy.
func run(rounds, iters, numEntities int) {
	for range rounds {
		w := mugen.NewWorld(numEntities)
		query := mugen.NewFilter[transform.Transform](w)
		builder := mugen.NewBuilder[transform.Transform](w)
		var cmds mugen.Commands
		entities := make([]mugen.Entity, 0, numEntities)

		for range iters {
			builder.NewEntitiesWith(numEntities, func(i int, _ mugen.Entity, t *transform.Transform) {
				*t = transform.New(transform.Vec2{X: float32(i)})
			})
			entities = entities[:0]
			query.Reset()
			for query.Next() {
				entities = append(entities, query.Entity())
			}
			for i, e := range entities {
				if i%2 == 0 {
					mugen.AttachLater(&cmds, e, batch.Renderable{Color: batch.White})
				}
				cmds.Destroy(e)
			}
			cmds.Apply(w)
		}
	}
}
