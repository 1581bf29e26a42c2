package batch

import (
	"context"
	"fmt"
	"testing"

	"github.com/edwinsyarief/mugen"
	"github.com/edwinsyarief/mugen/scheduler"
	"github.com/edwinsyarief/mugen/transform"
)

func spawn(w *mugen.World, n, keys int) []mugen.Entity {
	ents := make([]mugen.Entity, 0, n)
	b := mugen.NewBuilder2[transform.Transform, Renderable](w)
	b.NewEntitiesWith(n, func(i int, e mugen.Entity, t *transform.Transform, r *Renderable) {
		*t = transform.New(transform.Vec2{X: float32(i)})
		t.World = transform.Compose(t)
		*r = Renderable{Mesh: MeshID(i % keys), Material: MaterialID(i % keys), Color: White, UV: FullRect}
		ents = append(ents, e)
	})
	return ents
}

// go test -run ^TestRoundRobinKeys$ ./batch -count 1
func TestRoundRobinKeys(t *testing.T) {
	for _, k := range []int{1, 3, 17} {
		t.Run(fmt.Sprintf("K=%d", k), func(t *testing.T) {
			w := mugen.NewWorld(4096)
			const n = 2*mugen.ChunkSize + 11
			spawn(w, n, k)
			set := New(w).Build()
			if set.Len() != k {
				t.Fatalf("got %d batches, want %d", set.Len(), k)
			}
			if set.Instances() != n {
				t.Errorf("Instances = %d, want %d", set.Instances(), n)
			}
			for bi, bt := range set.Batches() {
				if bt.Key != (Key{MeshID(bi), MaterialID(bi)}) {
					t.Errorf("batch %d has key %+v, want first-seen order", bi, bt.Key)
				}
				for j, inst := range bt.Instances {
					if want := float32(j*k + bi); inst.Model.TX != want {
						t.Fatalf("batch %d instance %d TX = %v, want %v", bi, j, inst.Model.TX, want)
					}
				}
			}
		})
	}
}

// go test -run ^TestOnlyRenderables$ ./batch -count 1
func TestOnlyRenderables(t *testing.T) {
	w := mugen.NewWorld(16)
	spawn(w, 4, 2)
	mugen.NewBuilder[transform.Transform](w).NewEntities(10)
	mugen.NewBuilder[Renderable](w).NewEntities(10)
	if got := New(w).Build().Instances(); got != 4 {
		t.Errorf("Instances = %d, want 4", got)
	}
}

// go test -run ^TestDoubleBuffering$ ./batch -count 1
func TestDoubleBuffering(t *testing.T) {
	w := mugen.NewWorld(64)
	ents := spawn(w, 8, 1)
	b := New(w)

	first := b.Build()
	b.Swap()
	if b.Front() != first {
		t.Fatal("Swap must expose the built set")
	}
	firstTX := first.Batches()[0].Instances[0].Model.TX

	p, err := mugen.GetMut[transform.Transform](w, ents[0])
	if err != nil {
		t.Fatal(err)
	}
	p.World.TX = 1000

	second := b.Build()
	if second == first {
		t.Fatal("Build wrote into the presented set")
	}
	if got := first.Batches()[0].Instances[0].Model.TX; got != firstTX {
		t.Errorf("presented set changed under Build: %v", got)
	}
	if got := second.Batches()[0].Instances[0].Model.TX; got != 1000 {
		t.Errorf("new set TX = %v, want 1000", got)
	}
	b.Swap()
	if third := b.Build(); third != first {
		t.Error("sets must alternate")
	}
}

// go test -run ^TestBuffersReused$ ./batch -count 1
func TestBuffersReused(t *testing.T) {
	w := mugen.NewWorld(2048)
	spawn(w, 1000, 2)
	b := New(w)
	s := b.Build()
	b.Swap()
	b.Build()
	b.Swap()
	before := &s.Batches()[0].Instances[0]
	if again := b.Build(); again != s {
		t.Fatal("expected the first set back")
	}
	if after := &s.Batches()[0].Instances[0]; after != before {
		t.Error("per-key buffer was reallocated between builds")
	}
	allocs := testing.AllocsPerRun(10, func() {
		b.Swap()
		b.Build()
	})
	if allocs != 0 {
		t.Errorf("steady-state Build allocated %v times", allocs)
	}
}

// go test -run ^TestEmptyKeysDisappear$ ./batch -count 1
func TestEmptyKeysDisappear(t *testing.T) {
	w := mugen.NewWorld(16)
	ents := spawn(w, 4, 2)
	b := New(w)
	b.Build()
	b.Swap()
	b.Build()
	b.Swap()
	for _, e := range ents {
		r, _ := mugen.GetMut[Renderable](w, e)
		r.Mesh, r.Material = 9, 9
	}
	s := b.Build()
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	if _, ok := s.Lookup(Key{0, 0}); ok {
		t.Error("stale key still visible")
	}
	if bt, ok := s.Lookup(Key{9, 9}); !ok || len(bt.Instances) != 4 {
		t.Errorf("Lookup(9,9) = %+v %v", bt, ok)
	}
}

// go test -run ^TestFilterRejects$ ./batch -count 1
func TestFilterRejects(t *testing.T) {
	w := mugen.NewWorld(64)
	spawn(w, 30, 3)
	b := New(w, WithFilter(func(k Key) bool { return k.Mesh != 1 }))
	s := b.Build()
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
	if s.Rejected() != 10 {
		t.Errorf("Rejected = %d, want 10", s.Rejected())
	}
	if keys := s.RejectedKeys(); len(keys) != 1 || keys[0] != (Key{1, 1}) {
		t.Errorf("RejectedKeys = %v", keys)
	}
	if s.Instances() != 20 {
		t.Errorf("Instances = %d, want 20", s.Instances())
	}
}

// go test -run ^TestBytes$ ./batch -count 1
func TestBytes(t *testing.T) {
	if InstanceSize != 14*4 {
		t.Fatalf("InstanceSize = %d, want 56", InstanceSize)
	}
	if Bytes(nil) != nil {
		t.Error("empty input must give nil")
	}
	inst := []Instance{{Color: White}, {Color: White}}
	raw := Bytes(inst)
	if len(raw) != 2*InstanceSize {
		t.Errorf("len = %d", len(raw))
	}
	inst[1].Model.A = 1
	if raw[InstanceSize+3] != 0x3f {
		t.Error("byte view does not alias the instances")
	}
}

// go test -run ^TestMillionSprites$ ./batch -count 1
func TestMillionSprites(t *testing.T) {
	if testing.Short() {
		t.Skip("large world")
	}
	const n = 1_000_000
	w := mugen.NewWorld(n)
	mugen.NewBuilder2[transform.Transform, Renderable](w).NewEntitiesWith(n, func(i int, _ mugen.Entity, tr *transform.Transform, r *Renderable) {
		*tr = transform.New(transform.Vec2{X: float32(i)})
		*r = Renderable{Color: White, UV: FullRect}
	})
	s, err := scheduler.New(w, []scheduler.System{transform.NewSystem(w)})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.RunFrame(context.Background(), scheduler.Tick{}); err != nil {
		t.Fatal(err)
	}
	set := New(w).Build()
	if set.Len() != 1 {
		t.Fatalf("Len = %d, want 1", set.Len())
	}
	bt := set.Batches()[0]
	if len(bt.Instances) != n {
		t.Fatalf("instances = %d, want %d", len(bt.Instances), n)
	}
	for i, inst := range bt.Instances {
		if inst.Model.TX != float32(i) || inst.Model.TY != 0 || inst.Model.A != 1 || inst.Model.D != 1 {
			t.Fatalf("instance %d model = %+v", i, inst.Model)
		}
	}
}

func BenchmarkBuild(b *testing.B) {
	for _, k := range []int{1, 64} {
		b.Run(fmt.Sprintf("100K_K%d", k), func(b *testing.B) {
			w := mugen.NewWorld(100_000)
			spawn(w, 100_000, k)
			bt := New(w)
			for b.Loop() {
				bt.Build()
				bt.Swap()
			}
			b.ReportAllocs()
		})
	}
}
