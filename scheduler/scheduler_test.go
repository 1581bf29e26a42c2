package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edwinsyarief/mugen"
)

type Position struct{ X, Y float32 }
type Velocity struct{ X, Y float32 }
type Health struct{ HP int32 }

func setup(t testing.TB) (*mugen.World, mugen.ComponentID, mugen.ComponentID, mugen.ComponentID) {
	w := mugen.NewWorld(1024)
	pos := mugen.Register[Position](w)
	vel := mugen.Register[Velocity](w)
	hp := mugen.Register[Health](w)
	return w, pos, vel, hp
}

func nop(*Context) error { return nil }

func newScheduler(t testing.TB, w *mugen.World, systems []System, opts ...Option) *Scheduler {
	t.Helper()
	s, err := New(w, systems, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// go test -run ^TestWavePlan$ ./scheduler -count 1
func TestWavePlan(t *testing.T) {
	w, pos, vel, hp := setup(t)
	systems := []System{
		{Name: "move", Reads: mugen.MaskOf(vel), Writes: mugen.MaskOf(pos), Run: nop},
		{Name: "regen", Writes: mugen.MaskOf(hp), Run: nop},
		{Name: "follow", Reads: mugen.MaskOf(pos), Run: nop},
		{Name: "damp", Writes: mugen.MaskOf(vel), Run: nop},
		{Name: "audit", Reads: mugen.MaskOf(hp), Run: nop},
	}
	s := newScheduler(t, w, systems, WithWorkers(2))
	got := s.Waves()
	want := [][]string{{"move", "regen"}, {"follow", "damp", "audit"}}
	if len(got) != len(want) {
		t.Fatalf("waves = %v, want %v", got, want)
	}
	for i := range want {
		if !slices.Equal(got[i], want[i]) {
			t.Errorf("wave %d = %v, want %v", i, got[i], want[i])
		}
	}
}

// go test -run ^TestReadersShareWave$ ./scheduler -count 1
func TestReadersShareWave(t *testing.T) {
	w, pos, _, _ := setup(t)
	var systems []System
	for i := range 4 {
		systems = append(systems, System{Name: fmt.Sprintf("r%d", i), Reads: mugen.MaskOf(pos), Run: nop})
	}
	s := newScheduler(t, w, systems)
	if n := len(s.Waves()); n != 1 {
		t.Errorf("expected one wave for pure readers, got %d", n)
	}
}

// go test -run ^TestExclusiveIsAlone$ ./scheduler -count 1
func TestExclusiveIsAlone(t *testing.T) {
	w, pos, vel, _ := setup(t)
	systems := []System{
		{Name: "a", Writes: mugen.MaskOf(pos), Run: nop},
		{Name: "x", Exclusive: true, Run: nop},
		{Name: "b", Writes: mugen.MaskOf(vel), Run: nop},
	}
	s := newScheduler(t, w, systems)
	waves := s.Waves()
	if len(waves) != 3 {
		t.Fatalf("waves = %v, want three", waves)
	}
	if !slices.Equal(waves[1], []string{"x"}) {
		t.Errorf("exclusive wave = %v", waves[1])
	}
}

// go test -run ^TestInvalidSystems$ ./scheduler -count 1
func TestInvalidSystems(t *testing.T) {
	w, _, _, _ := setup(t)
	if _, err := New(w, []System{{Name: "", Run: nop}}); !errors.Is(err, ErrInvalidSystem) {
		t.Errorf("empty name: got %v", err)
	}
	if _, err := New(w, []System{{Name: "a"}}); !errors.Is(err, ErrInvalidSystem) {
		t.Errorf("nil Run: got %v", err)
	}
	if _, err := New(w, []System{{Name: "a", Run: nop}, {Name: "a", Run: nop}}); !errors.Is(err, ErrDuplicateSystem) {
		t.Errorf("duplicate: got %v", err)
	}
}

// go test -run ^TestWritersNeverOverlap$ ./scheduler -count 1
func TestWritersNeverOverlap(t *testing.T) {
	w, pos, vel, _ := setup(t)
	b := mugen.NewBuilder2[Position, Velocity](w)
	b.NewEntitiesWith(4096, func(i int, _ mugen.Entity, p *Position, v *Velocity) {
		v.X = 1
	})

	var active, overlaps atomic.Int32
	writer := func(*Context) error {
		if active.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(200 * time.Microsecond)
		active.Add(-1)
		return nil
	}
	var systems []System
	for i := range 8 {
		systems = append(systems, System{Name: fmt.Sprintf("w%d", i), Reads: mugen.MaskOf(vel), Writes: mugen.MaskOf(pos), Run: writer})
	}
	s := newScheduler(t, w, systems, WithWorkers(4))
	for f := range 20 {
		if _, err := s.RunFrame(context.Background(), Tick{Frame: uint64(f)}); err != nil {
			t.Fatal(err)
		}
	}
	if n := overlaps.Load(); n != 0 {
		t.Errorf("conflicting writers overlapped %d times", n)
	}
	if len(s.Waves()) != 8 {
		t.Errorf("expected one wave per writer, got %d", len(s.Waves()))
	}
}

// go test -run ^TestDisjointSystemsRunInParallel$ ./scheduler -count 1
func TestDisjointSystemsRunInParallel(t *testing.T) {
	w, pos, vel, hp := setup(t)
	ids := []mugen.ComponentID{pos, vel, hp}
	var active, peak atomic.Int32
	run := func(*Context) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return nil
	}
	var systems []System
	for i, id := range ids {
		systems = append(systems, System{Name: fmt.Sprintf("s%d", i), Writes: mugen.MaskOf(id), Run: run})
	}
	s := newScheduler(t, w, systems, WithWorkers(3))
	if _, err := s.RunFrame(context.Background(), Tick{}); err != nil {
		t.Fatal(err)
	}
	if peak.Load() < 2 {
		t.Errorf("expected disjoint writers to overlap, peak concurrency %d", peak.Load())
	}
}

// go test -run ^TestDeclarationOrderAcrossWaves$ ./scheduler -count 1
func TestDeclarationOrderAcrossWaves(t *testing.T) {
	w, pos, _, _ := setup(t)
	e := mugen.NewBuilder[Position](w).NewEntity(Position{X: 1})
	scale := func(k float32) func(*Context) error {
		return func(c *Context) error {
			p, err := mugen.GetMut[Position](c.World, e)
			if err != nil {
				return err
			}
			p.X = p.X*k + 1
			return nil
		}
	}
	systems := []System{
		{Name: "double", Writes: mugen.MaskOf(pos), Run: scale(2)},
		{Name: "triple", Writes: mugen.MaskOf(pos), Run: scale(3)},
	}
	s := newScheduler(t, w, systems)
	if _, err := s.RunFrame(context.Background(), Tick{}); err != nil {
		t.Fatal(err)
	}
	got, _ := mugen.Get[Position](w, e)
	// (1*2+1)*3+1
	if got.X != 10 {
		t.Errorf("X = %v, want 10", got.X)
	}
}

// go test -run ^TestFaultIsolation$ ./scheduler -count 1
func TestFaultIsolation(t *testing.T) {
	w, pos, vel, hp := setup(t)
	var ran atomic.Int32
	boom := errors.New("boom")
	systems := []System{
		{Name: "panics", Writes: mugen.MaskOf(pos), Run: func(*Context) error { panic("kaboom") }},
		{Name: "fails", Writes: mugen.MaskOf(vel), Run: func(*Context) error { return boom }},
		{Name: "fine", Writes: mugen.MaskOf(hp), Run: func(*Context) error { ran.Add(1); return nil }},
		{Name: "after", Reads: mugen.MaskOf(pos), Run: func(*Context) error { ran.Add(1); return nil }},
	}
	s := newScheduler(t, w, systems)
	res, err := s.RunFrame(context.Background(), Tick{Frame: 7})
	if err != nil {
		t.Fatalf("faults must not abort the frame: %v", err)
	}
	if !res.Degraded {
		t.Error("frame with faults must be degraded")
	}
	if len(res.Faults) != 2 {
		t.Fatalf("faults = %v, want 2", res.Faults)
	}
	if ran.Load() != 2 {
		t.Errorf("healthy systems ran %d times, want 2", ran.Load())
	}
	for _, f := range res.Faults {
		if !errors.Is(f, ErrSystemFault) {
			t.Errorf("fault %v does not wrap ErrSystemFault", f)
		}
	}
	if !errors.Is(res.Faults[1], boom) {
		t.Errorf("returned error not preserved: %v", res.Faults[1])
	}
	if res.Faults[0].System != "panics" || res.Faults[0].Wave != 0 {
		t.Errorf("unexpected fault attribution %+v", res.Faults[0])
	}

	res, err = s.RunFrame(context.Background(), Tick{Frame: 8})
	if err != nil || len(res.Faults) != 2 {
		t.Errorf("scheduler must stay usable after faults: %v %v", res.Faults, err)
	}
}

// go test -run ^TestStorageInvariantAborts$ ./scheduler -count 1
func TestStorageInvariantAborts(t *testing.T) {
	w, pos, vel, _ := setup(t)
	var later atomic.Bool
	systems := []System{
		{Name: "corrupt", Writes: mugen.MaskOf(pos), Run: func(*Context) error {
			return fmt.Errorf("bad chunk: %w", mugen.ErrStorageInvariant)
		}},
		{Name: "next", Writes: mugen.MaskOf(pos, vel), Run: func(*Context) error { later.Store(true); return nil }},
	}
	s := newScheduler(t, w, systems)
	res, err := s.RunFrame(context.Background(), Tick{})
	if !errors.Is(err, mugen.ErrStorageInvariant) {
		t.Fatalf("expected storage invariant abort, got %v", err)
	}
	if later.Load() {
		t.Error("waves after a storage fault must not run")
	}
	if res.Waves != 1 {
		t.Errorf("ran %d waves, want 1", res.Waves)
	}
}

// go test -run ^TestStructuralChangesAreDeferred$ ./scheduler -count 1
func TestStructuralChangesAreDeferred(t *testing.T) {
	w, pos, _, hp := setup(t)
	b := mugen.NewBuilder[Position](w)
	e := b.NewEntity(Position{})
	var directPanicked atomic.Bool
	systems := []System{
		{Name: "spawner", Writes: mugen.MaskOf(pos), Run: func(c *Context) error {
			func() {
				defer func() {
					if recover() != nil {
						directPanicked.Store(true)
					}
				}()
				c.World.CreateEntity()
			}()
			mugen.AttachLater(c.Commands, e, Health{HP: 5})
			c.Commands.Spawn(func(w *mugen.World, n mugen.Entity) {
				_ = mugen.Attach(w, n, Position{X: 9})
			})
			return nil
		}},
		{Name: "reader", Reads: mugen.MaskOf(hp), Run: func(c *Context) error {
			h, err := mugen.Get[Health](c.World, e)
			if err != nil {
				return err
			}
			if h.HP != 5 {
				return fmt.Errorf("hp %d", h.HP)
			}
			return nil
		}},
	}
	s := newScheduler(t, w, systems, WithValidation(true))
	res, err := s.RunFrame(context.Background(), Tick{})
	if err != nil {
		t.Fatal(err)
	}
	if !directPanicked.Load() {
		t.Error("direct structural change inside a wave must panic")
	}
	// The reader lands in wave 0 too: commands are only visible next frame.
	if len(res.Faults) != 1 || res.Faults[0].System != "reader" {
		t.Errorf("faults = %v", res.Faults)
	}
	if w.Len() != 2 {
		t.Errorf("Len = %d, want 2", w.Len())
	}
	if !mugen.Has[Health](w, e) {
		t.Error("deferred attach was not applied")
	}
	if w.Sealed() {
		t.Error("world still sealed after frame")
	}
	if res, _ = s.RunFrame(context.Background(), Tick{}); len(res.Faults) != 0 {
		t.Errorf("second frame faults = %v", res.Faults)
	}
}

// go test -run ^TestCommandErrorsCounted$ ./scheduler -count 1
func TestCommandErrorsCounted(t *testing.T) {
	w, _, _, _ := setup(t)
	ghost := w.CreateEntity()
	if err := w.DestroyEntity(ghost); err != nil {
		t.Fatal(err)
	}
	systems := []System{{Name: "stale", Exclusive: true, Run: func(c *Context) error {
		c.Commands.Destroy(ghost)
		return nil
	}}}
	s := newScheduler(t, w, systems)
	res, err := s.RunFrame(context.Background(), Tick{})
	if err != nil {
		t.Fatal(err)
	}
	if res.CommandErrors != 1 {
		t.Errorf("CommandErrors = %d, want 1", res.CommandErrors)
	}
}

// go test -run ^TestCommandPanicIsAFault$ ./scheduler -count 1
func TestCommandPanicIsAFault(t *testing.T) {
	w, _, _, _ := setup(t)
	systems := []System{
		{Name: "bad", Run: func(c *Context) error {
			c.Commands.Defer(func(*mugen.World) { panic("boom") })
			return nil
		}},
		{Name: "good", Run: func(c *Context) error {
			c.Commands.Spawn(nil)
			return nil
		}},
	}
	s := newScheduler(t, w, systems)
	if got := s.Waves(); len(got) != 1 {
		t.Fatalf("waves = %v, want a single wave", got)
	}
	for frame := uint64(0); frame < 2; frame++ {
		res, err := s.RunFrame(context.Background(), Tick{Frame: frame})
		if err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
		if !res.Degraded || len(res.Faults) != 1 {
			t.Fatalf("frame %d: degraded=%v faults=%v", frame, res.Degraded, res.Faults)
		}
		f := res.Faults[0]
		if f.System != "bad" || f.Wave != 0 || !errors.Is(f, ErrSystemFault) {
			t.Errorf("frame %d: fault %+v", frame, f)
		}
		// One spawn per frame: the good buffer applies and nothing replays.
		if w.Len() != int(frame)+1 {
			t.Errorf("frame %d: Len = %d", frame, w.Len())
		}
	}
	if s.State() != Idle {
		t.Errorf("state = %v after frames", s.State())
	}
}

// go test -run ^TestCancelBetweenWaves$ ./scheduler -count 1
func TestCancelBetweenWaves(t *testing.T) {
	w, pos, _, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	var second atomic.Bool
	systems := []System{
		{Name: "first", Writes: mugen.MaskOf(pos), Run: func(*Context) error { cancel(); return nil }},
		{Name: "second", Writes: mugen.MaskOf(pos), Run: func(*Context) error { second.Store(true); return nil }},
	}
	s := newScheduler(t, w, systems)
	res, err := s.RunFrame(ctx, Tick{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if second.Load() {
		t.Error("wave after cancellation ran")
	}
	if res.Waves != 1 {
		t.Errorf("Waves = %d, want 1", res.Waves)
	}
	if s.State() != Idle {
		t.Errorf("state = %v after cancelled frame", s.State())
	}
}

// go test -run ^TestBusy$ ./scheduler -count 1
func TestBusy(t *testing.T) {
	w, _, _, _ := setup(t)
	release := make(chan struct{})
	started := make(chan struct{})
	systems := []System{{Name: "block", Run: func(*Context) error {
		close(started)
		<-release
		return nil
	}}}
	s := newScheduler(t, w, systems)
	done := make(chan error, 1)
	go func() {
		_, err := s.RunFrame(context.Background(), Tick{})
		done <- err
	}()
	<-started
	if st := s.State(); st == Idle {
		t.Errorf("state = %v while a system is running", st)
	}
	if _, err := s.RunFrame(context.Background(), Tick{}); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent RunFrame: got %v, want ErrBusy", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if s.State() != Idle {
		t.Errorf("state = %v, want idle", s.State())
	}
}

// go test -run ^TestThreadLocalRunsOnCaller$ ./scheduler -count 1
func TestThreadLocalRunsOnCaller(t *testing.T) {
	w, pos, vel, _ := setup(t)
	var localRan, poolRan atomic.Bool
	systems := []System{
		{Name: "local", ThreadLocal: true, Writes: mugen.MaskOf(pos), Run: func(*Context) error { localRan.Store(true); return nil }},
		{Name: "pooled", Writes: mugen.MaskOf(vel), Run: func(*Context) error { poolRan.Store(true); return nil }},
	}
	s := newScheduler(t, w, systems, WithWorkers(1), WithSpin(0))
	if _, err := s.RunFrame(context.Background(), Tick{}); err != nil {
		t.Fatal(err)
	}
	if !localRan.Load() || !poolRan.Load() {
		t.Errorf("local=%v pooled=%v", localRan.Load(), poolRan.Load())
	}
}

// go test -run ^TestClosed$ ./scheduler -count 1
func TestClosed(t *testing.T) {
	w, _, _, _ := setup(t)
	s, err := New(w, []System{{Name: "a", Run: nop}})
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	s.Close()
	if _, err := s.RunFrame(context.Background(), Tick{}); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

func BenchmarkRunFrame(b *testing.B) {
	w, pos, vel, hp := setup(b)
	var systems []System
	masks := []mugen.Mask{mugen.MaskOf(pos), mugen.MaskOf(vel), mugen.MaskOf(hp)}
	for i := range 12 {
		systems = append(systems, System{Name: fmt.Sprintf("s%d", i), Writes: masks[i%3], Run: nop})
	}
	s := newScheduler(b, w, systems)
	ctx := context.Background()
	for b.Loop() {
		if _, err := s.RunFrame(ctx, Tick{}); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportAllocs()
}
