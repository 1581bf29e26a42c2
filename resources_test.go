package mugen

import (
	"sync"
	"testing"
)

type frameClock struct {
	Frame uint64
	Scale float32
}

type gravity struct{ Y float32 }

// go test -run ^TestResources$ . -count 1
func TestResources(t *testing.T) {
	r := &Resources{}
	if _, ok := GetResource[frameClock](r); ok {
		t.Fatal("empty resources returned a value")
	}
	if RemoveResource[frameClock](r) {
		t.Error("removed a resource that was never set")
	}
	clock := SetResource(r, frameClock{Frame: 3})
	SetResource(r, gravity{Y: -1})
	if r.Len() != 2 {
		t.Errorf("Len = %d", r.Len())
	}
	if !RemoveResource[frameClock](r) {
		t.Fatal("RemoveResource missed a stored value")
	}
	if _, ok := GetResource[frameClock](r); ok {
		t.Error("resource survived RemoveResource")
	}
	if clock.Frame != 3 {
		t.Error("held pointer lost its value")
	}
	if g, ok := GetResource[gravity](r); !ok || g.Y != -1 {
		t.Error("unrelated resource removed")
	}
	if fresh := SetResource(r, frameClock{Frame: 4}); fresh == clock {
		t.Error("removed resource was revived in place")
	}
}

// go test -run ^TestSetResource$ . -count 1
func TestSetResource(t *testing.T) {
	r := &Resources{}
	if _, ok := GetResource[frameClock](r); ok {
		t.Fatal("empty resources returned a value")
	}
	p := SetResource(r, frameClock{Frame: 1, Scale: 1})
	got, ok := GetResource[frameClock](r)
	if !ok || got != p || got.Frame != 1 {
		t.Fatalf("GetResource = %+v %v", got, ok)
	}
	q := SetResource(r, frameClock{Frame: 2})
	if q != p {
		t.Error("SetResource must update in place")
	}
	if p.Frame != 2 || p.Scale != 0 {
		t.Errorf("held pointer sees %+v", *p)
	}
}

// go test -run ^TestResourcesConcurrentReads$ . -count 1
func TestResourcesConcurrentReads(t *testing.T) {
	r := &Resources{}
	SetResource(r, gravity{Y: -9.8})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				if g, ok := GetResource[gravity](r); !ok || g.Y != -9.8 {
					t.Error("lost resource")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func BenchmarkGetResource(b *testing.B) {
	r := &Resources{}
	SetResource(r, frameClock{})
	SetResource(r, gravity{})
	for b.Loop() {
		_, _ = GetResource[gravity](r)
	}
	b.ReportAllocs()
}
