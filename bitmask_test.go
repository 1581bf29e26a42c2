package mugen

import (
	"slices"
	"testing"
)

func TestMask(t *testing.T) {
	var m Mask
	for _, id := range []ComponentID{0, 63, 64, 200, 255} {
		m.Set(id)
	}
	if m.Count() != 5 {
		t.Errorf("Count = %d", m.Count())
	}
	if !m.Has(63) || !m.Has(64) || m.Has(65) {
		t.Error("Has")
	}
	if got := m.IDs(nil); !slices.Equal(got, []ComponentID{0, 63, 64, 200, 255}) {
		t.Errorf("IDs = %v", got)
	}
	m.Unset(200)
	if m.Has(200) || m.Count() != 4 {
		t.Error("Unset")
	}
	sub := MaskOf(0, 255)
	if !m.Contains(sub) || sub.Contains(m) {
		t.Error("Contains")
	}
	if !m.Intersects(MaskOf(64)) || m.Intersects(MaskOf(1, 2)) {
		t.Error("Intersects")
	}
	if u := MaskOf(1).Or(MaskOf(130)); !u.Has(1) || !u.Has(130) || u.Count() != 2 {
		t.Error("Or")
	}
	if !(Mask{}).IsZero() || m.IsZero() {
		t.Error("IsZero")
	}
}
