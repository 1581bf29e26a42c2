package mugen

import "math/bits"

// Mask represents a set of up to 256 component IDs. It identifies archetypes
// and doubles as the read/write set of a system. Each bit corresponds to a
// component ID.
type Mask [4]uint64

// Set enables the bit corresponding to the given component ID.
func (m *Mask) Set(id ComponentID) {
	i := id >> 6 // (id / 64) to find the uint64 index
	o := id & 63 // (id % 64) to find the bit offset
	m[i] |= uint64(1) << uint64(o)
}

// Unset disables the bit corresponding to the given component ID.
func (m *Mask) Unset(id ComponentID) {
	i := id >> 6
	o := id & 63
	m[i] &= ^(uint64(1) << uint64(o))
}

// Has checks if a specific component ID is present in the mask.
func (m Mask) Has(id ComponentID) bool {
	i := id >> 6
	o := id & 63
	return (m[i] & (uint64(1) << uint64(o))) != 0
}

// Contains checks if all the bits set in sub are also set in m. Filters use
// it to decide whether an archetype's component set is a superset of the
// required components.
func (m Mask) Contains(sub Mask) bool {
	return (m[0]&sub[0]) == sub[0] &&
		(m[1]&sub[1]) == sub[1] &&
		(m[2]&sub[2]) == sub[2] &&
		(m[3]&sub[3]) == sub[3]
}

// Intersects reports whether m and other share at least one component.
func (m Mask) Intersects(other Mask) bool {
	return (m[0]&other[0]) != 0 ||
		(m[1]&other[1]) != 0 ||
		(m[2]&other[2]) != 0 ||
		(m[3]&other[3]) != 0
}

// Or returns the union of m and other.
func (m Mask) Or(other Mask) Mask {
	return Mask{m[0] | other[0], m[1] | other[1], m[2] | other[2], m[3] | other[3]}
}

// IsZero reports whether no bit is set.
func (m Mask) IsZero() bool {
	return m[0]|m[1]|m[2]|m[3] == 0
}

// Count returns the number of components in the mask.
func (m Mask) Count() int {
	return bits.OnesCount64(m[0]) + bits.OnesCount64(m[1]) +
		bits.OnesCount64(m[2]) + bits.OnesCount64(m[3])
}

// IDs appends the component IDs contained in the mask, in ascending order.
func (m Mask) IDs(dst []ComponentID) []ComponentID {
	for w, word := range m {
		for word != 0 {
			o := bits.TrailingZeros64(word)
			dst = append(dst, ComponentID(w*64+o))
			word &= word - 1
		}
	}
	return dst
}

// MaskOf builds a mask from a list of component IDs.
func MaskOf(ids ...ComponentID) Mask {
	var m Mask
	for _, id := range ids {
		m.Set(id)
	}
	return m
}
