package mugen

import (
	"reflect"
	"unsafe"
)

// Filter2 iterates over every entity that has both T1 and T2.
type Filter2[T1 any, T2 any] struct {
	queryCache
	curBases  [2]unsafe.Pointer
	compSizes [2]uintptr
	ids       [2]ComponentID
}

// NewFilter2 creates a filter over entities possessing at least T1 and T2.
// Unregistered types are registered.
//
// Parameters:
//   - w: The World to query.
//
// Returns:
//   - A pointer to a Filter2 positioned before the first entity.
//
// Example:
//
//	moving := mugen.NewFilter2[transform.Transform, transform.Motion](world)
//	for moving.NextChunk() {
//	    _, transforms, motions := moving.Chunk()
//	    ...
//	}
func NewFilter2[T1 any, T2 any](w *World) *Filter2[T1, T2] {
	id1 := w.getCompTypeID(reflect.TypeFor[T1]())
	id2 := w.getCompTypeID(reflect.TypeFor[T2]())
	if id1 == id2 {
		panic("mugen: duplicate component types in Filter2")
	}
	f := &Filter2[T1, T2]{
		queryCache: newQueryCache(w, MaskOf(id1, id2)),
		ids:        [2]ComponentID{id1, id2},
	}
	f.compSizes[0] = w.components.compIDToSize[id1]
	f.compSizes[1] = w.components.compIDToSize[id2]
	f.Reset()
	return f
}

// Reset rewinds the filter to the beginning.
func (f *Filter2[T1, T2]) Reset() {
	f.rewind()
}

// Next advances the filter to the next matching entity.
func (f *Filter2[T1, T2]) Next() bool {
	f.guard()
	f.curIdx++
	if f.curIdx < f.curSize {
		return true
	}
	if !f.advance() {
		return false
	}
	for i := range f.ids {
		f.curBases[i] = f.curChunk.compPointers[f.ids[i]]
	}
	f.curIdx = 0
	return true
}

// Get returns pointers to the T1 and T2 of the current entity.
func (f *Filter2[T1, T2]) Get() (*T1, *T2) {
	return (*T1)(unsafe.Add(f.curBases[0], uintptr(f.curIdx)*f.compSizes[0])),
		(*T2)(unsafe.Add(f.curBases[1], uintptr(f.curIdx)*f.compSizes[1]))
}

// NextChunk advances to the next chunk of matching entities.
func (f *Filter2[T1, T2]) NextChunk() bool {
	f.guard()
	if !f.advance() {
		return false
	}
	f.curIdx = f.curSize
	return true
}

// Chunk returns the dense slices of the current chunk.
func (f *Filter2[T1, T2]) Chunk() ([]Entity, []T1, []T2) {
	return f.chunkEntities(),
		column[T1](&f.queryCache, f.ids[0]),
		column[T2](&f.queryCache, f.ids[1])
}

// Filter3 iterates over every entity that has T1, T2 and T3.
type Filter3[T1 any, T2 any, T3 any] struct {
	queryCache
	curBases  [3]unsafe.Pointer
	compSizes [3]uintptr
	ids       [3]ComponentID
}

// NewFilter3 creates a filter over entities possessing at least T1, T2 and T3.
// Unregistered types are registered.
//
// Parameters:
//   - w: The World to query.
//
// Returns:
//   - A pointer to a Filter3 positioned before the first entity.
func NewFilter3[T1 any, T2 any, T3 any](w *World) *Filter3[T1, T2, T3] {
	id1 := w.getCompTypeID(reflect.TypeFor[T1]())
	id2 := w.getCompTypeID(reflect.TypeFor[T2]())
	id3 := w.getCompTypeID(reflect.TypeFor[T3]())
	if id2 == id1 || id3 == id1 || id3 == id2 {
		panic("mugen: duplicate component types in Filter3")
	}
	f := &Filter3[T1, T2, T3]{
		queryCache: newQueryCache(w, MaskOf(id1, id2, id3)),
		ids:        [3]ComponentID{id1, id2, id3},
	}
	f.compSizes[0] = w.components.compIDToSize[id1]
	f.compSizes[1] = w.components.compIDToSize[id2]
	f.compSizes[2] = w.components.compIDToSize[id3]
	f.Reset()
	return f
}

// Reset rewinds the filter to the beginning.
func (f *Filter3[T1, T2, T3]) Reset() {
	f.rewind()
}

// Next advances the filter to the next matching entity.
func (f *Filter3[T1, T2, T3]) Next() bool {
	f.guard()
	f.curIdx++
	if f.curIdx < f.curSize {
		return true
	}
	if !f.advance() {
		return false
	}
	for i := range f.ids {
		f.curBases[i] = f.curChunk.compPointers[f.ids[i]]
	}
	f.curIdx = 0
	return true
}

// Get returns pointers to the T1, T2 and T3 of the current entity.
func (f *Filter3[T1, T2, T3]) Get() (*T1, *T2, *T3) {
	return (*T1)(unsafe.Add(f.curBases[0], uintptr(f.curIdx)*f.compSizes[0])),
		(*T2)(unsafe.Add(f.curBases[1], uintptr(f.curIdx)*f.compSizes[1])),
		(*T3)(unsafe.Add(f.curBases[2], uintptr(f.curIdx)*f.compSizes[2]))
}

// NextChunk advances to the next chunk of matching entities.
func (f *Filter3[T1, T2, T3]) NextChunk() bool {
	f.guard()
	if !f.advance() {
		return false
	}
	f.curIdx = f.curSize
	return true
}

// Chunk returns the dense slices of the current chunk.
func (f *Filter3[T1, T2, T3]) Chunk() ([]Entity, []T1, []T2, []T3) {
	return f.chunkEntities(),
		column[T1](&f.queryCache, f.ids[0]),
		column[T2](&f.queryCache, f.ids[1]),
		column[T3](&f.queryCache, f.ids[2])
}
