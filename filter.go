package mugen

import (
	"fmt"
	"reflect"
	"unsafe"
)

// queryCache tracks the archetypes matching a component mask and the
// chunk-by-chunk cursor shared by every filter arity.
type queryCache struct {
	world         *World
	matching      []*archetype
	curArch       *archetype
	curChunk      *chunk
	structVersion uint64
	mask          Mask
	archVersion   uint32
	archPos       int
	chunkPos      int
	curIdx        int // index into the current chunk
	curSize       int
}

func newQueryCache(w *World, m Mask) queryCache {
	q := queryCache{world: w, mask: m}
	q.updateMatching()
	return q
}

// updateMatching rebuilds the matching archetype list.
func (q *queryCache) updateMatching() {
	q.matching = q.matching[:0]
	for _, a := range q.world.archetypes.archetypes {
		if a.mask.Contains(q.mask) {
			q.matching = append(q.matching, a)
		}
	}
	q.archVersion = q.world.archetypes.archetypeVersion
}

// IsStale reports whether archetypes were created since the last refresh.
func (q *queryCache) IsStale() bool {
	return q.archVersion != q.world.archetypes.archetypeVersion
}

func (q *queryCache) rewind() {
	if q.IsStale() {
		q.updateMatching()
	}
	q.structVersion = q.world.structVersion.Load()
	q.archPos = 0
	q.chunkPos = -1
	q.curArch = nil
	q.curChunk = nil
	q.curIdx = -1
	q.curSize = 0
}

// guard panics if the world layout changed since the last Reset.
func (q *queryCache) guard() {
	if q.world.structVersion.Load() != q.structVersion {
		panic(fmt.Errorf("%w: reset the filter after attach, detach, create or destroy", ErrStructuralChange))
	}
}

// advance moves the cursor to the next chunk. Archetypes never keep empty
// chunks, so every chunk visited holds at least one entity.
func (q *queryCache) advance() bool {
	for q.archPos < len(q.matching) {
		a := q.matching[q.archPos]
		q.chunkPos++
		if q.chunkPos < len(a.chunks) {
			q.curArch = a
			q.curChunk = a.chunks[q.chunkPos]
			q.curSize = q.curChunk.size
			q.curIdx = -1
			return true
		}
		q.archPos++
		q.chunkPos = -1
	}
	q.curArch = nil
	q.curChunk = nil
	q.curSize = 0
	return false
}

// Count returns the number of entities matching the filter.
func (q *queryCache) Count() int {
	if q.IsStale() {
		q.updateMatching()
	}
	n := 0
	for _, a := range q.matching {
		n += a.size
	}
	return n
}

// Entities returns every matching entity in iteration order.
func (q *queryCache) Entities() []Entity {
	if q.IsStale() {
		q.updateMatching()
	}
	out := make([]Entity, 0, q.Count())
	for _, a := range q.matching {
		for _, c := range a.chunks {
			out = append(out, c.entityIDs[:c.size]...)
		}
	}
	return out
}

// Entity returns the current entity. Only valid after Next returned true.
func (q *queryCache) Entity() Entity {
	return q.curChunk.entityIDs[q.curIdx]
}

// chunkEntities returns the entity slice of the current chunk.
func (q *queryCache) chunkEntities() []Entity {
	return q.curChunk.entityIDs[:q.curSize]
}

// column views the array of component id in the current chunk as []T.
func column[T any](q *queryCache, id ComponentID) []T {
	return unsafe.Slice((*T)(q.curChunk.compPointers[id]), q.curSize)
}

// Filter provides a fast, cache-friendly iterator over all entities that have
// a component of type T. The filter iterates directly over the component
// arrays within matching archetype chunks. Iteration order is storage order
// and is identical between two passes over an unmodified world.
//
// Structural changes (create, destroy, attach, detach) while a pass is in
// flight panic with ErrStructuralChange; call Reset before iterating again.
type Filter[T any] struct {
	queryCache
	curBase  unsafe.Pointer
	compSize uintptr
	compID   ComponentID
}

// NewFilter creates a Filter over every entity holding at least T. T is
// registered if it is not a component yet.
//
// Parameters:
//   - w: The World to query.
//
// Returns:
//   - A pointer to a Filter positioned before the first entity.
func NewFilter[T any](w *World) *Filter[T] {
	id := w.getCompTypeID(reflect.TypeFor[T]())
	f := &Filter[T]{
		queryCache: newQueryCache(w, MaskOf(id)),
		compID:     id,
		compSize:   w.components.compIDToSize[id],
	}
	f.Reset()
	return f
}

// Reset rewinds the filter to the beginning and refreshes its archetype list.
func (f *Filter[T]) Reset() {
	f.rewind()
}

// Next advances the filter to the next matching entity. It must be called
// before accessing the entity or its component.
//
// Example:
//
//	query := mugen.NewFilter[Position](world)
//	for query.Next() {
//	    p := query.Get()
//	    ...
//	}
//
// Returns:
//   - true if another matching entity was found, false when the iteration is
//     complete.
func (f *Filter[T]) Next() bool {
	f.guard()
	f.curIdx++
	if f.curIdx < f.curSize {
		return true
	}
	if !f.advance() {
		return false
	}
	f.curBase = f.curChunk.compPointers[f.compID]
	f.curIdx = 0
	return true
}

// Get returns a pointer to the T of the current entity.
func (f *Filter[T]) Get() *T {
	return (*T)(unsafe.Add(f.curBase, uintptr(f.curIdx)*f.compSize))
}

// NextChunk advances to the next chunk of matching entities. It is the entry
// point for lane-wise kernels; Chunk returns the chunk's dense slices.
func (f *Filter[T]) NextChunk() bool {
	f.guard()
	if !f.advance() {
		return false
	}
	f.curIdx = f.curSize
	return true
}

// Chunk returns the entities and T values of the current chunk. The slices
// alias world storage until the next structural change.
func (f *Filter[T]) Chunk() ([]Entity, []T) {
	return f.chunkEntities(), column[T](&f.queryCache, f.compID)
}
