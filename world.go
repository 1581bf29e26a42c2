// Package mugen is the data-oriented core of a sprite engine: an
// archetype-based entity component store sized for millions of entities,
// with chunked structure-of-arrays storage, generation-checked entity
// handles, typed filters, and deferred structural commands.
//
// Scheduling, transforms, instance batching and the frame loop live in the
// scheduler, transform, batch and frame subpackages.
package mugen

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"unsafe"
)

// MaxComponentTypes defines the maximum number of unique component types that can be
// registered in a World. This value is fixed at 256.
const MaxComponentTypes = 256

// ChunkSize is the number of entities held by one archetype chunk.
const ChunkSize = 1024

// ComponentID identifies a registered component type within one World.
type ComponentID uint8

// Entity represents a unique identifier for an object in the World. It combines
// a 32-bit ID with a 32-bit version to ensure that recycled IDs are not confused
// with new entities.
type Entity struct {
	// ID is the slot index of the entity. Slots are recycled after destruction.
	ID uint32
	// Version is the slot generation at creation time. It is incremented every
	// time the slot is destroyed, invalidating outstanding handles.
	Version uint32
}

// entityMeta holds the internal location and state of an entity slot.
type entityMeta struct {
	archetypeIndex int    // index in World.archetypes
	chunkIndex     int    // index in archetype.chunks
	index          int    // position inside the chunk's component arrays
	version        uint32 // live generation of the slot
	alive          bool
}

// chunk holds fixed-size storage for ChunkSize entities.
type chunk struct {
	entityIDs    [ChunkSize]Entity
	compPointers [MaxComponentTypes]unsafe.Pointer
	size         int // number of entities in this chunk, 0 to ChunkSize
}

// archetype holds storage for one unique component-set mask. Every chunk but
// the last is full.
type archetype struct {
	chunks    []*chunk
	spare     *chunk        // last released chunk, reused before allocating
	compOrder []ComponentID // component IDs in this arch, ascending
	compSizes [MaxComponentTypes]uintptr
	mask      Mask // which component bits this arch uses
	index     int  // position in world.archetypes
	size      int  // total entity count across chunks
}

// componentRegistry maps Go types to component IDs. Lookups are lock-free
// through a copy-on-write map so systems on worker goroutines can resolve IDs
// while registration stays serialized.
type componentRegistry struct {
	mu           sync.Mutex
	typeMap      atomic.Pointer[map[reflect.Type]ComponentID]
	compIDToType [MaxComponentTypes]reflect.Type
	compIDToSize [MaxComponentTypes]uintptr
	count        int
}

// entityRegistry owns slot bookkeeping.
type entityRegistry struct {
	freeIDs  []uint32     // stack of recycled entity IDs
	metas    []entityMeta // metadata for each slot, indexed by entity ID
	capacity int          // current number of slots
	live     int
}

// archetypeRegistry owns all archetypes.
type archetypeRegistry struct {
	maskToArcIndex   map[Mask]int // lookup mask→archetype index
	archetypes       []*archetype // list of all archetypes in the world
	archetypeVersion uint32       // incremented when a new archetype is created
}

// World owns every entity and every component value.
type World struct {
	resources     *Resources
	events        *EventBus
	archetypes    archetypeRegistry
	entities      entityRegistry
	components    componentRegistry
	structVersion atomic.Uint64 // incremented on every structural change
	sealed        atomic.Bool
}

// NewWorld creates and initializes a new World with a specified initial
// capacity for entities. It pre-allocates memory for the entity metadata and
// free ID list so that spawning up to initialCapacity entities never grows
// them.
//
// Parameters:
//   - initialCapacity: The number of entity slots to pre-allocate. Negative
//     values are treated as zero.
//
// Returns:
//   - A pointer to the newly created World, holding only the empty archetype.
//
// Example:
//
//	world := mugen.NewWorld(1_000_000)
//	sprites := mugen.NewBuilder2[transform.Transform, batch.Renderable](world)
//	sprites.NewEntities(1_000_000)
func NewWorld(initialCapacity int) *World {
	if initialCapacity < 0 {
		initialCapacity = 0
	}
	w := &World{
		resources: &Resources{},
		events:    &EventBus{},
		entities: entityRegistry{
			capacity: initialCapacity,
			freeIDs:  make([]uint32, initialCapacity),
			metas:    make([]entityMeta, initialCapacity),
		},
		archetypes: archetypeRegistry{
			maskToArcIndex: make(map[Mask]int),
			archetypes:     make([]*archetype, 0, 16),
		},
	}
	empty := make(map[reflect.Type]ComponentID)
	w.components.typeMap.Store(&empty)
	for i := range w.entities.freeIDs {
		w.entities.freeIDs[i] = uint32(initialCapacity - 1 - i)
	}
	for i := range w.entities.metas {
		w.entities.metas[i] = freshMeta()
	}
	// Pre-create the empty archetype
	w.getOrCreateArchetype(Mask{})
	return w
}

func freshMeta() entityMeta {
	return entityMeta{archetypeIndex: -1, chunkIndex: -1, index: -1, version: 1}
}

// Resources returns the world's typed singleton store.
func (w *World) Resources() *Resources {
	return w.resources
}

// Events returns the world's event bus.
func (w *World) Events() *EventBus {
	return w.events
}

// Len returns the number of live entities.
func (w *World) Len() int {
	return w.entities.live
}

// StructureVersion returns a counter that changes on every structural
// mutation (create, destroy, attach, detach).
func (w *World) StructureVersion() uint64 {
	return w.structVersion.Load()
}

// Seal forbids structural changes until Unseal is called. The scheduler seals
// the world while systems run so that layout only changes at wave barriers
// through Commands.
func (w *World) Seal() {
	w.sealed.Store(true)
}

// Unseal re-allows structural changes.
func (w *World) Unseal() {
	w.sealed.Store(false)
}

// Sealed reports whether structural changes are currently forbidden.
func (w *World) Sealed() bool {
	return w.sealed.Load()
}

// mutate is called at the top of every structural operation.
func (w *World) mutate() {
	if w.sealed.Load() {
		panic(fmt.Errorf("%w: world is sealed, queue the change on Commands", ErrStructuralChange))
	}
	w.structVersion.Add(1)
}

// IsAlive checks if the entity is currently alive in the world. An entity is
// alive if its ID is within bounds, the slot is occupied, and its version
// matches the slot generation. Stale handles to recycled slots report false.
//
// Parameters:
//   - e: The entity handle to check.
//
// Returns:
//   - true if the handle refers to a live entity, false otherwise.
func (w *World) IsAlive(e Entity) bool {
	if int(e.ID) >= len(w.entities.metas) {
		return false
	}
	meta := &w.entities.metas[e.ID]
	return meta.alive && meta.version == e.Version
}

// lookupID returns the component ID for t without registering it.
func (w *World) lookupID(t reflect.Type) (ComponentID, bool) {
	id, ok := (*w.components.typeMap.Load())[t]
	return id, ok
}

// getCompTypeID registers or fetches a component type ID for t.
func (w *World) getCompTypeID(t reflect.Type) ComponentID {
	if id, ok := w.lookupID(t); ok {
		return id
	}
	r := &w.components
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.typeMap.Load()
	if id, ok := cur[t]; ok {
		return id
	}
	if r.count >= MaxComponentTypes {
		panic("mugen: too many component types")
	}
	if hasPointers(t) {
		panic(fmt.Sprintf("mugen: component %s holds pointers; components must be plain data", t))
	}
	id := ComponentID(r.count)
	next := make(map[reflect.Type]ComponentID, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[t] = id
	r.compIDToType[id] = t
	r.compIDToSize[id] = t.Size()
	r.count++
	r.typeMap.Store(&next)
	return id
}

// hasPointers reports whether values of t contain Go pointers.
func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.String,
		reflect.Interface, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

// ComponentType returns the Go type registered under id.
func (w *World) ComponentType(id ComponentID) reflect.Type {
	return w.components.compIDToType[id]
}

// getOrCreateArchetype returns the archetype for the given mask, creating it
// if missing. Chunks are allocated lazily.
func (w *World) getOrCreateArchetype(mask Mask) *archetype {
	if idx, ok := w.archetypes.maskToArcIndex[mask]; ok {
		return w.archetypes.archetypes[idx]
	}
	a := &archetype{
		index:     len(w.archetypes.archetypes),
		mask:      mask,
		chunks:    make([]*chunk, 0, 4),
		compOrder: mask.IDs(make([]ComponentID, 0, mask.Count())),
	}
	for _, cid := range a.compOrder {
		a.compSizes[cid] = w.components.compIDToSize[cid]
	}
	w.archetypes.archetypes = append(w.archetypes.archetypes, a)
	w.archetypes.maskToArcIndex[mask] = a.index
	w.archetypes.archetypeVersion++
	return a
}

// newChunk creates a new chunk for the archetype.
func (w *World) newChunk(a *archetype) *chunk {
	if c := a.spare; c != nil {
		a.spare = nil
		return c
	}
	c := &chunk{}
	for _, cid := range a.compOrder {
		typ := w.components.compIDToType[cid]
		slice := reflect.MakeSlice(reflect.SliceOf(typ), ChunkSize, ChunkSize)
		c.compPointers[cid] = slice.UnsafePointer()
	}
	return c
}

// pushSlot reserves the next free slot at the tail of the archetype.
func (w *World) pushSlot(a *archetype) (c *chunk, chunkIdx, idx int) {
	if len(a.chunks) == 0 || a.chunks[len(a.chunks)-1].size == ChunkSize {
		a.chunks = append(a.chunks, w.newChunk(a))
	}
	chunkIdx = len(a.chunks) - 1
	c = a.chunks[chunkIdx]
	idx = c.size
	c.size++
	a.size++
	return c, chunkIdx, idx
}

// expand automatically increases capacity when full.
func (w *World) expand(additional int) {
	oldCap := w.entities.capacity
	newCap := oldCap * 2
	if newCap == 0 {
		newCap = 1
	}
	if newCap < oldCap+additional {
		newCap = oldCap + additional
	}
	delta := newCap - oldCap
	newMetas := make([]entityMeta, delta)
	for i := range newMetas {
		newMetas[i] = freshMeta()
	}
	w.entities.metas = append(w.entities.metas, newMetas...)
	newFree := make([]uint32, delta)
	for i := range delta {
		newFree[i] = uint32(newCap - 1 - i)
	}
	// Keep recycled IDs on top of the stack.
	w.entities.freeIDs = append(newFree, w.entities.freeIDs...)
	w.entities.capacity = newCap
}

// createEntity places a new entity at the tail of a.
func (w *World) createEntity(a *archetype) Entity {
	if len(w.entities.freeIDs) == 0 {
		w.expand(1)
	}
	last := len(w.entities.freeIDs) - 1
	id := w.entities.freeIDs[last]
	w.entities.freeIDs = w.entities.freeIDs[:last]
	c, chunkIdx, idx := w.pushSlot(a)
	meta := &w.entities.metas[id]
	meta.archetypeIndex = a.index
	meta.chunkIndex = chunkIdx
	meta.index = idx
	meta.alive = true
	ent := Entity{ID: id, Version: meta.version}
	c.entityIDs[idx] = ent
	w.entities.live++
	return ent
}

// CreateEntity creates a new entity with no components.
func (w *World) CreateEntity() Entity {
	w.mutate()
	return w.createEntity(w.archetypes.archetypes[0])
}

// CreateEntities creates a batch of entities with no components and returns them.
func (w *World) CreateEntities(count int) []Entity {
	if count <= 0 {
		return nil
	}
	w.mutate()
	ents := make([]Entity, count)
	w.spawnInto(w.archetypes.archetypes[0], count, func(i int, c *chunk, idx int) {
		ents[i] = c.entityIDs[idx]
	})
	return ents
}

// spawnInto appends count entities to a chunk by chunk and calls fill for
// each new slot.
func (w *World) spawnInto(a *archetype, count int, fill func(i int, c *chunk, idx int)) {
	if len(w.entities.freeIDs) < count {
		w.expand(count - len(w.entities.freeIDs))
	}
	done := 0
	for done < count {
		if len(a.chunks) == 0 || a.chunks[len(a.chunks)-1].size == ChunkSize {
			a.chunks = append(a.chunks, w.newChunk(a))
		}
		chunkIdx := len(a.chunks) - 1
		lastC := a.chunks[chunkIdx]
		batch := min(ChunkSize-lastC.size, count-done)
		startIdx := lastC.size
		for k := 0; k < batch; k++ {
			last := len(w.entities.freeIDs) - 1
			id := w.entities.freeIDs[last]
			w.entities.freeIDs = w.entities.freeIDs[:last]
			meta := &w.entities.metas[id]
			meta.archetypeIndex = a.index
			meta.chunkIndex = chunkIdx
			meta.index = startIdx + k
			meta.alive = true
			lastC.entityIDs[startIdx+k] = Entity{ID: id, Version: meta.version}
			if fill != nil {
				fill(done+k, lastC, startIdx+k)
			}
		}
		lastC.size += batch
		a.size += batch
		done += batch
	}
	w.entities.live += count
}

// DestroyEntity removes an entity and all of its component data. The slot's
// generation is incremented so every outstanding handle becomes stale. The
// last entity of the archetype moves into the freed slot.
//
// Parameters:
//   - e: The entity to destroy.
//
// Returns:
//   - An error wrapping ErrNotFound if e is stale or was never created.
//
// Panics with ErrStructuralChange while the world is sealed; systems queue
// destruction with Commands.Destroy instead.
func (w *World) DestroyEntity(e Entity) error {
	if !w.IsAlive(e) {
		return fmt.Errorf("%w: %v", ErrNotFound, e)
	}
	w.mutate()
	meta := &w.entities.metas[e.ID]
	a := w.archetypes.archetypes[meta.archetypeIndex]
	w.removeFromArchetype(a, meta)
	meta.archetypeIndex = -1
	meta.chunkIndex = -1
	meta.index = -1
	meta.alive = false
	meta.version++
	w.entities.freeIDs = append(w.entities.freeIDs, e.ID)
	w.entities.live--
	return nil
}

// Clear destroys every entity, keeping archetypes and allocated chunks.
func (w *World) Clear() {
	w.mutate()
	for _, a := range w.archetypes.archetypes {
		for _, c := range a.chunks {
			for i := 0; i < c.size; i++ {
				ent := c.entityIDs[i]
				meta := &w.entities.metas[ent.ID]
				meta.archetypeIndex = -1
				meta.chunkIndex = -1
				meta.index = -1
				meta.alive = false
				meta.version++
				w.entities.freeIDs = append(w.entities.freeIDs, ent.ID)
			}
			w.zeroChunk(a, c)
		}
		if len(a.chunks) > 0 {
			a.spare = a.chunks[0]
		}
		a.chunks = a.chunks[:0]
		a.size = 0
	}
	w.entities.live = 0
}

// slotPtr returns the address of component cid at idx in c.
func slotPtr(a *archetype, c *chunk, cid ComponentID, idx int) unsafe.Pointer {
	return unsafe.Add(c.compPointers[cid], uintptr(idx)*a.compSizes[cid])
}

// removeFromArchetype removes the entity from the archetype without freeing
// the ID or invalidating its version. The archetype's tail entity is moved
// into the hole so that every chunk except the last stays full.
func (w *World) removeFromArchetype(a *archetype, meta *entityMeta) {
	hole := a.chunks[meta.chunkIndex]
	holeIdx := meta.index
	lastChunkIdx := len(a.chunks) - 1
	tail := a.chunks[lastChunkIdx]
	tailIdx := tail.size - 1
	if hole != tail || holeIdx != tailIdx {
		moved := tail.entityIDs[tailIdx]
		hole.entityIDs[holeIdx] = moved
		for _, cid := range a.compOrder {
			memCopy(slotPtr(a, hole, cid, holeIdx), slotPtr(a, tail, cid, tailIdx), a.compSizes[cid])
		}
		mm := &w.entities.metas[moved.ID]
		mm.chunkIndex = meta.chunkIndex
		mm.index = holeIdx
	}
	for _, cid := range a.compOrder {
		memZero(slotPtr(a, tail, cid, tailIdx), a.compSizes[cid])
	}
	tail.entityIDs[tailIdx] = Entity{}
	tail.size--
	a.size--
	if tail.size == 0 {
		a.chunks[lastChunkIdx] = nil
		a.chunks = a.chunks[:lastChunkIdx]
		a.spare = tail
	}
}

// moveEntity relocates the entity described by meta from src to dst, copying
// every component the two archetypes share. Components only present in dst
// are left zeroed for the caller to fill.
func (w *World) moveEntity(e Entity, meta *entityMeta, src, dst *archetype) (c *chunk, idx int) {
	c, chunkIdx, idx := w.pushSlot(dst)
	c.entityIDs[idx] = e
	oldChunk := src.chunks[meta.chunkIndex]
	for _, cid := range src.compOrder {
		if !dst.mask.Has(cid) {
			continue
		}
		memCopy(slotPtr(dst, c, cid, idx), slotPtr(src, oldChunk, cid, meta.index), src.compSizes[cid])
	}
	w.removeFromArchetype(src, meta)
	meta.archetypeIndex = dst.index
	meta.chunkIndex = chunkIdx
	meta.index = idx
	return c, idx
}

func (w *World) zeroChunk(a *archetype, c *chunk) {
	for _, cid := range a.compOrder {
		memZero(c.compPointers[cid], uintptr(c.size)*a.compSizes[cid])
	}
	c.size = 0
}

// memCopy copies size bytes from src to dst using built-in copy for performance.
func memCopy(dst, src unsafe.Pointer, size uintptr) {
	if size == 0 {
		return
	}
	copy(unsafe.Slice((*byte)(dst), size), unsafe.Slice((*byte)(src), size))
}

func memZero(dst unsafe.Pointer, size uintptr) {
	if size == 0 {
		return
	}
	clear(unsafe.Slice((*byte)(dst), size))
}
