package mugen

// Builder spawns entities directly into the archetype {T}. It skips the
// per-component archetype moves that repeated Attach calls would cause.
type Builder[T any] struct {
	world  *World
	arch   *archetype
	compID ComponentID
}

// NewBuilder creates a Builder for entities holding exactly T.
func NewBuilder[T any](w *World) *Builder[T] {
	id := Register[T](w)
	return &Builder[T]{world: w, arch: w.getOrCreateArchetype(MaskOf(id)), compID: id}
}

// NewEntity creates one entity holding v.
func (b *Builder[T]) NewEntity(v T) Entity {
	b.world.mutate()
	e := b.world.createEntity(b.arch)
	meta := b.world.entities.metas[e.ID]
	*(*T)(slotPtr(b.arch, b.arch.chunks[meta.chunkIndex], b.compID, meta.index)) = v
	return e
}

// NewEntities creates count entities holding the zero value of T.
func (b *Builder[T]) NewEntities(count int) {
	if count <= 0 {
		return
	}
	b.world.mutate()
	b.world.spawnInto(b.arch, count, nil)
}

// NewEntitiesWith creates count entities and lets fill initialize the
// component of each one in place. i runs from 0 to count-1 in storage order.
func (b *Builder[T]) NewEntitiesWith(count int, fill func(i int, e Entity, v *T)) {
	if count <= 0 {
		return
	}
	b.world.mutate()
	a, id := b.arch, b.compID
	b.world.spawnInto(a, count, func(i int, c *chunk, idx int) {
		fill(i, c.entityIDs[idx], (*T)(slotPtr(a, c, id, idx)))
	})
}

// Builder2 spawns entities directly into the archetype {T1, T2}.
type Builder2[T1 any, T2 any] struct {
	world *World
	arch  *archetype
	ids   [2]ComponentID
}

// NewBuilder2 creates a Builder2 for entities holding exactly T1 and T2.
// Panics if T1 and T2 are the same type.
//
// Parameters:
//   - w: The World in which to create entities.
//
// Returns:
//   - A pointer to the configured Builder2.
func NewBuilder2[T1 any, T2 any](w *World) *Builder2[T1, T2] {
	id1, id2 := Register[T1](w), Register[T2](w)
	if id1 == id2 {
		panic("mugen: duplicate component types in Builder2")
	}
	return &Builder2[T1, T2]{
		world: w,
		arch:  w.getOrCreateArchetype(MaskOf(id1, id2)),
		ids:   [2]ComponentID{id1, id2},
	}
}

// NewEntity creates one entity holding v1 and v2.
func (b *Builder2[T1, T2]) NewEntity(v1 T1, v2 T2) Entity {
	b.world.mutate()
	e := b.world.createEntity(b.arch)
	meta := b.world.entities.metas[e.ID]
	c := b.arch.chunks[meta.chunkIndex]
	*(*T1)(slotPtr(b.arch, c, b.ids[0], meta.index)) = v1
	*(*T2)(slotPtr(b.arch, c, b.ids[1], meta.index)) = v2
	return e
}

// NewEntitiesWith creates count entities and lets fill initialize them.
func (b *Builder2[T1, T2]) NewEntitiesWith(count int, fill func(i int, e Entity, v1 *T1, v2 *T2)) {
	if count <= 0 {
		return
	}
	b.world.mutate()
	a, ids := b.arch, b.ids
	b.world.spawnInto(a, count, func(i int, c *chunk, idx int) {
		fill(i, c.entityIDs[idx], (*T1)(slotPtr(a, c, ids[0], idx)), (*T2)(slotPtr(a, c, ids[1], idx)))
	})
}

// Builder3 spawns entities directly into the archetype {T1, T2, T3}.
type Builder3[T1 any, T2 any, T3 any] struct {
	world *World
	arch  *archetype
	ids   [3]ComponentID
}

// NewBuilder3 creates a Builder3 for entities holding exactly T1, T2 and T3.
func NewBuilder3[T1 any, T2 any, T3 any](w *World) *Builder3[T1, T2, T3] {
	id1, id2, id3 := Register[T1](w), Register[T2](w), Register[T3](w)
	if id2 == id1 || id3 == id1 || id3 == id2 {
		panic("mugen: duplicate component types in Builder3")
	}
	return &Builder3[T1, T2, T3]{
		world: w,
		arch:  w.getOrCreateArchetype(MaskOf(id1, id2, id3)),
		ids:   [3]ComponentID{id1, id2, id3},
	}
}

// NewEntity creates one entity holding v1, v2 and v3.
func (b *Builder3[T1, T2, T3]) NewEntity(v1 T1, v2 T2, v3 T3) Entity {
	b.world.mutate()
	e := b.world.createEntity(b.arch)
	meta := b.world.entities.metas[e.ID]
	c := b.arch.chunks[meta.chunkIndex]
	*(*T1)(slotPtr(b.arch, c, b.ids[0], meta.index)) = v1
	*(*T2)(slotPtr(b.arch, c, b.ids[1], meta.index)) = v2
	*(*T3)(slotPtr(b.arch, c, b.ids[2], meta.index)) = v3
	return e
}

// NewEntitiesWith creates count entities and lets fill initialize them.
func (b *Builder3[T1, T2, T3]) NewEntitiesWith(count int, fill func(i int, e Entity, v1 *T1, v2 *T2, v3 *T3)) {
	if count <= 0 {
		return
	}
	b.world.mutate()
	a, ids := b.arch, b.ids
	b.world.spawnInto(a, count, func(i int, c *chunk, idx int) {
		fill(i, c.entityIDs[idx],
			(*T1)(slotPtr(a, c, ids[0], idx)),
			(*T2)(slotPtr(a, c, ids[1], idx)),
			(*T3)(slotPtr(a, c, ids[2], idx)))
	})
}
