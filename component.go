package mugen

import (
	"fmt"
	"reflect"
)

// Register returns the ComponentID of T in w, registering the type on first
// use. It panics if T holds pointers or if MaxComponentTypes is exceeded.
func Register[T any](w *World) ComponentID {
	return w.getCompTypeID(reflect.TypeFor[T]())
}

// MaskFor1 returns the mask holding T.
func MaskFor1[T any](w *World) Mask {
	return MaskOf(Register[T](w))
}

// MaskFor2 returns the mask holding T1 and T2.
func MaskFor2[T1, T2 any](w *World) Mask {
	return MaskOf(Register[T1](w), Register[T2](w))
}

// MaskFor3 returns the mask holding T1, T2 and T3.
func MaskFor3[T1, T2, T3 any](w *World) Mask {
	return MaskOf(Register[T1](w), Register[T2](w), Register[T3](w))
}

// locate resolves e and the component ID of T without registering T.
func locate[T any](w *World, e Entity) (*entityMeta, *archetype, ComponentID, error) {
	if !w.IsAlive(e) {
		return nil, nil, 0, fmt.Errorf("%w: %v", ErrNotFound, e)
	}
	meta := &w.entities.metas[e.ID]
	a := w.archetypes.archetypes[meta.archetypeIndex]
	id, ok := w.lookupID(reflect.TypeFor[T]())
	if !ok || !a.mask.Has(id) {
		return meta, a, id, fmt.Errorf("%w: %s on %v", ErrNotAttached, reflect.TypeFor[T](), e)
	}
	return meta, a, id, nil
}

// GetMut returns a pointer to the component of type T held by e. The pointer
// stays valid until the next structural change of the world.
func GetMut[T any](w *World, e Entity) (*T, error) {
	meta, a, id, err := locate[T](w, e)
	if err != nil {
		return nil, err
	}
	return (*T)(slotPtr(a, a.chunks[meta.chunkIndex], id, meta.index)), nil
}

// Get returns a copy of the component of type T held by e.
func Get[T any](w *World, e Entity) (T, error) {
	p, err := GetMut[T](w, e)
	if err != nil {
		var zero T
		return zero, err
	}
	return *p, nil
}

// Has reports whether e is alive and holds a component of type T.
func Has[T any](w *World, e Entity) bool {
	_, _, _, err := locate[T](w, e)
	return err == nil
}

// Set overwrites the component of type T held by e.
func Set[T any](w *World, e Entity, val T) error {
	p, err := GetMut[T](w, e)
	if err != nil {
		return err
	}
	*p = val
	return nil
}

// Attach adds a component of type T with the given value to e. The entity
// moves to the archetype for its new component set, which invalidates
// pointers obtained before the call.
func Attach[T any](w *World, e Entity, val T) error {
	if !w.IsAlive(e) {
		return fmt.Errorf("%w: %v", ErrNotFound, e)
	}
	id := Register[T](w)
	meta := &w.entities.metas[e.ID]
	a := w.archetypes.archetypes[meta.archetypeIndex]
	if a.mask.Has(id) {
		return fmt.Errorf("%w: %s on %v", ErrAlreadyAttached, reflect.TypeFor[T](), e)
	}
	w.mutate()
	newMask := a.mask
	newMask.Set(id)
	target := w.getOrCreateArchetype(newMask)
	c, idx := w.moveEntity(e, meta, a, target)
	*(*T)(slotPtr(target, c, id, idx)) = val
	return nil
}

// Detach removes the component of type T from e and returns its last value.
func Detach[T any](w *World, e Entity) (T, error) {
	var zero T
	meta, a, id, err := locate[T](w, e)
	if err != nil {
		return zero, err
	}
	w.mutate()
	val := *(*T)(slotPtr(a, a.chunks[meta.chunkIndex], id, meta.index))
	newMask := a.mask
	newMask.Unset(id)
	target := w.getOrCreateArchetype(newMask)
	w.moveEntity(e, meta, a, target)
	return val, nil
}

// ComponentsOf returns the component set currently held by e.
func (w *World) ComponentsOf(e Entity) (Mask, error) {
	if !w.IsAlive(e) {
		return Mask{}, fmt.Errorf("%w: %v", ErrNotFound, e)
	}
	return w.archetypes.archetypes[w.entities.metas[e.ID].archetypeIndex].mask, nil
}
