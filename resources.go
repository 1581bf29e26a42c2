package mugen

import (
	"reflect"
	"sync"
)

// Resources holds singleton values keyed by type, such as the current frame
// snapshot or shared configuration. Reads are safe from worker goroutines;
// writes normally happen on the frame goroutine between frames.
type Resources struct {
	mu    sync.RWMutex
	items map[reflect.Type]any
}

// GetResource retrieves the *T resource if it exists.
//
// Parameters:
//   - r: The store to read from.
//
// Returns:
//   - The stored pointer, and true if a T was set.
func GetResource[T any](r *Resources) (*T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[reflect.TypeFor[T]()]
	if !ok {
		return nil, false
	}
	return p.(*T), true
}

// SetResource stores v as the *T resource, replacing any previous value in
// place so that pointers handed out earlier observe the update.
func SetResource[T any](r *Resources, v T) *T {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := reflect.TypeFor[T]()
	if p, ok := r.items[t]; ok {
		cur := p.(*T)
		*cur = v
		return cur
	}
	if r.items == nil {
		r.items = make(map[reflect.Type]any)
	}
	p := new(T)
	*p = v
	r.items[t] = p
	return p
}

// RemoveResource drops the T resource and reports whether one was set.
// Pointers handed out earlier keep their last value.
func RemoveResource[T any](r *Resources) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := reflect.TypeFor[T]()
	if _, ok := r.items[t]; !ok {
		return false
	}
	delete(r.items, t)
	return true
}

// Len returns the number of stored resources.
func (r *Resources) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
