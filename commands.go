package mugen

// Commands buffers structural operations issued while the world is sealed.
// Systems record into their own buffer; the scheduler applies buffers at the
// barrier between waves.
type Commands struct {
	destroys []Entity
	detaches []entityCommand
	attaches []entityCommand
	spawns   []func(w *World, e Entity)
	defers   []func(w *World)
}

type entityCommand struct {
	apply func(w *World, e Entity) error
	e     Entity
}

// Spawn queues the creation of an empty entity; init runs right after
// creation and may attach components.
func (c *Commands) Spawn(init func(w *World, e Entity)) {
	c.spawns = append(c.spawns, init)
}

// Destroy queues the destruction of e.
func (c *Commands) Destroy(e Entity) {
	c.destroys = append(c.destroys, e)
}

// Defer queues an arbitrary function to run against the unsealed world.
func (c *Commands) Defer(fn func(w *World)) {
	c.defers = append(c.defers, fn)
}

// AttachLater queues Attach[T](w, e, v).
func AttachLater[T any](c *Commands, e Entity, v T) {
	c.attaches = append(c.attaches, entityCommand{e: e, apply: func(w *World, e Entity) error {
		return Attach(w, e, v)
	}})
}

// DetachLater queues Detach[T](w, e).
func DetachLater[T any](c *Commands, e Entity) {
	c.detaches = append(c.detaches, entityCommand{e: e, apply: func(w *World, e Entity) error {
		_, err := Detach[T](w, e)
		return err
	}})
}

// Len returns the number of queued operations.
func (c *Commands) Len() int {
	return len(c.destroys) + len(c.detaches) + len(c.attaches) + len(c.spawns) + len(c.defers)
}

// Apply flushes the buffer into w: destroys, detaches, attaches, spawns and
// defers, in that order. Attach and detach of an entity destroyed by the same
// buffer are skipped. Errors of individual operations are collected and the
// remaining operations still run. The buffer is reset afterwards and keeps
// its capacity, also when a queued function panics.
func (c *Commands) Apply(w *World) []error {
	defer c.Reset()
	var errs []error
	var destroyed map[Entity]struct{}
	if len(c.destroys) > 0 {
		destroyed = make(map[Entity]struct{}, len(c.destroys))
	}
	for _, e := range c.destroys {
		if err := w.DestroyEntity(e); err != nil {
			errs = append(errs, err)
			continue
		}
		destroyed[e] = struct{}{}
	}
	for _, cmd := range c.detaches {
		if _, gone := destroyed[cmd.e]; gone {
			continue
		}
		if err := cmd.apply(w, cmd.e); err != nil {
			errs = append(errs, err)
		}
	}
	for _, cmd := range c.attaches {
		if _, gone := destroyed[cmd.e]; gone {
			continue
		}
		if err := cmd.apply(w, cmd.e); err != nil {
			errs = append(errs, err)
		}
	}
	for _, init := range c.spawns {
		e := w.CreateEntity()
		if init != nil {
			init(w, e)
		}
	}
	for _, fn := range c.defers {
		fn(w)
	}
	return errs
}

// Reset drops every queued operation.
func (c *Commands) Reset() {
	clear(c.detaches)
	clear(c.attaches)
	clear(c.spawns)
	clear(c.defers)
	c.destroys = c.destroys[:0]
	c.detaches = c.detaches[:0]
	c.attaches = c.attaches[:0]
	c.spawns = c.spawns[:0]
	c.defers = c.defers[:0]
}
