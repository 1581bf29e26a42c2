package batch

import (
	"github.com/edwinsyarief/mugen"
	"github.com/edwinsyarief/mugen/logging"
	"github.com/edwinsyarief/mugen/transform"
)

// Set is the result of one Build. It stays valid until the batcher writes to
// it again, two Builds later.
type Set struct {
	batches  []Batch
	index    map[Key]int
	live     []int // indexes into batches, first-seen order
	rejected map[Key]int
	total    int
}

func newSet() *Set {
	return &Set{index: make(map[Key]int), rejected: make(map[Key]int)}
}

// reset empties the set while keeping every per-key buffer.
func (s *Set) reset() {
	for i := range s.batches {
		s.batches[i].Instances = s.batches[i].Instances[:0]
	}
	s.live = s.live[:0]
	clear(s.rejected)
	s.total = 0
}

// Batches returns the non-empty batches in the order their key was first
// seen during the query.
func (s *Set) Batches() []Batch {
	out := make([]Batch, len(s.live))
	for i, idx := range s.live {
		out[i] = s.batches[idx]
	}
	return out
}

// Each calls fn for every non-empty batch in order without allocating.
func (s *Set) Each(fn func(b *Batch)) {
	for _, idx := range s.live {
		fn(&s.batches[idx])
	}
}

// Lookup returns the batch for key.
func (s *Set) Lookup(key Key) (Batch, bool) {
	idx, ok := s.index[key]
	if !ok || len(s.batches[idx].Instances) == 0 {
		return Batch{}, false
	}
	return s.batches[idx], true
}

// Len returns the number of non-empty batches.
func (s *Set) Len() int {
	return len(s.live)
}

// Instances returns the instance count across all batches.
func (s *Set) Instances() int {
	return s.total
}

// Rejected returns how many entities were dropped by the key filter.
func (s *Set) Rejected() int {
	n := 0
	for _, c := range s.rejected {
		n += c
	}
	return n
}

// RejectedKeys returns the keys dropped by the key filter.
func (s *Set) RejectedKeys() []Key {
	keys := make([]Key, 0, len(s.rejected))
	for k := range s.rejected {
		keys = append(keys, k)
	}
	return keys
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithFilter drops every entity whose key fails keep.
func WithFilter(keep func(Key) bool) Option {
	return func(b *Batcher) {
		b.keep = keep
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(b *Batcher) {
		if l != nil {
			b.log = l
		}
	}
}

// Batcher builds instance batches from every entity holding a Transform and a
// Renderable. It owns two sets and writes to one while the other may still
// be presented.
type Batcher struct {
	log    logging.Logger
	filter *mugen.Filter2[transform.Transform, Renderable]
	keep   func(Key) bool
	sets   [2]*Set
	front  int
}

// New creates a Batcher for w.
func New(w *mugen.World, opts ...Option) *Batcher {
	b := &Batcher{
		log:    logging.Nop(),
		filter: mugen.NewFilter2[transform.Transform, Renderable](w),
		sets:   [2]*Set{newSet(), newSet()},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build groups every renderable entity into the back set and returns it.
// Instances keep query order within their batch. Build does not change the
// world and may run while no system writes Transform or Renderable.
func (b *Batcher) Build() *Set {
	s := b.sets[1-b.front]
	s.reset()
	b.filter.Reset()

	last, lastIdx := Key{}, -1
	for b.filter.NextChunk() {
		_, ts, rs := b.filter.Chunk()
		for i := range rs {
			r := &rs[i]
			key := Key{Mesh: r.Mesh, Material: r.Material}
			idx := lastIdx
			if idx < 0 || key != last {
				idx = b.slot(s, key)
				if idx < 0 {
					continue
				}
				last, lastIdx = key, idx
			}
			bt := &s.batches[idx]
			bt.Instances = append(bt.Instances, Instance{Model: ts[i].World, Color: r.Color, UV: r.UV})
		}
	}
	for _, idx := range s.live {
		s.total += len(s.batches[idx].Instances)
	}
	if n := s.Rejected(); n > 0 {
		b.log.Warn("dropped sprites with invalid assets", "count", n, "keys", len(s.rejected))
	}
	return s
}

// slot returns the batch index for key, registering it as live the first
// time it is seen this build, or -1 if the filter rejects it.
func (b *Batcher) slot(s *Set, key Key) int {
	if b.keep != nil && !b.keep(key) {
		s.rejected[key]++
		return -1
	}
	idx, ok := s.index[key]
	if !ok {
		idx = len(s.batches)
		s.batches = append(s.batches, Batch{Key: key})
		s.index[key] = idx
	}
	if len(s.batches[idx].Instances) == 0 {
		s.live = append(s.live, idx)
	}
	return idx
}

// Front returns the set built most recently before the last Swap.
func (b *Batcher) Front() *Set {
	return b.sets[b.front]
}

// Swap makes the last built set the front set; the next Build writes to the
// other one.
func (b *Batcher) Swap() {
	b.front = 1 - b.front
}
