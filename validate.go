package mugen

import "fmt"

// Validate walks every archetype chunk and every entity slot and checks that
// they agree with each other. Any mismatch is reported as an error wrapping
// ErrStorageInvariant; continuing after one risks silent corruption.
func (w *World) Validate() error {
	live := 0
	for ai, a := range w.archetypes.archetypes {
		total := 0
		for ci, c := range a.chunks {
			if c.size <= 0 || c.size > ChunkSize {
				return invariantf("archetype %d chunk %d has size %d", ai, ci, c.size)
			}
			if ci < len(a.chunks)-1 && c.size != ChunkSize {
				return invariantf("archetype %d chunk %d is not full but not last", ai, ci)
			}
			for i := 0; i < c.size; i++ {
				e := c.entityIDs[i]
				if int(e.ID) >= len(w.entities.metas) {
					return invariantf("archetype %d chunk %d slot %d holds out-of-range %v", ai, ci, i, e)
				}
				m := w.entities.metas[e.ID]
				if !m.alive || m.version != e.Version {
					return invariantf("archetype %d chunk %d slot %d holds dead %v", ai, ci, i, e)
				}
				if m.archetypeIndex != ai || m.chunkIndex != ci || m.index != i {
					return invariantf("%v meta points at (%d,%d,%d), stored at (%d,%d,%d)",
						e, m.archetypeIndex, m.chunkIndex, m.index, ai, ci, i)
				}
			}
			total += c.size
		}
		if total != a.size {
			return invariantf("archetype %d counts %d entities, chunks hold %d", ai, a.size, total)
		}
		live += total
	}
	if live != w.entities.live {
		return invariantf("world counts %d live entities, archetypes hold %d", w.entities.live, live)
	}
	if live+len(w.entities.freeIDs) != len(w.entities.metas) {
		return invariantf("%d live + %d free != %d slots", live, len(w.entities.freeIDs), len(w.entities.metas))
	}
	return nil
}

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStorageInvariant, fmt.Sprintf(format, args...))
}
