package scheduler

import "fmt"

// graph is the conflict graph of a system list, as adjacency lists of
// earlier conflicting systems.
type graph struct {
	earlier [][]int
}

func buildGraph(systems []System) graph {
	g := graph{earlier: make([][]int, len(systems))}
	for i := range systems {
		for j := 0; j < i; j++ {
			if conflicts(&systems[i], &systems[j]) {
				g.earlier[i] = append(g.earlier[i], j)
			}
		}
	}
	return g
}

// buildWaves places every system in the first wave after the last wave that
// holds a conflicting earlier system. Conflicting systems therefore keep
// their declaration order across waves and no wave holds two conflicting
// systems.
func buildWaves(systems []System) [][]int {
	g := buildGraph(systems)
	waveOf := make([]int, len(systems))
	var waves [][]int
	for i := range systems {
		w := 0
		for _, j := range g.earlier[i] {
			if waveOf[j]+1 > w {
				w = waveOf[j] + 1
			}
		}
		waveOf[i] = w
		for len(waves) <= w {
			waves = append(waves, nil)
		}
		waves[w] = append(waves[w], i)
	}
	return waves
}

// Validate reports the first malformed or duplicated system in systems. New
// runs the same check.
func Validate(systems []System) error {
	seen := make(map[string]struct{}, len(systems))
	for i := range systems {
		s := &systems[i]
		if s.Name == "" {
			return fmt.Errorf("%w: system %d has no name", ErrInvalidSystem, i)
		}
		if s.Run == nil {
			return fmt.Errorf("%w: system %q has no Run", ErrInvalidSystem, s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateSystem, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}
