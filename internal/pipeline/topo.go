package pipeline

import (
	"fmt"
	"sort"
)

// topoLevels computes a level-ordered topological execution plan over
// the dependency graph: every node in a level has all of its
// dependencies in earlier levels. Node order inside a level is sorted
// for determinism. A cycle fails the whole plan.
func topoLevels(dag map[string]map[string]struct{}) ([][]string, error) {
	remaining := make(map[string]int, len(dag))
	dependents := make(map[string][]string, len(dag))

	for node, deps := range dag {
		remaining[node] = len(deps)
		for dep := range deps {
			if _, ok := dag[dep]; !ok {
				return nil, fmt.Errorf("%w: %q depends on %q", ErrUnknownTransform, node, dep)
			}
			dependents[dep] = append(dependents[dep], node)
		}
	}

	var levels [][]string
	done := 0
	ready := readyNodes(remaining)

	for len(ready) > 0 {
		levels = append(levels, ready)
		done += len(ready)

		var next []string
		for _, node := range ready {
			delete(remaining, node)
			for _, dependent := range dependents[node] {
				remaining[dependent]--
				if remaining[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sort.Strings(next)
		ready = next
	}

	if done != len(dag) {
		return nil, &FatalError{Err: ErrCycle}
	}
	return levels, nil
}

func readyNodes(remaining map[string]int) []string {
	var ready []string
	for node, deps := range remaining {
		if deps == 0 {
			ready = append(ready, node)
		}
	}
	sort.Strings(ready)
	return ready
}
