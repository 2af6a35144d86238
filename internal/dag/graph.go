package dag

import (
	"slices"
	"strings"
)

// Graph points from each module to the modules importing it.
type Graph struct {
	Dependents [][]NodeID // Dependents[dep] = importers of dep
	Indeg      []int      // imports of each module that are present in the graph
	Present    []bool     // the module is part of the set, not only imported
}

// Slot holds what the graph knows about one module.
type Slot struct {
	Unit    Unit
	Present bool
	// Duplicates counts later units declaring the same id; they are left out.
	Duplicates int
	// Missing lists imports that are not present in the graph.
	Missing []NodeID
}

// BuildGraph links units through their imports. Imports of modules outside the set
// are recorded in Slot.Missing; the caller decides whether they resolve elsewhere.
func BuildGraph(idx Index, units []Unit) (Graph, []Slot) {
	nodeCount := len(idx.IDToModule)
	g := Graph{
		Dependents: make([][]NodeID, nodeCount),
		Indeg:      make([]int, nodeCount),
		Present:    make([]bool, nodeCount),
	}
	slots := make([]Slot, nodeCount)
	for i, id := range idx.IDToModule {
		slots[i].Unit.ID = id
	}

	for _, u := range units {
		id, ok := idx.ModuleToID[u.ID]
		if !ok {
			continue
		}
		slot := &slots[id]
		if slot.Present {
			slot.Duplicates++
			continue
		}
		slot.Unit = u
		slot.Present = true
		g.Present[id] = true
	}

	for from := range slots {
		slot := &slots[from]
		if !slot.Present {
			continue
		}
		seen := make(map[NodeID]struct{}, len(slot.Unit.Imports))
		for _, dep := range slot.Unit.Imports {
			to, ok := idx.ModuleToID[dep]
			if !ok || int(to) == from {
				continue
			}
			if _, dup := seen[to]; dup {
				continue
			}
			seen[to] = struct{}{}
			if !g.Present[to] {
				slot.Missing = append(slot.Missing, to)
				continue
			}
			g.Dependents[to] = append(g.Dependents[to], nodeID(from))
			g.Indeg[from]++
		}
		slices.Sort(slot.Missing)
	}
	for i := range g.Dependents {
		slices.Sort(g.Dependents[i])
	}
	return g, slots
}

// CycleSummary renders the modules of a cycle as "a -> b -> c".
func CycleSummary(idx Index, ids []NodeID) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, idx.IDToModule[id].String())
	}
	return strings.Join(names, " -> ")
}
