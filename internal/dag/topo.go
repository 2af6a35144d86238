package dag

import "slices"

// Topo is a dependency-first ordering of the present modules.
type Topo struct {
	Order   []NodeID   // linear order, dependencies first
	Batches [][]NodeID // waves of modules whose imports are all in earlier waves
	Cyclic  bool
	Blocked []NodeID   // modules never ordered: on a cycle or importing one
	Cycles  [][]NodeID // strongly connected groups among Blocked
}

// ToposortKahn orders g in waves.
func ToposortKahn(g Graph) *Topo {
	nodeCount := len(g.Dependents)
	indeg := make([]int, len(g.Indeg))
	copy(indeg, g.Indeg)

	topo := &Topo{
		Order:   make([]NodeID, 0, nodeCount),
		Batches: make([][]NodeID, 0),
	}

	active := 0
	current := make([]NodeID, 0, nodeCount)
	for i := range nodeCount {
		if !g.Present[i] {
			continue
		}
		active++
		if indeg[i] == 0 {
			current = append(current, nodeID(i))
		}
	}

	for len(current) > 0 {
		batch := make([]NodeID, len(current))
		copy(batch, current)
		topo.Batches = append(topo.Batches, batch)

		next := make([]NodeID, 0)
		for _, id := range batch {
			topo.Order = append(topo.Order, id)
			for _, to := range g.Dependents[id] {
				indeg[to]--
				if indeg[to] == 0 {
					next = append(next, to)
				}
			}
		}
		slices.Sort(next)
		current = next
	}

	if len(topo.Order) != active {
		topo.Cyclic = true
		blocked := make([]bool, nodeCount)
		for i := range nodeCount {
			if g.Present[i] && indeg[i] > 0 {
				topo.Blocked = append(topo.Blocked, nodeID(i))
				blocked[i] = true
			}
		}
		topo.Cycles = stronglyConnected(g, blocked)
	}
	return topo
}

// stronglyConnected returns the groups of more than one blocked module that reach each
// other, each sorted, in order of their smallest member.
func stronglyConnected(g Graph, blocked []bool) [][]NodeID {
	t := tarjan{
		g:       g,
		blocked: blocked,
		index:   make([]int, len(blocked)),
		low:     make([]int, len(blocked)),
		onStack: make([]bool, len(blocked)),
	}
	for i := range t.index {
		t.index[i] = -1
	}
	for i := range blocked {
		if blocked[i] && t.index[i] < 0 {
			t.visit(nodeID(i))
		}
	}
	slices.SortFunc(t.groups, func(a, b []NodeID) int { return int(a[0]) - int(b[0]) })
	return t.groups
}

type tarjan struct {
	g       Graph
	blocked []bool
	next    int
	index   []int
	low     []int
	stack   []NodeID
	onStack []bool
	groups  [][]NodeID
}

func (t *tarjan) visit(v NodeID) {
	t.index[v] = t.next
	t.low[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.g.Dependents[v] {
		if !t.blocked[w] {
			continue
		}
		if t.index[w] < 0 {
			t.visit(w)
			t.low[v] = min(t.low[v], t.low[w])
		} else if t.onStack[w] {
			t.low[v] = min(t.low[v], t.index[w])
		}
	}

	if t.low[v] != t.index[v] {
		return
	}
	var group []NodeID
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[w] = false
		group = append(group, w)
		if w == v {
			break
		}
	}
	if len(group) > 1 {
		slices.Sort(group)
		t.groups = append(t.groups, group)
	}
}

// InCycle reports whether id belongs to one of topo's cycles.
func (topo *Topo) InCycle(id NodeID) bool {
	for _, group := range topo.Cycles {
		if _, ok := slices.BinarySearch(group, id); ok {
			return true
		}
	}
	return false
}
