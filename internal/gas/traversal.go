package gas

import (
	"movecheck/internal/binary"
	"movecheck/internal/vmerr"
)

// TraversalContext bounds how many distinct modules one transaction may load from.
// It is not safe for concurrent use.
type TraversalContext struct {
	maxModules int
	visited    map[binary.ModuleID]struct{}
	order      []binary.ModuleID
}

// NewTraversalContext returns a context admitting maxModules distinct modules; zero means
// unlimited.
func NewTraversalContext(maxModules int) *TraversalContext {
	return &TraversalContext{
		maxModules: maxModules,
		visited:    make(map[binary.ModuleID]struct{}, 8),
	}
}

// Visit records a load from id. Revisiting a module is free.
func (t *TraversalContext) Visit(id binary.ModuleID) *vmerr.PartialError {
	if _, ok := t.visited[id]; ok {
		return nil
	}
	if t.maxModules > 0 && len(t.visited) >= t.maxModules {
		return vmerr.Newf(vmerr.DependencyLimitReached,
			"loading from %s exceeds the limit of %d modules", id, t.maxModules)
	}
	t.visited[id] = struct{}{}
	t.order = append(t.order, id)
	return nil
}

// Visited returns the modules loaded from, in first-visit order.
func (t *TraversalContext) Visited() []binary.ModuleID {
	return append([]binary.ModuleID(nil), t.order...)
}
