// Package dag orders modules so that every module comes after the modules it imports.
package dag

import (
	"cmp"
	"fmt"
	"slices"

	"fortio.org/safecast"

	"movecheck/internal/binary"
)

// NodeID is a dense index of a module in an Index.
type NodeID uint32

// Unit is a module as seen by the graph: its id and the ids it imports.
type Unit struct {
	ID      binary.ModuleID
	Imports []binary.ModuleID
}

// UnitOf lists the imports of a bounds-checked module, self excluded.
func UnitOf(m *binary.CompiledModule) Unit {
	self := m.SelfID()
	u := Unit{ID: self}
	for _, h := range m.ModuleHandles {
		if id := m.ModuleIDForHandle(h); id != self {
			u.Imports = append(u.Imports, id)
		}
	}
	return u
}

// Index numbers every module named by a set of units, imported ones included.
type Index struct {
	IDToModule []binary.ModuleID
	ModuleToID map[binary.ModuleID]NodeID
}

// BuildIndex assigns ids in module-id order so that results are deterministic.
func BuildIndex(units []Unit) Index {
	uniq := make(map[binary.ModuleID]struct{}, len(units))
	for _, u := range units {
		uniq[u.ID] = struct{}{}
		for _, dep := range u.Imports {
			uniq[dep] = struct{}{}
		}
	}

	ids := make([]binary.ModuleID, 0, len(uniq))
	for id := range uniq {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareModules)

	moduleToID := make(map[binary.ModuleID]NodeID, len(ids))
	for i, id := range ids {
		moduleToID[id] = nodeID(i)
	}
	return Index{IDToModule: ids, ModuleToID: moduleToID}
}

func compareModules(a, b binary.ModuleID) int {
	if c := slices.Compare(a.Address[:], b.Address[:]); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}

func nodeID(i int) NodeID {
	id, err := safecast.Conv[NodeID](i)
	if err != nil {
		panic(fmt.Errorf("module id overflow: %w", err))
	}
	return id
}
