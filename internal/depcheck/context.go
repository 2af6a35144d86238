// Package depcheck verifies that the handles a binary imports resolve to compatible
// definitions in its already verified dependencies.
package depcheck

import (
	"movecheck/internal/binary"
	"movecheck/internal/vmerr"
)

// qualifiedName is a module member addressed by module id and identifier.
type qualifiedName struct {
	module binary.ModuleID
	name   string
}

type structRef struct {
	module *binary.CompiledModule
	handle binary.StructHandleIndex
}

type functionRef struct {
	module *binary.CompiledModule
	handle binary.FunctionHandleIndex
	def    binary.FunctionDefinitionIndex
}

func (r functionRef) definition() *binary.FunctionDefinition {
	return &r.module.FunctionDefs[r.def]
}

// context holds the lookup tables for one verification call. It is read-only once
// built.
type context struct {
	view   binary.View
	selfID binary.ModuleID
	isMod  bool

	deps      map[binary.ModuleID]*binary.CompiledModule
	structs   map[qualifiedName]structRef
	functions map[qualifiedName]functionRef
}

func newContext(view binary.View, deps []*binary.CompiledModule) (*context, *vmerr.PartialError) {
	cx := &context{
		view:      view,
		deps:      make(map[binary.ModuleID]*binary.CompiledModule, len(deps)),
		structs:   make(map[qualifiedName]structRef),
		functions: make(map[qualifiedName]functionRef),
	}
	cx.selfID, cx.isMod = binary.SelfID(view)

	for _, dep := range deps {
		id := dep.SelfID()
		if cx.isMod && id == cx.selfID {
			continue
		}
		if _, dup := cx.deps[id]; dup {
			return nil, vmerr.Newf(vmerr.LinkerError, "dependency %s supplied twice", id)
		}
		cx.deps[id] = dep

		for i := range dep.StructDefs {
			h := dep.StructDefs[i].Handle
			name := dep.Identifiers[dep.StructHandles[h].Name]
			cx.structs[qualifiedName{id, name}] = structRef{module: dep, handle: h}
		}

		friend := cx.isMod && dep.IsFriend(cx.selfID)
		for i := range dep.FunctionDefs {
			def := &dep.FunctionDefs[i]
			switch def.Visibility {
			case binary.VisibilityPublic:
			case binary.VisibilityFriend:
				if !friend {
					continue
				}
			default:
				continue
			}
			name := dep.Identifiers[dep.FunctionHandles[def.Function].Name]
			cx.functions[qualifiedName{id, name}] = functionRef{
				module: dep,
				handle: def.Function,
				def:    binary.FunctionDefinitionIndex(i),
			}
		}
	}
	return cx, nil
}

// owner returns the module id behind a module handle and whether it is the binary
// itself.
func (cx *context) owner(idx binary.ModuleHandleIndex) (binary.ModuleID, bool) {
	id := binary.ModuleIDForHandle(cx.view, cx.view.ModuleHandles()[idx])
	return id, cx.isMod && id == cx.selfID
}
