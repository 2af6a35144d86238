package depcheck

import (
	"movecheck/internal/binary"
	"movecheck/internal/vmerr"
)

// verifyScriptVisibilityUsage enforces the script visibility rule of binaries older
// than Version5: a script-visible function may only be called from another
// script-visible function. A script body is script-visible, so only modules can fail.
func (cx *context) verifyScriptVisibilityUsage() *vmerr.PartialError {
	if cx.view.Version() >= binary.Version5 {
		return nil
	}
	defs, ok := cx.view.FunctionDefs()
	if !ok {
		return nil
	}
	for i := range defs {
		def := &defs[i]
		if def.Code == nil || scriptVisible(def) {
			continue
		}
		for off, instr := range def.Code.Code {
			callee, ok := cx.calledFunction(instr)
			if !ok {
				continue
			}
			if cx.isScriptVisible(callee, defs) {
				caller := binary.IdentifierAt(cx.view, cx.view.FunctionHandles()[def.Function].Name)
				return vmerr.Newf(vmerr.CalledScriptVisibleFromNonScriptVisible,
					"%s calls a script-visible function", caller).
					AtCodeOffset(binary.FunctionDefinitionIndex(i), binary.CodeOffset(off))
			}
		}
	}
	return nil
}

func scriptVisible(def *binary.FunctionDefinition) bool {
	return def.Visibility == binary.VisibilityPublic && def.IsEntry
}

func (cx *context) calledFunction(instr binary.Bytecode) (binary.FunctionHandleIndex, bool) {
	switch instr.Op {
	case binary.OpCall:
		return binary.FunctionHandleIndex(instr.Index), true
	case binary.OpCallGeneric:
		return cx.view.FunctionInstantiations()[instr.Index].Handle, true
	default:
		return 0, false
	}
}

func (cx *context) isScriptVisible(h binary.FunctionHandleIndex, selfDefs []binary.FunctionDefinition) bool {
	handle := &cx.view.FunctionHandles()[h]
	id, self := cx.owner(handle.Module)
	if self {
		for i := range selfDefs {
			if selfDefs[i].Function == h {
				return scriptVisible(&selfDefs[i])
			}
		}
		return false
	}
	ref, ok := cx.functions[qualifiedName{id, binary.IdentifierAt(cx.view, handle.Name)}]
	return ok && scriptVisible(ref.definition())
}
