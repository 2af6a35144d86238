package depcheck

import (
	"fmt"
	"slices"

	"movecheck/internal/binary"
	"movecheck/internal/vmerr"
)

// VerifyModule checks the imports of a bounds-checked module against deps. A module
// in deps with the module's own id is ignored.
func VerifyModule(m *binary.CompiledModule, deps []*binary.CompiledModule) error {
	if err := verify(binary.ModuleView{M: m}, deps); err != nil {
		return err.Finish(vmerr.ModuleLocation(m.SelfID()))
	}
	return nil
}

// VerifyScript checks the imports of a bounds-checked script against deps.
func VerifyScript(s *binary.CompiledScript, deps []*binary.CompiledModule) error {
	if err := verify(binary.ScriptView{S: s}, deps); err != nil {
		return err.Finish(vmerr.Script)
	}
	return nil
}

func verify(view binary.View, deps []*binary.CompiledModule) *vmerr.PartialError {
	cx, err := newContext(view, deps)
	if err != nil {
		return err
	}
	steps := []func() *vmerr.PartialError{
		cx.verifyImportedModules,
		cx.verifyImportedStructs,
		cx.verifyImportedFunctions,
		cx.verifyScriptVisibilityUsage,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (cx *context) verifyImportedModules() *vmerr.PartialError {
	for i := range cx.view.ModuleHandles() {
		idx := binary.ModuleHandleIndex(i)
		id, self := cx.owner(idx)
		if self {
			continue
		}
		if _, ok := cx.deps[id]; !ok {
			return vmerr.Newf(vmerr.MissingDependency, "module %s is not among the dependencies", id).
				AtIndex(binary.KindModuleHandle, uint16(idx))
		}
	}
	return nil
}

func (cx *context) verifyImportedStructs() *vmerr.PartialError {
	for i, local := range cx.view.StructHandles() {
		id, self := cx.owner(local.Module)
		if self {
			continue
		}
		name := binary.IdentifierAt(cx.view, local.Name)
		ref, ok := cx.structs[qualifiedName{id, name}]
		if !ok {
			return vmerr.Newf(vmerr.LookupFailed, "struct %s::%s is not defined", id, name).
				AtIndex(binary.KindStructHandle, uint16(i))
		}
		defined := &ref.module.StructHandles[ref.handle]
		if !local.Abilities.IsSubsetOf(defined.Abilities) {
			return vmerr.Newf(vmerr.TypeMismatch, "struct %s::%s imported with abilities %s but declares %s",
				id, name, local.Abilities, defined.Abilities).AtIndex(binary.KindStructHandle, uint16(i))
		}
		if !compatibleStructTypeParameters(local.TypeParameters, defined.TypeParameters) {
			return vmerr.Newf(vmerr.TypeMismatch, "struct %s::%s imported with incompatible type parameters", id, name).
				AtIndex(binary.KindStructHandle, uint16(i))
		}
	}
	return nil
}

// compatibleStructTypeParameters allows the importer to drop a phantom marking or to
// require stronger constraints, never the reverse.
func compatibleStructTypeParameters(local, defined []binary.StructTypeParameter) bool {
	if len(local) != len(defined) {
		return false
	}
	for i := range local {
		if local[i].IsPhantom && !defined[i].IsPhantom {
			return false
		}
		if !defined[i].Constraints.IsSubsetOf(local[i].Constraints) {
			return false
		}
	}
	return true
}

func compatibleFunctionTypeParameters(local, defined []binary.AbilitySet) bool {
	if len(local) != len(defined) {
		return false
	}
	for i := range local {
		if !defined[i].IsSubsetOf(local[i]) {
			return false
		}
	}
	return true
}

func (cx *context) verifyImportedFunctions() *vmerr.PartialError {
	handles := cx.view.FunctionHandles()
	for i := range handles {
		local := &handles[i]
		id, self := cx.owner(local.Module)
		if self {
			continue
		}
		name := binary.IdentifierAt(cx.view, local.Name)
		ref, ok := cx.functions[qualifiedName{id, name}]
		if !ok {
			return vmerr.Newf(vmerr.LookupFailed, "function %s::%s is not defined or not visible", id, name).
				AtIndex(binary.KindFunctionHandle, uint16(i))
		}
		if err := cx.compareFunction(local, ref); err != nil {
			return err.WithMessage(fmt.Sprintf("function %s::%s: %s", id, name, err.Message)).
				AtIndex(binary.KindFunctionHandle, uint16(i))
		}
	}
	return nil
}

func (cx *context) compareFunction(local *binary.FunctionHandle, ref functionRef) *vmerr.PartialError {
	defined := &ref.module.FunctionHandles[ref.handle]
	if !compatibleFunctionTypeParameters(local.TypeParameters, defined.TypeParameters) {
		return vmerr.Newf(vmerr.TypeMismatch, "incompatible type parameters")
	}
	theirs := binary.ModuleView{M: ref.module}
	if err := cx.compareSignatures(binary.SignatureAt(cx.view, local.Parameters),
		theirs, binary.SignatureAt(theirs, defined.Parameters)); err != nil {
		return err.WithMessage("parameters: " + err.Message)
	}
	if err := cx.compareSignatures(binary.SignatureAt(cx.view, local.Return),
		theirs, binary.SignatureAt(theirs, defined.Return)); err != nil {
		return err.WithMessage("results: " + err.Message)
	}
	if !compatibleAttributes(local.Attributes, definedAttributes(local, defined, ref.definition())) {
		return vmerr.Newf(vmerr.LinkerError, "imported with attributes %v the definition does not have", local.Attributes)
	}
	return nil
}

// definedAttributes returns the attributes of the definition as seen by an importer.
// Public functions from before attributes existed count as persistent when the
// importer asks for attributes.
func definedAttributes(local, defined *binary.FunctionHandle, def *binary.FunctionDefinition) []binary.FunctionAttribute {
	if len(local.Attributes) > 0 && len(defined.Attributes) == 0 && def.Visibility == binary.VisibilityPublic {
		return []binary.FunctionAttribute{binary.AttributePersistent}
	}
	return defined.Attributes
}

func compatibleAttributes(local, defined []binary.FunctionAttribute) bool {
	for _, a := range local {
		if !slices.Contains(defined, a) {
			return false
		}
	}
	return true
}
