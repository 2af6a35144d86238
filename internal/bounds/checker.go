package bounds

import (
	"math"

	"fortio.org/safecast"

	"movecheck/internal/binary"
	"movecheck/internal/vmerr"
)

// Checker verifies that every index stored in a binary lands inside its pool.
// After it succeeds, no later pass may fail on an out-of-range lookup.
type Checker struct {
	view binary.View

	// currentFunction is set while a code unit is checked; scripts use index 0.
	currentFunction *binary.FunctionDefinitionIndex
}

// VerifyModule bounds-checks a module.
func VerifyModule(m *binary.CompiledModule) error {
	if err := verifyModule(m); err != nil {
		return err.Finish(ModuleLocation(m))
	}
	return nil
}

// VerifyScript bounds-checks a script.
func VerifyScript(s *binary.CompiledScript) error {
	if err := verifyScript(s); err != nil {
		return err.Finish(vmerr.Script)
	}
	return nil
}

func verifyModule(m *binary.CompiledModule) *vmerr.PartialError {
	if len(m.ModuleHandles) == 0 {
		return vmerr.Newf(vmerr.NoModuleHandles, "module has no module handles; at least the self handle is required")
	}
	c := &Checker{view: binary.ModuleView{M: m}}
	return c.verifyCommon()
}

func verifyScript(s *binary.CompiledScript) *vmerr.PartialError {
	c := &Checker{view: binary.ScriptView{S: s}}
	if err := c.verifyCommon(); err != nil {
		return err
	}
	if err := checkIndex(binary.KindSignature, s.Parameters, len(s.Signatures)); err != nil {
		return err
	}
	typeParamCount := len(s.TypeParameters)
	if err := c.checkTypeParametersInSignature(s.Parameters, typeParamCount); err != nil {
		return err
	}
	main := binary.FunctionDefinitionIndex(0)
	c.currentFunction = &main
	defer func() { c.currentFunction = nil }()
	return c.checkCodeUnit(&s.Code, typeParamCount, s.Parameters)
}

// ModuleLocation names the module if its self handle can be resolved without
// bounds checking, and is Undefined otherwise.
func ModuleLocation(m *binary.CompiledModule) vmerr.Location {
	if int(m.SelfHandle) >= len(m.ModuleHandles) {
		return vmerr.Undefined
	}
	h := m.ModuleHandles[m.SelfHandle]
	if int(h.Address) >= len(m.AddressIdentifiers) || int(h.Name) >= len(m.Identifiers) {
		return vmerr.Undefined
	}
	return vmerr.ModuleLocation(m.ModuleIDForHandle(h))
}

func (c *Checker) verifyCommon() *vmerr.PartialError {
	steps := []func() *vmerr.PartialError{
		c.checkSignatures,
		c.checkConstants,
		c.checkModuleHandles,
		c.checkSelfModuleHandle,
		c.checkStructHandles,
		c.checkFunctionHandles,
		c.checkFieldHandles,
		c.checkFriendDecls,
		c.checkStructInstantiations,
		c.checkFunctionInstantiations,
		c.checkFieldInstantiations,
		c.checkStructDefs,
		c.checkVariantHandles,
		c.checkVariantInstantiations,
		c.checkFunctionDefs,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// index helpers ----------------------------------------------------------------

type poolIndex interface {
	~uint8 | ~uint16
}

func checkIndex[I poolIndex](kind binary.IndexKind, idx I, length int) *vmerr.PartialError {
	if int(idx) < length {
		return nil
	}
	return boundsError(kind, binary.TableIndex(idx), length)
}

func boundsError(kind binary.IndexKind, idx binary.TableIndex, length int) *vmerr.PartialError {
	return vmerr.Newf(vmerr.IndexOutOfBounds, "index %d out of bounds for %s (length %d)", idx, kind, length).
		AtIndex(kind, idx)
}

// pool passes ------------------------------------------------------------------

func (c *Checker) checkSignatures() *vmerr.PartialError {
	for i := range c.view.Signatures() {
		sig := &c.view.Signatures()[i]
		for j := range sig.Tokens {
			if err := c.checkSignatureToken(&sig.Tokens[j]); err != nil {
				return err.AtIndex(binary.KindSignature, uint16(i))
			}
		}
	}
	return nil
}

func (c *Checker) checkConstants() *vmerr.PartialError {
	for i := range c.view.ConstantPool() {
		if err := c.checkSignatureToken(&c.view.ConstantPool()[i].Type); err != nil {
			return err.AtIndex(binary.KindConstantPool, uint16(i))
		}
	}
	return nil
}

func (c *Checker) checkModuleHandles() *vmerr.PartialError {
	for _, h := range c.view.ModuleHandles() {
		if err := c.checkModuleHandle(h); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkModuleHandle(h binary.ModuleHandle) *vmerr.PartialError {
	if err := checkIndex(binary.KindAddressIdentifier, h.Address, len(c.view.AddressIdentifiers())); err != nil {
		return err
	}
	return checkIndex(binary.KindIdentifier, h.Name, len(c.view.Identifiers()))
}

func (c *Checker) checkSelfModuleHandle() *vmerr.PartialError {
	self, ok := c.view.SelfHandle()
	if !ok {
		return nil
	}
	return checkIndex(binary.KindModuleHandle, self, len(c.view.ModuleHandles()))
}

func (c *Checker) checkStructHandles() *vmerr.PartialError {
	for _, h := range c.view.StructHandles() {
		if err := checkIndex(binary.KindModuleHandle, h.Module, len(c.view.ModuleHandles())); err != nil {
			return err
		}
		if err := checkIndex(binary.KindIdentifier, h.Name, len(c.view.Identifiers())); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkFunctionHandles() *vmerr.PartialError {
	sigCount := len(c.view.Signatures())
	for i := range c.view.FunctionHandles() {
		h := &c.view.FunctionHandles()[i]
		if err := checkIndex(binary.KindModuleHandle, h.Module, len(c.view.ModuleHandles())); err != nil {
			return err
		}
		if err := checkIndex(binary.KindIdentifier, h.Name, len(c.view.Identifiers())); err != nil {
			return err
		}
		if err := checkIndex(binary.KindSignature, h.Parameters, sigCount); err != nil {
			return err
		}
		if err := checkIndex(binary.KindSignature, h.Return, sigCount); err != nil {
			return err
		}
		typeParamCount := len(h.TypeParameters)
		if err := c.checkTypeParametersInSignature(h.Parameters, typeParamCount); err != nil {
			return err.AtIndex(binary.KindFunctionHandle, uint16(i))
		}
		if err := c.checkTypeParametersInSignature(h.Return, typeParamCount); err != nil {
			return err.AtIndex(binary.KindFunctionHandle, uint16(i))
		}
		for j := range h.AccessSpecifiers {
			if err := c.checkAccessSpecifier(h, &h.AccessSpecifiers[j]); err != nil {
				return err.AtIndex(binary.KindFunctionHandle, uint16(i))
			}
		}
	}
	return nil
}

func (c *Checker) checkAccessSpecifier(h *binary.FunctionHandle, spec *binary.AccessSpecifier) *vmerr.PartialError {
	switch spec.Resource {
	case binary.ResourceAny:
	case binary.ResourceAtAddress:
		if err := checkIndex(binary.KindAddressIdentifier, spec.ResourceAddress, len(c.view.AddressIdentifiers())); err != nil {
			return err
		}
	case binary.ResourceInModule:
		if err := checkIndex(binary.KindModuleHandle, spec.ResourceModule, len(c.view.ModuleHandles())); err != nil {
			return err
		}
	case binary.ResourceResource:
		if err := checkIndex(binary.KindStructHandle, spec.ResourceStruct, len(c.view.StructHandles())); err != nil {
			return err
		}
	case binary.ResourceInstantiation:
		if err := checkIndex(binary.KindStructHandle, spec.ResourceStruct, len(c.view.StructHandles())); err != nil {
			return err
		}
		if err := checkIndex(binary.KindSignature, spec.ResourceTypeArgs, len(c.view.Signatures())); err != nil {
			return err
		}
		if err := c.checkTypeParametersInSignature(spec.ResourceTypeArgs, len(h.TypeParameters)); err != nil {
			return err
		}
	}
	switch spec.Address {
	case binary.AddressAny:
	case binary.AddressLiteral:
		return checkIndex(binary.KindAddressIdentifier, spec.AddressValue, len(c.view.AddressIdentifiers()))
	case binary.AddressParameter:
		if err := checkIndex(binary.KindLocalPool, spec.AddressParam, binary.SignatureAt(c.view, h.Parameters).Len()); err != nil {
			return err
		}
		if spec.AddressFunction != nil {
			return checkIndex(binary.KindFunctionInstantiation, *spec.AddressFunction, len(c.view.FunctionInstantiations()))
		}
	}
	return nil
}

func (c *Checker) checkFieldHandles() *vmerr.PartialError {
	handles, _ := c.view.FieldHandles()
	defs, _ := c.view.StructDefs()
	for _, h := range handles {
		if err := checkIndex(binary.KindStructDefinition, h.Owner, len(defs)); err != nil {
			return err
		}
		// native structs and enums have no plain fields
		if err := checkIndex(binary.KindMemberCount, h.Field, defs[h.Owner].FieldCount()); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkFriendDecls() *vmerr.PartialError {
	friends, _ := c.view.FriendDecls()
	for i, f := range friends {
		if err := c.checkModuleHandle(f); err != nil {
			return err.AtIndex(binary.KindFriendDeclaration, uint16(i))
		}
	}
	return nil
}

func (c *Checker) checkStructInstantiations() *vmerr.PartialError {
	insts, _ := c.view.StructDefInstantiations()
	defs, _ := c.view.StructDefs()
	for _, inst := range insts {
		if err := checkIndex(binary.KindStructDefinition, inst.Def, len(defs)); err != nil {
			return err
		}
		if err := checkIndex(binary.KindSignature, inst.TypeParameters, len(c.view.Signatures())); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkFunctionInstantiations() *vmerr.PartialError {
	for _, inst := range c.view.FunctionInstantiations() {
		if err := checkIndex(binary.KindFunctionHandle, inst.Handle, len(c.view.FunctionHandles())); err != nil {
			return err
		}
		if err := checkIndex(binary.KindSignature, inst.TypeParameters, len(c.view.Signatures())); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkFieldInstantiations() *vmerr.PartialError {
	insts, _ := c.view.FieldInstantiations()
	handles, _ := c.view.FieldHandles()
	for _, inst := range insts {
		if err := checkIndex(binary.KindFieldHandle, inst.Handle, len(handles)); err != nil {
			return err
		}
		if err := checkIndex(binary.KindSignature, inst.TypeParameters, len(c.view.Signatures())); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkVariantHandles() *vmerr.PartialError {
	defs, _ := c.view.StructDefs()
	variantHandles, _ := c.view.StructVariantHandles()
	for _, h := range variantHandles {
		if err := checkIndex(binary.KindStructDefinition, h.Def, len(defs)); err != nil {
			return err
		}
		if err := checkIndex(binary.KindVariantCount, h.Variant, len(defs[h.Def].Variants)); err != nil {
			return err
		}
	}
	fieldHandles, _ := c.view.VariantFieldHandles()
	for _, h := range fieldHandles {
		if err := checkIndex(binary.KindStructDefinition, h.Def, len(defs)); err != nil {
			return err
		}
		def := &defs[h.Def]
		for _, v := range h.Variants {
			if err := checkIndex(binary.KindVariantCount, v, len(def.Variants)); err != nil {
				return err
			}
			if err := checkIndex(binary.KindMemberCount, h.Field, len(def.Variants[v].Fields)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Checker) checkVariantInstantiations() *vmerr.PartialError {
	sigCount := len(c.view.Signatures())
	variantHandles, _ := c.view.StructVariantHandles()
	insts, _ := c.view.StructVariantInstantiations()
	for _, inst := range insts {
		if err := checkIndex(binary.KindStructVariantHandle, inst.Handle, len(variantHandles)); err != nil {
			return err
		}
		if err := checkIndex(binary.KindSignature, inst.TypeParameters, sigCount); err != nil {
			return err
		}
	}
	fieldHandles, _ := c.view.VariantFieldHandles()
	fieldInsts, _ := c.view.VariantFieldInstantiations()
	for _, inst := range fieldInsts {
		if err := checkIndex(binary.KindVariantFieldHandle, inst.Handle, len(fieldHandles)); err != nil {
			return err
		}
		if err := checkIndex(binary.KindSignature, inst.TypeParameters, sigCount); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkStructDefs() *vmerr.PartialError {
	defs, _ := c.view.StructDefs()
	for i := range defs {
		if err := c.checkStructDef(&defs[i]); err != nil {
			return err.AtIndex(binary.KindStructDefinition, uint16(i))
		}
	}
	return nil
}

func (c *Checker) checkStructDef(def *binary.StructDefinition) *vmerr.PartialError {
	if err := checkIndex(binary.KindStructHandle, def.Handle, len(c.view.StructHandles())); err != nil {
		return err
	}
	typeParamCount := len(c.view.StructHandles()[def.Handle].TypeParameters)
	switch def.Layout {
	case binary.LayoutNative:
		if len(def.Fields) > 0 || len(def.Variants) > 0 {
			return layoutMismatch(def)
		}
		return nil
	case binary.LayoutDeclared:
		if len(def.Variants) > 0 {
			return layoutMismatch(def)
		}
		return c.checkFieldDefs(def.Fields, typeParamCount)
	case binary.LayoutVariants:
		if len(def.Fields) > 0 {
			return layoutMismatch(def)
		}
		for i := range def.Variants {
			v := &def.Variants[i]
			if err := checkIndex(binary.KindIdentifier, v.Name, len(c.view.Identifiers())); err != nil {
				return err
			}
			if err := c.checkFieldDefs(v.Fields, typeParamCount); err != nil {
				return err.AtIndex(binary.KindVariantCount, uint16(i))
			}
		}
		return nil
	default:
		return vmerr.Newf(vmerr.MalformedLayout, "unknown struct layout %d", uint8(def.Layout))
	}
}

// layoutMismatch reports a payload that the definition's layout does not declare.
func layoutMismatch(def *binary.StructDefinition) *vmerr.PartialError {
	return vmerr.Newf(vmerr.MalformedLayout, "%s struct carries %d fields and %d variants",
		def.Layout, len(def.Fields), len(def.Variants))
}

func (c *Checker) checkFieldDefs(fields []binary.FieldDefinition, typeParamCount int) *vmerr.PartialError {
	for i := range fields {
		f := &fields[i]
		if err := checkIndex(binary.KindIdentifier, f.Name, len(c.view.Identifiers())); err != nil {
			return err
		}
		if err := c.checkSignatureToken(&f.Type); err != nil {
			return err.AtIndex(binary.KindFieldDefinition, uint16(i))
		}
		if err := checkTypeParametersInToken(&f.Type, typeParamCount); err != nil {
			return err.AtIndex(binary.KindFieldDefinition, uint16(i))
		}
	}
	return nil
}

func (c *Checker) checkFunctionDefs() *vmerr.PartialError {
	defs, _ := c.view.FunctionDefs()
	structDefs, _ := c.view.StructDefs()
	for i := range defs {
		def := &defs[i]
		if err := checkIndex(binary.KindFunctionHandle, def.Function, len(c.view.FunctionHandles())); err != nil {
			return err.AtIndex(binary.KindFunctionDefinition, uint16(i))
		}
		for _, acq := range def.Acquires {
			if err := checkIndex(binary.KindStructDefinition, acq, len(structDefs)); err != nil {
				return err.AtIndex(binary.KindFunctionDefinition, uint16(i))
			}
		}
		if def.Code == nil {
			continue
		}
		h := &c.view.FunctionHandles()[def.Function]
		fn := binary.FunctionDefinitionIndex(i)
		c.currentFunction = &fn
		err := c.checkCodeUnit(def.Code, len(h.TypeParameters), h.Parameters)
		c.currentFunction = nil
		if err != nil {
			return err
		}
	}
	return nil
}

// signature helpers ------------------------------------------------------------

// checkSignatureToken checks struct references in tok and their type-argument arity.
func (c *Checker) checkSignatureToken(tok *binary.SignatureToken) *vmerr.PartialError {
	handles := c.view.StructHandles()
	var err *vmerr.PartialError
	tok.Preorder(func(t *binary.SignatureToken) bool {
		switch t.Kind {
		case binary.TokenStruct, binary.TokenStructInstantiation:
			if err = checkIndex(binary.KindStructHandle, t.Struct, len(handles)); err != nil {
				return false
			}
			want := len(handles[t.Struct].TypeParameters)
			if got := len(t.TypeArgs); got != want {
				err = vmerr.Newf(vmerr.NumberOfTypeArgumentsMismatch,
					"struct handle %d expects %d type arguments, got %d", t.Struct, want, got).
					AtIndex(binary.KindStructHandle, uint16(t.Struct))
				return false
			}
		}
		return true
	})
	return err
}

func (c *Checker) checkTypeParametersInSignature(idx binary.SignatureIndex, typeParamCount int) *vmerr.PartialError {
	sig := binary.SignatureAt(c.view, idx)
	for i := range sig.Tokens {
		if err := checkTypeParametersInToken(&sig.Tokens[i], typeParamCount); err != nil {
			return err.AtIndex(binary.KindSignature, uint16(idx))
		}
	}
	return nil
}

func checkTypeParametersInToken(tok *binary.SignatureToken, typeParamCount int) *vmerr.PartialError {
	var err *vmerr.PartialError
	tok.Preorder(func(t *binary.SignatureToken) bool {
		if t.Kind == binary.TokenTypeParameter {
			err = checkIndex(binary.KindTypeParameter, t.TypeParam, typeParamCount)
		}
		return err == nil
	})
	return err
}

// code units -------------------------------------------------------------------

func (c *Checker) checkCodeUnit(code *binary.CodeUnit, typeParamCount int, params binary.SignatureIndex) *vmerr.PartialError {
	sigs := c.view.Signatures()
	if err := checkIndex(binary.KindSignature, code.Locals, len(sigs)); err != nil {
		return err
	}
	localsCount := sigs[code.Locals].Len() + sigs[params].Len()
	if _, convErr := safecast.Conv[binary.LocalIndex](localsCount); convErr != nil {
		return vmerr.Newf(vmerr.TooManyLocals, "%d locals and parameters exceed the maximum of %d",
			localsCount, binary.LocalIndexMax)
	}
	if err := c.checkTypeParametersInSignature(code.Locals, typeParamCount); err != nil {
		return err
	}
	if len(code.Code) > math.MaxUint16+1 {
		return vmerr.Newf(vmerr.IndexOutOfBounds, "code unit has %d instructions", len(code.Code)).
			AtIndex(binary.KindCodeDefinition, math.MaxUint16)
	}
	for offset := range code.Code {
		if err := c.checkInstruction(&code.Code[offset], len(code.Code), localsCount, typeParamCount); err != nil {
			return c.atOffset(err, offset)
		}
	}
	return nil
}

// atOffset attaches the bytecode position; a missing function context is a checker bug.
func (c *Checker) atOffset(err *vmerr.PartialError, offset int) *vmerr.PartialError {
	if c.currentFunction == nil {
		return vmerr.Newf(vmerr.UnknownInvariantViolationError,
			"bytecode offset %d checked without a current function (%s)", offset, err.Error())
	}
	return err.AtCodeOffset(*c.currentFunction, binary.CodeOffset(offset))
}
