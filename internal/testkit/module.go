// Package testkit builds small, well-formed binaries for tests.
package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"movecheck/internal/binary"
)

// Addr returns the address 0x<v>.
func Addr(v uint64) binary.AccountAddress {
	return binary.AddressFromUint64(v)
}

// EmptyModule returns a module at 0x1 holding only its self handle.
func EmptyModule(name string) *binary.CompiledModule {
	return EmptyModuleAt(1, name)
}

// EmptyModuleAt returns a module at 0x<addr> holding only its self handle.
func EmptyModuleAt(addr uint64, name string) *binary.CompiledModule {
	return &binary.CompiledModule{
		Version:            binary.VersionMax,
		SelfHandle:         0,
		ModuleHandles:      []binary.ModuleHandle{{Address: 0, Name: 0}},
		Identifiers:        []string{name},
		AddressIdentifiers: []binary.AccountAddress{Addr(addr)},
	}
}

// BasicModule returns a module with one struct and one function, both using every
// common pool at least once.
func BasicModule() *binary.CompiledModule {
	b := NewModule(1, "basic")
	s := b.Struct("S", binary.NewAbilitySet(binary.AbilityDrop), Field{"x", binary.Prim(binary.TokenU64)})
	b.Function("f", binary.VisibilityPublic, nil, nil, nil,
		binary.OpIdx(binary.OpLdConst, uint16(b.Constant(binary.Prim(binary.TokenU64), []byte{0, 0, 0, 0, 0, 0, 0, 0}))),
		binary.OpIdx(binary.OpUnpack, uint16(s)),
		binary.Op(binary.OpPop),
		binary.Op(binary.OpRet),
	)
	return b.M
}

// EmptyScript returns a script whose body only returns.
func EmptyScript() *binary.CompiledScript {
	return &binary.CompiledScript{
		Version:    binary.VersionMax,
		Signatures: []binary.Signature{{}},
		Parameters: 0,
		Code:       binary.CodeUnit{Locals: 0, Code: []binary.Bytecode{binary.Op(binary.OpRet)}},
	}
}

// Field is a named field for ModuleBuilder.Struct.
type Field struct {
	Name string
	Type binary.SignatureToken
}

// Variant is a named enum alternative for ModuleBuilder.Enum.
type Variant struct {
	Name   string
	Fields []Field
}

// ModuleBuilder appends to the pools of a module under construction.
type ModuleBuilder struct {
	M *binary.CompiledModule
}

// NewModule starts a module at 0x<addr>.
func NewModule(addr uint64, name string) *ModuleBuilder {
	return &ModuleBuilder{M: EmptyModuleAt(addr, name)}
}

func index[T ~uint16](n int) T {
	v, err := safecast.Conv[uint16](n)
	if err != nil {
		panic(fmt.Sprintf("testkit: pool overflow: %v", err))
	}
	return T(v)
}

// Identifier interns name.
func (b *ModuleBuilder) Identifier(name string) binary.IdentifierIndex {
	for i, s := range b.M.Identifiers {
		if s == name {
			return index[binary.IdentifierIndex](i)
		}
	}
	b.M.Identifiers = append(b.M.Identifiers, name)
	return index[binary.IdentifierIndex](len(b.M.Identifiers) - 1)
}

// Address interns a.
func (b *ModuleBuilder) Address(a binary.AccountAddress) binary.AddressIdentifierIndex {
	for i, x := range b.M.AddressIdentifiers {
		if x == a {
			return index[binary.AddressIdentifierIndex](i)
		}
	}
	b.M.AddressIdentifiers = append(b.M.AddressIdentifiers, a)
	return index[binary.AddressIdentifierIndex](len(b.M.AddressIdentifiers) - 1)
}

// ModuleHandle interns a handle for 0x<addr>::name.
func (b *ModuleBuilder) ModuleHandle(addr uint64, name string) binary.ModuleHandleIndex {
	h := binary.ModuleHandle{Address: b.Address(Addr(addr)), Name: b.Identifier(name)}
	for i, x := range b.M.ModuleHandles {
		if x == h {
			return index[binary.ModuleHandleIndex](i)
		}
	}
	b.M.ModuleHandles = append(b.M.ModuleHandles, h)
	return index[binary.ModuleHandleIndex](len(b.M.ModuleHandles) - 1)
}

// Signature appends a signature.
func (b *ModuleBuilder) Signature(tokens ...binary.SignatureToken) binary.SignatureIndex {
	b.M.Signatures = append(b.M.Signatures, binary.Signature{Tokens: tokens})
	return index[binary.SignatureIndex](len(b.M.Signatures) - 1)
}

// Constant appends a constant.
func (b *ModuleBuilder) Constant(ty binary.SignatureToken, data []byte) binary.ConstantPoolIndex {
	b.M.ConstantPool = append(b.M.ConstantPool, binary.Constant{Type: ty, Data: data})
	return index[binary.ConstantPoolIndex](len(b.M.ConstantPool) - 1)
}

// StructHandle appends a struct handle owned by module.
func (b *ModuleBuilder) StructHandle(module binary.ModuleHandleIndex, name string, abilities binary.AbilitySet,
	typeParams ...binary.StructTypeParameter,
) binary.StructHandleIndex {
	b.M.StructHandles = append(b.M.StructHandles, binary.StructHandle{
		Module:         module,
		Name:           b.Identifier(name),
		Abilities:      abilities,
		TypeParameters: typeParams,
	})
	return index[binary.StructHandleIndex](len(b.M.StructHandles) - 1)
}

// Struct declares a non-generic struct in the module.
func (b *ModuleBuilder) Struct(name string, abilities binary.AbilitySet, fields ...Field) binary.StructDefinitionIndex {
	return b.GenericStruct(name, abilities, nil, fields...)
}

// GenericStruct declares a struct with type parameters in the module.
func (b *ModuleBuilder) GenericStruct(name string, abilities binary.AbilitySet, typeParams []binary.StructTypeParameter,
	fields ...Field,
) binary.StructDefinitionIndex {
	h := b.StructHandle(b.M.SelfHandle, name, abilities, typeParams...)
	b.M.StructDefs = append(b.M.StructDefs, binary.StructDefinition{
		Handle: h,
		Layout: binary.LayoutDeclared,
		Fields: b.fields(fields),
	})
	return index[binary.StructDefinitionIndex](len(b.M.StructDefs) - 1)
}

// Enum declares an enum in the module.
func (b *ModuleBuilder) Enum(name string, abilities binary.AbilitySet, typeParams []binary.StructTypeParameter,
	variants ...Variant,
) binary.StructDefinitionIndex {
	h := b.StructHandle(b.M.SelfHandle, name, abilities, typeParams...)
	def := binary.StructDefinition{Handle: h, Layout: binary.LayoutVariants}
	for _, v := range variants {
		def.Variants = append(def.Variants, binary.VariantDefinition{
			Name:   b.Identifier(v.Name),
			Fields: b.fields(v.Fields),
		})
	}
	b.M.StructDefs = append(b.M.StructDefs, def)
	return index[binary.StructDefinitionIndex](len(b.M.StructDefs) - 1)
}

// NativeStruct declares a struct without a body.
func (b *ModuleBuilder) NativeStruct(name string, abilities binary.AbilitySet) binary.StructDefinitionIndex {
	h := b.StructHandle(b.M.SelfHandle, name, abilities)
	b.M.StructDefs = append(b.M.StructDefs, binary.StructDefinition{Handle: h, Layout: binary.LayoutNative})
	return index[binary.StructDefinitionIndex](len(b.M.StructDefs) - 1)
}

func (b *ModuleBuilder) fields(fields []Field) []binary.FieldDefinition {
	out := make([]binary.FieldDefinition, 0, len(fields))
	for _, f := range fields {
		out = append(out, binary.FieldDefinition{Name: b.Identifier(f.Name), Type: f.Type})
	}
	return out
}

// HandleOf returns the struct handle of a struct definition.
func (b *ModuleBuilder) HandleOf(def binary.StructDefinitionIndex) binary.StructHandleIndex {
	return b.M.StructDefs[def].Handle
}

// FunctionHandle appends a function handle owned by module.
func (b *ModuleBuilder) FunctionHandle(module binary.ModuleHandleIndex, name string,
	params, results []binary.SignatureToken, typeParams []binary.AbilitySet,
) binary.FunctionHandleIndex {
	b.M.FunctionHandles = append(b.M.FunctionHandles, binary.FunctionHandle{
		Module:         module,
		Name:           b.Identifier(name),
		Parameters:     b.Signature(params...),
		Return:         b.Signature(results...),
		TypeParameters: typeParams,
	})
	return index[binary.FunctionHandleIndex](len(b.M.FunctionHandles) - 1)
}

// Function declares a function in the module; a nil code list declares a native.
func (b *ModuleBuilder) Function(name string, vis binary.Visibility, params, results []binary.SignatureToken,
	typeParams []binary.AbilitySet, code ...binary.Bytecode,
) binary.FunctionDefinitionIndex {
	h := b.FunctionHandle(b.M.SelfHandle, name, params, results, typeParams)
	def := binary.FunctionDefinition{Function: h, Visibility: vis}
	if code != nil {
		def.Code = &binary.CodeUnit{Locals: b.Signature(), Code: code}
	}
	b.M.FunctionDefs = append(b.M.FunctionDefs, def)
	return index[binary.FunctionDefinitionIndex](len(b.M.FunctionDefs) - 1)
}

// FunctionInstantiation appends an instantiation of handle.
func (b *ModuleBuilder) FunctionInstantiation(handle binary.FunctionHandleIndex,
	typeArgs ...binary.SignatureToken,
) binary.FunctionInstantiationIndex {
	b.M.FunctionInstantiations = append(b.M.FunctionInstantiations, binary.FunctionInstantiation{
		Handle:         handle,
		TypeParameters: b.Signature(typeArgs...),
	})
	return index[binary.FunctionInstantiationIndex](len(b.M.FunctionInstantiations) - 1)
}

// StructInstantiation appends an instantiation of a struct definition.
func (b *ModuleBuilder) StructInstantiation(def binary.StructDefinitionIndex,
	typeArgs ...binary.SignatureToken,
) binary.StructDefInstantiationIndex {
	b.M.StructDefInstantiations = append(b.M.StructDefInstantiations, binary.StructDefInstantiation{
		Def:            def,
		TypeParameters: b.Signature(typeArgs...),
	})
	return index[binary.StructDefInstantiationIndex](len(b.M.StructDefInstantiations) - 1)
}

// Friend declares 0x<addr>::name as a friend.
func (b *ModuleBuilder) Friend(addr uint64, name string) {
	b.M.FriendDecls = append(b.M.FriendDecls, binary.ModuleHandle{
		Address: b.Address(Addr(addr)),
		Name:    b.Identifier(name),
	})
}

// NewScript starts a script. Only the import and pool helpers of the builder apply;
// finish it with Script.
func NewScript() *ModuleBuilder {
	return &ModuleBuilder{M: &binary.CompiledModule{Version: binary.VersionMax}}
}

// Script turns the pools gathered so far into a script whose body is code.
func (b *ModuleBuilder) Script(typeParams []binary.AbilitySet, params []binary.SignatureToken,
	code ...binary.Bytecode,
) *binary.CompiledScript {
	paramSig := b.Signature(params...)
	locals := b.Signature()
	return &binary.CompiledScript{
		Version:                b.M.Version,
		ModuleHandles:          b.M.ModuleHandles,
		StructHandles:          b.M.StructHandles,
		FunctionHandles:        b.M.FunctionHandles,
		FunctionInstantiations: b.M.FunctionInstantiations,
		Signatures:             b.M.Signatures,
		Identifiers:            b.M.Identifiers,
		AddressIdentifiers:     b.M.AddressIdentifiers,
		ConstantPool:           b.M.ConstantPool,
		TypeParameters:         typeParams,
		Parameters:             paramSig,
		Code:                   binary.CodeUnit{Locals: locals, Code: code},
	}
}
