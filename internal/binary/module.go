package binary

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// File format versions with semantic cut-offs.
const (
	Version5   uint32 = 5
	Version6   uint32 = 6
	Version7   uint32 = 7
	Version8   uint32 = 8
	VersionMax        = Version8
)

// AddressLength is the byte width of an account address.
const AddressLength = 32

// AccountAddress identifies an account.
type AccountAddress [AddressLength]byte

// AddressFromUint64 returns an address whose trailing bytes hold v (big-endian).
func AddressFromUint64(v uint64) AccountAddress {
	var a AccountAddress
	for i := 0; i < 8; i++ {
		a[AddressLength-1-i] = byte(v >> (8 * i))
	}
	return a
}

// ShortString renders the address without leading zero bytes, e.g. 0x1.
func (a AccountAddress) ShortString() string {
	s := strings.TrimLeft(hex.EncodeToString(a[:]), "0")
	if s == "" {
		s = "0"
	}
	return "0x" + s
}

// ModuleID is the global name of a module.
type ModuleID struct {
	Address AccountAddress
	Name    string
}

func (id ModuleID) String() string {
	return id.Address.ShortString() + "::" + id.Name
}

// ModuleHandle names a module by address and identifier.
type ModuleHandle struct {
	Address AddressIdentifierIndex
	Name    IdentifierIndex
}

// StructTypeParameter is a declared type parameter of a struct.
type StructTypeParameter struct {
	Constraints AbilitySet
	IsPhantom   bool
}

// StructHandle is the identity of a struct, local or imported.
type StructHandle struct {
	Module         ModuleHandleIndex
	Name           IdentifierIndex
	Abilities      AbilitySet
	TypeParameters []StructTypeParameter
}

// FunctionAttribute is an optional marker on a function handle.
type FunctionAttribute uint8

const (
	AttributePersistent FunctionAttribute = iota + 1
	AttributeModuleLock
)

func (a FunctionAttribute) String() string {
	switch a {
	case AttributePersistent:
		return "persistent"
	case AttributeModuleLock:
		return "module_lock"
	default:
		return "unknown"
	}
}

// ResourceSpecifierKind selects which resources an access specifier covers.
type ResourceSpecifierKind uint8

const (
	ResourceAny ResourceSpecifierKind = iota
	ResourceAtAddress
	ResourceInModule
	ResourceResource
	ResourceInstantiation
)

// AddressSpecifierKind selects the addresses an access specifier covers.
type AddressSpecifierKind uint8

const (
	AddressAny AddressSpecifierKind = iota
	AddressLiteral
	AddressParameter
)

// AccessSpecifier declares resource accesses of a function.
//
// Resource selects the resource side: AtAddress reads ResourceAddress, InModule reads
// ResourceModule, Resource and Instantiation read ResourceStruct (plus
// ResourceTypeArgs for Instantiation). Address selects the address side: Literal reads
// AddressValue, Parameter reads AddressParam and optionally AddressFunction.
type AccessSpecifier struct {
	Negated          bool
	Resource         ResourceSpecifierKind
	ResourceAddress  AddressIdentifierIndex
	ResourceModule   ModuleHandleIndex
	ResourceStruct   StructHandleIndex
	ResourceTypeArgs SignatureIndex
	Address          AddressSpecifierKind
	AddressValue     AddressIdentifierIndex
	AddressParam     LocalIndex
	AddressFunction  *FunctionInstantiationIndex
}

// FunctionHandle is the identity and signature of a function, local or imported.
type FunctionHandle struct {
	Module           ModuleHandleIndex
	Name             IdentifierIndex
	Parameters       SignatureIndex
	Return           SignatureIndex
	TypeParameters   []AbilitySet
	AccessSpecifiers []AccessSpecifier
	Attributes       []FunctionAttribute
}

// FieldHandle addresses field Field of struct definition Owner.
type FieldHandle struct {
	Owner StructDefinitionIndex
	Field MemberCount
}

// StructDefInstantiation applies type arguments to a struct definition.
type StructDefInstantiation struct {
	Def            StructDefinitionIndex
	TypeParameters SignatureIndex
}

// FunctionInstantiation applies type arguments to a function handle.
type FunctionInstantiation struct {
	Handle         FunctionHandleIndex
	TypeParameters SignatureIndex
}

// FieldInstantiation applies type arguments to a field handle.
type FieldInstantiation struct {
	Handle         FieldHandleIndex
	TypeParameters SignatureIndex
}

// StructVariantHandle addresses one variant of an enum definition.
type StructVariantHandle struct {
	Def     StructDefinitionIndex
	Variant VariantIndex
}

// StructVariantInstantiation applies type arguments to a variant handle.
type StructVariantInstantiation struct {
	Handle         StructVariantHandleIndex
	TypeParameters SignatureIndex
}

// VariantFieldHandle addresses a field shared by several variants of an enum.
type VariantFieldHandle struct {
	Def      StructDefinitionIndex
	Variants []VariantIndex
	Field    MemberCount
}

// VariantFieldInstantiation applies type arguments to a variant field handle.
type VariantFieldInstantiation struct {
	Handle         VariantFieldHandleIndex
	TypeParameters SignatureIndex
}

// Constant is a typed, serialized value.
type Constant struct {
	Type SignatureToken
	Data []byte
}

// FieldDefinition is a named, typed struct field.
type FieldDefinition struct {
	Name IdentifierIndex
	Type SignatureToken
}

// VariantDefinition is one alternative of an enum.
type VariantDefinition struct {
	Name   IdentifierIndex
	Fields []FieldDefinition
}

// StructLayoutKind distinguishes native, plain and enum struct definitions.
type StructLayoutKind uint8

const (
	LayoutNative StructLayoutKind = iota
	LayoutDeclared
	LayoutVariants
)

func (k StructLayoutKind) String() string {
	switch k {
	case LayoutNative:
		return "native"
	case LayoutDeclared:
		return "declared"
	case LayoutVariants:
		return "enum"
	default:
		return fmt.Sprintf("StructLayoutKind(%d)", k)
	}
}

// StructDefinition is the body of a struct declared in a module.
type StructDefinition struct {
	Handle   StructHandleIndex
	Layout   StructLayoutKind
	Fields   []FieldDefinition   `msgpack:",omitempty"`
	Variants []VariantDefinition `msgpack:",omitempty"`
}

// FieldCount returns the number of fields; native and enum layouts have none.
func (d *StructDefinition) FieldCount() int {
	if d.Layout != LayoutDeclared {
		return 0
	}
	return len(d.Fields)
}

// Visibility of a function definition.
type Visibility uint8

const (
	VisibilityPrivate Visibility = iota
	VisibilityPublic
	VisibilityFriend
)

func (v Visibility) String() string {
	switch v {
	case VisibilityPrivate:
		return "private"
	case VisibilityPublic:
		return "public"
	case VisibilityFriend:
		return "friend"
	default:
		return "unknown"
	}
}

// FunctionDefinition is the body of a function declared in a module.
type FunctionDefinition struct {
	Function   FunctionHandleIndex
	Visibility Visibility
	// IsEntry marks entry functions; for binaries before Version5 it also means the
	// function was declared with script visibility.
	IsEntry  bool
	Acquires []StructDefinitionIndex
	Code     *CodeUnit
}

// IsNative reports whether the function has no body.
func (d *FunctionDefinition) IsNative() bool {
	return d.Code == nil
}

// CompiledModule is a decoded module binary.
type CompiledModule struct {
	Version    uint32
	SelfHandle ModuleHandleIndex

	ModuleHandles               []ModuleHandle
	StructHandles               []StructHandle
	FunctionHandles             []FunctionHandle
	FieldHandles                []FieldHandle
	FriendDecls                 []ModuleHandle
	StructDefInstantiations     []StructDefInstantiation
	FunctionInstantiations      []FunctionInstantiation
	FieldInstantiations         []FieldInstantiation
	Signatures                  []Signature
	Identifiers                 []string
	AddressIdentifiers          []AccountAddress
	ConstantPool                []Constant
	StructDefs                  []StructDefinition
	FunctionDefs                []FunctionDefinition
	StructVariantHandles        []StructVariantHandle
	StructVariantInstantiations []StructVariantInstantiation
	VariantFieldHandles         []VariantFieldHandle
	VariantFieldInstantiations  []VariantFieldInstantiation
}

// ModuleIDForHandle resolves a handle to a module id. Indices must be in bounds.
func (m *CompiledModule) ModuleIDForHandle(h ModuleHandle) ModuleID {
	return ModuleID{Address: m.AddressIdentifiers[h.Address], Name: m.Identifiers[h.Name]}
}

// SelfID returns the id of the module itself. Indices must be in bounds.
func (m *CompiledModule) SelfID() ModuleID {
	return m.ModuleIDForHandle(m.ModuleHandles[m.SelfHandle])
}

// IsFriend reports whether id is declared as a friend of the module.
func (m *CompiledModule) IsFriend(id ModuleID) bool {
	for _, f := range m.FriendDecls {
		if m.ModuleIDForHandle(f) == id {
			return true
		}
	}
	return false
}

// CompiledScript is a decoded script binary.
type CompiledScript struct {
	Version uint32

	ModuleHandles          []ModuleHandle
	StructHandles          []StructHandle
	FunctionHandles        []FunctionHandle
	FunctionInstantiations []FunctionInstantiation
	Signatures             []Signature
	Identifiers            []string
	AddressIdentifiers     []AccountAddress
	ConstantPool           []Constant

	TypeParameters []AbilitySet
	Parameters     SignatureIndex
	Code           CodeUnit
}
