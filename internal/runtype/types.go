package runtype

import (
	"fmt"
	"strings"

	"movecheck/internal/binary"
)

// Kind enumerates runtime type shapes.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindU256
	KindAddress
	KindSigner
	KindVector
	KindReference
	KindMutableReference
	KindFunction
	KindStruct
	KindStructInstantiation
	KindTyParam
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindBool:
		return "bool"
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindU128:
		return "u128"
	case KindU256:
		return "u256"
	case KindAddress:
		return "address"
	case KindSigner:
		return "signer"
	case KindVector:
		return "vector"
	case KindReference:
		return "reference"
	case KindMutableReference:
		return "mutable reference"
	case KindFunction:
		return "function"
	case KindStruct:
		return "struct"
	case KindStructInstantiation:
		return "struct instantiation"
	case KindTyParam:
		return "type parameter"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// IsPrimitive reports whether the kind has no nested types.
func (k Kind) IsPrimitive() bool {
	return k >= KindBool && k <= KindSigner
}

// StructNameIndex is the loader-wide interned identity of a struct or enum.
type StructNameIndex uint32

// StructName is the global name of a struct or enum.
type StructName struct {
	Module binary.ModuleID
	Name   string
}

func (n StructName) String() string {
	return n.Module.String() + "::" + n.Name
}

// Type is a loaded type. Structs are referenced by StructNameIndex; type arguments
// of an instantiation live in TypeArgs.
type Type struct {
	Kind      Kind
	Elem      *Type
	Struct    StructNameIndex
	TypeArgs  []Type
	Args      []Type
	Results   []Type
	Abilities binary.AbilitySet
	TyParam   uint16
}

// Prim returns a primitive type.
func Prim(k Kind) Type { return Type{Kind: k} }

// Vector returns vector<elem>.
func Vector(elem Type) Type { return Type{Kind: KindVector, Elem: &elem} }

// Reference returns &elem or &mut elem.
func Reference(elem Type, mutable bool) Type {
	if mutable {
		return Type{Kind: KindMutableReference, Elem: &elem}
	}
	return Type{Kind: KindReference, Elem: &elem}
}

// Struct returns a non-generic struct type.
func Struct(idx StructNameIndex) Type { return Type{Kind: KindStruct, Struct: idx} }

// StructInst returns a struct applied to type arguments.
func StructInst(idx StructNameIndex, args ...Type) Type {
	return Type{Kind: KindStructInstantiation, Struct: idx, TypeArgs: args}
}

// Function returns a function type.
func Function(args, results []Type, abilities binary.AbilitySet) Type {
	return Type{Kind: KindFunction, Args: args, Results: results, Abilities: abilities}
}

// TyParam returns a reference to type parameter i.
func TyParam(i uint16) Type { return Type{Kind: KindTyParam, TyParam: i} }

// IsConcrete reports whether t mentions no type parameters.
func (t *Type) IsConcrete() bool {
	switch t.Kind {
	case KindTyParam:
		return false
	case KindVector, KindReference, KindMutableReference:
		return t.Elem.IsConcrete()
	case KindStructInstantiation:
		return allConcrete(t.TypeArgs)
	case KindFunction:
		return allConcrete(t.Args) && allConcrete(t.Results)
	default:
		return true
	}
}

func allConcrete(ts []Type) bool {
	for i := range ts {
		if !ts[i].IsConcrete() {
			return false
		}
	}
	return true
}

func (t Type) String() string {
	switch t.Kind {
	case KindVector:
		return "vector<" + t.Elem.String() + ">"
	case KindReference:
		return "&" + t.Elem.String()
	case KindMutableReference:
		return "&mut " + t.Elem.String()
	case KindStruct:
		return fmt.Sprintf("s#%d", t.Struct)
	case KindStructInstantiation:
		return fmt.Sprintf("s#%d<%s>", t.Struct, join(t.TypeArgs))
	case KindFunction:
		return fmt.Sprintf("|%s|(%s)", join(t.Args), join(t.Results))
	case KindTyParam:
		return fmt.Sprintf("T%d", t.TyParam)
	default:
		return t.Kind.String()
	}
}

func join(ts []Type) string {
	parts := make([]string, len(ts))
	for i := range ts {
		parts[i] = ts[i].String()
	}
	return strings.Join(parts, ", ")
}
