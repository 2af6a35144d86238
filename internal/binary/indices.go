package binary

import "fmt"

// TableIndex is the raw width of every pool reference.
type TableIndex = uint16

// Pool references. Each is a dense 0-based index into one table of the binary.
type (
	ModuleHandleIndex               uint16
	StructHandleIndex               uint16
	FunctionHandleIndex             uint16
	FieldHandleIndex                uint16
	StructDefInstantiationIndex     uint16
	FunctionInstantiationIndex      uint16
	FieldInstantiationIndex         uint16
	IdentifierIndex                 uint16
	AddressIdentifierIndex          uint16
	ConstantPoolIndex               uint16
	SignatureIndex                  uint16
	StructDefinitionIndex           uint16
	FunctionDefinitionIndex         uint16
	StructVariantHandleIndex        uint16
	StructVariantInstantiationIndex uint16
	VariantFieldHandleIndex         uint16
	VariantFieldInstantiationIndex  uint16
	TypeParameterIndex              uint16
	MemberCount                     uint16
	VariantIndex                    uint16
	CodeOffset                      uint16
	LocalIndex                      uint8
)

// LocalIndexMax is the largest number of locals (parameters included) a code unit may declare.
const LocalIndexMax = int(^LocalIndex(0))

// IndexKind tags an index for error reporting only.
type IndexKind uint8

const (
	KindModuleHandle IndexKind = iota
	KindStructHandle
	KindFunctionHandle
	KindFieldHandle
	KindFriendDeclaration
	KindStructDefInstantiation
	KindFunctionInstantiation
	KindFieldInstantiation
	KindStructDefinition
	KindFunctionDefinition
	KindFieldDefinition
	KindSignature
	KindIdentifier
	KindAddressIdentifier
	KindConstantPool
	KindStructVariantHandle
	KindStructVariantInstantiation
	KindVariantFieldHandle
	KindVariantFieldInstantiation
	KindLocalPool
	KindCodeDefinition
	KindTypeParameter
	KindMemberCount
	KindVariantCount
)

func (k IndexKind) String() string {
	switch k {
	case KindModuleHandle:
		return "module handle"
	case KindStructHandle:
		return "struct handle"
	case KindFunctionHandle:
		return "function handle"
	case KindFieldHandle:
		return "field handle"
	case KindFriendDeclaration:
		return "friend declaration"
	case KindStructDefInstantiation:
		return "struct instantiation"
	case KindFunctionInstantiation:
		return "function instantiation"
	case KindFieldInstantiation:
		return "field instantiation"
	case KindStructDefinition:
		return "struct definition"
	case KindFunctionDefinition:
		return "function definition"
	case KindFieldDefinition:
		return "field definition"
	case KindSignature:
		return "signature"
	case KindIdentifier:
		return "identifier"
	case KindAddressIdentifier:
		return "address identifier"
	case KindConstantPool:
		return "constant pool"
	case KindStructVariantHandle:
		return "struct variant handle"
	case KindStructVariantInstantiation:
		return "struct variant instantiation"
	case KindVariantFieldHandle:
		return "variant field handle"
	case KindVariantFieldInstantiation:
		return "variant field instantiation"
	case KindLocalPool:
		return "local pool"
	case KindCodeDefinition:
		return "code definition"
	case KindTypeParameter:
		return "type parameter"
	case KindMemberCount:
		return "field offset"
	case KindVariantCount:
		return "variant"
	default:
		return fmt.Sprintf("IndexKind(%d)", k)
	}
}
