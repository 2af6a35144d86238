package binary

import "fmt"

// Opcode enumerates every instruction form.
type Opcode uint8

const (
	OpPop Opcode = iota
	OpRet
	OpBrTrue
	OpBrFalse
	OpBranch
	OpLdU8
	OpLdU16
	OpLdU32
	OpLdU64
	OpLdU128
	OpLdU256
	OpCastU8
	OpCastU16
	OpCastU32
	OpCastU64
	OpCastU128
	OpCastU256
	OpLdConst
	OpLdTrue
	OpLdFalse
	OpCopyLoc
	OpMoveLoc
	OpStLoc
	OpMutBorrowLoc
	OpImmBorrowLoc
	OpMutBorrowField
	OpMutBorrowFieldGeneric
	OpImmBorrowField
	OpImmBorrowFieldGeneric
	OpCall
	OpCallGeneric
	OpPack
	OpPackGeneric
	OpUnpack
	OpUnpackGeneric
	OpReadRef
	OpWriteRef
	OpFreezeRef
	OpAdd
	OpSub
	OpMul
	OpMod
	OpDiv
	OpBitOr
	OpBitAnd
	OpXor
	OpOr
	OpAnd
	OpNot
	OpEq
	OpNeq
	OpLt
	OpGt
	OpLe
	OpGe
	OpShl
	OpShr
	OpAbort
	OpNop
	OpExists
	OpExistsGeneric
	OpMutBorrowGlobal
	OpMutBorrowGlobalGeneric
	OpImmBorrowGlobal
	OpImmBorrowGlobalGeneric
	OpMoveFrom
	OpMoveFromGeneric
	OpMoveTo
	OpMoveToGeneric
	OpVecPack
	OpVecLen
	OpVecImmBorrow
	OpVecMutBorrow
	OpVecPushBack
	OpVecPopBack
	OpVecUnpack
	OpVecSwap
	OpPackVariant
	OpPackVariantGeneric
	OpUnpackVariant
	OpUnpackVariantGeneric
	OpTestVariant
	OpTestVariantGeneric
	OpMutBorrowVariantField
	OpMutBorrowVariantFieldGeneric
	OpImmBorrowVariantField
	OpImmBorrowVariantFieldGeneric
	OpPackClosure
	OpPackClosureGeneric
	OpCallClosure

	// OpcodeCount is the number of defined opcodes; it is not an instruction.
	OpcodeCount
)

var opcodeNames = [OpcodeCount]string{
	OpPop: "Pop", OpRet: "Ret", OpBrTrue: "BrTrue", OpBrFalse: "BrFalse", OpBranch: "Branch",
	OpLdU8: "LdU8", OpLdU16: "LdU16", OpLdU32: "LdU32", OpLdU64: "LdU64", OpLdU128: "LdU128", OpLdU256: "LdU256",
	OpCastU8: "CastU8", OpCastU16: "CastU16", OpCastU32: "CastU32", OpCastU64: "CastU64", OpCastU128: "CastU128", OpCastU256: "CastU256",
	OpLdConst: "LdConst", OpLdTrue: "LdTrue", OpLdFalse: "LdFalse",
	OpCopyLoc: "CopyLoc", OpMoveLoc: "MoveLoc", OpStLoc: "StLoc", OpMutBorrowLoc: "MutBorrowLoc", OpImmBorrowLoc: "ImmBorrowLoc",
	OpMutBorrowField: "MutBorrowField", OpMutBorrowFieldGeneric: "MutBorrowFieldGeneric",
	OpImmBorrowField: "ImmBorrowField", OpImmBorrowFieldGeneric: "ImmBorrowFieldGeneric",
	OpCall: "Call", OpCallGeneric: "CallGeneric",
	OpPack: "Pack", OpPackGeneric: "PackGeneric", OpUnpack: "Unpack", OpUnpackGeneric: "UnpackGeneric",
	OpReadRef: "ReadRef", OpWriteRef: "WriteRef", OpFreezeRef: "FreezeRef",
	OpAdd: "Add", OpSub: "Sub", OpMul: "Mul", OpMod: "Mod", OpDiv: "Div",
	OpBitOr: "BitOr", OpBitAnd: "BitAnd", OpXor: "Xor", OpOr: "Or", OpAnd: "And", OpNot: "Not",
	OpEq: "Eq", OpNeq: "Neq", OpLt: "Lt", OpGt: "Gt", OpLe: "Le", OpGe: "Ge", OpShl: "Shl", OpShr: "Shr",
	OpAbort: "Abort", OpNop: "Nop",
	OpExists: "Exists", OpExistsGeneric: "ExistsGeneric",
	OpMutBorrowGlobal: "MutBorrowGlobal", OpMutBorrowGlobalGeneric: "MutBorrowGlobalGeneric",
	OpImmBorrowGlobal: "ImmBorrowGlobal", OpImmBorrowGlobalGeneric: "ImmBorrowGlobalGeneric",
	OpMoveFrom: "MoveFrom", OpMoveFromGeneric: "MoveFromGeneric", OpMoveTo: "MoveTo", OpMoveToGeneric: "MoveToGeneric",
	OpVecPack: "VecPack", OpVecLen: "VecLen", OpVecImmBorrow: "VecImmBorrow", OpVecMutBorrow: "VecMutBorrow",
	OpVecPushBack: "VecPushBack", OpVecPopBack: "VecPopBack", OpVecUnpack: "VecUnpack", OpVecSwap: "VecSwap",
	OpPackVariant: "PackVariant", OpPackVariantGeneric: "PackVariantGeneric",
	OpUnpackVariant: "UnpackVariant", OpUnpackVariantGeneric: "UnpackVariantGeneric",
	OpTestVariant: "TestVariant", OpTestVariantGeneric: "TestVariantGeneric",
	OpMutBorrowVariantField: "MutBorrowVariantField", OpMutBorrowVariantFieldGeneric: "MutBorrowVariantFieldGeneric",
	OpImmBorrowVariantField: "ImmBorrowVariantField", OpImmBorrowVariantFieldGeneric: "ImmBorrowVariantFieldGeneric",
	OpPackClosure: "PackClosure", OpPackClosureGeneric: "PackClosureGeneric", OpCallClosure: "CallClosure",
}

func (op Opcode) String() string {
	if op < OpcodeCount {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", op)
}

// ClosureMask selects which parameters of a function a closure captures; bit i set
// means parameter i is captured.
type ClosureMask uint64

// ClosureMaskMaxArgs is the largest parameter count a mask can describe.
const ClosureMaskMaxArgs = 64

// HighestCaptured returns the highest captured parameter position, or -1 if none.
func (m ClosureMask) HighestCaptured() int {
	for i := ClosureMaskMaxArgs - 1; i >= 0; i-- {
		if uint64(m)&(1<<uint(i)) != 0 {
			return i
		}
	}
	return -1
}

// Bytecode is a single decoded instruction.
//
// Index carries the instruction's single pool/local/offset operand, whichever the
// opcode takes. Count carries the element count of VecPack/VecUnpack. Mask is the
// capture mask of PackClosure/PackClosureGeneric. Value holds load immediates.
type Bytecode struct {
	Op    Opcode
	Index uint16      `msgpack:",omitempty"`
	Count uint64      `msgpack:",omitempty"`
	Mask  ClosureMask `msgpack:",omitempty"`
	Value []byte      `msgpack:",omitempty"`
}

func (b Bytecode) String() string {
	switch b.Op {
	case OpVecPack, OpVecUnpack:
		return fmt.Sprintf("%s(%d, %d)", b.Op, b.Index, b.Count)
	case OpPackClosure, OpPackClosureGeneric:
		return fmt.Sprintf("%s(%d, %#x)", b.Op, b.Index, uint64(b.Mask))
	}
	if b.Op.HasOperand() {
		return fmt.Sprintf("%s(%d)", b.Op, b.Index)
	}
	return b.Op.String()
}

// HasOperand reports whether the opcode reads Index.
func (op Opcode) HasOperand() bool {
	switch op {
	case OpBrTrue, OpBrFalse, OpBranch, OpLdConst,
		OpCopyLoc, OpMoveLoc, OpStLoc, OpMutBorrowLoc, OpImmBorrowLoc,
		OpMutBorrowField, OpMutBorrowFieldGeneric, OpImmBorrowField, OpImmBorrowFieldGeneric,
		OpCall, OpCallGeneric, OpPack, OpPackGeneric, OpUnpack, OpUnpackGeneric,
		OpExists, OpExistsGeneric, OpMutBorrowGlobal, OpMutBorrowGlobalGeneric,
		OpImmBorrowGlobal, OpImmBorrowGlobalGeneric, OpMoveFrom, OpMoveFromGeneric,
		OpMoveTo, OpMoveToGeneric,
		OpVecPack, OpVecLen, OpVecImmBorrow, OpVecMutBorrow, OpVecPushBack, OpVecPopBack, OpVecUnpack, OpVecSwap,
		OpPackVariant, OpPackVariantGeneric, OpUnpackVariant, OpUnpackVariantGeneric,
		OpTestVariant, OpTestVariantGeneric,
		OpMutBorrowVariantField, OpMutBorrowVariantFieldGeneric, OpImmBorrowVariantField, OpImmBorrowVariantFieldGeneric,
		OpPackClosure, OpPackClosureGeneric, OpCallClosure:
		return true
	}
	return false
}

// Instruction helpers ----------------------------------------------------------

// Op builds an operand-less instruction.
func Op(op Opcode) Bytecode { return Bytecode{Op: op} }

// OpIdx builds an instruction with a single index operand.
func OpIdx(op Opcode, idx uint16) Bytecode { return Bytecode{Op: op, Index: idx} }

// OpVec builds VecPack/VecUnpack.
func OpVec(op Opcode, sig SignatureIndex, count uint64) Bytecode {
	return Bytecode{Op: op, Index: uint16(sig), Count: count}
}

// OpClosure builds PackClosure/PackClosureGeneric.
func OpClosure(op Opcode, idx uint16, mask ClosureMask) Bytecode {
	return Bytecode{Op: op, Index: idx, Mask: mask}
}

// CodeUnit is the body of a function or script.
type CodeUnit struct {
	Locals SignatureIndex
	Code   []Bytecode
}
