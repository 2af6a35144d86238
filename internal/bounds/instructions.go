package bounds

import (
	"movecheck/internal/binary"
	"movecheck/internal/vmerr"
)

// checkInstruction checks the operand of a single instruction.
func (c *Checker) checkInstruction(instr *binary.Bytecode, codeLen, localsCount, typeParamCount int) *vmerr.PartialError {
	idx := instr.Index
	switch instr.Op {
	case binary.OpBrTrue, binary.OpBrFalse, binary.OpBranch:
		if int(idx) >= codeLen {
			return vmerr.Newf(vmerr.IndexOutOfBounds, "branch target %d outside code of length %d", idx, codeLen).
				AtIndex(binary.KindCodeDefinition, idx)
		}
	case binary.OpLdConst:
		return checkIndex(binary.KindConstantPool, idx, len(c.view.ConstantPool()))
	case binary.OpCopyLoc, binary.OpMoveLoc, binary.OpStLoc, binary.OpMutBorrowLoc, binary.OpImmBorrowLoc:
		return checkIndex(binary.KindLocalPool, idx, localsCount)

	case binary.OpMutBorrowField, binary.OpImmBorrowField:
		handles, _ := c.view.FieldHandles()
		return checkIndex(binary.KindFieldHandle, idx, len(handles))
	case binary.OpMutBorrowFieldGeneric, binary.OpImmBorrowFieldGeneric:
		insts, _ := c.view.FieldInstantiations()
		if err := checkIndex(binary.KindFieldInstantiation, idx, len(insts)); err != nil {
			return err
		}
		return c.checkTypeParametersInSignature(insts[idx].TypeParameters, typeParamCount)

	case binary.OpCall:
		return checkIndex(binary.KindFunctionHandle, idx, len(c.view.FunctionHandles()))
	case binary.OpCallGeneric:
		insts := c.view.FunctionInstantiations()
		if err := checkIndex(binary.KindFunctionInstantiation, idx, len(insts)); err != nil {
			return err
		}
		return c.checkTypeParametersInSignature(insts[idx].TypeParameters, typeParamCount)

	case binary.OpPack, binary.OpUnpack, binary.OpExists, binary.OpMutBorrowGlobal,
		binary.OpImmBorrowGlobal, binary.OpMoveFrom, binary.OpMoveTo:
		defs, _ := c.view.StructDefs()
		return checkIndex(binary.KindStructDefinition, idx, len(defs))
	case binary.OpPackGeneric, binary.OpUnpackGeneric, binary.OpExistsGeneric, binary.OpMutBorrowGlobalGeneric,
		binary.OpImmBorrowGlobalGeneric, binary.OpMoveFromGeneric, binary.OpMoveToGeneric:
		insts, _ := c.view.StructDefInstantiations()
		if err := checkIndex(binary.KindStructDefInstantiation, idx, len(insts)); err != nil {
			return err
		}
		return c.checkTypeParametersInSignature(insts[idx].TypeParameters, typeParamCount)

	case binary.OpVecPack, binary.OpVecLen, binary.OpVecImmBorrow, binary.OpVecMutBorrow,
		binary.OpVecPushBack, binary.OpVecPopBack, binary.OpVecUnpack, binary.OpVecSwap,
		binary.OpCallClosure:
		if err := checkIndex(binary.KindSignature, idx, len(c.view.Signatures())); err != nil {
			return err
		}
		return c.checkTypeParametersInSignature(binary.SignatureIndex(idx), typeParamCount)

	case binary.OpPackVariant, binary.OpUnpackVariant, binary.OpTestVariant:
		handles, _ := c.view.StructVariantHandles()
		return checkIndex(binary.KindStructVariantHandle, idx, len(handles))
	case binary.OpPackVariantGeneric, binary.OpUnpackVariantGeneric, binary.OpTestVariantGeneric:
		insts, _ := c.view.StructVariantInstantiations()
		if err := checkIndex(binary.KindStructVariantInstantiation, idx, len(insts)); err != nil {
			return err
		}
		return c.checkTypeParametersInSignature(insts[idx].TypeParameters, typeParamCount)
	case binary.OpMutBorrowVariantField, binary.OpImmBorrowVariantField:
		handles, _ := c.view.VariantFieldHandles()
		return checkIndex(binary.KindVariantFieldHandle, idx, len(handles))
	case binary.OpMutBorrowVariantFieldGeneric, binary.OpImmBorrowVariantFieldGeneric:
		insts, _ := c.view.VariantFieldInstantiations()
		if err := checkIndex(binary.KindVariantFieldInstantiation, idx, len(insts)); err != nil {
			return err
		}
		return c.checkTypeParametersInSignature(insts[idx].TypeParameters, typeParamCount)

	case binary.OpPackClosure:
		handles := c.view.FunctionHandles()
		if err := checkIndex(binary.KindFunctionHandle, idx, len(handles)); err != nil {
			return err
		}
		return c.checkClosureMask(instr.Mask, &handles[idx])
	case binary.OpPackClosureGeneric:
		insts := c.view.FunctionInstantiations()
		if err := checkIndex(binary.KindFunctionInstantiation, idx, len(insts)); err != nil {
			return err
		}
		inst := insts[idx]
		if err := c.checkTypeParametersInSignature(inst.TypeParameters, typeParamCount); err != nil {
			return err
		}
		return c.checkClosureMask(instr.Mask, &c.view.FunctionHandles()[inst.Handle])

	case binary.OpPop, binary.OpRet,
		binary.OpLdU8, binary.OpLdU16, binary.OpLdU32, binary.OpLdU64, binary.OpLdU128, binary.OpLdU256,
		binary.OpCastU8, binary.OpCastU16, binary.OpCastU32, binary.OpCastU64, binary.OpCastU128, binary.OpCastU256,
		binary.OpLdTrue, binary.OpLdFalse,
		binary.OpReadRef, binary.OpWriteRef, binary.OpFreezeRef,
		binary.OpAdd, binary.OpSub, binary.OpMul, binary.OpMod, binary.OpDiv,
		binary.OpBitOr, binary.OpBitAnd, binary.OpXor, binary.OpOr, binary.OpAnd, binary.OpNot,
		binary.OpEq, binary.OpNeq, binary.OpLt, binary.OpGt, binary.OpLe, binary.OpGe,
		binary.OpShl, binary.OpShr, binary.OpAbort, binary.OpNop:
		// no operands
	default:
		return vmerr.Newf(vmerr.UnknownInvariantViolationError, "bounds checker does not handle opcode %s", instr.Op)
	}
	return nil
}

// checkClosureMask rejects masks that capture parameters the callee does not have.
func (c *Checker) checkClosureMask(mask binary.ClosureMask, callee *binary.FunctionHandle) *vmerr.PartialError {
	params := binary.SignatureAt(c.view, callee.Parameters).Len()
	if highest := mask.HighestCaptured(); highest >= params {
		return vmerr.Newf(vmerr.InvalidClosureMask,
			"closure mask %#x captures parameter %d of a function with %d parameters", uint64(mask), highest, params)
	}
	return nil
}
