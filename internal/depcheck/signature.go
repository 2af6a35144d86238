package depcheck

import (
	"movecheck/internal/binary"
	"movecheck/internal/vmerr"
)

// compareSignatures requires the importer's signature to be token-for-token identical
// to the definition's. Struct tokens match by module id and name since handle indices
// differ between binaries.
func (cx *context) compareSignatures(local *binary.Signature, theirs binary.View, defined *binary.Signature) *vmerr.PartialError {
	if len(local.Tokens) != len(defined.Tokens) {
		return vmerr.Newf(vmerr.TypeMismatch, "%d types imported, %d defined", len(local.Tokens), len(defined.Tokens))
	}
	for i := range local.Tokens {
		if err := cx.compareTypes(&local.Tokens[i], theirs, &defined.Tokens[i]); err != nil {
			return err
		}
	}
	return nil
}

func (cx *context) compareTypes(local *binary.SignatureToken, theirs binary.View, defined *binary.SignatureToken) *vmerr.PartialError {
	if local.Kind != defined.Kind {
		return mismatch(local, defined)
	}
	switch local.Kind {
	case binary.TokenVector, binary.TokenReference, binary.TokenMutableReference:
		return cx.compareTypes(local.Elem, theirs, defined.Elem)
	case binary.TokenFunction:
		if local.Abilities != defined.Abilities {
			return vmerr.Newf(vmerr.TypeMismatch, "function type abilities %s, defined %s", local.Abilities, defined.Abilities)
		}
		if err := cx.compareTypeLists(local.Args, theirs, defined.Args); err != nil {
			return err
		}
		return cx.compareTypeLists(local.Results, theirs, defined.Results)
	case binary.TokenStruct:
		return cx.compareStructs(local.Struct, theirs, defined.Struct)
	case binary.TokenStructInstantiation:
		if err := cx.compareStructs(local.Struct, theirs, defined.Struct); err != nil {
			return err
		}
		return cx.compareTypeLists(local.TypeArgs, theirs, defined.TypeArgs)
	case binary.TokenTypeParameter:
		if local.TypeParam != defined.TypeParam {
			return mismatch(local, defined)
		}
		return nil
	default:
		// Primitive kinds match by kind alone.
		return nil
	}
}

func (cx *context) compareTypeLists(local []binary.SignatureToken, theirs binary.View, defined []binary.SignatureToken) *vmerr.PartialError {
	if len(local) != len(defined) {
		return vmerr.Newf(vmerr.TypeMismatch, "%d types imported, %d defined", len(local), len(defined))
	}
	for i := range local {
		if err := cx.compareTypes(&local[i], theirs, &defined[i]); err != nil {
			return err
		}
	}
	return nil
}

func (cx *context) compareStructs(local binary.StructHandleIndex, theirs binary.View, defined binary.StructHandleIndex) *vmerr.PartialError {
	lh := &cx.view.StructHandles()[local]
	dh := &theirs.StructHandles()[defined]
	lid := binary.ModuleIDForHandle(cx.view, cx.view.ModuleHandles()[lh.Module])
	did := binary.ModuleIDForHandle(theirs, theirs.ModuleHandles()[dh.Module])
	lname := binary.IdentifierAt(cx.view, lh.Name)
	dname := binary.IdentifierAt(theirs, dh.Name)
	if lid != did || lname != dname {
		return vmerr.Newf(vmerr.TypeMismatch, "struct %s::%s imported where %s::%s is defined", lid, lname, did, dname)
	}
	return nil
}

func mismatch(local, defined *binary.SignatureToken) *vmerr.PartialError {
	return vmerr.Newf(vmerr.TypeMismatch, "type %s imported where %s is defined", local, defined)
}
