package runtype

import "movecheck/internal/binary"

// Field is a named field of a loaded struct or variant.
type Field struct {
	Name string
	Type Type
}

// Variant is one alternative of a loaded enum.
type Variant struct {
	Name   string
	Fields []Field
}

// StructType is the loaded definition of a struct or enum.
type StructType struct {
	Index          StructNameIndex
	Name           StructName
	Abilities      binary.AbilitySet
	TypeParameters []binary.StructTypeParameter
	Layout         binary.StructLayoutKind
	Fields         []Field
	Variants       []Variant
}

// IsEnum reports whether the definition has variants.
func (s *StructType) IsEnum() bool {
	return s.Layout == binary.LayoutVariants
}

// FieldTypes returns the types of every field; for enums, of every variant.
func (s *StructType) FieldTypes() []Type {
	if !s.IsEnum() {
		out := make([]Type, len(s.Fields))
		for i := range s.Fields {
			out[i] = s.Fields[i].Type
		}
		return out
	}
	var out []Type
	for i := range s.Variants {
		for j := range s.Variants[i].Fields {
			out = append(out, s.Variants[i].Fields[j].Type)
		}
	}
	return out
}
