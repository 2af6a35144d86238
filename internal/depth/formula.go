package depth

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"movecheck/internal/vmerr"
)

// Formula gives the depth of a type as a function of the depths of its type
// parameters: max(constant, T_i + c_i for every term). The zero Formula is the constant 0.
type Formula struct {
	terms    []term // sorted by param, at most one per param
	constant uint64
}

type term struct {
	param uint16
	coeff uint64
}

// Constant returns a formula with no type-parameter terms.
func Constant(c uint64) Formula {
	return Formula{constant: c}
}

// TypeParameter returns the formula of a bare type parameter: its own depth.
func TypeParameter(i uint16) Formula {
	return Formula{terms: []term{{param: i}}}
}

// Normalize merges formulas into the smallest formula bounding all of them,
// keeping the largest coefficient per parameter and the largest constant.
func Normalize(formulas ...Formula) Formula {
	var out Formula
	coeffs := make(map[uint16]uint64)
	for _, f := range formulas {
		out.constant = max(out.constant, f.constant)
		for _, t := range f.terms {
			if c, ok := coeffs[t.param]; !ok || t.coeff > c {
				coeffs[t.param] = t.coeff
			}
		}
	}
	out.terms = make([]term, 0, len(coeffs))
	for p, c := range coeffs {
		out.terms = append(out.terms, term{param: p, coeff: c})
	}
	slices.SortFunc(out.terms, func(a, b term) int { return int(a.param) - int(b.param) })
	return out
}

// HasTerms reports whether the formula depends on any type parameter.
func (f Formula) HasTerms() bool {
	return len(f.terms) > 0
}

// ConstantTerm returns the constant part.
func (f Formula) ConstantTerm() uint64 {
	return f.constant
}

// Scale adds c to the constant and to every coefficient.
func (f Formula) Scale(c uint64) Formula {
	out := Formula{constant: satAdd(f.constant, c), terms: make([]term, len(f.terms))}
	for i, t := range f.terms {
		out.terms[i] = term{param: t.param, coeff: satAdd(t.coeff, c)}
	}
	return out
}

// Subst replaces every term T_i + c by args[i] scaled by c.
func (f Formula) Subst(args []Formula) (Formula, *vmerr.PartialError) {
	parts := make([]Formula, 0, len(f.terms)+1)
	parts = append(parts, Constant(f.constant))
	for _, t := range f.terms {
		if int(t.param) >= len(args) {
			return Formula{}, vmerr.Newf(vmerr.UnknownInvariantViolationError,
				"depth formula %s: no substitution for T%d (%d arguments)", f, t.param, len(args))
		}
		parts = append(parts, args[t.param].Scale(t.coeff))
	}
	return Normalize(parts...), nil
}

// Solve evaluates the formula for concrete type-parameter depths.
func (f Formula) Solve(depths []uint64) (uint64, *vmerr.PartialError) {
	result := f.constant
	for _, t := range f.terms {
		if int(t.param) >= len(depths) {
			return 0, vmerr.Newf(vmerr.UnknownInvariantViolationError,
				"depth formula %s: no depth for T%d (%d arguments)", f, t.param, len(depths))
		}
		result = max(result, satAdd(depths[t.param], t.coeff))
	}
	return result, nil
}

func (f Formula) String() string {
	parts := make([]string, 0, len(f.terms)+1)
	for _, t := range f.terms {
		parts = append(parts, fmt.Sprintf("T%d+%d", t.param, t.coeff))
	}
	parts = append(parts, fmt.Sprintf("%d", f.constant))
	return "max(" + strings.Join(parts, ", ") + ")"
}

func satAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
