package depth

import (
	"movecheck/internal/gas"
	"movecheck/internal/runtype"
	"movecheck/internal/trace"
	"movecheck/internal/vmerr"
)

// StructDefinitionLoader supplies loaded struct definitions by identity, charging the
// meter and registering the owning module in the traversal context.
type StructDefinitionLoader interface {
	LoadStructDefinition(meter gas.Meter, traversal *gas.TraversalContext,
		idx runtype.StructNameIndex) (*runtype.StructType, *vmerr.PartialError)
}

// Options configures a Checker.
type Options struct {
	// MaxDepth is the deepest value nesting allowed; 0 disables the check.
	MaxDepth uint64
	Tracer   trace.Tracer
}

// Checker rejects types whose values would nest deeper than MaxDepth.
type Checker struct {
	loader   StructDefinitionLoader
	cache    *FormulaCache
	maxDepth uint64
	tracer   trace.Tracer
}

// New returns a checker over loader. A nil cache gets a private one.
func New(loader StructDefinitionLoader, cache *FormulaCache, opts Options) *Checker {
	if cache == nil {
		cache = NewFormulaCache()
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop
	}
	return &Checker{loader: loader, cache: cache, maxDepth: opts.MaxDepth, tracer: opts.Tracer}
}

// MaxDepth returns the configured limit.
func (c *Checker) MaxDepth() uint64 { return c.maxDepth }

// Cache returns the formula cache.
func (c *Checker) Cache() *FormulaCache { return c.cache }

// CheckDepthOfType checks a fully instantiated type. It succeeds trivially when no
// maximum is configured.
func (c *Checker) CheckDepthOfType(meter gas.Meter, traversal *gas.TraversalContext, ty *runtype.Type) *vmerr.PartialError {
	if c.maxDepth == 0 {
		return nil
	}
	cx := c.begin(meter, traversal)
	defer cx.table.unlock()
	_, err := cx.depthOf(ty, 1)
	return c.report(err)
}

// CheckDepthOfTypes checks every type in tys, stopping at the first failure.
func (c *Checker) CheckDepthOfTypes(meter gas.Meter, traversal *gas.TraversalContext, tys []runtype.Type) *vmerr.PartialError {
	for i := range tys {
		if err := c.CheckDepthOfType(meter, traversal, &tys[i]); err != nil {
			return err
		}
	}
	return nil
}

// StructFormula returns the depth formula of a struct, building and caching it on
// first use.
func (c *Checker) StructFormula(meter gas.Meter, traversal *gas.TraversalContext,
	idx runtype.StructNameIndex,
) (Formula, *vmerr.PartialError) {
	cx := c.begin(meter, traversal)
	defer cx.table.unlock()
	f, err := cx.structFormula(idx, make(map[runtype.StructNameIndex]struct{}))
	return f, c.report(err)
}

func (c *Checker) begin(meter gas.Meter, traversal *gas.TraversalContext) *computation {
	if meter == nil {
		meter = gas.Unmetered{}
	}
	if traversal == nil {
		traversal = gas.NewTraversalContext(0)
	}
	return &computation{checker: c, table: c.cache.lock(), meter: meter, traversal: traversal}
}

func (c *Checker) report(err *vmerr.PartialError) *vmerr.PartialError {
	if err != nil && err.Code.IsInvariantViolation() {
		trace.Crash(c.tracer, "depth", err.Error())
	}
	return err
}

// computation is one top-level call holding the cache lock.
type computation struct {
	checker   *Checker
	table     *formulaTable
	meter     gas.Meter
	traversal *gas.TraversalContext
}

func (cx *computation) limit(depth uint64) *vmerr.PartialError {
	if depth > cx.checker.maxDepth {
		return vmerr.Newf(vmerr.VMMaxValueDepthReached,
			"value depth %d exceeds the maximum of %d", depth, cx.checker.maxDepth)
	}
	return nil
}

// depthOf returns the depth of ty when placed at depth.
func (cx *computation) depthOf(ty *runtype.Type, depth uint64) (uint64, *vmerr.PartialError) {
	if err := cx.limit(depth); err != nil {
		return 0, err
	}
	if ty.Kind.IsPrimitive() {
		return depth, nil
	}
	switch ty.Kind {
	case runtype.KindVector, runtype.KindReference, runtype.KindMutableReference:
		return cx.depthOf(ty.Elem, depth+1)
	case runtype.KindFunction:
		deepest := depth
		for _, group := range [][]runtype.Type{ty.Args, ty.Results} {
			for i := range group {
				d, err := cx.depthOf(&group[i], depth+1)
				if err != nil {
					return 0, err
				}
				deepest = max(deepest, d)
			}
		}
		return deepest, nil
	case runtype.KindStruct, runtype.KindStructInstantiation:
		var argDepths []uint64
		for i := range ty.TypeArgs {
			d, err := cx.depthOf(&ty.TypeArgs[i], 1)
			if err != nil {
				return 0, err
			}
			argDepths = append(argDepths, d)
		}
		f, err := cx.structFormula(ty.Struct, make(map[runtype.StructNameIndex]struct{}))
		if err != nil {
			return 0, err
		}
		inner, err := f.Solve(argDepths)
		if err != nil {
			return 0, err
		}
		total := satAdd(depth, inner)
		if err := cx.limit(total); err != nil {
			return 0, err
		}
		return total, nil
	case runtype.KindTyParam:
		return 0, vmerr.Newf(vmerr.UnknownInvariantViolationError,
			"type parameter T%d in a type checked for depth", ty.TyParam)
	default:
		return 0, vmerr.Newf(vmerr.UnknownInvariantViolationError, "depth of unknown type kind %s", ty.Kind)
	}
}

// structFormula builds the formula of idx. visiting holds the structs whose formulas
// are under construction in this call; meeting one of them again is a cycle.
func (cx *computation) structFormula(idx runtype.StructNameIndex,
	visiting map[runtype.StructNameIndex]struct{},
) (Formula, *vmerr.PartialError) {
	if _, ok := visiting[idx]; ok {
		return Formula{}, vmerr.Newf(vmerr.RuntimeCyclicModuleDependency,
			"struct #%d is defined in terms of itself", idx)
	}
	if f, ok := cx.table.get(idx); ok {
		return f, nil
	}

	visiting[idx] = struct{}{}
	def, err := cx.checker.loader.LoadStructDefinition(cx.meter, cx.traversal, idx)
	if err != nil {
		return Formula{}, err
	}
	fieldTypes := def.FieldTypes()
	fields := make([]Formula, 0, len(fieldTypes))
	for i := range fieldTypes {
		f, err := cx.typeFormula(&fieldTypes[i], visiting)
		if err != nil {
			return Formula{}, err
		}
		fields = append(fields, f)
	}
	formula := Normalize(fields...)
	delete(visiting, idx)

	if err := cx.table.insert(idx, formula); err != nil {
		return Formula{}, err
	}
	trace.Point(cx.checker.tracer, trace.ScopeStruct, def.Name.String(), formula.String())
	return formula, nil
}

// typeFormula builds the formula of a field type, which may mention the enclosing
// struct's type parameters.
func (cx *computation) typeFormula(ty *runtype.Type, visiting map[runtype.StructNameIndex]struct{}) (Formula, *vmerr.PartialError) {
	if ty.Kind.IsPrimitive() {
		return Constant(1), nil
	}
	switch ty.Kind {
	case runtype.KindVector, runtype.KindReference, runtype.KindMutableReference:
		inner, err := cx.typeFormula(ty.Elem, visiting)
		if err != nil {
			return Formula{}, err
		}
		return inner.Scale(1), nil
	case runtype.KindTyParam:
		return TypeParameter(ty.TyParam), nil
	case runtype.KindStruct:
		f, err := cx.structFormula(ty.Struct, visiting)
		if err != nil {
			return Formula{}, err
		}
		if f.HasTerms() {
			return Formula{}, vmerr.Newf(vmerr.UnknownInvariantViolationError,
				"non-generic struct #%d has formula %s with type parameters", ty.Struct, f)
		}
		return f.Scale(1), nil
	case runtype.KindStructInstantiation:
		f, err := cx.structFormula(ty.Struct, visiting)
		if err != nil {
			return Formula{}, err
		}
		args := make([]Formula, len(ty.TypeArgs))
		for i := range ty.TypeArgs {
			if args[i], err = cx.typeFormula(&ty.TypeArgs[i], visiting); err != nil {
				return Formula{}, err
			}
		}
		subst, err := f.Subst(args)
		if err != nil {
			return Formula{}, err
		}
		return subst.Scale(1), nil
	case runtype.KindFunction:
		parts := make([]Formula, 0, len(ty.Args)+len(ty.Results))
		for _, group := range [][]runtype.Type{ty.Args, ty.Results} {
			for i := range group {
				f, err := cx.typeFormula(&group[i], visiting)
				if err != nil {
					return Formula{}, err
				}
				parts = append(parts, f)
			}
		}
		return Normalize(parts...).Scale(1), nil
	default:
		return Formula{}, vmerr.Newf(vmerr.UnknownInvariantViolationError, "formula of unknown type kind %s", ty.Kind)
	}
}
