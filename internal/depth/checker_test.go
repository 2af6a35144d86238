package depth_test

import (
	"testing"

	"movecheck/internal/binary"
	"movecheck/internal/depth"
	"movecheck/internal/gas"
	"movecheck/internal/runtype"
	"movecheck/internal/vmerr"
)

// fakeLoader serves struct definitions from memory, metering like a real loader.
type fakeLoader struct {
	defs  []*runtype.StructType
	loads int
}

func (l *fakeLoader) declare(name string) runtype.StructNameIndex {
	idx := runtype.StructNameIndex(len(l.defs))
	l.defs = append(l.defs, &runtype.StructType{
		Index:  idx,
		Name:   runtype.StructName{Module: binary.ModuleID{Address: binary.AddressFromUint64(1), Name: "m"}, Name: name},
		Layout: binary.LayoutDeclared,
	})
	return idx
}

func (l *fakeLoader) define(idx runtype.StructNameIndex, fields ...runtype.Type) {
	for _, ty := range fields {
		l.defs[idx].Fields = append(l.defs[idx].Fields, runtype.Field{Type: ty})
	}
}

func (l *fakeLoader) defineEnum(idx runtype.StructNameIndex, variants ...[]runtype.Type) {
	def := l.defs[idx]
	def.Layout = binary.LayoutVariants
	for _, fields := range variants {
		var v runtype.Variant
		for _, ty := range fields {
			v.Fields = append(v.Fields, runtype.Field{Type: ty})
		}
		def.Variants = append(def.Variants, v)
	}
}

func (l *fakeLoader) LoadStructDefinition(meter gas.Meter, traversal *gas.TraversalContext,
	idx runtype.StructNameIndex,
) (*runtype.StructType, *vmerr.PartialError) {
	if int(idx) >= len(l.defs) {
		return nil, vmerr.Newf(vmerr.LookupFailed, "no struct #%d", idx)
	}
	def := l.defs[idx]
	if err := meter.ChargeStructLoad(def.Name); err != nil {
		return nil, err
	}
	if err := traversal.Visit(def.Name.Module); err != nil {
		return nil, err
	}
	l.loads++
	return def, nil
}

func prim(k runtype.Kind) runtype.Type { return runtype.Prim(k) }

func newChecker(l *fakeLoader, maxDepth uint64) *depth.Checker {
	return depth.New(l, nil, depth.Options{MaxDepth: maxDepth})
}

func TestStructFormula_CycleDetection(t *testing.T) {
	l := &fakeLoader{}
	a := l.declare("A")
	b := l.declare("B")
	c := l.declare("C")
	d := l.declare("D")
	e := l.declare("E")
	l.define(b, runtype.Struct(a))
	l.define(c, runtype.Struct(d))
	l.define(d, runtype.Struct(c))
	l.define(e, runtype.Struct(e))
	chk := newChecker(l, 128)

	if _, err := chk.StructFormula(nil, nil, a); err != nil {
		t.Fatalf("A: %v", err)
	}
	if n := chk.Cache().Len(); n != 1 {
		t.Fatalf("cache size after A = %d, want 1", n)
	}
	if _, err := chk.StructFormula(nil, nil, b); err != nil {
		t.Fatalf("B: %v", err)
	}
	if n := chk.Cache().Len(); n != 2 {
		t.Fatalf("cache size after B = %d, want 2", n)
	}

	for _, tt := range []struct {
		name string
		idx  runtype.StructNameIndex
	}{{"C", c}, {"D", d}, {"E", e}} {
		_, err := chk.StructFormula(nil, nil, tt.idx)
		if err == nil || err.Code != vmerr.RuntimeCyclicModuleDependency {
			t.Fatalf("%s: expected RUNTIME_CYCLIC_MODULE_DEPENDENCY, got %v", tt.name, err)
		}
		if n := chk.Cache().Len(); n != 2 {
			t.Fatalf("%s: cache size = %d, want 2", tt.name, n)
		}
	}
}

func TestStructFormula_DeepGenericIsNotCyclic(t *testing.T) {
	l := &fakeLoader{}
	a := l.declare("A")
	b := l.declare("B")
	l.defs[a].TypeParameters = []binary.StructTypeParameter{{}}
	l.define(a, runtype.TyParam(0))
	l.define(b, runtype.StructInst(a, runtype.StructInst(a, runtype.StructInst(a, prim(runtype.KindU8)))))

	chk := newChecker(l, 5)
	f, err := chk.StructFormula(nil, nil, b)
	if err != nil {
		t.Fatalf("B: %v", err)
	}
	if f.HasTerms() || f.ConstantTerm() != 4 {
		t.Fatalf("B formula = %s, want constant 4", f)
	}
	ty := runtype.Struct(b)
	if err := chk.CheckDepthOfType(nil, nil, &ty); err != nil {
		t.Fatalf("B at depth 5: %v", err)
	}
	nested := runtype.StructInst(a, runtype.StructInst(a, runtype.StructInst(a, prim(runtype.KindU8))))
	if err := chk.CheckDepthOfType(nil, nil, &nested); err != nil {
		t.Fatalf("A<A<A<u8>>>: %v", err)
	}

	tight := depth.New(l, chk.Cache(), depth.Options{MaxDepth: 4})
	if err := tight.CheckDepthOfType(nil, nil, &ty); err == nil || err.Code != vmerr.VMMaxValueDepthReached {
		t.Fatalf("B at max depth 4: expected VM_MAX_VALUE_DEPTH_REACHED, got %v", err)
	}
}

func TestStructFormula_EnumCycle(t *testing.T) {
	l := &fakeLoader{}
	f := l.declare("F")
	g := l.declare("G")
	l.defineEnum(f, []runtype.Type{runtype.Struct(g)})
	l.defineEnum(g, []runtype.Type{runtype.Vector(runtype.Struct(f))})

	chk := newChecker(l, 128)
	for _, idx := range []runtype.StructNameIndex{f, g} {
		_, err := chk.StructFormula(nil, nil, idx)
		if err == nil || err.Code != vmerr.RuntimeCyclicModuleDependency {
			t.Fatalf("struct #%d: expected cycle, got %v", idx, err)
		}
	}
	if n := chk.Cache().Len(); n != 0 {
		t.Fatalf("cache polluted: %d entries", n)
	}
}

func TestCheckDepthOfType_Limits(t *testing.T) {
	l := &fakeLoader{}
	c := l.declare("C")
	b := l.declare("B")
	l.define(c, prim(runtype.KindBool))
	l.define(b, runtype.Struct(c))
	chk := newChecker(l, 2)

	u8 := prim(runtype.KindU8)
	tests := []struct {
		name string
		ty   runtype.Type
		ok   bool
	}{
		{"u8", u8, true},
		{"vector<u8>", runtype.Vector(u8), true},
		{"vector<vector<u8>>", runtype.Vector(runtype.Vector(u8)), false},
		{"&vector<u8>", runtype.Reference(runtype.Vector(u8), false), false},
		{"C", runtype.Struct(c), true},
		{"B", runtype.Struct(b), false},
		{"|u8|", runtype.Function([]runtype.Type{u8}, nil, binary.EmptyAbilities), true},
		{"|vector<u8>|", runtype.Function([]runtype.Type{runtype.Vector(u8)}, nil, binary.EmptyAbilities), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := chk.CheckDepthOfType(nil, nil, &tt.ty)
			if tt.ok && err != nil {
				t.Fatalf("expected ok, got %v", err)
			}
			if !tt.ok && (err == nil || err.Code != vmerr.VMMaxValueDepthReached) {
				t.Fatalf("expected VM_MAX_VALUE_DEPTH_REACHED, got %v", err)
			}
		})
	}
}

func TestCheckDepthOfType_Unlimited(t *testing.T) {
	l := &fakeLoader{}
	e := l.declare("E")
	l.define(e, runtype.Struct(e))
	chk := newChecker(l, 0)
	ty := runtype.Struct(e)
	if err := chk.CheckDepthOfType(nil, nil, &ty); err != nil {
		t.Fatalf("no maximum configured: %v", err)
	}
	if l.loads != 0 {
		t.Fatalf("expected no loads, got %d", l.loads)
	}
}

func TestCheckDepthOfType_TypeParameterIsInvariantViolation(t *testing.T) {
	chk := newChecker(&fakeLoader{}, 10)
	ty := runtype.Vector(runtype.TyParam(0))
	err := chk.CheckDepthOfType(nil, nil, &ty)
	if err == nil || !err.Code.IsInvariantViolation() {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestCheckDepthOfType_MetersLoads(t *testing.T) {
	l := &fakeLoader{}
	a := l.declare("A")
	b := l.declare("B")
	l.define(a, prim(runtype.KindU8))
	l.define(b, runtype.Struct(a))
	chk := newChecker(l, 10)
	ty := runtype.Struct(b)

	err := chk.CheckDepthOfType(gas.NewBudget(15, 10), nil, &ty)
	if err == nil || err.Code != vmerr.OutOfGas {
		t.Fatalf("expected OUT_OF_GAS, got %v", err)
	}
	if err := chk.CheckDepthOfType(gas.NewBudget(20, 10), nil, &ty); err != nil {
		t.Fatalf("with enough gas: %v", err)
	}
	loads := l.loads
	if err := chk.CheckDepthOfType(gas.NewBudget(1, 10), nil, &ty); err != nil {
		t.Fatalf("cached formulas should not be charged: %v", err)
	}
	if l.loads != loads {
		t.Fatalf("expected no new loads, got %d", l.loads-loads)
	}
}
