package loader_test

import (
	"sync"
	"testing"

	"movecheck/internal/binary"
	"movecheck/internal/depth"
	"movecheck/internal/gas"
	"movecheck/internal/loader"
	"movecheck/internal/runtype"
	"movecheck/internal/testkit"
	"movecheck/internal/vmerr"
)

var noAbilities = binary.EmptyAbilities

// shapes publishes 0x1::shapes with
//
//	struct Box<T> { v: T }
//	struct Pair { a: Box<u8>, b: vector<bool> }
//	enum Tree { Leaf {}, Node { kids: vector<Tree> } }
func shapes() *binary.CompiledModule {
	b := testkit.NewModule(1, "shapes")
	box := b.GenericStruct("Box", noAbilities, []binary.StructTypeParameter{{}},
		testkit.Field{Name: "v", Type: binary.TypeParam(0)})
	b.Struct("Pair", noAbilities,
		testkit.Field{Name: "a", Type: binary.StructInst(b.HandleOf(box), binary.Prim(binary.TokenU8))},
		testkit.Field{Name: "b", Type: binary.Vector(binary.Prim(binary.TokenBool))},
	)
	tree := b.StructHandle(b.M.SelfHandle, "Tree", noAbilities)
	b.M.StructDefs = append(b.M.StructDefs, binary.StructDefinition{
		Handle: tree,
		Layout: binary.LayoutVariants,
		Variants: []binary.VariantDefinition{
			{Name: b.Identifier("Leaf")},
			{Name: b.Identifier("Node"), Fields: []binary.FieldDefinition{
				{Name: b.Identifier("kids"), Type: binary.Vector(binary.Struct(tree))},
			}},
		},
	})
	return b.M
}

func intern(t *testing.T, s *loader.ModuleStore, module, name string) runtype.StructNameIndex {
	t.Helper()
	idx, err := s.Names().Intern(runtype.StructName{
		Module: binary.ModuleID{Address: testkit.Addr(1), Name: module},
		Name:   name,
	})
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestStructNameIndexMap_InternIsStable(t *testing.T) {
	m := loader.NewStructNameIndexMap()
	a := runtype.StructName{Module: binary.ModuleID{Address: testkit.Addr(1), Name: "m"}, Name: "A"}
	b := runtype.StructName{Module: binary.ModuleID{Address: testkit.Addr(2), Name: "m"}, Name: "A"}

	var wg sync.WaitGroup
	got := make([]runtype.StructNameIndex, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx, err := m.Intern(a)
			if err != nil {
				t.Error(err)
			}
			got[i] = idx
		}(i)
	}
	wg.Wait()
	for _, idx := range got {
		if idx != got[0] {
			t.Fatalf("concurrent interning disagreed: %v", got)
		}
	}

	ib, err := m.Intern(b)
	if err != nil {
		t.Fatal(err)
	}
	if ib == got[0] {
		t.Fatal("names at different addresses share an index")
	}
	if name, ok := m.Name(ib); !ok || name != b {
		t.Fatalf("Name(%d) = %v, %v", ib, name, ok)
	}
	if _, ok := m.Name(99); ok {
		t.Fatal("unknown index resolved")
	}
	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}
}

func TestModuleStore_LoadStructDefinition(t *testing.T) {
	s := loader.NewModuleStore(nil)
	s.Publish(shapes())

	pair := intern(t, s, "shapes", "Pair")
	def, err := s.LoadStructDefinition(gas.Unmetered{}, gas.NewTraversalContext(0), pair)
	if err != nil {
		t.Fatal(err)
	}
	if def.IsEnum() || len(def.Fields) != 2 {
		t.Fatalf("unexpected Pair definition %+v", def)
	}
	box, ok := s.Names().Lookup(runtype.StructName{
		Module: binary.ModuleID{Address: testkit.Addr(1), Name: "shapes"},
		Name:   "Box",
	})
	if !ok {
		t.Fatal("Box was not interned while converting Pair")
	}
	if got := def.Fields[0].Type; got.Kind != runtype.KindStructInstantiation || got.Struct != box {
		t.Fatalf("field a = %s", got)
	}

	tree := intern(t, s, "shapes", "Tree")
	def, err = s.LoadStructDefinition(gas.Unmetered{}, gas.NewTraversalContext(0), tree)
	if err != nil {
		t.Fatal(err)
	}
	if !def.IsEnum() || len(def.Variants) != 2 || len(def.FieldTypes()) != 1 {
		t.Fatalf("unexpected Tree definition %+v", def)
	}
}

func TestModuleStore_LoadFailures(t *testing.T) {
	s := loader.NewModuleStore(nil)
	s.Publish(shapes())

	tests := []struct {
		name string
		idx  runtype.StructNameIndex
		want vmerr.Code
	}{
		{"unknown struct", intern(t, s, "shapes", "Missing"), vmerr.LookupFailed},
		{"unpublished module", intern(t, s, "ghost", "S"), vmerr.LinkerError},
		{"never interned", 1000, vmerr.UnknownInvariantViolationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.LoadStructDefinition(gas.Unmetered{}, gas.NewTraversalContext(0), tt.idx)
			if err == nil || err.Code != tt.want {
				t.Fatalf("expected %s, got %v", tt.want, err)
			}
		})
	}
}

func TestModuleStore_LoadChargesAndVisits(t *testing.T) {
	s := loader.NewModuleStore(nil)
	s.Publish(shapes())
	pair := intern(t, s, "shapes", "Pair")

	traversal := gas.NewTraversalContext(0)
	budget := gas.NewBudget(100, 7)
	if _, err := s.LoadStructDefinition(budget, traversal, pair); err != nil {
		t.Fatal(err)
	}
	if budget.Spent() != 7 {
		t.Fatalf("spent %d, want 7", budget.Spent())
	}
	if v := traversal.Visited(); len(v) != 1 || v[0].Name != "shapes" {
		t.Fatalf("visited %v", v)
	}

	_, err := s.LoadStructDefinition(gas.NewBudget(3, 7), gas.NewTraversalContext(0), pair)
	if err == nil || err.Code != vmerr.OutOfGas {
		t.Fatalf("expected OUT_OF_GAS, got %v", err)
	}
}

// republishingMeter republishes next the first time it is charged.
type republishingMeter struct {
	store *loader.ModuleStore
	next  *binary.CompiledModule
	done  bool
}

func (m *republishingMeter) ChargeStructLoad(runtype.StructName) *vmerr.PartialError {
	if !m.done {
		m.done = true
		m.store.Publish(m.next)
	}
	return nil
}

func TestModuleStore_LoadDuringRepublish(t *testing.T) {
	s := loader.NewModuleStore(nil)
	s.Publish(shapes())
	pair := intern(t, s, "shapes", "Pair")

	b := testkit.NewModule(1, "shapes")
	b.Struct("Pair", noAbilities, testkit.Field{Name: "a", Type: binary.Prim(binary.TokenU8)})
	meter := &republishingMeter{store: s, next: b.M}

	stale, err := s.LoadStructDefinition(meter, gas.NewTraversalContext(0), pair)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale.Fields) != 2 {
		t.Fatalf("expected the definition read before the republish, got %+v", stale)
	}
	if s.Epoch() != 1 {
		t.Fatalf("epoch = %d, want 1", s.Epoch())
	}

	fresh, err := s.LoadStructDefinition(gas.Unmetered{}, gas.NewTraversalContext(0), pair)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh.Fields) != 1 {
		t.Fatalf("old definition cached across epochs: %+v", fresh)
	}
}

func TestModuleStore_RepublishFlushesFormulas(t *testing.T) {
	cache := depth.NewFormulaCache()
	s := loader.NewModuleStore(cache)
	if s.Publish(shapes()) {
		t.Fatal("first publication reported a replacement")
	}
	chk := depth.New(s, cache, depth.Options{MaxDepth: 16})
	pair := intern(t, s, "shapes", "Pair")
	if _, err := chk.StructFormula(nil, nil, pair); err != nil {
		t.Fatal(err)
	}
	if cache.Len() == 0 {
		t.Fatal("expected cached formulas")
	}

	if !s.Publish(shapes()) {
		t.Fatal("republication not reported")
	}
	if cache.Len() != 0 || cache.Epoch() != 1 || s.Epoch() != 1 {
		t.Fatalf("after republish: len=%d cache epoch=%d store epoch=%d", cache.Len(), cache.Epoch(), s.Epoch())
	}
}

func TestModuleStore_DepthOfPublishedTypes(t *testing.T) {
	s := loader.NewModuleStore(nil)
	s.Publish(shapes())
	pair := intern(t, s, "shapes", "Pair")
	tree := intern(t, s, "shapes", "Tree")

	// Pair: struct(1) -> Box<u8>(2) -> u8(3)
	chk := depth.New(s, nil, depth.Options{MaxDepth: 3})
	ty := runtype.Struct(pair)
	if err := chk.CheckDepthOfType(nil, nil, &ty); err != nil {
		t.Fatalf("Pair at max 3: %v", err)
	}
	tight := depth.New(s, nil, depth.Options{MaxDepth: 2})
	if err := tight.CheckDepthOfType(nil, nil, &ty); err == nil || err.Code != vmerr.VMMaxValueDepthReached {
		t.Fatalf("Pair at max 2: expected VM_MAX_VALUE_DEPTH_REACHED, got %v", err)
	}

	if _, err := chk.StructFormula(nil, nil, tree); err == nil || err.Code != vmerr.RuntimeCyclicModuleDependency {
		t.Fatalf("Tree: expected cycle, got %v", err)
	}
}

func TestModuleStore_TypeOfSubstitutes(t *testing.T) {
	s := loader.NewModuleStore(nil)
	m := shapes()
	s.Publish(m)

	tok := binary.Vector(binary.TypeParam(1))
	kept, err := s.TypeOf(m, &tok, nil)
	if err != nil {
		t.Fatal(err)
	}
	if kept.String() != "vector<T1>" {
		t.Fatalf("got %s", kept)
	}
	got, err := s.TypeOf(m, &tok, []runtype.Type{runtype.Prim(runtype.KindBool), runtype.Prim(runtype.KindU64)})
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "vector<u64>" {
		t.Fatalf("got %s", got)
	}
	if _, err := s.TypeOf(m, &tok, []runtype.Type{runtype.Prim(runtype.KindBool)}); err == nil ||
		err.Code != vmerr.NumberOfTypeArgumentsMismatch {
		t.Fatalf("expected NUMBER_OF_TYPE_ARGUMENTS_MISMATCH, got %v", err)
	}
}

func TestModuleStore_Retract(t *testing.T) {
	cache := depth.NewFormulaCache()
	s := loader.NewModuleStore(cache)
	m := shapes()
	s.Publish(m)
	if !s.Retract(m.SelfID()) {
		t.Fatal("published module not retracted")
	}
	if _, ok := s.Module(m.SelfID()); ok {
		t.Fatal("module still published")
	}
	if s.Retract(m.SelfID()) {
		t.Fatal("retracting twice reported success")
	}
	if s.Epoch() != 1 || cache.Epoch() != 1 {
		t.Fatalf("epochs after retract: store=%d cache=%d", s.Epoch(), cache.Epoch())
	}

	pair := intern(t, s, "shapes", "Pair")
	_, err := s.LoadStructDefinition(gas.Unmetered{}, gas.NewTraversalContext(0), pair)
	if err == nil || err.Code != vmerr.LinkerError {
		t.Fatalf("expected LINKER_ERROR after retract, got %v", err)
	}
}
