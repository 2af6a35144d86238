package gas

import (
	"testing"

	"movecheck/internal/binary"
	"movecheck/internal/runtype"
	"movecheck/internal/vmerr"
)

func TestBudget_RunsOut(t *testing.T) {
	name := runtype.StructName{Name: "S"}
	b := NewBudget(25, 10)
	for i := 0; i < 2; i++ {
		if err := b.ChargeStructLoad(name); err != nil {
			t.Fatalf("charge %d: %v", i, err)
		}
	}
	err := b.ChargeStructLoad(name)
	if err == nil || err.Code != vmerr.OutOfGas {
		t.Fatalf("expected OUT_OF_GAS, got %v", err)
	}
	if b.Remaining() != 0 || b.Spent() != 25 {
		t.Fatalf("remaining=%d spent=%d, want 0 and 25", b.Remaining(), b.Spent())
	}
}

func TestBudget_ZeroLimitIsUnlimited(t *testing.T) {
	b := NewBudget(0, 1000)
	for i := 0; i < 100; i++ {
		if err := b.ChargeStructLoad(runtype.StructName{}); err != nil {
			t.Fatalf("charge %d: %v", i, err)
		}
	}
}

func TestTraversalContext_Limit(t *testing.T) {
	a := binary.ModuleID{Address: binary.AddressFromUint64(1), Name: "a"}
	b := binary.ModuleID{Address: binary.AddressFromUint64(1), Name: "b"}
	tc := NewTraversalContext(1)
	if err := tc.Visit(a); err != nil {
		t.Fatalf("first visit: %v", err)
	}
	if err := tc.Visit(a); err != nil {
		t.Fatalf("revisit: %v", err)
	}
	err := tc.Visit(b)
	if err == nil || err.Code != vmerr.DependencyLimitReached {
		t.Fatalf("expected DEPENDENCY_LIMIT_REACHED, got %v", err)
	}
	if got := tc.Visited(); len(got) != 1 || got[0] != a {
		t.Fatalf("visited = %v, want [%s]", got, a)
	}
}
