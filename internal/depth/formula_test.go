package depth

import (
	"testing"

	"movecheck/internal/vmerr"
)

func TestFormula_NormalizeKeepsMaxima(t *testing.T) {
	f := Normalize(
		Constant(3),
		TypeParameter(1).Scale(2),
		TypeParameter(0),
		TypeParameter(1).Scale(5),
		Constant(1),
	)
	if got, want := f.String(), "max(T0+0, T1+5, 5)"; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestFormula_Solve(t *testing.T) {
	f := Normalize(TypeParameter(0).Scale(1), TypeParameter(1), Constant(2))
	tests := []struct {
		depths []uint64
		want   uint64
	}{
		{[]uint64{1, 1}, 2},
		{[]uint64{4, 1}, 5},
		{[]uint64{1, 9}, 9},
	}
	for _, tt := range tests {
		got, err := f.Solve(tt.depths)
		if err != nil {
			t.Fatalf("solve(%v): %v", tt.depths, err)
		}
		if got != tt.want {
			t.Fatalf("solve(%v) = %d, want %d", tt.depths, got, tt.want)
		}
	}
	if _, err := f.Solve([]uint64{1}); err == nil || err.Code != vmerr.UnknownInvariantViolationError {
		t.Fatalf("expected invariant violation for missing depth, got %v", err)
	}
}

func TestFormula_Subst(t *testing.T) {
	// struct Pair<A, B> { a: A, b: vector<B> }
	pair := Normalize(TypeParameter(0), TypeParameter(1).Scale(1))
	// Pair<u8, T0>
	got, err := pair.Subst([]Formula{Constant(1), TypeParameter(0)})
	if err != nil {
		t.Fatal(err)
	}
	if want := "max(T0+1, 1)"; got.String() != want {
		t.Fatalf("got %s, want %s", got, want)
	}
	if _, err := pair.Subst([]Formula{Constant(1)}); err == nil {
		t.Fatal("expected error for missing substitution")
	}
}

func TestFormula_ScaleSaturates(t *testing.T) {
	f := Constant(^uint64(0) - 1).Scale(5)
	if f.ConstantTerm() != ^uint64(0) {
		t.Fatalf("expected saturation, got %d", f.ConstantTerm())
	}
}

func TestFormulaCache_DoubleInsertFlushes(t *testing.T) {
	c := NewFormulaCache()
	tbl := c.lock()
	if err := tbl.insert(1, Constant(1)); err != nil {
		t.Fatal(err)
	}
	if err := tbl.insert(2, Constant(2)); err != nil {
		t.Fatal(err)
	}
	err := tbl.insert(1, Constant(1))
	tbl.unlock()
	if err == nil || !err.Code.IsInvariantViolation() {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if c.Len() != 0 || c.Epoch() != 1 {
		t.Fatalf("expected flushed cache at epoch 1, got len=%d epoch=%d", c.Len(), c.Epoch())
	}
}
