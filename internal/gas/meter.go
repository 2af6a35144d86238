// Package gas provides the metering capabilities consulted while loading struct
// definitions: a gas meter and a per-transaction traversal budget.
package gas

import (
	"math"

	"movecheck/internal/runtype"
	"movecheck/internal/vmerr"
)

// Meter is charged once for every struct definition the loader produces.
type Meter interface {
	ChargeStructLoad(name runtype.StructName) *vmerr.PartialError
}

// Unmetered never runs out.
type Unmetered struct{}

func (Unmetered) ChargeStructLoad(runtype.StructName) *vmerr.PartialError { return nil }

// Budget is a fixed gas allowance. It is not safe for concurrent use.
type Budget struct {
	remaining      uint64
	structLoadCost uint64
	spent          uint64
}

// NewBudget returns a meter holding limit units; each struct load costs structLoadCost.
// A zero limit means unlimited.
func NewBudget(limit, structLoadCost uint64) *Budget {
	if limit == 0 {
		limit = math.MaxUint64
	}
	return &Budget{remaining: limit, structLoadCost: structLoadCost}
}

func (b *Budget) ChargeStructLoad(name runtype.StructName) *vmerr.PartialError {
	if b.structLoadCost > b.remaining {
		b.spent += b.remaining
		b.remaining = 0
		return vmerr.Newf(vmerr.OutOfGas, "out of gas loading %s", name)
	}
	b.remaining -= b.structLoadCost
	b.spent += b.structLoadCost
	return nil
}

// Remaining returns the unspent allowance.
func (b *Budget) Remaining() uint64 { return b.remaining }

// Spent returns the total charged so far.
func (b *Budget) Spent() uint64 { return b.spent }
