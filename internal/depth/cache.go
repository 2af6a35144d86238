package depth

import (
	"sync"

	"movecheck/internal/runtype"
	"movecheck/internal/vmerr"
)

// FormulaCache holds completed struct formulas for one loader. Every computation
// holds the cache lock from start to finish, so a struct is never built twice
// concurrently.
type FormulaCache struct {
	mu       sync.Mutex
	epoch    uint64
	formulas map[runtype.StructNameIndex]Formula
}

// NewFormulaCache returns an empty cache at epoch 0.
func NewFormulaCache() *FormulaCache {
	return &FormulaCache{formulas: make(map[runtype.StructNameIndex]Formula, 64)}
}

// Len returns the number of cached formulas.
func (c *FormulaCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.formulas)
}

// Epoch returns the number of flushes so far.
func (c *FormulaCache) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Lookup returns the cached formula of idx.
func (c *FormulaCache) Lookup(idx runtype.StructNameIndex) (Formula, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.formulas[idx]
	return f, ok
}

// Flush drops every formula and starts a new epoch. Loaders call it when a module
// is republished, since field types may have changed.
func (c *FormulaCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *FormulaCache) flushLocked() {
	clear(c.formulas)
	c.epoch++
}

// lock starts a computation; the returned table is valid until unlock.
func (c *FormulaCache) lock() *formulaTable {
	c.mu.Lock()
	return &formulaTable{cache: c}
}

// formulaTable is the cache as seen by a computation holding the lock.
type formulaTable struct {
	cache *FormulaCache
}

func (t *formulaTable) unlock() { t.cache.mu.Unlock() }

func (t *formulaTable) get(idx runtype.StructNameIndex) (Formula, bool) {
	f, ok := t.cache.formulas[idx]
	return f, ok
}

// insert caches a completed formula. A second insert for the same struct means the
// cycle bookkeeping is broken; the whole cache is discarded.
func (t *formulaTable) insert(idx runtype.StructNameIndex, f Formula) *vmerr.PartialError {
	if _, exists := t.cache.formulas[idx]; exists {
		t.cache.flushLocked()
		return vmerr.Newf(vmerr.UnknownInvariantViolationError,
			"depth formula for struct #%d cached twice", idx)
	}
	t.cache.formulas[idx] = f
	return nil
}
