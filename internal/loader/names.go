package loader

import (
	"fmt"
	"sync"

	"fortio.org/safecast"

	"movecheck/internal/runtype"
)

// StructNameIndexMap interns struct names to dense indices. It is safe for
// concurrent use.
type StructNameIndexMap struct {
	mu       sync.RWMutex
	forward  map[runtype.StructName]runtype.StructNameIndex
	backward []runtype.StructName
}

// NewStructNameIndexMap returns an empty map.
func NewStructNameIndexMap() *StructNameIndexMap {
	return &StructNameIndexMap{forward: make(map[runtype.StructName]runtype.StructNameIndex, 128)}
}

// Intern returns the index of name, assigning the next one if it is new.
func (m *StructNameIndexMap) Intern(name runtype.StructName) (runtype.StructNameIndex, error) {
	m.mu.RLock()
	idx, ok := m.forward[name]
	m.mu.RUnlock()
	if ok {
		return idx, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if idx, ok := m.forward[name]; ok {
		return idx, nil
	}
	next, err := safecast.Conv[uint32](len(m.backward))
	if err != nil {
		return 0, fmt.Errorf("struct name table overflow: %w", err)
	}
	idx = runtype.StructNameIndex(next)
	m.forward[name] = idx
	m.backward = append(m.backward, name)
	return idx, nil
}

// Lookup returns the index of an interned name.
func (m *StructNameIndexMap) Lookup(name runtype.StructName) (runtype.StructNameIndex, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.forward[name]
	return idx, ok
}

// Name returns the name interned at idx.
func (m *StructNameIndexMap) Name(idx runtype.StructNameIndex) (runtype.StructName, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(idx) >= len(m.backward) {
		return runtype.StructName{}, false
	}
	return m.backward[idx], true
}

// Len returns the number of interned names.
func (m *StructNameIndexMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.backward)
}
