// Package loader keeps published modules and serves their struct definitions as
// runtime types.
package loader

import (
	"cmp"
	"slices"
	"sync"

	"movecheck/internal/binary"
	"movecheck/internal/depth"
	"movecheck/internal/gas"
	"movecheck/internal/runtype"
	"movecheck/internal/vmerr"
)

// ModuleStore holds verified modules. Republishing a module id starts a new epoch,
// which drops converted definitions and flushes the attached formula cache.
type ModuleStore struct {
	mu       sync.RWMutex
	names    *StructNameIndexMap
	modules  map[binary.ModuleID]*publishedModule
	loaded   map[runtype.StructNameIndex]*runtype.StructType
	formulas *depth.FormulaCache
	epoch    uint64
}

type publishedModule struct {
	module  *binary.CompiledModule
	structs map[string]binary.StructDefinitionIndex
}

var _ depth.StructDefinitionLoader = (*ModuleStore)(nil)

// NewModuleStore returns an empty store. formulas may be nil.
func NewModuleStore(formulas *depth.FormulaCache) *ModuleStore {
	return &ModuleStore{
		names:    NewStructNameIndexMap(),
		modules:  make(map[binary.ModuleID]*publishedModule, 16),
		loaded:   make(map[runtype.StructNameIndex]*runtype.StructType, 64),
		formulas: formulas,
	}
}

// Names returns the struct name table.
func (s *ModuleStore) Names() *StructNameIndexMap { return s.names }

// Epoch returns the number of republications so far.
func (s *ModuleStore) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Publish adds a bounds-checked module. It reports whether an earlier module with
// the same id was replaced.
func (s *ModuleStore) Publish(m *binary.CompiledModule) bool {
	pm := &publishedModule{module: m, structs: make(map[string]binary.StructDefinitionIndex, len(m.StructDefs))}
	for i := range m.StructDefs {
		name := m.Identifiers[m.StructHandles[m.StructDefs[i].Handle].Name]
		pm.structs[name] = binary.StructDefinitionIndex(i)
	}
	id := m.SelfID()

	s.mu.Lock()
	_, replaced := s.modules[id]
	s.modules[id] = pm
	if replaced {
		s.newEpochLocked()
	}
	s.mu.Unlock()

	// The formula cache is flushed outside s.mu: depth computations hold the cache
	// lock while loading from the store.
	if replaced {
		s.flushFormulas()
	}
	return replaced
}

// Retract removes a module, for example one that failed a check after publication.
// It reports whether the module was present.
func (s *ModuleStore) Retract(id binary.ModuleID) bool {
	s.mu.Lock()
	_, ok := s.modules[id]
	if ok {
		delete(s.modules, id)
		s.newEpochLocked()
	}
	s.mu.Unlock()

	if ok {
		s.flushFormulas()
	}
	return ok
}

func (s *ModuleStore) newEpochLocked() {
	s.epoch++
	clear(s.loaded)
}

func (s *ModuleStore) flushFormulas() {
	if s.formulas != nil {
		s.formulas.Flush()
	}
}

// Module returns a published module.
func (s *ModuleStore) Module(id binary.ModuleID) (*binary.CompiledModule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pm, ok := s.modules[id]
	if !ok {
		return nil, false
	}
	return pm.module, true
}

// Modules returns every published module ordered by id.
func (s *ModuleStore) Modules() []*binary.CompiledModule {
	s.mu.RLock()
	out := make([]*binary.CompiledModule, 0, len(s.modules))
	for _, pm := range s.modules {
		out = append(out, pm.module)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b *binary.CompiledModule) int {
		return cmp.Compare(a.SelfID().String(), b.SelfID().String())
	})
	return out
}

// LoadStructDefinition returns the runtime definition of idx, registering its module
// with traversal and charging meter.
func (s *ModuleStore) LoadStructDefinition(meter gas.Meter, traversal *gas.TraversalContext,
	idx runtype.StructNameIndex,
) (*runtype.StructType, *vmerr.PartialError) {
	name, ok := s.names.Name(idx)
	if !ok {
		return nil, vmerr.Newf(vmerr.UnknownInvariantViolationError, "struct #%d was never interned", idx)
	}

	s.mu.RLock()
	def, ok := s.loaded[idx]
	pm, published := s.modules[name.Module]
	epoch := s.epoch
	s.mu.RUnlock()

	if err := traversal.Visit(name.Module); err != nil {
		return nil, err
	}
	if err := meter.ChargeStructLoad(name); err != nil {
		return nil, err
	}
	if ok {
		return def, nil
	}
	if !published {
		return nil, vmerr.Newf(vmerr.LinkerError, "module %s is not published", name.Module)
	}
	defIdx, ok := pm.structs[name.Name]
	if !ok {
		return nil, vmerr.Newf(vmerr.LookupFailed, "struct %s not found", name)
	}
	def, err := s.convertStruct(pm.module, defIdx, idx, name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A republication since the read above makes def stale for the new epoch.
	if s.epoch != epoch {
		return def, nil
	}
	if prev, ok := s.loaded[idx]; ok {
		return prev, nil
	}
	s.loaded[idx] = def
	return def, nil
}

func (s *ModuleStore) convertStruct(m *binary.CompiledModule, defIdx binary.StructDefinitionIndex,
	idx runtype.StructNameIndex, name runtype.StructName,
) (*runtype.StructType, *vmerr.PartialError) {
	sd := &m.StructDefs[defIdx]
	handle := &m.StructHandles[sd.Handle]
	out := &runtype.StructType{
		Index:          idx,
		Name:           name,
		Abilities:      handle.Abilities,
		TypeParameters: handle.TypeParameters,
		Layout:         sd.Layout,
	}
	var err *vmerr.PartialError
	switch sd.Layout {
	case binary.LayoutNative:
	case binary.LayoutDeclared:
		if out.Fields, err = s.convertFields(m, sd.Fields); err != nil {
			return nil, err
		}
	case binary.LayoutVariants:
		for i := range sd.Variants {
			v := runtype.Variant{Name: m.Identifiers[sd.Variants[i].Name]}
			if v.Fields, err = s.convertFields(m, sd.Variants[i].Fields); err != nil {
				return nil, err
			}
			out.Variants = append(out.Variants, v)
		}
	default:
		return nil, vmerr.Newf(vmerr.UnknownInvariantViolationError, "unknown struct layout %d", uint8(sd.Layout))
	}
	return out, nil
}

func (s *ModuleStore) convertFields(m *binary.CompiledModule, fields []binary.FieldDefinition) ([]runtype.Field, *vmerr.PartialError) {
	out := make([]runtype.Field, 0, len(fields))
	for i := range fields {
		ty, err := s.TypeOf(m, &fields[i].Type, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, runtype.Field{Name: m.Identifiers[fields[i].Name], Type: ty})
	}
	return out, nil
}

// StructIndex interns the struct named by a handle of m.
func (s *ModuleStore) StructIndex(m *binary.CompiledModule, h binary.StructHandleIndex) (runtype.StructNameIndex, *vmerr.PartialError) {
	handle := &m.StructHandles[h]
	name := runtype.StructName{
		Module: m.ModuleIDForHandle(m.ModuleHandles[handle.Module]),
		Name:   m.Identifiers[handle.Name],
	}
	idx, err := s.names.Intern(name)
	if err != nil {
		return 0, vmerr.Newf(vmerr.UnknownInvariantViolationError, "%v", err)
	}
	return idx, nil
}

// TypeOf converts a signature token of m into a runtime type. With tyArgs nil, type
// parameters are kept; otherwise they are replaced by tyArgs.
func (s *ModuleStore) TypeOf(m *binary.CompiledModule, tok *binary.SignatureToken, tyArgs []runtype.Type) (runtype.Type, *vmerr.PartialError) {
	switch tok.Kind {
	case binary.TokenBool:
		return runtype.Prim(runtype.KindBool), nil
	case binary.TokenU8:
		return runtype.Prim(runtype.KindU8), nil
	case binary.TokenU16:
		return runtype.Prim(runtype.KindU16), nil
	case binary.TokenU32:
		return runtype.Prim(runtype.KindU32), nil
	case binary.TokenU64:
		return runtype.Prim(runtype.KindU64), nil
	case binary.TokenU128:
		return runtype.Prim(runtype.KindU128), nil
	case binary.TokenU256:
		return runtype.Prim(runtype.KindU256), nil
	case binary.TokenAddress:
		return runtype.Prim(runtype.KindAddress), nil
	case binary.TokenSigner:
		return runtype.Prim(runtype.KindSigner), nil
	case binary.TokenVector, binary.TokenReference, binary.TokenMutableReference:
		elem, err := s.TypeOf(m, tok.Elem, tyArgs)
		if err != nil {
			return runtype.Type{}, err
		}
		switch tok.Kind {
		case binary.TokenVector:
			return runtype.Vector(elem), nil
		case binary.TokenReference:
			return runtype.Reference(elem, false), nil
		default:
			return runtype.Reference(elem, true), nil
		}
	case binary.TokenFunction:
		args, err := s.typesOf(m, tok.Args, tyArgs)
		if err != nil {
			return runtype.Type{}, err
		}
		results, err := s.typesOf(m, tok.Results, tyArgs)
		if err != nil {
			return runtype.Type{}, err
		}
		return runtype.Function(args, results, tok.Abilities), nil
	case binary.TokenStruct:
		idx, err := s.StructIndex(m, tok.Struct)
		if err != nil {
			return runtype.Type{}, err
		}
		return runtype.Struct(idx), nil
	case binary.TokenStructInstantiation:
		idx, err := s.StructIndex(m, tok.Struct)
		if err != nil {
			return runtype.Type{}, err
		}
		args, err := s.typesOf(m, tok.TypeArgs, tyArgs)
		if err != nil {
			return runtype.Type{}, err
		}
		return runtype.StructInst(idx, args...), nil
	case binary.TokenTypeParameter:
		if tyArgs == nil {
			return runtype.TyParam(uint16(tok.TypeParam)), nil
		}
		if int(tok.TypeParam) >= len(tyArgs) {
			return runtype.Type{}, vmerr.Newf(vmerr.NumberOfTypeArgumentsMismatch,
				"type parameter T%d with %d type arguments", tok.TypeParam, len(tyArgs))
		}
		return tyArgs[tok.TypeParam], nil
	default:
		return runtype.Type{}, vmerr.Newf(vmerr.UnknownInvariantViolationError, "unknown token kind %s", tok.Kind)
	}
}

func (s *ModuleStore) typesOf(m *binary.CompiledModule, toks []binary.SignatureToken, tyArgs []runtype.Type) ([]runtype.Type, *vmerr.PartialError) {
	out := make([]runtype.Type, 0, len(toks))
	for i := range toks {
		ty, err := s.TypeOf(m, &toks[i], tyArgs)
		if err != nil {
			return nil, err
		}
		out = append(out, ty)
	}
	return out, nil
}
