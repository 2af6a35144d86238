package verifier

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"movecheck/internal/binary"
	"movecheck/internal/bounds"
	"movecheck/internal/bundle"
	"movecheck/internal/dag"
	"movecheck/internal/depcheck"
	"movecheck/internal/depth"
	"movecheck/internal/gas"
	"movecheck/internal/loader"
	"movecheck/internal/runtype"
	"movecheck/internal/trace"
	"movecheck/internal/vmerr"
)

// Options configures VerifyBundle.
type Options struct {
	// Jobs bounds the units checked at once; 0 means GOMAXPROCS.
	Jobs int
	// MaxValueDepth is the deepest value nesting allowed at link time; 0 disables it.
	MaxValueDepth uint64
	// CheckDepthAtLink runs the depth checker over each module after it is published.
	CheckDepthAtLink bool
	// GasBudget is the per-module gas allowance of the depth check; 0 is unmetered.
	GasBudget      uint64
	StructLoadCost uint64
	// MaxTraversalModules bounds the modules one depth check may load from; 0 is unlimited.
	MaxTraversalModules int
	// Dependencies are verified modules the bundle links against.
	Dependencies []*binary.CompiledModule
	Progress     ProgressSink
}

// UnitResult is the outcome of one module or script.
type UnitResult struct {
	Name    string
	Err     error
	Elapsed time.Duration
	// GasSpent is charged by the link-time depth check when a budget is set.
	GasSpent uint64
}

// Report collects the outcome of VerifyBundle. Modules and Scripts follow bundle order.
type Report struct {
	Modules []UnitResult
	Scripts []UnitResult
	Timings *Timings
	// Store holds the dependencies and every module that passed.
	Store *loader.ModuleStore
}

// Failed counts units that did not pass.
func (r *Report) Failed() int {
	n := 0
	for _, u := range r.Modules {
		if u.Err != nil {
			n++
		}
	}
	for _, u := range r.Scripts {
		if u.Err != nil {
			n++
		}
	}
	return n
}

// Err joins the errors of all failed units.
func (r *Report) Err() error {
	var errs []error
	for _, u := range r.Modules {
		if u.Err != nil {
			errs = append(errs, u.Err)
		}
	}
	for _, u := range r.Scripts {
		if u.Err != nil {
			errs = append(errs, u.Err)
		}
	}
	return errors.Join(errs...)
}

// VerifyBundle verifies every module of b in import order, publishing each one that
// passes, then verifies the scripts against the published set. Modules of one
// topological batch are checked in parallel. The returned error is non-nil only when
// ctx is cancelled; verification failures are in the report.
func VerifyBundle(ctx context.Context, b *bundle.Bundle, opts Options) (*Report, error) {
	started := time.Now()
	sink := opts.Progress
	if sink == nil {
		sink = nopSink{}
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	cache := depth.NewFormulaCache()
	p := &pipeline{
		b:      b,
		opts:   opts,
		jobs:   jobs,
		r:      runner{sink: sink, timings: &Timings{}},
		store:  loader.NewModuleStore(cache),
		failed: make(map[binary.ModuleID]bool),
	}
	p.checker = depth.New(p.store, cache, depth.Options{
		MaxDepth: opts.MaxValueDepth,
		Tracer:   trace.FromContext(ctx),
	})
	ctx, span := trace.BeginCtx(ctx, trace.ScopeDriver, "verify-bundle")
	p.publishDependencies(ctx)
	span.With("modules", fmt.Sprint(len(b.Modules))).With("scripts", fmt.Sprint(len(b.Scripts)))
	report, err := p.run(ctx)
	span.End(fmt.Sprintf("%d failed", report.Failed()))
	report.Timings.SetTotal(time.Since(started))
	return report, err
}

type pipeline struct {
	b       *bundle.Bundle
	opts    Options
	jobs    int
	r       runner
	store   *loader.ModuleStore
	checker *depth.Checker

	modules []UnitResult
	scripts []UnitResult
	// failed marks bundle module ids that did not pass; written between batches.
	failed map[binary.ModuleID]bool
}

func (p *pipeline) run(ctx context.Context) (*Report, error) {
	p.modules = make([]UnitResult, len(p.b.Modules))
	p.scripts = make([]UnitResult, len(p.b.Scripts))
	for i, name := range UnitNames(p.b) {
		if i < len(p.modules) {
			p.modules[i].Name = name
		} else {
			p.scripts[i-len(p.modules)].Name = name
		}
		p.r.sink.OnEvent(Event{Unit: name, Stage: StageBounds, Status: StatusQueued})
	}
	report := &Report{Modules: p.modules, Scripts: p.scripts, Timings: p.r.timings, Store: p.store}

	if err := p.boundsModules(ctx); err != nil {
		return report, err
	}
	idx, slots, topo, nodeToModule := p.buildGraph()
	for _, batch := range topo.Batches {
		if err := p.linkBatch(ctx, idx, slots, batch, nodeToModule); err != nil {
			return report, err
		}
	}
	if err := p.verifyScripts(ctx); err != nil {
		return report, err
	}
	return report, nil
}

// UnitNames returns the names VerifyBundle reports for the units of b, modules first.
func UnitNames(b *bundle.Bundle) []string {
	names := make([]string, 0, len(b.Modules)+len(b.Scripts))
	for i, m := range b.Modules {
		if loc := bounds.ModuleLocation(m); loc.Kind == vmerr.LocationModule {
			names = append(names, loc.Module.String())
		} else {
			names = append(names, fmt.Sprintf("module #%d", i))
		}
	}
	for i := range b.Scripts {
		names = append(names, fmt.Sprintf("script #%d", i))
	}
	return names
}

// boundsModules bounds-checks every module in parallel. Modules that fail are marked
// failed under the id they claim, when it can be resolved.
func (p *pipeline) boundsModules(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(p.jobs, len(p.b.Modules))))
	for i, m := range p.b.Modules {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := &p.modules[i]
			res.Elapsed, res.Err = p.r.pass(gctx, res.Name, StageBounds, func() error {
				return bounds.VerifyModule(m)
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, m := range p.b.Modules {
		if p.modules[i].Err == nil {
			continue
		}
		if loc := bounds.ModuleLocation(m); loc.Kind == vmerr.LocationModule {
			p.failed[loc.Module] = true
		}
	}
	return nil
}

// buildGraph orders the modules that passed the bounds check. Duplicates and members
// of import cycles fail here, as do modules importing them.
func (p *pipeline) buildGraph() (dag.Index, []dag.Slot, *dag.Topo, map[dag.NodeID]int) {
	var units []dag.Unit
	owner := make(map[binary.ModuleID]int)
	for i, m := range p.b.Modules {
		if p.modules[i].Err != nil {
			continue
		}
		id := m.SelfID()
		if first, dup := owner[id]; dup {
			// The first declaration stays linkable; importers are not affected.
			err := vmerr.Newf(vmerr.LinkerError,
				"duplicate module %s, first declared as module #%d", id, first).Finish(vmerr.ModuleLocation(id))
			p.modules[i].Err = err
			p.r.sink.OnEvent(Event{Unit: p.modules[i].Name, Stage: StageGraph, Status: StatusError, Err: err})
			continue
		}
		owner[id] = i
		units = append(units, dag.UnitOf(m))
	}

	idx := dag.BuildIndex(units)
	graph, slots := dag.BuildGraph(idx, units)
	topo := dag.ToposortKahn(graph)
	nodeToModule := make(map[dag.NodeID]int, len(units))
	for _, u := range units {
		nodeToModule[idx.ModuleToID[u.ID]] = owner[u.ID]
	}

	for _, cycle := range topo.Cycles {
		summary := dag.CycleSummary(idx, cycle)
		for _, id := range cycle {
			mid := idx.IDToModule[id]
			p.fail(nodeToModule[id], StageGraph, vmerr.Newf(vmerr.LinkerError,
				"import cycle: %s", summary).Finish(vmerr.ModuleLocation(mid)))
		}
	}
	for _, id := range topo.Blocked {
		if topo.InCycle(id) {
			continue
		}
		mid := idx.IDToModule[id]
		i := nodeToModule[id]
		err := vmerr.Newf(vmerr.MissingDependency,
			"%s depends on a module in an import cycle", mid).Finish(vmerr.ModuleLocation(mid))
		p.modules[i].Err = err
		p.failed[mid] = true
		p.r.sink.OnEvent(Event{Unit: p.modules[i].Name, Stage: StageGraph, Status: StatusSkipped, Err: err})
	}
	return idx, slots, topo, nodeToModule
}

// publishDependencies bounds-checks and publishes the external dependencies. A
// rejected dependency is marked failed unless the bundle declares its id, so its
// importers are skipped.
func (p *pipeline) publishDependencies(ctx context.Context) {
	declared := make(map[binary.ModuleID]bool, len(p.b.Modules))
	for _, m := range p.b.Modules {
		if loc := bounds.ModuleLocation(m); loc.Kind == vmerr.LocationModule {
			declared[loc.Module] = true
		}
	}
	tracer := trace.FromContext(ctx)
	for _, dep := range p.opts.Dependencies {
		if err := bounds.VerifyModule(dep); err != nil {
			trace.Point(tracer, trace.ScopeDriver, "reject-dependency", err.Error())
			if loc := bounds.ModuleLocation(dep); loc.Kind == vmerr.LocationModule && !declared[loc.Module] {
				p.failed[loc.Module] = true
			}
			continue
		}
		p.store.Publish(dep)
	}
}

func (p *pipeline) fail(i int, stage Stage, err error) {
	p.modules[i].Err = err
	if loc := bounds.ModuleLocation(p.b.Modules[i]); loc.Kind == vmerr.LocationModule {
		p.failed[loc.Module] = true
	}
	p.r.sink.OnEvent(Event{Unit: p.modules[i].Name, Stage: stage, Status: StatusError, Err: err})
}

// linkBatch checks the modules of one topological batch against the published store
// and publishes those that pass. A module whose import failed is skipped.
func (p *pipeline) linkBatch(ctx context.Context, idx dag.Index, slots []dag.Slot, batch []dag.NodeID,
	nodeToModule map[dag.NodeID]int,
) error {
	type job struct {
		module int
		deps   []*binary.CompiledModule
	}
	jobs := make([]job, 0, len(batch))
	for _, id := range batch {
		i := nodeToModule[id]
		mid := idx.IDToModule[id]
		if dep, ok := p.failedImport(slots[id].Unit); ok {
			err := vmerr.Newf(vmerr.MissingDependency,
				"dependency %s failed verification", dep).Finish(vmerr.ModuleLocation(mid))
			p.modules[i].Err = err
			p.failed[mid] = true
			p.r.sink.OnEvent(Event{Unit: p.modules[i].Name, Stage: StageDependencies, Status: StatusSkipped, Err: err})
			continue
		}
		jobs = append(jobs, job{module: i, deps: p.resolve(slots[id].Unit.Imports)})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(p.jobs, len(jobs))))
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p.link(gctx, j.module, j.deps)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, j := range jobs {
		if p.modules[j.module].Err != nil {
			p.failed[p.b.Modules[j.module].SelfID()] = true
		}
	}
	return nil
}

func (p *pipeline) failedImport(u dag.Unit) (binary.ModuleID, bool) {
	for _, imp := range u.Imports {
		if p.failed[imp] {
			return imp, true
		}
	}
	return binary.ModuleID{}, false
}

// resolve returns the published modules among ids; unresolved ids are reported by the
// dependency checker.
func (p *pipeline) resolve(ids []binary.ModuleID) []*binary.CompiledModule {
	var deps []*binary.CompiledModule
	seen := make(map[binary.ModuleID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if m, ok := p.store.Module(id); ok {
			deps = append(deps, m)
		}
	}
	return deps
}

func (p *pipeline) link(ctx context.Context, i int, deps []*binary.CompiledModule) {
	m := p.b.Modules[i]
	res := &p.modules[i]
	ctx, span := trace.BeginCtx(ctx, trace.ScopeModule, res.Name)
	defer func() { span.End(outcome(res.Err)) }()

	elapsed, err := p.r.pass(ctx, res.Name, StageDependencies, func() error {
		return depcheck.VerifyModule(m, deps)
	})
	res.Elapsed += elapsed
	if err != nil {
		res.Err = err
		return
	}
	p.store.Publish(m)
	if !p.opts.CheckDepthAtLink || p.opts.MaxValueDepth == 0 {
		return
	}

	var meter gas.Meter = gas.Unmetered{}
	var budget *gas.Budget
	if p.opts.GasBudget > 0 {
		budget = gas.NewBudget(p.opts.GasBudget, p.opts.StructLoadCost)
		meter = budget
	}
	traversal := gas.NewTraversalContext(p.opts.MaxTraversalModules)
	elapsed, err = p.r.pass(ctx, res.Name, StageDepth, func() error {
		if perr := p.checkDepth(meter, traversal, m); perr != nil {
			return perr.Finish(vmerr.ModuleLocation(m.SelfID()))
		}
		return nil
	})
	res.Elapsed += elapsed
	if budget != nil {
		res.GasSpent = budget.Spent()
	}
	if err != nil {
		res.Err = err
		p.store.Retract(m.SelfID())
	}
}

// checkDepth checks every non-generic struct definition and every non-generic
// function signature of m.
func (p *pipeline) checkDepth(meter gas.Meter, traversal *gas.TraversalContext, m *binary.CompiledModule) *vmerr.PartialError {
	var tys []runtype.Type
	for _, def := range m.StructDefs {
		if len(m.StructHandles[def.Handle].TypeParameters) > 0 {
			continue
		}
		idx, err := p.store.StructIndex(m, def.Handle)
		if err != nil {
			return err
		}
		tys = append(tys, runtype.Struct(idx))
	}
	for _, def := range m.FunctionDefs {
		h := &m.FunctionHandles[def.Function]
		if len(h.TypeParameters) > 0 {
			continue
		}
		for _, sig := range []binary.SignatureIndex{h.Parameters, h.Return} {
			for k := range m.Signatures[sig].Tokens {
				ty, err := p.store.TypeOf(m, &m.Signatures[sig].Tokens[k], nil)
				if err != nil {
					return err
				}
				tys = append(tys, ty)
			}
		}
	}
	return p.checker.CheckDepthOfTypes(meter, traversal, tys)
}

// verifyScripts checks every script in parallel against the published modules.
func (p *pipeline) verifyScripts(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(p.jobs, len(p.b.Scripts))))
	for i, s := range p.b.Scripts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := &p.scripts[i]
			res.Elapsed, res.Err = p.r.script(gctx, res.Name, s, p.scriptDeps(s))
			return nil
		})
	}
	return g.Wait()
}

// scriptDeps resolves the module handles of s. Handles out of bounds are left to the
// bounds checker.
func (p *pipeline) scriptDeps(s *binary.CompiledScript) []*binary.CompiledModule {
	view := binary.ScriptView{S: s}
	var ids []binary.ModuleID
	for _, h := range s.ModuleHandles {
		if int(h.Address) >= len(s.AddressIdentifiers) || int(h.Name) >= len(s.Identifiers) {
			continue
		}
		ids = append(ids, binary.ModuleIDForHandle(view, h))
	}
	return p.resolve(ids)
}
