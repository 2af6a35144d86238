// Package verifier runs the checkers over single units and over whole bundles.
package verifier

import (
	"context"
	"time"

	"movecheck/internal/binary"
	"movecheck/internal/bounds"
	"movecheck/internal/depcheck"
	"movecheck/internal/trace"
	"movecheck/internal/vmerr"
)

// VerifyModule bounds-checks m, then checks its imports against deps.
func VerifyModule(ctx context.Context, m *binary.CompiledModule, deps []*binary.CompiledModule) error {
	r := runner{sink: nopSink{}}
	_, err := r.module(ctx, bounds.ModuleLocation(m).String(), m, deps)
	return err
}

// VerifyScript bounds-checks s, then checks its imports against deps.
func VerifyScript(ctx context.Context, s *binary.CompiledScript, deps []*binary.CompiledModule) error {
	r := runner{sink: nopSink{}}
	_, err := r.script(ctx, "script", s, deps)
	return err
}

// runner reports passes to a sink and a timing table.
type runner struct {
	sink    ProgressSink
	timings *Timings
}

func (r *runner) module(ctx context.Context, name string, m *binary.CompiledModule,
	deps []*binary.CompiledModule,
) (time.Duration, error) {
	ctx, span := trace.BeginCtx(ctx, trace.ScopeModule, name)
	elapsed, err := r.pass(ctx, name, StageBounds, func() error { return bounds.VerifyModule(m) })
	if err == nil {
		var d time.Duration
		d, err = r.pass(ctx, name, StageDependencies, func() error { return depcheck.VerifyModule(m, deps) })
		elapsed += d
	}
	span.End(outcome(err))
	return elapsed, err
}

func (r *runner) script(ctx context.Context, name string, s *binary.CompiledScript,
	deps []*binary.CompiledModule,
) (time.Duration, error) {
	ctx, span := trace.BeginCtx(ctx, trace.ScopeModule, name)
	elapsed, err := r.pass(ctx, name, StageBounds, func() error { return bounds.VerifyScript(s) })
	if err == nil {
		var d time.Duration
		d, err = r.pass(ctx, name, StageDependencies, func() error { return depcheck.VerifyScript(s, deps) })
		elapsed += d
	}
	span.End(outcome(err))
	return elapsed, err
}

// pass runs one stage over a unit. Invariant violations are reported as crashes.
func (r *runner) pass(ctx context.Context, unit string, stage Stage, fn func() error) (time.Duration, error) {
	_, span := trace.BeginCtx(ctx, trace.ScopePass, string(stage))
	r.sink.OnEvent(Event{Unit: unit, Stage: stage, Status: StatusWorking})
	err := fn()
	elapsed := span.End(outcome(err))
	r.timings.Add(stage, elapsed)

	status := StatusDone
	if err != nil {
		status = StatusError
		if vmerr.CodeOf(err).IsInvariantViolation() {
			trace.Crash(trace.FromContext(ctx), unit, err.Error())
		}
	}
	r.sink.OnEvent(Event{Unit: unit, Stage: stage, Status: status, Err: err, Elapsed: elapsed})
	return elapsed, err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return vmerr.CodeOf(err).String()
}
