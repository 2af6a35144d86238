// Package trace is the diagnostic event stream of movecheck.
//
// Verification emits spans for the driver, for each module or script, and for each
// pass run on it. Tracers write those events to a stream (text or NDJSON), keep the
// most recent ones in a ring buffer, or both.
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx, span := trace.BeginCtx(ctx, trace.ScopePass, "bounds")
//	defer span.End("")
//
// Checker invariant violations are reported with Crash, which is never filtered by
// level.
package trace
