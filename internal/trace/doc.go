// Package trace records spans and point events for the rebuild pipeline.
//
// A tracer travels through the pipeline in a context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "rebuild", 0)
//	defer span.End("")
//
// Scopes from coarse to fine are driver (one CLI invocation), pass (one
// pass or phase over a module), func (one function rewrite) and instr
// (one instruction). The level decides which scopes are recorded:
// phase keeps driver and pass, detail adds func, debug keeps everything.
//
// Tracers: Nop when disabled, StreamTracer writing text or NDJSON as
// events happen, RingTracer keeping the last N events for post-mortem
// dumps, and MultiTracer fanning out to several of them.
package trace
