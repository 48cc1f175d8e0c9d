// Package driver runs the rebuild pipeline over module files: load,
// rebuild, verify and write, collecting every problem as a diagnostic.
package driver

import (
	"context"
	"errors"
	"strconv"
	"time"

	"bcrebuild/internal/config"
	"bcrebuild/internal/diag"
	"bcrebuild/internal/ir"
	"bcrebuild/internal/irpack"
	"bcrebuild/internal/observ"
	"bcrebuild/internal/rebuild"
	"bcrebuild/internal/source"
	"bcrebuild/internal/trace"
)

// Options controls a driver run.
type Options struct {
	Config config.Config

	// OutPath overrides the output location. Only valid with one input.
	OutPath        string
	MaxDiagnostics int
	Jobs           int
	// DryRun rebuilds and verifies without writing anything.
	DryRun bool
	// Progress, when set, receives an event per file and stage.
	Progress ProgressSink
}

// DefaultMaxDiagnostics applies when Options.MaxDiagnostics is not set.
const DefaultMaxDiagnostics = 100

func (o Options) maxDiagnostics() int {
	if o.MaxDiagnostics <= 0 {
		return DefaultMaxDiagnostics
	}
	return o.MaxDiagnostics
}

// Result is the outcome for one input file.
type Result struct {
	Path    string
	OutPath string // empty when nothing was written
	Module  *ir.Module
	Changed bool
	Stats   *rebuild.Stats
	Bag     *diag.Bag
	Timings observ.Report
}

// Failed reports whether the file produced an error.
func (r *Result) Failed() bool {
	return r == nil || r.Bag == nil || r.Bag.HasErrors()
}

// RebuildOptions derives the pass options from cfg.
func RebuildOptions(cfg config.Config) rebuild.Options {
	return rebuild.Options{
		Target:          cfg.Target,
		AllowNonUniform: cfg.AllowNonUniform,
	}
}

// LoadModule reads the module at path and checks that it is well formed.
// It returns nil after reporting to bag when either step fails.
func LoadModule(ctx context.Context, path string, bag *diag.Bag) *ir.Module {
	span := trace.BeginCtx(ctx, trace.ScopePass, "load")
	m, err := irpack.ReadFile(path)
	if err != nil {
		span.End("failed")
		bag.Add(loadDiagnostic(path, err))
		return nil
	}
	if err := ir.Validate(m); err != nil {
		span.End("invalid")
		reportJoined(bag, diag.RebuildMalformed, path, err)
		return nil
	}
	span.WithExtra("funcs", strconv.Itoa(len(m.Funcs))).End("")
	return m
}

// RebuildModule runs the pass over m and, when cfg asks for it, verifies
// the output. On failure m is unchanged.
func RebuildModule(ctx context.Context, m *ir.Module, cfg config.Config, bag *diag.Bag) (*rebuild.Stats, bool) {
	pass := rebuild.New(RebuildOptions(cfg))
	changed, err := pass.Run(ctx, m)
	if err != nil {
		bag.Add(rebuildDiagnostic(err))
		return nil, false
	}
	if !changed {
		bag.Add(diag.New(diag.SevInfo, diag.InfoNoChange, source.Pos{}, "module "+m.Name+" has no function definitions"))
	}
	if cfg.Verify {
		span := trace.BeginCtx(ctx, trace.ScopePass, "verify")
		detail := ""
		if err := ir.Validate(m); err != nil {
			reportJoined(bag, diag.VerifyInvalid, "", err)
			detail = "invalid"
		} else if err := ir.ValidateRestricted(m); err != nil {
			reportJoined(bag, diag.VerifyRestricted, "", err)
			detail = "restricted"
		}
		span.End(detail)
	}
	return pass.Stats(), changed
}

// RebuildFile loads, rebuilds, verifies and writes one module.
func RebuildFile(ctx context.Context, path string, opts Options) *Result {
	span := trace.BeginCtx(ctx, trace.ScopeDriver, "rebuild-file").WithExtra("path", path)
	ctx = trace.WithSpan(ctx, span)
	res := &Result{Path: path, Bag: diag.NewBag(opts.maxDiagnostics())}
	timer := observ.NewTimer()
	started := time.Now()
	stage := StageLoad
	defer func() {
		res.Timings = timer.Report()
		detail, status := "ok", StatusDone
		var err error
		if res.Failed() {
			detail, status = "failed", StatusError
			err = firstError(res.Bag)
		}
		emit(opts.Progress, Event{File: path, Stage: stage, Status: status, Err: err, Elapsed: time.Since(started)})
		span.End(detail)
	}()
	begin := func(s Stage) func(string) {
		stage = s
		emit(opts.Progress, Event{File: path, Stage: s, Status: StatusWorking})
		return timer.Start(string(s))
	}

	end := begin(StageLoad)
	m := LoadModule(ctx, path, res.Bag)
	if m == nil {
		end("failed")
		return res
	}
	end(strconv.Itoa(len(m.Funcs)) + " funcs")
	res.Module = m

	end = begin(StageRebuild)
	res.Stats, res.Changed = RebuildModule(ctx, m, opts.Config, res.Bag)
	if res.Bag.HasErrors() {
		end("failed")
		return res
	}
	end("")
	if opts.DryRun {
		return res
	}

	out := opts.OutPath
	if out == "" {
		out = OutputPath(path, opts.Config.Output)
	}
	end = begin(StageWrite)
	defer end("")
	if err := WriteModule(out, m, opts.Config.Format); err != nil {
		res.Bag.Add(diag.NewError(diag.IOWriteFailed, source.Pos{File: out}, "failed to write module: "+err.Error()))
		return res
	}
	res.OutPath = out
	return res
}

// firstError returns the first error diagnostic of bag as an error.
func firstError(bag *diag.Bag) error {
	for _, d := range bag.Items() {
		if d.Severity == diag.SevError {
			return errors.New(d.Code.ID() + ": " + d.Message)
		}
	}
	return nil
}
