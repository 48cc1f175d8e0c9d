package rebuild

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"bcrebuild/internal/ir"
	"bcrebuild/internal/layout"
	"bcrebuild/internal/trace"
)

// PassName identifies the rebuild pass in traces and diagnostics.
const PassName = "bytecode-rebuild"

// Pass rewrites every defined function of a module into the bytecode
// dialect.
type Pass struct {
	Options Options

	stats *Stats
}

// New creates a rebuild pass.
func New(opts Options) *Pass {
	return &Pass{Options: opts}
}

// Name returns PassName.
func (p *Pass) Name() string {
	return PassName
}

// Stats returns the statistics of the last successful Run, or nil.
func (p *Pass) Stats() *Stats {
	return p.stats
}

// Run rebuilds m in place. It reports whether any function changed. On
// error m is left exactly as it was.
func (p *Pass) Run(ctx context.Context, m *ir.Module) (bool, error) {
	stats, err := run(ctx, m, p.Options)
	if err != nil {
		return false, err
	}
	p.stats = stats
	return len(stats.Funcs) > 0, nil
}

// Run is a convenience wrapper around New(opts).Run.
func Run(ctx context.Context, m *ir.Module, opts Options) (bool, error) {
	return New(opts).Run(ctx, m)
}

// runState is the context of one run over one module.
type runState struct {
	module *ir.Module
	layout *layout.Engine
	types  *TypeRebuilder
	folder *ir.Folder

	funcs   map[*ir.Func]*ir.Func // old definition -> rebuilt function
	defined []*ir.Func            // old definitions in module order
	stats   *Stats
}

func newRunState(m *ir.Module, opts Options) *runState {
	if opts.Target.PtrSize == 0 {
		opts.Target = layout.Bytecode64()
	}
	eng := layout.New(opts.Target, m.Types)
	st := &runState{
		module: m,
		layout: eng,
		types:  NewTypeRebuilder(eng, opts),
		folder: ir.NewFolder(eng),
		funcs:  make(map[*ir.Func]*ir.Func),
		stats:  &Stats{},
	}
	for _, f := range m.Funcs {
		if f.IsDeclaration() {
			st.stats.Declarations++
			continue
		}
		st.defined = append(st.defined, f)
	}
	return st
}

func run(ctx context.Context, m *ir.Module, opts Options) (*Stats, error) {
	if m == nil {
		return nil, errorf(MalformedInput, "nil module")
	}
	span := trace.BeginCtx(ctx, trace.ScopePass, PassName).WithExtra("module", m.Name)
	ctx = trace.WithSpan(ctx, span)
	detail := "ok"
	defer func() { span.End(detail) }()

	st := newRunState(m, opts)
	span.WithExtra("funcs", strconv.Itoa(len(st.defined)))

	if err := st.phase(ctx, "skeletons", st.createSkeletons); err != nil {
		detail = "failed"
		return nil, err
	}
	if err := st.phase(ctx, "bodies", st.rewriteBodies); err != nil {
		detail = "failed"
		return nil, err
	}
	if err := st.phase(ctx, "commit", st.commit); err != nil {
		detail = "failed"
		return nil, err
	}
	return st.stats, nil
}

func (st *runState) phase(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	span := trace.BeginCtx(ctx, trace.ScopePass, name)
	err := fn(trace.WithSpan(ctx, span))
	if err != nil {
		span.End(err.Error())
		return err
	}
	span.End("")
	return nil
}

// createSkeletons creates an empty rebuilt function for every definition
// so that bodies can call functions that have not been rewritten yet.
func (st *runState) createSkeletons(context.Context) error {
	for _, f := range st.defined {
		if f.Variadic() {
			return &Error{Kind: UnsupportedConstruct, Msg: "variadic functions are not supported", Func: f.Name}
		}
		fnType, err := st.types.RebuildSignature(f.Type)
		if err != nil {
			return withFunc(err, f.Name, "signature")
		}
		names := make([]string, len(f.Params))
		for i, p := range f.Params {
			names[i] = p.Name
		}
		nf, err := st.module.CreateFunc(f.Name, fnType, ir.LinkageInternal, names...)
		if err != nil {
			return &Error{Kind: MalformedInput, Msg: "cannot create rebuilt function", Func: f.Name, Err: err}
		}
		st.funcs[f] = nf
	}
	return nil
}

func withFunc(err error, fn, what string) error {
	var re *Error
	if errors.As(err, &re) && re.Func == "" {
		re.Func = fn
		if re.Instr == "" && what != "" {
			re.Msg = what + ": " + re.Msg
		}
	}
	return err
}

func (st *runState) rewriteBodies(ctx context.Context) error {
	for _, f := range st.defined {
		if err := ctx.Err(); err != nil {
			return err
		}
		span := trace.BeginCtx(ctx, trace.ScopeFunc, "func:"+f.Name)
		nf := st.funcs[f]
		if err := newFuncScope(st, f, nf).rewrite(); err != nil {
			span.End("failed")
			return err
		}
		fs := collectFuncStats(f, nf)
		st.stats.Funcs = append(st.stats.Funcs, fs)
		span.WithExtra("blocks", strconv.Itoa(fs.Blocks)).
			WithExtra("instrs", fmt.Sprintf("%d->%d", fs.InstrsBefore, fs.InstrsAfter)).
			End("")
	}
	return nil
}

// commit swaps every definition for its rebuilt function in place and
// drops the old bodies. Declarations stay untouched.
func (st *runState) commit(context.Context) error {
	for _, f := range st.defined {
		if err := st.module.ReplaceFunc(f, st.funcs[f]); err != nil {
			return &Error{Kind: MalformedInput, Msg: "cannot replace function", Func: f.Name, Err: err}
		}
	}
	for _, f := range st.defined {
		f.DeleteBody()
	}
	return nil
}
