package rebuild_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"bcrebuild/internal/ir"
	"bcrebuild/internal/layout"
	"bcrebuild/internal/rebuild"
	"bcrebuild/internal/types"
)

// fixture builds input modules without constant folding, so the input
// contains exactly the instructions a test asks for.
type fixture struct {
	t *testing.T
	m *ir.Module
	b *ir.Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := ir.NewModule("test", nil)
	return &fixture{t: t, m: m, b: ir.NewBuilder(m, nil)}
}

func (fx *fixture) ty(s string) types.TypeID {
	return fx.m.Types.MustParse(s)
}

func (fx *fixture) fn(name, sig string, params ...string) *ir.Func {
	fx.t.Helper()
	f, err := fx.m.NewFunc(name, fx.ty(sig), ir.LinkageExternal, params...)
	require.NoError(fx.t, err)
	return f
}

func (fx *fixture) at(b *ir.Block) *fixture {
	fx.b.SetInsertPoint(b)
	return fx
}

func (fx *fixture) int(ty string, v int64) *ir.Value {
	return ir.NewIntConst(fx.m.Types, fx.ty(ty), v)
}

func (fx *fixture) gep(base *ir.Value, name string, indices ...*ir.Value) *ir.Value {
	fx.t.Helper()
	v, err := fx.b.GEP(base, indices, name)
	require.NoError(fx.t, err)
	return v
}

func (fx *fixture) load(p *ir.Value, name string) *ir.Value {
	fx.t.Helper()
	v, err := fx.b.Load(p, name)
	require.NoError(fx.t, err)
	return v
}

func (fx *fixture) call(callee *ir.Func, name string, args ...*ir.Value) *ir.Value {
	fx.t.Helper()
	v, err := fx.b.Call(callee, args, name)
	require.NoError(fx.t, err)
	return v
}

func (fx *fixture) dump() string {
	fx.t.Helper()
	var buf bytes.Buffer
	require.NoError(fx.t, ir.Print(&buf, fx.m))
	return buf.String()
}

// rebuildOK runs the pass and checks that the output is well formed and
// uses only the restricted vocabulary.
func (fx *fixture) rebuildOK(opts rebuild.Options) *rebuild.Pass {
	fx.t.Helper()
	require.NoError(fx.t, ir.Validate(fx.m), "input module must be valid")
	p := rebuild.New(opts)
	changed, err := p.Run(context.Background(), fx.m)
	require.NoError(fx.t, err)
	require.True(fx.t, changed)
	require.NoError(fx.t, ir.Validate(fx.m), "rebuilt module must be valid:\n%s", fx.dump())
	require.NoError(fx.t, ir.ValidateRestricted(fx.m), "rebuilt module must be restricted:\n%s", fx.dump())
	return p
}

func (fx *fixture) engine() *layout.Engine {
	return layout.New(layout.Bytecode64(), fx.m.Types)
}

// evalAddr computes the integer value of an address expression in the
// rebuilt IR, where every address computation has one index.
func evalAddr(t *testing.T, eng *layout.Engine, v *ir.Value, env map[*ir.Value]int64) int64 {
	t.Helper()
	switch v.Kind {
	case ir.ValueConst:
		c, ok := ir.ConstIntValue(v)
		require.True(t, ok)
		return c
	case ir.ValueParam:
		val, ok := env[v]
		require.True(t, ok, "no binding for %%%s", v.Name)
		return val
	case ir.ValueInstr:
		in := v.Def
		switch in.Kind {
		case ir.InstrCast:
			return evalAddr(t, eng, in.Cast.X, env)
		case ir.InstrBinary:
			x := evalAddr(t, eng, in.Binary.X, env)
			y := evalAddr(t, eng, in.Binary.Y, env)
			switch in.Binary.Op {
			case ir.BinAdd:
				return x + y
			case ir.BinMul:
				return x * y
			}
		case ir.InstrGEP:
			require.Len(t, in.GEP.Indices, 1, "rebuilt address computations take one index")
			elem, ok := eng.Types.Pointee(in.GEP.Base.Type)
			require.True(t, ok)
			size, err := eng.SizeOf(elem)
			require.NoError(t, err)
			return evalAddr(t, eng, in.GEP.Base, env) + evalAddr(t, eng, in.GEP.Indices[0], env)*int64(size)
		}
	}
	t.Fatalf("cannot evaluate %s value", v.Kind)
	return 0
}

func countInstrs(f *ir.Func, kind ir.InstrKind) int {
	n := 0
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Kind == kind {
				n++
			}
		}
	}
	return n
}
