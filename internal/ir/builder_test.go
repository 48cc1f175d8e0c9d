package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bcrebuild/internal/ir"
	"bcrebuild/internal/layout"
)

func newTestFunc(t *testing.T, sig string, params ...string) (*ir.Module, *ir.Func, *ir.Builder) {
	t.Helper()
	m := ir.NewModule("test", nil)
	f, err := m.NewFunc("f", m.Types.MustParse(sig), ir.LinkageExternal, params...)
	require.NoError(t, err)
	b := ir.NewBuilder(m, ir.NewFolder(layout.New(layout.Bytecode64(), m.Types)))
	b.SetInsertPoint(f.NewBlock("entry"))
	return m, f, b
}

func TestFolderBinary(t *testing.T) {
	tests := []struct {
		name string
		ty   string
		op   ir.BinOp
		x, y int64
		want int64
		fold bool
	}{
		{name: "add", ty: "i32", op: ir.BinAdd, x: 2, y: 3, want: 5, fold: true},
		{name: "sub_negative", ty: "i32", op: ir.BinSub, x: 2, y: 3, want: -1, fold: true},
		{name: "i8_wraps", ty: "i8", op: ir.BinAdd, x: 127, y: 1, want: -128, fold: true},
		{name: "shl_sign_bit", ty: "i32", op: ir.BinShl, x: 1, y: 31, want: -2147483648, fold: true},
		{name: "ashr", ty: "i32", op: ir.BinAShr, x: -8, y: 1, want: -4, fold: true},
		{name: "lshr", ty: "i8", op: ir.BinLShr, x: -1, y: 4, want: 15, fold: true},
		{name: "udiv_by_zero", ty: "i32", op: ir.BinUDiv, x: 1, y: 0, fold: false},
		{name: "sdiv_overflow", ty: "i32", op: ir.BinSDiv, x: -2147483648, y: -1, fold: false},
		{name: "srem", ty: "i32", op: ir.BinSRem, x: -7, y: 2, want: -1, fold: true},
		{name: "shift_too_wide", ty: "i16", op: ir.BinShl, x: 1, y: 16, fold: false},
		{name: "xor", ty: "i64", op: ir.BinXor, x: 0xff, y: 0x0f, want: 0xf0, fold: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, f, b := newTestFunc(t, "void ()")
			ty := m.Types.MustParse(tt.ty)
			x := ir.NewIntConst(m.Types, ty, tt.x)
			y := ir.NewIntConst(m.Types, ty, tt.y)
			v := b.Binary(tt.op, x, y, false, false, "r")
			if !tt.fold {
				assert.False(t, v.IsConst())
				assert.Len(t, f.Blocks[0].Instrs, 1)
				return
			}
			got, ok := ir.ConstIntValue(v)
			require.True(t, ok, "expected a folded constant")
			assert.Equal(t, tt.want, got)
			assert.Empty(t, f.Blocks[0].Instrs)
		})
	}
}

func TestFolderICmpAndSelect(t *testing.T) {
	m, f, b := newTestFunc(t, "void ()")
	i32 := m.Types.Builtins().I32
	minus1 := ir.NewIntConst(m.Types, i32, -1)
	one := ir.NewIntConst(m.Types, i32, 1)

	slt := b.ICmp(ir.PredSLT, minus1, one, "")
	got, ok := ir.ConstIntValue(slt)
	require.True(t, ok)
	assert.Equal(t, int64(-1), got, "i1 true reads back as -1 when sign-extended")

	ult := b.ICmp(ir.PredULT, minus1, one, "")
	got, ok = ir.ConstIntValue(ult)
	require.True(t, ok)
	assert.Equal(t, int64(0), got)

	assert.Same(t, minus1, b.Select(slt, minus1, one, ""))
	assert.Same(t, one, b.Select(ult, minus1, one, ""))
	assert.Empty(t, f.Blocks[0].Instrs)
}

func TestFolderCasts(t *testing.T) {
	m, f, b := newTestFunc(t, "void ()")
	bt := m.Types.Builtins()

	v := b.Cast(ir.CastSExt, ir.NewIntConst(m.Types, bt.I8, -2), bt.I32, "")
	got, _ := ir.ConstIntValue(v)
	assert.Equal(t, int64(-2), got)

	v = b.Cast(ir.CastZExt, ir.NewIntConst(m.Types, bt.I8, -2), bt.I32, "")
	got, _ = ir.ConstIntValue(v)
	assert.Equal(t, int64(254), got)

	v = b.Cast(ir.CastTrunc, ir.NewIntConst(m.Types, bt.I32, 0x1ff), bt.I8, "")
	got, _ = ir.ConstIntValue(v)
	assert.Equal(t, int64(-1), got)

	i8p := m.Types.PointerTo(bt.I8)
	v = b.Cast(ir.CastIntToPtr, ir.NewIntConst(m.Types, bt.I64, 0), i8p, "")
	require.True(t, v.IsConst())
	assert.Equal(t, ir.ConstNull, v.Const.Kind)
	assert.Equal(t, i8p, v.Type)

	assert.Empty(t, f.Blocks[0].Instrs)
}

func TestBuilderPointerCastIdentity(t *testing.T) {
	m, f, b := newTestFunc(t, "void (i32*)", "p")
	p := f.Params[0]
	assert.Same(t, p, b.PointerCast(p, p.Type, "c"))
	assert.Empty(t, f.Blocks[0].Instrs)

	i8p := m.Types.MustParse("i8*")
	c := b.PointerCast(p, i8p, "c")
	require.NotNil(t, c.Def)
	assert.Equal(t, ir.CastBitCast, c.Def.Cast.Op)

	i64 := m.Types.Builtins().I64
	n := b.PointerCast(p, i64, "n")
	require.NotNil(t, n.Def)
	assert.Equal(t, ir.CastPtrToInt, n.Def.Cast.Op)
}

func TestBuilderIntCast(t *testing.T) {
	m, f, b := newTestFunc(t, "void (i64, i8)", "wide", "narrow")
	i32 := m.Types.Builtins().I32

	tr := b.IntCast(f.Params[0], i32, "")
	assert.Equal(t, ir.CastTrunc, tr.Def.Cast.Op)
	ext := b.IntCast(f.Params[1], i32, "")
	assert.Equal(t, ir.CastSExt, ext.Def.Cast.Op)
}

func TestBuilderConstGEPZeroFolds(t *testing.T) {
	_, f, b := newTestFunc(t, "void (i32*)", "p")
	p := f.Params[0]
	v, err := b.ConstGEP1(p, 0, "g")
	require.NoError(t, err)
	assert.Same(t, p, v)

	v, err = b.ConstGEP1(p, 3, "g")
	require.NoError(t, err)
	require.Equal(t, ir.InstrGEP, v.Def.Kind)
	assert.Equal(t, p.Type, v.Type)
}

func TestBuilderGEPResultType(t *testing.T) {
	m, f, b := newTestFunc(t, "void ({ i32, [4 x i16] }*, i64)", "p", "i")
	zero := ir.NewIntConst(m.Types, m.Types.Builtins().I32, 0)
	one := ir.NewIntConst(m.Types, m.Types.Builtins().I32, 1)
	v, err := b.GEP(f.Params[0], []*ir.Value{zero, one, f.Params[1]}, "g")
	require.NoError(t, err)
	assert.Equal(t, "i16*", m.Types.String(v.Type))

	_, err = b.GEP(f.Params[0], []*ir.Value{zero, f.Params[1]}, "bad")
	assert.Error(t, err, "variable struct index must be rejected")
}

func TestBuilderUniqueNames(t *testing.T) {
	m, f, b := newTestFunc(t, "void (i32)", "x")
	i32 := m.Types.Builtins().I32
	a := b.Alloca(i32, nil, "x")
	c := b.Alloca(i32, nil, "x")
	d := b.Alloca(i32, nil, "")
	assert.Equal(t, "x1", a.Name)
	assert.Equal(t, "x2", c.Name)
	assert.Empty(t, d.Name)
	assert.Equal(t, "x", f.Params[0].Name)
}
