package irpack_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bcrebuild/internal/ir"
	"bcrebuild/internal/irpack"
	"bcrebuild/internal/source"
)

func dump(t *testing.T, m *ir.Module) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, ir.Print(&buf, m))
	return buf.String()
}

// buildSample lays out the loop after the block that consumes its
// results, so decoding must resolve forward references.
func buildSample(t *testing.T) *ir.Module {
	t.Helper()
	m := ir.NewModule("sample", nil)
	in := m.Types
	i32 := in.Builtins().I32
	ext, err := m.NewFunc("sink", in.MustParse("void ({ i32, i32 }*, i1)"), ir.LinkageExternal)
	require.NoError(t, err)
	f, err := m.NewFunc("walk", in.MustParse("i32 ({ i32, i32 }*, i32)"), ir.LinkageInternal, "p", "")
	require.NoError(t, err)
	b := ir.NewBuilder(m, nil)

	entry := f.NewBlock("entry")
	exit := f.NewBlock("exit")
	loop := f.NewBlock("")
	other := f.NewBlock("other")

	b.SetInsertPoint(entry)
	b.SetPos(source.Pos{File: "walk.ll", Line: 2, Col: 3})
	slot := b.Alloca(i32, ir.NewIntConst(in, in.Builtins().I64, 2), "slot")
	b.Store(f.Params[1], slot)
	b.Switch(f.Params[1], loop, 1).AddCase(ir.NewIntConst(in, i32, 7), other)

	b.SetInsertPoint(loop)
	phi := b.Phi(i32, "i")
	next := b.NSWAdd(phi.Result, ir.NewIntConst(in, i32, 1), "")
	gep, err := b.GEP(f.Params[0], []*ir.Value{ir.NewIntConst(in, i32, 0), ir.NewIntConst(in, i32, 1)}, "fld")
	require.NoError(t, err)
	gep.Def.GEP.Inbounds = true
	c := b.ICmp(ir.PredSLT, next, f.Params[1], "c")
	b.CondBr(c, loop, exit)
	ir.AddIncoming(phi, ir.NewIntConst(in, i32, 0), entry)
	ir.AddIncoming(phi, next, loop)

	b.SetInsertPoint(exit)
	v, err := b.Load(gep, "v")
	require.NoError(t, err)
	s := b.Select(c, v, next, "")
	_, err = b.Call(ext, []*ir.Value{ir.NewNull(f.Params[0].Type), ir.NewIntConst(in, in.Builtins().I1, 1)}, "")
	require.NoError(t, err)
	b.Ret(s)

	b.SetInsertPoint(other)
	w := b.Cast(ir.CastBitCast, f.Params[0], in.MustParse("i32*"), "w")
	b.Store(ir.NewUndef(i32), w)
	b.Unreachable()

	require.NoError(t, ir.Validate(m))
	return m
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []irpack.Format{irpack.FormatMsgpack, irpack.FormatYAML} {
		t.Run(format.String(), func(t *testing.T) {
			m := buildSample(t)
			data, err := irpack.Marshal(m, format)
			require.NoError(t, err)

			got, err := irpack.Unmarshal(data, format)
			require.NoError(t, err)
			require.NoError(t, ir.Validate(got))
			assert.Equal(t, dump(t, m), dump(t, got))

			walk := got.Func("walk")
			require.NotNil(t, walk)
			assert.Equal(t, ir.LinkageInternal, walk.Linkage)
			assert.Equal(t, "", walk.Params[1].Name)
			assert.Equal(t, "", walk.Blocks[2].Name)
			assert.Equal(t, source.Pos{File: "walk.ll", Line: 2, Col: 3}, walk.Blocks[0].Instrs[0].Pos)
			assert.True(t, got.Func("sink").IsDeclaration())
		})
	}
}

func TestEncodeNamesUnnamedValuesBySlot(t *testing.T) {
	f, err := irpack.ToFile(buildSample(t))
	require.NoError(t, err)
	require.Len(t, f.Funcs, 2)
	assert.Equal(t, irpack.SchemaVersion, f.Schema)
	assert.Equal(t, "walk.ll", f.Source)

	walk := f.Funcs[1]
	assert.Equal(t, []string{"p", "0"}, walk.Params)
	assert.Equal(t, "bb2", walk.Blocks[2].Name)
	assert.Equal(t, "add", walk.Blocks[2].Instrs[1].Op)
	assert.Equal(t, "2", walk.Blocks[2].Instrs[1].Name)
	assert.Equal(t, []string{"nsw"}, walk.Blocks[2].Instrs[1].Flags)
	assert.Equal(t, []string{"%p", "i32 0", "i32 1"}, walk.Blocks[2].Instrs[2].Args)
	assert.Equal(t, []string{"@sink", "{ i32, i32 }* null", "i1 -1"}, walk.Blocks[1].Instrs[2].Args)
}

const handWritten = `schema: 1
module: hand
source: hand.ll
funcs:
  - name: id
    type: i32 (i32)
    params: [x]
    blocks:
      - name: entry
        term: {op: ret, args: ["%x"], line: 2, col: 3}
  - name: use
    type: i32 ()
    blocks:
      - name: entry
        instrs:
          - {op: call, name: r, args: ["@id", "i32 7"], line: 5, col: 3}
          - {op: icmp, name: z, pred: eq, args: ["%r", "i32 0"]}
        term: {op: br, args: ["%z"], labels: [done, done]}
      - name: done
        term: {op: ret, args: ["%r"]}
`

func TestDecodeHandWrittenYAML(t *testing.T) {
	m, err := irpack.Decode(strings.NewReader(handWritten), irpack.FormatYAML)
	require.NoError(t, err)
	require.NoError(t, ir.Validate(m))
	assert.Equal(t, "hand", m.Name)

	use := m.Func("use")
	require.NotNil(t, use)
	call := use.Blocks[0].Instrs[0]
	assert.Equal(t, ir.InstrCall, call.Kind)
	assert.Equal(t, m.Func("id"), call.Call.Callee)
	assert.Equal(t, source.Pos{File: "hand.ll", Line: 5, Col: 3}, call.Pos)
	assert.Equal(t, "%z = icmp eq i32 %r, 0", ir.FormatInstr(use, use.Blocks[0].Instrs[1]))
	assert.Equal(t, ir.TermCondBr, use.Blocks[0].Term.Kind)
}

func TestDecodeErrors(t *testing.T) {
	fn := func(blocks ...irpack.Block) irpack.File {
		return irpack.File{
			Schema: irpack.SchemaVersion,
			Module: "bad",
			Funcs:  []irpack.Func{{Name: "f", Type: "i32 (i32)", Params: []string{"x"}, Blocks: blocks}},
		}
	}
	ret := func(arg string) irpack.Instr {
		return irpack.Instr{Op: "ret", Args: []string{arg}}
	}
	tests := []struct {
		name string
		file irpack.File
		want string
	}{
		{
			name: "schema",
			file: irpack.File{Schema: 9},
			want: "unsupported schema version 9 (want 1)",
		},
		{
			name: "unknown op",
			file: fn(irpack.Block{Name: "a", Instrs: []irpack.Instr{{Op: "fadd", Name: "y", Args: []string{"%x", "%x"}}}, Term: ret("%x")}),
			want: `@f, block a, instr 0: unknown instruction "fadd"`,
		},
		{
			name: "undefined operand",
			file: fn(irpack.Block{Name: "a", Term: ret("%nope")}),
			want: "@f, block a, terminator: operand %nope is never defined",
		},
		{
			name: "use before definition",
			file: fn(irpack.Block{Name: "a", Instrs: []irpack.Instr{
				{Op: "add", Name: "y", Args: []string{"%z", "%x"}},
				{Op: "add", Name: "z", Args: []string{"%x", "%x"}},
			}, Term: ret("%y")}),
			want: "@f, block a, instr 0: operand %z is used before its definition",
		},
		{
			name: "cyclic blocks",
			file: fn(
				irpack.Block{Name: "a", Instrs: []irpack.Instr{{Op: "add", Name: "y", Args: []string{"%z", "%x"}}}, Term: ret("%y")},
				irpack.Block{Name: "b", Instrs: []irpack.Instr{{Op: "add", Name: "z", Args: []string{"%y", "%x"}}}, Term: ret("%z")},
			),
			want: "@f, block a, instr 0: operand %z is used before its definition",
		},
		{
			name: "duplicate value",
			file: fn(irpack.Block{Name: "a", Instrs: []irpack.Instr{{Op: "add", Name: "x", Args: []string{"%x", "%x"}}}, Term: ret("%x")}),
			want: "value %x is defined twice",
		},
		{
			name: "duplicate label",
			file: fn(irpack.Block{Name: "a", Term: ret("%x")}, irpack.Block{Name: "a", Term: ret("%x")}),
			want: "label a is used twice",
		},
		{
			name: "unknown label",
			file: fn(irpack.Block{Name: "a", Term: irpack.Instr{Op: "br", Labels: []string{"b"}}}),
			want: "unknown label b",
		},
		{
			name: "missing terminator",
			file: fn(irpack.Block{Name: "a"}),
			want: "block has no terminator",
		},
		{
			name: "untyped constant",
			file: fn(irpack.Block{Name: "a", Term: ret("7")}),
			want: `constant "7" has no type`,
		},
		{
			name: "unknown linkage",
			file: irpack.File{Schema: irpack.SchemaVersion, Funcs: []irpack.Func{{Name: "g", Type: "void ()", Linkage: "weak"}}},
			want: `unknown linkage "weak"`,
		},
		{
			name: "duplicate function",
			file: irpack.File{Schema: irpack.SchemaVersion, Funcs: []irpack.Func{{Name: "g", Type: "void ()"}, {Name: "g", Type: "void ()"}}},
			want: "function g already defined",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := irpack.FromFile(&tt.file)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDecodeSchemaIsSentinel(t *testing.T) {
	_, err := irpack.FromFile(&irpack.File{Schema: 2})
	assert.True(t, errors.Is(err, irpack.ErrSchemaVersion))
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := irpack.Decode(strings.NewReader("schema: 1\nmodule: m\nextra: true\n"), irpack.FormatYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extra")
}

func TestWriteAndReadFile(t *testing.T) {
	dir := t.TempDir()
	m := buildSample(t)
	for _, name := range []string{"out.bcm", "nested/out.yaml"} {
		path := filepath.Join(dir, name)
		format, ok := irpack.FormatFromPath(path)
		require.True(t, ok)
		require.NoError(t, irpack.WriteFile(path, m, format))

		got, err := irpack.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, dump(t, m), dump(t, got))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temporary files are cleaned up")
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]irpack.Format{"msgpack": irpack.FormatMsgpack, "mp": irpack.FormatMsgpack, "YAML": irpack.FormatYAML, "yml": irpack.FormatYAML} {
		got, err := irpack.ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := irpack.ParseFormat("json")
	assert.Error(t, err)
	_, ok := irpack.FormatFromPath("a.ll")
	assert.False(t, ok)
}
