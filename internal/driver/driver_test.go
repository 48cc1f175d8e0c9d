package driver_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bcrebuild/internal/config"
	"bcrebuild/internal/diag"
	"bcrebuild/internal/driver"
	"bcrebuild/internal/ir"
	"bcrebuild/internal/irpack"
	"bcrebuild/internal/source"
	"bcrebuild/internal/trace"
)

const fieldLoad = `schema: 1
module: good
funcs:
  - name: second
    type: i32 ({ i32, i32 }*)
    params: [p]
    blocks:
      - name: entry
        instrs:
          - {op: getelementptr, name: f, args: ["%p", "i32 0", "i32 1"], line: 2, col: 3}
          - {op: load, name: v, args: ["%f"], line: 3, col: 3}
        term: {op: ret, args: ["%v"], line: 4, col: 3}
`

const variableAlloca = `schema: 1
module: bad
funcs:
  - name: f
    type: void (i32)
    params: [n]
    blocks:
      - name: entry
        instrs:
          - {op: alloca, name: buf, type: i32, args: ["%n"], line: 3, col: 3}
        term: {op: ret}
`

const onlyDeclarations = `schema: 1
module: decls
funcs:
  - {name: ext, type: "void ({ i8, i8 }*)"}
`

func writeInput(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func codes(bag *diag.Bag) []diag.Code {
	var out []diag.Code
	for _, d := range bag.Items() {
		out = append(out, d.Code)
	}
	return out
}

func TestRebuildFileWritesOutput(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "good.yaml", fieldLoad)

	res := driver.RebuildFile(context.Background(), in, driver.Options{Config: config.Default(), MaxDiagnostics: 10})
	require.False(t, res.Failed(), "%v", res.Bag.Items())
	assert.True(t, res.Changed)
	assert.Equal(t, filepath.Join(dir, "good.rebuilt.bcm"), res.OutPath)

	out, err := irpack.ReadFile(res.OutPath)
	require.NoError(t, err)
	require.NoError(t, ir.ValidateRestricted(out))
	f := out.Func("second")
	require.NotNil(t, f)
	assert.Equal(t, "i32 (i32*)", out.Types.String(f.Type))

	rows, total := driver.StatsRows(res.Stats)
	require.Len(t, rows, 1)
	assert.Equal(t, "second", rows[0].Name)
	assert.Equal(t, 1, rows[0].Blocks)
	assert.Equal(t, "total", total.Name)

	var phases []string
	for _, p := range res.Timings.Phases {
		phases = append(phases, p.Name)
	}
	assert.Equal(t, []string{"load", "rebuild", "write"}, phases)
	assert.Equal(t, "1 funcs", res.Timings.Phases[0].Note)
}

func TestRebuildFileReportsPassError(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "bad.yaml", variableAlloca)

	res := driver.RebuildFile(context.Background(), in, driver.Options{Config: config.Default(), MaxDiagnostics: 10})
	require.True(t, res.Failed())
	require.Equal(t, 1, res.Bag.Len())
	d := res.Bag.Items()[0]
	assert.Equal(t, diag.RebuildUnsupported, d.Code)
	assert.Equal(t, "stack allocation with a variable size", d.Message)
	assert.Equal(t, source.Pos{File: "bad.yaml", Line: 3, Col: 3}, d.Pos)
	assert.Equal(t, "f", d.Func)
	assert.Equal(t, "%buf = alloca i32, i32 %n", d.Instr)

	assert.Empty(t, res.OutPath)
	_, err := os.Stat(filepath.Join(dir, "bad.rebuilt.bcm"))
	assert.True(t, os.IsNotExist(err))
}

func TestRebuildFileTextAndDryRun(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "good.yaml", fieldLoad)
	cfg := config.Default()
	cfg.Format = config.FormatText

	res := driver.RebuildFile(context.Background(), in, driver.Options{Config: cfg, DryRun: true})
	require.False(t, res.Failed())
	assert.Empty(t, res.OutPath)
	_, err := os.Stat(filepath.Join(dir, "good.rebuilt.ll"))
	assert.True(t, os.IsNotExist(err))

	out := filepath.Join(dir, "custom", "out.ll")
	res = driver.RebuildFile(context.Background(), in, driver.Options{Config: cfg, OutPath: out})
	require.False(t, res.Failed())
	assert.Equal(t, out, res.OutPath)
	text, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(text), "define internal i32 @second(i32* %p)")
}

func TestRebuildFileOnlyDeclarations(t *testing.T) {
	in := writeInput(t, t.TempDir(), "decls.yaml", onlyDeclarations)
	res := driver.RebuildFile(context.Background(), in, driver.Options{Config: config.Default(), MaxDiagnostics: 10, DryRun: true})
	require.False(t, res.Failed())
	assert.False(t, res.Changed)
	assert.Equal(t, []diag.Code{diag.InfoNoChange}, codes(res.Bag))
}

func TestLoadDiagnostics(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		body string // empty: file is not created
		code diag.Code
		want string
	}{
		{name: "missing.yaml", code: diag.IOReadFailed, want: "failed to read module"},
		{name: "future.yaml", body: "schema: 7\nmodule: m\n", code: diag.IOSchemaVersion, want: "unsupported schema version 7"},
		{name: "garbage.yaml", body: "schema: [\n", code: diag.IODecodeFailed},
		{
			name: "undefined.yaml",
			body: "schema: 1\nmodule: m\nfuncs:\n  - name: f\n    type: i32 ()\n    blocks:\n      - name: entry\n        term: {op: ret, args: [\"%x\"], line: 9}\n",
			code: diag.IODecodeFailed,
			want: "block entry: operand %x is never defined",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if tt.body != "" {
				writeInput(t, dir, tt.name, tt.body)
			}
			bag := diag.NewBag(10)
			m := driver.LoadModule(context.Background(), path, bag)
			assert.Nil(t, m)
			require.Equal(t, 1, bag.Len())
			d := bag.Items()[0]
			assert.Equal(t, tt.code, d.Code)
			assert.Contains(t, d.Message, tt.want)
		})
	}
}

func TestRebuildFilesBatch(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "a.yaml", fieldLoad)
	writeInput(t, dir, "sub/b.yaml", fieldLoad)
	writeInput(t, dir, "c.yaml", variableAlloca)
	writeInput(t, dir, "notes.txt", "not a module")

	paths, err := driver.ExpandInputs([]string{dir})
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "c.yaml"),
		filepath.Join(dir, "sub", "b.yaml"),
	}, paths)

	results, err := driver.RebuildFiles(context.Background(), paths, driver.Options{Config: config.Default(), Jobs: 2, MaxDiagnostics: 10})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.False(t, results[0].Failed())
	assert.True(t, results[1].Failed())
	assert.False(t, results[2].Failed())
	assert.Equal(t, filepath.Join(dir, "sub", "b.rebuilt.bcm"), results[2].OutPath)

	merged := driver.MergeBags(results, 10)
	assert.Equal(t, []diag.Code{diag.RebuildUnsupported}, codes(merged))

	again, err := driver.ExpandInputs([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, paths, again, "rebuilt outputs are not picked up as inputs")
}

func TestRebuildFilesRejectsOutPathForBatch(t *testing.T) {
	_, err := driver.RebuildFiles(context.Background(), []string{"a.yaml", "b.yaml"}, driver.Options{OutPath: "x.bcm"})
	assert.ErrorIs(t, err, driver.ErrOutPathWithManyInputs)
}

func TestRebuildFilesCancelled(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeInput(t, dir, "a.yaml", fieldLoad),
		writeInput(t, dir, "b.yaml", fieldLoad),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := driver.RebuildFiles(ctx, paths, driver.Options{Config: config.Default(), Jobs: 1, MaxDiagnostics: 10})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	for _, r := range results {
		require.True(t, r.Failed())
		assert.Equal(t, []diag.Code{diag.RebuildCancelled}, codes(r.Bag))
		assert.Empty(t, r.OutPath)
	}
}

func TestRebuildFileTraceSpans(t *testing.T) {
	in := writeInput(t, t.TempDir(), "good.yaml", fieldLoad)
	ring := trace.NewRingTracer(256, trace.LevelDebug)
	ctx := trace.WithTracer(context.Background(), ring)

	res := driver.RebuildFile(ctx, in, driver.Options{Config: config.Default(), DryRun: true})
	require.False(t, res.Failed())

	var names []string
	for _, ev := range ring.Snapshot() {
		if ev.Kind == trace.KindSpanBegin {
			names = append(names, ev.Name)
		}
	}
	joined := strings.Join(names, ",")
	assert.True(t, strings.HasPrefix(joined, "rebuild-file,load,"), joined)
	assert.Contains(t, names, "verify")
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		in   string
		out  config.Output
		want string
	}{
		{"mods/a.yaml", config.Output{Format: config.FormatMsgpack}, filepath.Join("mods", "a.rebuilt.bcm")},
		{"mods/a.bcm", config.Output{Format: config.FormatYAML}, filepath.Join("mods", "a.rebuilt.yaml")},
		{"a.bcm", config.Output{Format: config.FormatText, Dir: "build"}, filepath.Join("build", "a.rebuilt.ll")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, driver.OutputPath(tt.in, tt.out), tt.in)
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events map[string][]driver.Event
}

func (s *recordingSink) OnEvent(ev driver.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == nil {
		s.events = make(map[string][]driver.Event)
	}
	s.events[ev.File] = append(s.events[ev.File], ev)
}

func TestRebuildFilesReportsProgress(t *testing.T) {
	dir := t.TempDir()
	good := writeInput(t, dir, "a.yaml", fieldLoad)
	bad := writeInput(t, dir, "c.yaml", variableAlloca)
	sink := &recordingSink{}

	_, err := driver.RebuildFiles(context.Background(), []string{good, bad}, driver.Options{
		Config:   config.Default(),
		Jobs:     2,
		Progress: sink,
	})
	require.NoError(t, err)

	steps := func(evs []driver.Event) []string {
		var out []string
		for _, ev := range evs {
			out = append(out, string(ev.Stage)+":"+string(ev.Status))
		}
		return out
	}
	assert.Equal(t, []string{
		"load:queued", "load:working", "rebuild:working", "write:working", "write:done",
	}, steps(sink.events[good]))
	assert.Equal(t, []string{
		"load:queued", "load:working", "rebuild:working", "rebuild:error",
	}, steps(sink.events[bad]))

	last := sink.events[bad][len(sink.events[bad])-1]
	require.Error(t, last.Err)
	assert.Contains(t, last.Err.Error(), "RBD1001")
	assert.Positive(t, sink.events[good][len(sink.events[good])-1].Elapsed)
}
