package diagfmt

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"bcrebuild/internal/diag"
	"bcrebuild/internal/source"
)

func sampleBag() *diag.Bag {
	bag := diag.NewBag(10)
	bag.Add(diag.NewError(diag.RebuildUnsupported, source.Pos{File: "/work/mods/a.ll", Line: 3, Col: 3},
		"stack allocation with a variable size").
		At("f", "%buf = alloca i32, i32 %n").
		WithNote(source.Pos{File: "/work/mods/a.ll", Line: 1, Col: 1}, "function declared here"))
	bag.Add(diag.New(diag.SevWarning, diag.InfoNoChange, source.Pos{File: "/work/mods/b.ll"}, "nothing to rebuild"))
	return bag
}

func TestPrettyPlain(t *testing.T) {
	var buf bytes.Buffer
	err := Pretty(&buf, sampleBag(), PrettyOpts{
		PathMode:  PathModeRelative,
		BaseDir:   "/work",
		ShowNotes: true,
		ShowInstr: true,
		Summary:   true,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "mods/a.ll:3:3: ERROR RBD1001: stack allocation with a variable size\n" +
		"    in @f: %buf = alloca i32, i32 %n\n" +
		"    note: mods/a.ll:1:1: function declared here\n" +
		"mods/b.ll: WARNING INF9001: nothing to rebuild\n" +
		"1 error, 1 warning\n"
	if got := buf.String(); got != want {
		t.Fatalf("unexpected output:\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestPathModes(t *testing.T) {
	tests := []struct {
		mode PathMode
		want string
	}{
		{PathModeAuto, "/work/mods/a.ll:3:3"},
		{PathModeRelative, "mods/a.ll:3:3"},
		{PathModeBasename, "a.ll:3:3"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := Pretty(&buf, sampleBag(), PrettyOpts{PathMode: tt.mode, BaseDir: "/work"}); err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(buf.String(), tt.want+": ") {
			t.Errorf("mode %d: output %q does not start with %q", tt.mode, buf.String(), tt.want)
		}
	}
}

func TestPrettyColorAddsEscapes(t *testing.T) {
	var buf bytes.Buffer
	if err := Pretty(&buf, sampleBag(), PrettyOpts{Color: true}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("expected ANSI escapes in %q", buf.String())
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, sampleBag(), JSONOpts{PathMode: PathModeBasename, Max: 1, IncludeNotes: true}); err != nil {
		t.Fatal(err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 1 || out.Dropped != 1 {
		t.Fatalf("count=%d dropped=%d, want 1 and 1", out.Count, out.Dropped)
	}
	d := out.Diagnostics[0]
	if d.Code != "RBD1001" || d.Func != "f" || d.Location.File != "a.ll" || d.Location.Line != 3 {
		t.Fatalf("unexpected diagnostic: %+v", d)
	}
	if len(d.Notes) != 1 || d.Notes[0].Message != "function declared here" {
		t.Fatalf("unexpected notes: %+v", d.Notes)
	}
}

func TestStatsTableAlignsWideNames(t *testing.T) {
	rows := []StatsRow{
		{Name: "main", Blocks: 3, InstrsBefore: 10, InstrsAfter: 14, Casts: 4},
		{Name: "計算", Blocks: 1, InstrsBefore: 2, InstrsAfter: 2},
		{Name: "a_function_with_a_very_long_name", Blocks: 2},
	}
	total := StatsRow{Name: "total", Blocks: 6, InstrsBefore: 12, InstrsAfter: 16, Casts: 4}
	var buf bytes.Buffer
	if err := StatsTable(&buf, rows, &total, TableOpts{NameWidth: 12}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	want := runewidth.StringWidth(lines[0])
	for i, l := range lines {
		if i == 4 {
			continue // separator
		}
		if got := runewidth.StringWidth(l); got != want {
			t.Errorf("line %d has width %d, want %d: %q", i, got, want, l)
		}
	}
	if !strings.HasPrefix(lines[3], "a_functio...") {
		t.Errorf("long name not truncated: %q", lines[3])
	}
}
