package diag

import (
	"testing"

	"bcrebuild/internal/source"
)

func TestFormatShort(t *testing.T) {
	diags := []Diagnostic{
		NewError(RebuildUnsupported, source.Pos{File: "./b.ll", Line: 2, Col: 5}, "va_arg\ninstructions are not supported").
			WithNote(source.Pos{File: "b.ll", Line: 1, Col: 1}, "in function @f"),
		New(SevWarning, VerifyRestricted, source.Pos{File: "a.ll", Line: 10, Col: 1}, "stack slot of type {}"),
		NewError(RebuildOverflow, source.Pos{File: "a.ll", Line: 9, Col: 3}, "index scale"),
	}

	want := "error RBD1003 a.ll:9:3 index scale\n" +
		"warning VFY2002 a.ll:10:1 stack slot of type {}\n" +
		"note RBD1001 b.ll:1:1 in function @f\n" +
		"error RBD1001 b.ll:2:5 va_arg instructions are not supported"
	if got := FormatShort(diags, true); got != want {
		t.Fatalf("unexpected short diagnostics:\nwant:\n%s\n\ngot:\n%s", want, got)
	}
}

func TestBagLimitSortDedup(t *testing.T) {
	b := NewBag(3)
	pos := source.Pos{File: "m.ll", Line: 4}
	b.Add(NewError(RebuildLayout, pos, "mixed leaves"))
	b.Add(New(SevInfo, InfoNoChange, source.Pos{File: "m.ll", Line: 1}, "no definitions"))
	b.Add(NewError(RebuildLayout, pos, "mixed leaves"))
	if b.Add(NewError(RebuildOverflow, pos, "late")) {
		t.Fatal("bag accepted a diagnostic beyond its limit")
	}
	if b.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", b.Dropped())
	}

	b.Dedup()
	b.Sort()
	items := b.Items()
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	if items[0].Code != InfoNoChange || items[1].Code != RebuildLayout {
		t.Fatalf("unexpected order: %v, %v", items[0].Code, items[1].Code)
	}
	if !b.HasErrors() || !b.HasWarnings() {
		t.Fatal("expected errors to count as warnings too")
	}
}

func TestBagMergeGrowsLimit(t *testing.T) {
	a, b := NewBag(1), NewBag(2)
	a.Add(NewError(RebuildMalformed, source.Pos{}, "a"))
	b.Add(NewError(RebuildMalformed, source.Pos{}, "b"))
	b.Add(NewError(RebuildMalformed, source.Pos{}, "c"))
	a.Merge(b)
	if a.Len() != 3 || a.Cap() != 3 {
		t.Fatalf("len=%d cap=%d, want 3 and 3", a.Len(), a.Cap())
	}
}

func TestDedupReporter(t *testing.T) {
	bag := NewBag(10)
	r := NewDedupReporter(BagReporter{Bag: bag})
	d := NewError(RebuildOverflow, source.Pos{File: "x.ll", Line: 1, Col: 2}, "scale")
	r.Report(d)
	r.Report(d)
	r.Report(d.WithNote(source.Pos{}, "notes do not matter"))
	r.Report(New(SevWarning, RebuildOverflow, d.Pos, "scale"))
	if bag.Len() != 2 {
		t.Fatalf("len = %d, want 2", bag.Len())
	}
}

func TestCodeID(t *testing.T) {
	tests := map[Code]string{
		RebuildUnsupported: "RBD1001",
		VerifyRestricted:   "VFY2002",
		IODecodeFailed:     "IO3002",
		CfgInvalid:         "CFG4001",
		InfoNoChange:       "INF9001",
		UnknownCode:        "E0000",
	}
	for code, want := range tests {
		if got := code.ID(); got != want {
			t.Errorf("%d.ID() = %q, want %q", code, got, want)
		}
	}
	if got := Code(1999).Title(); got != "Unknown error" {
		t.Errorf("unregistered title = %q", got)
	}
}
