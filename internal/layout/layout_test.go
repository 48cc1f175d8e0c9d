package layout_test

import (
	"errors"
	"testing"

	"bcrebuild/internal/layout"
	"bcrebuild/internal/types"
)

func TestLayoutEngine_Scalars(t *testing.T) {
	in := types.NewInterner()
	le := layout.New(layout.Bytecode64(), in)
	tests := []struct {
		src   string
		size  int
		align int
	}{
		{"i1", 1, 1},
		{"i8", 1, 1},
		{"i16", 2, 2},
		{"i24", 4, 4},
		{"i32", 4, 4},
		{"i64", 8, 8},
		{"i8*", 8, 8},
		{"double", 8, 8},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			l, err := le.LayoutOf(in.MustParse(tt.src))
			if err != nil {
				t.Fatalf("LayoutOf(%s): %v", tt.src, err)
			}
			if l.Size != tt.size || l.Align != tt.align {
				t.Fatalf("LayoutOf(%s) = size %d align %d, want %d/%d", tt.src, l.Size, l.Align, tt.size, tt.align)
			}
		})
	}
}

func TestLayoutEngine_StructPadding(t *testing.T) {
	in := types.NewInterner()
	le := layout.New(layout.Bytecode64(), in)

	s := in.MustParse("{ i8, i32, i8 }")
	l, err := le.LayoutOf(s)
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	if l.Size != 12 || l.Align != 4 {
		t.Fatalf("expected size=12 align=4, got size=%d align=%d", l.Size, l.Align)
	}
	want := []int{0, 4, 8}
	for i, off := range want {
		got, err := le.FieldOffset(s, i)
		if err != nil || got != off {
			t.Fatalf("field %d offset = %d (%v), want %d", i, got, err, off)
		}
	}

	packed := in.MustParse("<{ i8, i32, i8 }>")
	pl, err := le.LayoutOf(packed)
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	if pl.Size != 6 || pl.Align != 1 {
		t.Fatalf("packed: expected size=6 align=1, got size=%d align=%d", pl.Size, pl.Align)
	}
}

func TestLayoutEngine_NestedArrays(t *testing.T) {
	in := types.NewInterner()
	le := layout.New(layout.Bytecode64(), in)
	size, err := le.SizeOf(in.MustParse("[2 x { i32, [3 x i32] }]"))
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	if size != 32 {
		t.Fatalf("expected 32 bytes, got %d", size)
	}
}

func TestLayoutEngine_IntAlignOverride(t *testing.T) {
	in := types.NewInterner()
	le := layout.New(layout.Bytecode32(), in)
	l, err := le.LayoutOf(in.MustParse("{ i32, i64 }"))
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	if l.Size != 12 || l.Align != 4 {
		t.Fatalf("expected size=12 align=4 on a 32-bit target, got size=%d align=%d", l.Size, l.Align)
	}
	if p, _ := le.SizeOf(in.MustParse("i8*")); p != 4 {
		t.Fatalf("expected 4-byte pointers, got %d", p)
	}
}

func TestLayoutEngine_UnsizedReportsError(t *testing.T) {
	in := types.NewInterner()
	le := layout.New(layout.Bytecode64(), in)
	for _, src := range []string{"void", "i32 (i32)", "{ i32, void }"} {
		_, err := le.LayoutOf(in.MustParse(src))
		if err == nil {
			t.Fatalf("expected layout error for %s, got nil", src)
		}
		var lerr *layout.LayoutError
		if !errors.As(err, &lerr) {
			t.Fatalf("expected *layout.LayoutError, got %T (%v)", err, err)
		}
		if lerr.Kind != layout.LayoutErrUnsized {
			t.Fatalf("expected LayoutErrUnsized, got kind=%d (%v)", lerr.Kind, lerr)
		}
	}
}
