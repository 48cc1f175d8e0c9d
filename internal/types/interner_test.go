package types

import "testing"

func TestInternerBuiltins(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	if b.Void == NoTypeID || b.I32 == NoTypeID {
		t.Fatalf("builtins not initialized")
	}
	i32, _ := in.Lookup(b.I32)
	if i32.Kind != KindInt || i32.Width != Width32 {
		t.Fatalf("expected i32, got %+v", i32)
	}
}

func TestInternerDeduplicatesDescriptors(t *testing.T) {
	in := NewInterner()
	elem := in.Builtins().I8
	arr1 := in.ArrayOf(elem, 4)
	arr2 := in.Intern(MakeArray(elem, 4))
	if arr1 != arr2 {
		t.Fatalf("array types should be deduplicated")
	}
	if in.PointerTo(arr1) != in.PointerTo(arr2) {
		t.Fatalf("pointer types should be deduplicated")
	}
}

func TestStructsAreStructural(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	s1 := in.RegisterStruct([]TypeID{b.I32, b.I32}, false)
	s2 := in.RegisterStruct([]TypeID{b.I32, b.I32}, false)
	packed := in.RegisterStruct([]TypeID{b.I32, b.I32}, true)
	if s1 != s2 {
		t.Fatalf("identical struct shapes must share a TypeID")
	}
	if s1 == packed {
		t.Fatalf("packed and unpacked structs must differ")
	}
}

func TestFnVariadicAffectsIdentity(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	plain := in.RegisterFn([]TypeID{b.I32}, b.Void, false)
	vararg := in.RegisterFn([]TypeID{b.I32}, b.Void, true)
	if plain == vararg {
		t.Fatalf("variadic flag must affect identity")
	}
}

func TestElemAt(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	s := in.RegisterStruct([]TypeID{b.I8, b.I64}, false)
	if got, ok := in.ElemAt(s, 1); !ok || got != b.I64 {
		t.Fatalf("ElemAt(s, 1) = %v, %v", got, ok)
	}
	if _, ok := in.ElemAt(s, 2); ok {
		t.Fatalf("out of range field must fail")
	}
	arr := in.ArrayOf(b.I16, 3)
	if got, ok := in.ElemAt(arr, 7); !ok || got != b.I16 {
		t.Fatalf("array ElemAt ignores the index, got %v, %v", got, ok)
	}
	if in.NumElems(arr) != 3 || in.NumElems(s) != 2 {
		t.Fatalf("NumElems mismatch")
	}
}
