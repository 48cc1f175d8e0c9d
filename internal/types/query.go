package types

// IsInteger reports whether id is an integer type.
func (in *Interner) IsInteger(id TypeID) bool {
	return in.KindOf(id) == KindInt
}

// IsPointer reports whether id is a pointer type.
func (in *Interner) IsPointer(id TypeID) bool {
	return in.KindOf(id) == KindPointer
}

// IsAggregate reports whether id is a struct or an array.
func (in *Interner) IsAggregate(id TypeID) bool {
	switch in.KindOf(id) {
	case KindStruct, KindArray:
		return true
	default:
		return false
	}
}

// Pointee returns the element type of a pointer.
func (in *Interner) Pointee(id TypeID) (TypeID, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindPointer {
		return NoTypeID, false
	}
	return tt.Elem, true
}

// IntWidth returns the bit width of an integer type, or 0.
func (in *Interner) IntWidth(id TypeID) Width {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindInt {
		return 0
	}
	return tt.Width
}

// NumElems returns the number of directly indexable sub-elements of a
// struct or array type.
func (in *Interner) NumElems(id TypeID) int {
	tt, ok := in.Lookup(id)
	if !ok {
		return 0
	}
	switch tt.Kind {
	case KindArray:
		return int(tt.Count)
	case KindStruct:
		info, ok := in.StructInfo(id)
		if !ok {
			return 0
		}
		return len(info.Fields)
	default:
		return 0
	}
}

// ElemAt returns the type of sub-element idx of a composite type. Pointers
// count as composites whose every sub-element is the pointee, and arrays
// accept any index because their elements share one type.
func (in *Interner) ElemAt(id TypeID, idx int) (TypeID, bool) {
	tt, ok := in.Lookup(id)
	if !ok {
		return NoTypeID, false
	}
	switch tt.Kind {
	case KindPointer, KindArray:
		return tt.Elem, true
	case KindStruct:
		info, ok := in.StructInfo(id)
		if !ok || idx < 0 || idx >= len(info.Fields) {
			return NoTypeID, false
		}
		return info.Fields[idx], true
	default:
		return NoTypeID, false
	}
}
