package layout

import (
	"fortio.org/safecast"

	"bcrebuild/internal/types"
)

func (e *Engine) computeLayout(id types.TypeID) (TypeLayout, *LayoutError) {
	typesIn := e.Types
	if typesIn == nil {
		return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrUnknownType, Type: id}
	}
	tt, ok := typesIn.Lookup(id)
	if !ok {
		return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrUnknownType, Type: id}
	}

	switch tt.Kind {
	case types.KindInt:
		return e.intLayout(tt.Width), nil

	case types.KindFloat:
		return scalarLayoutBytes(int(tt.Width) / 8), nil

	case types.KindPointer:
		return e.ptrLayout(), nil

	case types.KindArray:
		return e.arrayLayout(id, tt.Elem, tt.Count)

	case types.KindStruct:
		return e.structLayout(id)

	default:
		return TypeLayout{Size: 0, Align: 1}, &LayoutError{
			Kind: LayoutErrUnsized,
			Type: id,
			Name: typesIn.String(id),
		}
	}
}

func (e *Engine) ptrLayout() TypeLayout {
	ptrSize := e.Target.PtrSize
	ptrAlign := e.Target.PtrAlign
	if ptrSize <= 0 {
		ptrSize = 8
	}
	if ptrAlign <= 0 {
		ptrAlign = ptrSize
	}
	return TypeLayout{Size: ptrSize, Align: ptrAlign}
}

// intLayout stores iN in the smallest power-of-two number of bytes that
// holds N bits.
func (e *Engine) intLayout(width types.Width) TypeLayout {
	bytes := (int(width) + 7) / 8
	size := 1
	for size < bytes {
		size <<= 1
	}
	l := scalarLayoutBytes(size)
	if a, ok := e.Target.IntAlign[width]; ok && a > 0 {
		l.Align = a
		l.Size = roundUp(size, a)
	}
	return l
}

func scalarLayoutBytes(size int) TypeLayout {
	if size <= 0 {
		return TypeLayout{Size: 0, Align: 1}
	}
	return TypeLayout{Size: size, Align: size}
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	r := n % align
	if r == 0 {
		return n
	}
	return n + (align - r)
}

func (e *Engine) arrayLayout(id, elem types.TypeID, length uint32) (TypeLayout, *LayoutError) {
	elemLayout, err := e.layoutOf(elem)
	if err != nil {
		return TypeLayout{Size: 0, Align: 1}, err
	}
	elemAlign := elemLayout.Align
	if elemAlign <= 0 {
		elemAlign = 1
	}
	stride := roundUp(elemLayout.Size, elemAlign)
	n, convErr := safecast.Conv[int](length)
	if convErr != nil {
		return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrSizeOverflow, Type: id, Err: convErr}
	}
	size := stride * n
	if n != 0 && size/n != stride {
		return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrSizeOverflow, Type: id, Name: e.Types.String(id)}
	}
	return TypeLayout{
		Size:  size,
		Align: elemAlign,
	}, nil
}

func (e *Engine) structLayout(id types.TypeID) (TypeLayout, *LayoutError) {
	info, ok := e.Types.StructInfo(id)
	if !ok || info == nil || len(info.Fields) == 0 {
		return TypeLayout{Size: 0, Align: 1}, nil
	}
	fields := info.Fields
	offsets := make([]int, len(fields))

	size := 0
	align := 1
	for i, f := range fields {
		fl, err := e.layoutOf(f)
		if err != nil {
			return TypeLayout{Size: 0, Align: 1}, err
		}
		fAlign := fl.Align
		if info.Packed || fAlign <= 0 {
			fAlign = 1
		}
		size = roundUp(size, fAlign)
		offsets[i] = size
		size += fl.Size
		align = max(align, fAlign)
	}
	size = roundUp(size, align)
	return TypeLayout{
		Size:         size,
		Align:        align,
		FieldOffsets: offsets,
	}, nil
}
