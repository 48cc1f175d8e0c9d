package rebuild

import (
	"errors"

	"fortio.org/safecast"

	"bcrebuild/internal/ir"
)

// rebuildAddress lowers an address computation over nested aggregates
// to arithmetic on a pointer to the base's leaf type. Offsets and
// strides are computed against the original layout; the result is in
// element units of the leaf when every term divides evenly, and in
// bytes otherwise.
func (s *funcScope) rebuildAddress(in *ir.Instr) (*ir.Value, error) {
	resultTy, err := s.run.types.Rebuild(in.Result.Type)
	if err != nil {
		return nil, err
	}
	if in.HasAllZeroIndices() {
		base, err := s.mapValue(in.GEP.Base)
		if err != nil {
			return nil, err
		}
		return s.b.PointerCast(base, resultTy, "rbcast"), nil
	}

	terms, err := ir.DecomposeAddress(in.Result, s.run.layout)
	if errors.Is(err, ir.ErrOffsetOverflow) {
		return nil, &Error{Kind: Overflow, Msg: "address offset does not fit in i64", Err: err}
	}
	if err != nil {
		return nil, &Error{Kind: MalformedInput, Msg: "cannot decompose address", Err: err}
	}
	base, err := s.mapValue(terms.Base)
	if err != nil {
		return nil, err
	}
	baseTy, err := s.run.types.Rebuild(terms.Base.Type)
	if err != nil {
		return nil, err
	}
	elem, ok := s.types().Pointee(baseTy)
	if !ok {
		return nil, errorf(MalformedInput, "address base has non-pointer type %s", s.types().String(terms.Base.Type))
	}
	size, err := s.run.layout.SizeOf(elem)
	if err != nil {
		return nil, &Error{Kind: LayoutInvariantViolation, Msg: "cannot size address element", Err: err}
	}
	divisor := int64(size)

	byteMode := terms.Offset%divisor != 0
	for _, idx := range terms.Indices {
		if idx.Stride%divisor != 0 {
			byteMode = true
			break
		}
	}
	var p *ir.Value
	if byteMode {
		divisor = 1
		p = s.b.PointerCast(base, s.types().PointerTo(s.types().Builtins().I8), "rb.base8")
	} else {
		p = s.b.PointerCast(base, baseTy, "rb.base")
	}
	p, err = s.b.ConstGEP1(p, terms.Offset/divisor, "")
	if err != nil {
		return nil, &Error{Kind: MalformedInput, Msg: "constant offset", Err: err}
	}

	i32 := s.types().Builtins().I32
	var sum *ir.Value
	for _, idx := range terms.Indices {
		scale, err := safecast.Conv[int32](idx.Stride / divisor)
		if err != nil {
			return nil, &Error{Kind: Overflow, Msg: "index scale does not fit in i32", Err: err}
		}
		v, err := s.mapValue(idx.Value)
		if err != nil {
			return nil, err
		}
		if !s.types().IsInteger(v.Type) {
			return nil, errorf(MalformedInput, "address index has type %s", s.types().String(v.Type))
		}
		v = s.b.IntCast(v, i32, "")
		if scale != 1 {
			v = s.b.NSWMul(ir.NewIntConst(s.types(), i32, int64(scale)), v, "")
		}
		if sum == nil {
			sum = v
		} else {
			sum = s.b.NSWAdd(sum, v, "")
		}
	}
	if sum != nil {
		p, err = s.b.GEP(p, []*ir.Value{sum}, "")
		if err != nil {
			return nil, &Error{Kind: MalformedInput, Msg: "scaled index", Err: err}
		}
	}
	return s.b.PointerCast(p, resultTy, in.Result.Name), nil
}
