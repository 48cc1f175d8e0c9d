package ir

import (
	"bcrebuild/internal/layout"
	"bcrebuild/internal/types"
)

// Folder folds instructions whose operands are all constants. Methods
// return nil when nothing folds.
type Folder struct {
	Types  *types.Interner
	Layout *layout.Engine
}

// NewFolder returns a folder over the given layout engine.
func NewFolder(eng *layout.Engine) *Folder {
	return &Folder{Types: eng.Types, Layout: eng}
}

func intConsts(x, y *Value) (Const, Const, bool) {
	if !x.IsConst() || !y.IsConst() {
		return Const{}, Const{}, false
	}
	if x.Const.Kind != ConstInt || y.Const.Kind != ConstInt || x.Type != y.Type {
		return Const{}, Const{}, false
	}
	return x.Const, y.Const, true
}

func (f *Folder) intResult(ty types.TypeID, bits uint64) *Value {
	return NewIntConst(f.Types, ty, int64(bits)) //nolint:gosec // two's complement reinterpretation
}

// Binary folds an integer binary operator.
func (f *Folder) Binary(op BinOp, x, y *Value) *Value {
	a, b, ok := intConsts(x, y)
	if !ok {
		return nil
	}
	w := uint64(a.Width)
	var r uint64
	switch op {
	case BinAdd:
		r = a.Bits + b.Bits
	case BinSub:
		r = a.Bits - b.Bits
	case BinMul:
		r = a.Bits * b.Bits
	case BinUDiv:
		if b.Bits == 0 {
			return nil
		}
		r = a.Bits / b.Bits
	case BinURem:
		if b.Bits == 0 {
			return nil
		}
		r = a.Bits % b.Bits
	case BinSDiv, BinSRem:
		sa, sb := a.Signed(), b.Signed()
		if sb == 0 {
			return nil
		}
		if sb == -1 && sa == minSigned(a.Width) {
			return nil
		}
		if op == BinSDiv {
			r = uint64(sa / sb) //nolint:gosec // two's complement reinterpretation
		} else {
			r = uint64(sa % sb) //nolint:gosec // two's complement reinterpretation
		}
	case BinShl, BinLShr, BinAShr:
		if b.Bits >= w {
			return nil
		}
		switch op {
		case BinShl:
			r = a.Bits << b.Bits
		case BinLShr:
			r = a.Bits >> b.Bits
		default:
			r = uint64(a.Signed() >> b.Bits) //nolint:gosec // two's complement reinterpretation
		}
	case BinAnd:
		r = a.Bits & b.Bits
	case BinOr:
		r = a.Bits | b.Bits
	case BinXor:
		r = a.Bits ^ b.Bits
	default:
		return nil
	}
	return f.intResult(x.Type, r)
}

func minSigned(w types.Width) int64 {
	if w == 0 || w >= 64 {
		return -1 << 63
	}
	return -1 << (uint(w) - 1)
}

// ICmp folds a comparison of two constants into an i1.
func (f *Folder) ICmp(pred Predicate, x, y *Value) *Value {
	i1 := f.Types.Builtins().I1
	if x.IsConst() && y.IsConst() && x.Const.Kind == ConstNull && y.Const.Kind == ConstNull {
		switch pred {
		case PredEQ, PredUGE, PredULE, PredSGE, PredSLE:
			return NewIntConst(f.Types, i1, 1)
		default:
			return NewIntConst(f.Types, i1, 0)
		}
	}
	a, b, ok := intConsts(x, y)
	if !ok {
		return nil
	}
	sa, sb := a.Signed(), b.Signed()
	var res bool
	switch pred {
	case PredEQ:
		res = a.Bits == b.Bits
	case PredNE:
		res = a.Bits != b.Bits
	case PredUGT:
		res = a.Bits > b.Bits
	case PredUGE:
		res = a.Bits >= b.Bits
	case PredULT:
		res = a.Bits < b.Bits
	case PredULE:
		res = a.Bits <= b.Bits
	case PredSGT:
		res = sa > sb
	case PredSGE:
		res = sa >= sb
	case PredSLT:
		res = sa < sb
	case PredSLE:
		res = sa <= sb
	default:
		return nil
	}
	if res {
		return NewIntConst(f.Types, i1, 1)
	}
	return NewIntConst(f.Types, i1, 0)
}

// Cast folds a conversion of a constant.
func (f *Folder) Cast(op CastOp, x *Value, to types.TypeID) *Value {
	if !x.IsConst() {
		return nil
	}
	switch x.Const.Kind {
	case ConstUndef:
		return NewUndef(to)
	case ConstNull:
		switch op {
		case CastBitCast:
			return NewNull(to)
		case CastPtrToInt:
			return NewIntConst(f.Types, to, 0)
		}
		return nil
	}
	switch op {
	case CastTrunc, CastZExt:
		if !f.Types.IsInteger(to) {
			return nil
		}
		return f.intResult(to, x.Const.Bits)
	case CastSExt:
		if !f.Types.IsInteger(to) {
			return nil
		}
		return NewIntConst(f.Types, to, x.Const.Signed())
	case CastBitCast:
		if x.Type == to {
			return x
		}
	case CastIntToPtr:
		if f.Layout == nil {
			return nil
		}
		ptrBits := f.Layout.Target.PtrSize * 8
		if maskBits(x.Const.Bits, types.Width(ptrBits)) == 0 { //nolint:gosec // pointer sizes are small
			return NewNull(to)
		}
	}
	return nil
}

// Select folds a select on a constant condition.
func (f *Folder) Select(cond, x, y *Value) *Value {
	if !cond.IsConst() || cond.Const.Kind != ConstInt {
		return nil
	}
	if cond.Const.Bits != 0 {
		return x
	}
	return y
}
