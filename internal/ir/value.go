package ir

import (
	"fmt"

	"bcrebuild/internal/types"
)

// ValueKind distinguishes what a Value refers to.
type ValueKind uint8

const (
	// ValueConst is a constant operand.
	ValueConst ValueKind = iota
	// ValueParam is a function parameter.
	ValueParam
	// ValueInstr is the result of an instruction.
	ValueInstr
	// ValueFunc names a function.
	ValueFunc
)

func (k ValueKind) String() string {
	switch k {
	case ValueConst:
		return "const"
	case ValueParam:
		return "param"
	case ValueInstr:
		return "instr"
	case ValueFunc:
		return "func"
	default:
		return fmt.Sprintf("ValueKind(%d)", k)
	}
}

// Value is an SSA value. Values are compared by identity.
type Value struct {
	Kind ValueKind
	Type types.TypeID
	Name string

	Const Const  // ValueConst
	Index int    // ValueParam: position in the parameter list
	Owner *Func  // ValueParam: declaring function
	Def   *Instr // ValueInstr
	Func  *Func  // ValueFunc
}

// IsConst reports whether v is a constant.
func (v *Value) IsConst() bool {
	return v != nil && v.Kind == ValueConst
}

// IsPhi reports whether v is the result of a phi node.
func (v *Value) IsPhi() bool {
	return v != nil && v.Kind == ValueInstr && v.Def != nil && v.Def.Kind == InstrPhi
}

// ConstKind distinguishes constant kinds.
type ConstKind uint8

const (
	// ConstInt represents an integer constant.
	ConstInt ConstKind = iota
	// ConstNull represents the null pointer.
	ConstNull
	// ConstUndef represents an undefined value of any type.
	ConstUndef
)

// Const is the payload of a constant Value. Integer bits are stored
// truncated to Width; Signed sign-extends them back.
type Const struct {
	Kind  ConstKind
	Bits  uint64
	Width types.Width
}

// Signed returns the integer constant interpreted as two's complement.
func (c Const) Signed() int64 {
	if c.Width == 0 || c.Width >= 64 {
		return int64(c.Bits) //nolint:gosec // two's complement reinterpretation
	}
	shift := 64 - uint(c.Width)
	return int64(c.Bits<<shift) >> shift //nolint:gosec // two's complement reinterpretation
}

// Unsigned returns the integer constant zero-extended.
func (c Const) Unsigned() uint64 {
	return c.Bits
}

// IsZero reports whether the constant is an integer zero or null.
func (c Const) IsZero() bool {
	switch c.Kind {
	case ConstInt:
		return c.Bits == 0
	case ConstNull:
		return true
	default:
		return false
	}
}

func maskBits(v uint64, width types.Width) uint64 {
	if width == 0 || width >= 64 {
		return v
	}
	return v & (uint64(1)<<uint(width) - 1)
}

// NewIntConst makes an integer constant of type ty.
func NewIntConst(in *types.Interner, ty types.TypeID, v int64) *Value {
	w := in.IntWidth(ty)
	return &Value{
		Kind: ValueConst,
		Type: ty,
		Const: Const{
			Kind:  ConstInt,
			Bits:  maskBits(uint64(v), w), //nolint:gosec // two's complement reinterpretation
			Width: w,
		},
	}
}

// NewNull makes the null constant of pointer type ty.
func NewNull(ty types.TypeID) *Value {
	return &Value{Kind: ValueConst, Type: ty, Const: Const{Kind: ConstNull}}
}

// NewUndef makes an undefined constant of type ty.
func NewUndef(ty types.TypeID) *Value {
	return &Value{Kind: ValueConst, Type: ty, Const: Const{Kind: ConstUndef}}
}

// ConstIntValue returns the signed value of an integer constant.
func ConstIntValue(v *Value) (int64, bool) {
	if !v.IsConst() || v.Const.Kind != ConstInt {
		return 0, false
	}
	return v.Const.Signed(), true
}
