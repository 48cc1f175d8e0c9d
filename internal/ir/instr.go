package ir

import (
	"fmt"

	"bcrebuild/internal/source"
	"bcrebuild/internal/types"
)

// InstrKind enumerates non-terminator instruction kinds.
type InstrKind uint8

const (
	// InstrInvalid is the zero kind.
	InstrInvalid InstrKind = iota
	// InstrAlloca reserves stack storage.
	InstrAlloca
	// InstrLoad reads through a pointer.
	InstrLoad
	// InstrStore writes through a pointer.
	InstrStore
	// InstrGEP computes an address from a base pointer and indices.
	InstrGEP
	// InstrICmp compares two integers or pointers.
	InstrICmp
	// InstrPhi merges values from predecessor blocks.
	InstrPhi
	// InstrCast converts a value to another type.
	InstrCast
	// InstrSelect picks one of two values.
	InstrSelect
	// InstrCall calls a function.
	InstrCall
	// InstrBinary applies an integer binary operator.
	InstrBinary
	// InstrVAArg reads the next variadic argument.
	InstrVAArg
	// InstrExtractValue reads an aggregate member.
	InstrExtractValue
	// InstrInsertValue writes an aggregate member.
	InstrInsertValue
)

func (k InstrKind) String() string {
	switch k {
	case InstrAlloca:
		return "alloca"
	case InstrLoad:
		return "load"
	case InstrStore:
		return "store"
	case InstrGEP:
		return "getelementptr"
	case InstrICmp:
		return "icmp"
	case InstrPhi:
		return "phi"
	case InstrCast:
		return "cast"
	case InstrSelect:
		return "select"
	case InstrCall:
		return "call"
	case InstrBinary:
		return "binary"
	case InstrVAArg:
		return "va_arg"
	case InstrExtractValue:
		return "extractvalue"
	case InstrInsertValue:
		return "insertvalue"
	default:
		return fmt.Sprintf("InstrKind(%d)", k)
	}
}

// Instr is a non-terminator instruction. Exactly one payload field,
// selected by Kind, is meaningful.
type Instr struct {
	Kind   InstrKind
	Result *Value // nil for instructions without a result
	Block  *Block
	Pos    source.Pos

	Alloca    AllocaInstr
	Load      LoadInstr
	Store     StoreInstr
	GEP       GEPInstr
	ICmp      ICmpInstr
	Phi       PhiInstr
	Cast      CastInstr
	Select    SelectInstr
	Call      CallInstr
	Binary    BinaryInstr
	VAArg     VAArgInstr
	Aggregate AggregateInstr
}

// AllocaInstr reserves Count elements of Elem. A nil Count means one.
type AllocaInstr struct {
	Elem  types.TypeID
	Count *Value
}

type LoadInstr struct {
	Ptr *Value
}

type StoreInstr struct {
	Val *Value
	Ptr *Value
}

// GEPInstr computes Base + indices scaled by the layout of the types
// they step through.
type GEPInstr struct {
	Base     *Value
	Indices  []*Value
	Inbounds bool
}

// Predicate is an integer comparison predicate.
type Predicate uint8

const (
	PredEQ Predicate = iota
	PredNE
	PredUGT
	PredUGE
	PredULT
	PredULE
	PredSGT
	PredSGE
	PredSLT
	PredSLE
)

var predicateNames = [...]string{"eq", "ne", "ugt", "uge", "ult", "ule", "sgt", "sge", "slt", "sle"}

func (p Predicate) String() string {
	if int(p) < len(predicateNames) {
		return predicateNames[p]
	}
	return fmt.Sprintf("Predicate(%d)", p)
}

// ParsePredicate returns the predicate with the given mnemonic.
func ParsePredicate(s string) (Predicate, bool) {
	for i, name := range predicateNames {
		if name == s {
			return Predicate(i), true //nolint:gosec // bounded by table size
		}
	}
	return 0, false
}

type ICmpInstr struct {
	Pred Predicate
	X    *Value
	Y    *Value
}

// PhiEdge is one incoming (value, predecessor) pair.
type PhiEdge struct {
	Value *Value
	Block *Block
}

type PhiInstr struct {
	Incoming []PhiEdge
}

// CastOp is a conversion opcode.
type CastOp uint8

const (
	CastTrunc CastOp = iota
	CastZExt
	CastSExt
	CastBitCast
	CastPtrToInt
	CastIntToPtr
)

var castNames = [...]string{"trunc", "zext", "sext", "bitcast", "ptrtoint", "inttoptr"}

func (op CastOp) String() string {
	if int(op) < len(castNames) {
		return castNames[op]
	}
	return fmt.Sprintf("CastOp(%d)", op)
}

// ParseCastOp returns the cast opcode with the given mnemonic.
func ParseCastOp(s string) (CastOp, bool) {
	for i, name := range castNames {
		if name == s {
			return CastOp(i), true //nolint:gosec // bounded by table size
		}
	}
	return 0, false
}

type CastInstr struct {
	Op CastOp
	X  *Value
}

type SelectInstr struct {
	Cond *Value
	X    *Value
	Y    *Value
}

type CallInstr struct {
	Callee *Func
	Args   []*Value
}

// BinOp is an integer binary opcode.
type BinOp uint8

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinUDiv
	BinSDiv
	BinURem
	BinSRem
	BinShl
	BinLShr
	BinAShr
	BinAnd
	BinOr
	BinXor
)

var binNames = [...]string{"add", "sub", "mul", "udiv", "sdiv", "urem", "srem", "shl", "lshr", "ashr", "and", "or", "xor"}

func (op BinOp) String() string {
	if int(op) < len(binNames) {
		return binNames[op]
	}
	return fmt.Sprintf("BinOp(%d)", op)
}

// ParseBinOp returns the binary opcode with the given mnemonic.
func ParseBinOp(s string) (BinOp, bool) {
	for i, name := range binNames {
		if name == s {
			return BinOp(i), true //nolint:gosec // bounded by table size
		}
	}
	return 0, false
}

type BinaryInstr struct {
	Op  BinOp
	X   *Value
	Y   *Value
	NSW bool
	NUW bool
}

type VAArgInstr struct {
	List *Value
}

// AggregateInstr backs extractvalue (Elem unused) and insertvalue.
type AggregateInstr struct {
	Agg     *Value
	Elem    *Value
	Indices []uint32
}

// Operands returns the value operands of the instruction in order.
// Phi operands are the incoming values.
func (in *Instr) Operands() []*Value {
	if in == nil {
		return nil
	}
	switch in.Kind {
	case InstrAlloca:
		if in.Alloca.Count != nil {
			return []*Value{in.Alloca.Count}
		}
		return nil
	case InstrLoad:
		return []*Value{in.Load.Ptr}
	case InstrStore:
		return []*Value{in.Store.Val, in.Store.Ptr}
	case InstrGEP:
		ops := make([]*Value, 0, len(in.GEP.Indices)+1)
		ops = append(ops, in.GEP.Base)
		return append(ops, in.GEP.Indices...)
	case InstrICmp:
		return []*Value{in.ICmp.X, in.ICmp.Y}
	case InstrPhi:
		ops := make([]*Value, 0, len(in.Phi.Incoming))
		for _, e := range in.Phi.Incoming {
			ops = append(ops, e.Value)
		}
		return ops
	case InstrCast:
		return []*Value{in.Cast.X}
	case InstrSelect:
		return []*Value{in.Select.Cond, in.Select.X, in.Select.Y}
	case InstrCall:
		return in.Call.Args
	case InstrBinary:
		return []*Value{in.Binary.X, in.Binary.Y}
	case InstrVAArg:
		return []*Value{in.VAArg.List}
	case InstrExtractValue:
		return []*Value{in.Aggregate.Agg}
	case InstrInsertValue:
		return []*Value{in.Aggregate.Agg, in.Aggregate.Elem}
	default:
		return nil
	}
}

// HasAllZeroIndices reports whether a GEP's indices are all constant zero.
func (in *Instr) HasAllZeroIndices() bool {
	if in == nil || in.Kind != InstrGEP {
		return false
	}
	for _, idx := range in.GEP.Indices {
		if !idx.IsConst() || idx.Const.Kind != ConstInt || idx.Const.Bits != 0 {
			return false
		}
	}
	return true
}
