package ir

import "bcrebuild/internal/source"

// TermKind enumerates block terminators.
type TermKind uint8

const (
	TermNone TermKind = iota
	TermRet
	TermBr
	TermCondBr
	TermSwitch
	TermUnreachable
)

func (k TermKind) String() string {
	switch k {
	case TermNone:
		return "none"
	case TermRet:
		return "ret"
	case TermBr, TermCondBr:
		return "br"
	case TermSwitch:
		return "switch"
	case TermUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Terminator ends a block and names its successors.
type Terminator struct {
	Kind TermKind
	Pos  source.Pos

	Ret    RetTerm
	Br     BrTerm
	CondBr CondBrTerm
	Switch SwitchTerm
}

// RetTerm returns Value, or nothing when Value is nil.
type RetTerm struct {
	Value *Value
}

type BrTerm struct {
	Target *Block
}

type CondBrTerm struct {
	Cond *Value
	Then *Block
	Else *Block
}

type SwitchCase struct {
	Value  *Value
	Target *Block
}

type SwitchTerm struct {
	Cond    *Value
	Default *Block
	Cases   []SwitchCase
}

// Successors returns the successor edges in order. A block reached by
// several edges appears once per edge.
func (t *Terminator) Successors() []*Block {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case TermBr:
		return []*Block{t.Br.Target}
	case TermCondBr:
		return []*Block{t.CondBr.Then, t.CondBr.Else}
	case TermSwitch:
		out := make([]*Block, 0, len(t.Switch.Cases)+1)
		out = append(out, t.Switch.Default)
		for _, c := range t.Switch.Cases {
			out = append(out, c.Target)
		}
		return out
	default:
		return nil
	}
}

// Operands returns the value operands of the terminator.
func (t *Terminator) Operands() []*Value {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case TermRet:
		if t.Ret.Value != nil {
			return []*Value{t.Ret.Value}
		}
	case TermCondBr:
		return []*Value{t.CondBr.Cond}
	case TermSwitch:
		ops := make([]*Value, 0, len(t.Switch.Cases)+1)
		ops = append(ops, t.Switch.Cond)
		for _, c := range t.Switch.Cases {
			ops = append(ops, c.Value)
		}
		return ops
	}
	return nil
}
