package ir

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"bcrebuild/internal/types"
)

// Slots assigns printable names to the values and blocks of one
// function. Unnamed values get sequential numbers in definition order.
type Slots struct {
	values map[*Value]string
	blocks map[*Block]string
}

// NewSlots numbers the values and blocks of f.
func NewSlots(f *Func) *Slots {
	s := &Slots{
		values: make(map[*Value]string),
		blocks: make(map[*Block]string),
	}
	if f == nil {
		return s
	}
	next := 0
	name := func(v *Value) {
		if v == nil {
			return
		}
		if v.Name != "" {
			s.values[v] = v.Name
			return
		}
		s.values[v] = strconv.Itoa(next)
		next++
	}
	for _, p := range f.Params {
		name(p)
	}
	for i, b := range f.Blocks {
		if b.Name != "" {
			s.blocks[b] = b.Name
		} else {
			s.blocks[b] = "bb" + strconv.Itoa(i)
		}
		for _, in := range b.Instrs {
			name(in.Result)
		}
	}
	return s
}

// Value returns the printed name of v without the sigil.
func (s *Slots) Value(v *Value) string {
	if n, ok := s.values[v]; ok {
		return n
	}
	if v != nil && v.Name != "" {
		return v.Name
	}
	return "?"
}

// Block returns the printed label of b.
func (s *Slots) Block(b *Block) string {
	if n, ok := s.blocks[b]; ok {
		return n
	}
	if b != nil && b.Name != "" {
		return b.Name
	}
	return "?"
}

// FormatRef renders an operand without its type: %name, @func or a
// constant literal.
func FormatRef(s *Slots, v *Value) string {
	if v == nil {
		return "<nil>"
	}
	switch v.Kind {
	case ValueConst:
		switch v.Const.Kind {
		case ConstNull:
			return "null"
		case ConstUndef:
			return "undef"
		default:
			return strconv.FormatInt(v.Const.Signed(), 10)
		}
	case ValueFunc:
		return "@" + v.Name
	default:
		return "%" + s.Value(v)
	}
}

type printer struct {
	types *types.Interner
	slots *Slots
}

func (p *printer) ty(id types.TypeID) string {
	return p.types.String(id)
}

func (p *printer) operand(v *Value) string {
	if v == nil {
		return "<nil>"
	}
	return p.ty(v.Type) + " " + FormatRef(p.slots, v)
}

func (p *printer) label(b *Block) string {
	return "label %" + p.slots.Block(b)
}

func (p *printer) instr(in *Instr) string {
	var sb strings.Builder
	if in.Result != nil {
		sb.WriteString("%")
		sb.WriteString(p.slots.Value(in.Result))
		sb.WriteString(" = ")
	}
	switch in.Kind {
	case InstrAlloca:
		sb.WriteString("alloca " + p.ty(in.Alloca.Elem))
		if in.Alloca.Count != nil {
			sb.WriteString(", " + p.operand(in.Alloca.Count))
		}
	case InstrLoad:
		sb.WriteString("load " + p.operand(in.Load.Ptr))
	case InstrStore:
		sb.WriteString("store " + p.operand(in.Store.Val) + ", " + p.operand(in.Store.Ptr))
	case InstrGEP:
		sb.WriteString("getelementptr ")
		if in.GEP.Inbounds {
			sb.WriteString("inbounds ")
		}
		sb.WriteString(p.operand(in.GEP.Base))
		for _, idx := range in.GEP.Indices {
			sb.WriteString(", " + p.operand(idx))
		}
	case InstrICmp:
		fmt.Fprintf(&sb, "icmp %s %s, %s", in.ICmp.Pred, p.operand(in.ICmp.X), FormatRef(p.slots, in.ICmp.Y))
	case InstrPhi:
		sb.WriteString("phi ")
		if in.Result != nil {
			sb.WriteString(p.ty(in.Result.Type))
		}
		for i, e := range in.Phi.Incoming {
			if i > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, " [ %s, %%%s ]", FormatRef(p.slots, e.Value), p.slots.Block(e.Block))
		}
	case InstrCast:
		to := types.NoTypeID
		if in.Result != nil {
			to = in.Result.Type
		}
		fmt.Fprintf(&sb, "%s %s to %s", in.Cast.Op, p.operand(in.Cast.X), p.ty(to))
	case InstrSelect:
		fmt.Fprintf(&sb, "select %s, %s, %s", p.operand(in.Select.Cond), p.operand(in.Select.X), p.operand(in.Select.Y))
	case InstrCall:
		result := "void"
		if in.Result != nil {
			result = p.ty(in.Result.Type)
		}
		args := make([]string, len(in.Call.Args))
		for i, a := range in.Call.Args {
			args[i] = p.operand(a)
		}
		fmt.Fprintf(&sb, "call %s @%s(%s)", result, in.Call.Callee.Name, strings.Join(args, ", "))
	case InstrBinary:
		sb.WriteString(in.Binary.Op.String())
		if in.Binary.NUW {
			sb.WriteString(" nuw")
		}
		if in.Binary.NSW {
			sb.WriteString(" nsw")
		}
		fmt.Fprintf(&sb, " %s, %s", p.operand(in.Binary.X), FormatRef(p.slots, in.Binary.Y))
	case InstrVAArg:
		sb.WriteString("va_arg " + p.operand(in.VAArg.List))
		if in.Result != nil {
			sb.WriteString(", " + p.ty(in.Result.Type))
		}
	case InstrExtractValue, InstrInsertValue:
		sb.WriteString(in.Kind.String() + " " + p.operand(in.Aggregate.Agg))
		if in.Kind == InstrInsertValue {
			sb.WriteString(", " + p.operand(in.Aggregate.Elem))
		}
		for _, idx := range in.Aggregate.Indices {
			fmt.Fprintf(&sb, ", %d", idx)
		}
	default:
		sb.WriteString(in.Kind.String())
	}
	return sb.String()
}

func (p *printer) term(t *Terminator) string {
	switch t.Kind {
	case TermRet:
		if t.Ret.Value == nil {
			return "ret void"
		}
		return "ret " + p.operand(t.Ret.Value)
	case TermBr:
		return "br " + p.label(t.Br.Target)
	case TermCondBr:
		return fmt.Sprintf("br %s, %s, %s", p.operand(t.CondBr.Cond), p.label(t.CondBr.Then), p.label(t.CondBr.Else))
	case TermSwitch:
		var sb strings.Builder
		fmt.Fprintf(&sb, "switch %s, %s [", p.operand(t.Switch.Cond), p.label(t.Switch.Default))
		for _, c := range t.Switch.Cases {
			fmt.Fprintf(&sb, " %s, %s", p.operand(c.Value), p.label(c.Target))
		}
		sb.WriteString(" ]")
		return sb.String()
	case TermUnreachable:
		return "unreachable"
	default:
		return "<no terminator>"
	}
}

// FormatInstr renders a single instruction of f.
func FormatInstr(f *Func, in *Instr) string {
	if in == nil || f == nil || f.Module == nil {
		return "<instr?>"
	}
	p := &printer{types: f.Module.Types, slots: NewSlots(f)}
	return p.instr(in)
}

// FormatTerm renders the terminator of a block of f.
func FormatTerm(f *Func, t *Terminator) string {
	if t == nil || f == nil || f.Module == nil {
		return "<term?>"
	}
	p := &printer{types: f.Module.Types, slots: NewSlots(f)}
	return p.term(t)
}

// Print writes a textual dump of m.
func Print(w io.Writer, m *Module) error {
	if w == nil || m == nil {
		return nil
	}
	var sb strings.Builder
	if m.Name != "" {
		fmt.Fprintf(&sb, "; module %s\n", m.Name)
	}
	for _, f := range m.Funcs {
		sb.WriteString("\n")
		printFunc(&sb, m.Types, f)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func printFunc(sb *strings.Builder, typesIn *types.Interner, f *Func) {
	p := &printer{types: typesIn, slots: NewSlots(f)}
	sig := f.Signature()
	result := "void"
	if sig != nil {
		result = p.ty(sig.Result)
	}
	params := make([]string, 0, len(f.Params)+1)
	for _, prm := range f.Params {
		if f.IsDeclaration() && prm.Name == "" {
			params = append(params, p.ty(prm.Type))
			continue
		}
		params = append(params, p.operand(prm))
	}
	if sig != nil && sig.Variadic {
		params = append(params, "...")
	}
	if f.IsDeclaration() {
		fmt.Fprintf(sb, "declare %s @%s(%s)\n", result, f.Name, strings.Join(params, ", "))
		return
	}
	linkage := ""
	if f.Linkage == LinkageInternal {
		linkage = "internal "
	}
	fmt.Fprintf(sb, "define %s%s @%s(%s) {\n", linkage, result, f.Name, strings.Join(params, ", "))
	for i, b := range f.Blocks {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(sb, "%s:\n", p.slots.Block(b))
		for _, in := range b.Instrs {
			fmt.Fprintf(sb, "  %s\n", p.instr(in))
		}
		fmt.Fprintf(sb, "  %s\n", p.term(&b.Term))
	}
	sb.WriteString("}\n")
}
