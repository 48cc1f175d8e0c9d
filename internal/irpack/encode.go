package irpack

import (
	"fmt"

	"bcrebuild/internal/ir"
	"bcrebuild/internal/types"
)

// ToFile converts m to its wire form.
func ToFile(m *ir.Module) (*File, error) {
	if m == nil {
		return nil, fmt.Errorf("irpack: nil module")
	}
	f := &File{Schema: SchemaVersion, Module: m.Name}
	for _, fn := range m.Funcs {
		wf, err := encodeFunc(m.Types, fn)
		if err != nil {
			return nil, fmt.Errorf("@%s: %w", fn.Name, err)
		}
		if f.Source == "" {
			f.Source = firstSource(fn)
		}
		f.Funcs = append(f.Funcs, wf)
	}
	return f, nil
}

func firstSource(fn *ir.Func) string {
	for _, b := range fn.Blocks {
		for _, in := range b.Instrs {
			if in.Pos.File != "" {
				return in.Pos.File
			}
		}
		if b.Term.Pos.File != "" {
			return b.Term.Pos.File
		}
	}
	return ""
}

type encoder struct {
	types *types.Interner
	slots *ir.Slots
}

func encodeFunc(in *types.Interner, fn *ir.Func) (Func, error) {
	e := &encoder{types: in, slots: ir.NewSlots(fn)}
	wf := Func{Name: fn.Name, Type: in.String(fn.Type)}
	if fn.Linkage == ir.LinkageInternal {
		wf.Linkage = linkageInternal
	}
	hasNames := false
	for _, p := range fn.Params {
		if p.Name != "" {
			hasNames = true
		}
	}
	if hasNames || !fn.IsDeclaration() {
		wf.Params = make([]string, len(fn.Params))
		for i, p := range fn.Params {
			wf.Params[i] = e.slots.Value(p)
		}
	}
	for _, b := range fn.Blocks {
		wb := Block{Name: e.slots.Block(b), Instrs: make([]Instr, 0, len(b.Instrs))}
		for _, inst := range b.Instrs {
			wi, err := e.instr(inst)
			if err != nil {
				return Func{}, fmt.Errorf("block %s: %w", wb.Name, err)
			}
			wb.Instrs = append(wb.Instrs, wi)
		}
		term, err := e.term(&b.Term)
		if err != nil {
			return Func{}, fmt.Errorf("block %s: %w", wb.Name, err)
		}
		wb.Term = term
		wf.Blocks = append(wf.Blocks, wb)
	}
	return wf, nil
}

func (e *encoder) operand(v *ir.Value) string {
	if v != nil && v.Kind == ir.ValueConst {
		return e.types.String(v.Type) + " " + ir.FormatRef(e.slots, v)
	}
	return ir.FormatRef(e.slots, v)
}

func (e *encoder) operands(vs ...*ir.Value) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = e.operand(v)
	}
	return out
}

func (e *encoder) instr(in *ir.Instr) (Instr, error) {
	wi := Instr{Line: in.Pos.Line, Col: in.Pos.Col}
	if in.Result != nil {
		wi.Name = e.slots.Value(in.Result)
	}
	switch in.Kind {
	case ir.InstrAlloca:
		wi.Op = opAlloca
		wi.Type = e.types.String(in.Alloca.Elem)
		if in.Alloca.Count != nil {
			wi.Args = e.operands(in.Alloca.Count)
		}
	case ir.InstrLoad:
		wi.Op = opLoad
		wi.Args = e.operands(in.Load.Ptr)
	case ir.InstrStore:
		wi.Op = opStore
		wi.Args = e.operands(in.Store.Val, in.Store.Ptr)
	case ir.InstrGEP:
		wi.Op = opGEP
		wi.Args = e.operands(append([]*ir.Value{in.GEP.Base}, in.GEP.Indices...)...)
		if in.GEP.Inbounds {
			wi.Flags = []string{flagInbounds}
		}
	case ir.InstrICmp:
		wi.Op = opICmp
		wi.Pred = in.ICmp.Pred.String()
		wi.Args = e.operands(in.ICmp.X, in.ICmp.Y)
	case ir.InstrPhi:
		wi.Op = opPhi
		wi.Type = e.types.String(in.Result.Type)
		for _, edge := range in.Phi.Incoming {
			wi.Args = append(wi.Args, e.operand(edge.Value))
			wi.Labels = append(wi.Labels, e.slots.Block(edge.Block))
		}
	case ir.InstrCast:
		wi.Op = in.Cast.Op.String()
		wi.Type = e.types.String(in.Result.Type)
		wi.Args = e.operands(in.Cast.X)
	case ir.InstrSelect:
		wi.Op = opSelect
		wi.Args = e.operands(in.Select.Cond, in.Select.X, in.Select.Y)
	case ir.InstrCall:
		wi.Op = opCall
		wi.Args = append([]string{"@" + in.Call.Callee.Name}, e.operands(in.Call.Args...)...)
	case ir.InstrBinary:
		wi.Op = in.Binary.Op.String()
		wi.Args = e.operands(in.Binary.X, in.Binary.Y)
		if in.Binary.NUW {
			wi.Flags = append(wi.Flags, flagNUW)
		}
		if in.Binary.NSW {
			wi.Flags = append(wi.Flags, flagNSW)
		}
	case ir.InstrVAArg:
		wi.Op = opVAArg
		wi.Type = e.types.String(in.Result.Type)
		wi.Args = e.operands(in.VAArg.List)
	case ir.InstrExtractValue:
		wi.Op = opExtractValue
		wi.Args = e.operands(in.Aggregate.Agg)
		wi.Indices = append([]uint32(nil), in.Aggregate.Indices...)
	case ir.InstrInsertValue:
		wi.Op = opInsertValue
		wi.Args = e.operands(in.Aggregate.Agg, in.Aggregate.Elem)
		wi.Indices = append([]uint32(nil), in.Aggregate.Indices...)
	default:
		return Instr{}, fmt.Errorf("cannot encode %s instruction", in.Kind)
	}
	return wi, nil
}

func (e *encoder) term(t *ir.Terminator) (Instr, error) {
	wi := Instr{Line: t.Pos.Line, Col: t.Pos.Col}
	switch t.Kind {
	case ir.TermRet:
		wi.Op = opRet
		if t.Ret.Value != nil {
			wi.Args = e.operands(t.Ret.Value)
		}
	case ir.TermBr:
		wi.Op = opBr
		wi.Labels = []string{e.slots.Block(t.Br.Target)}
	case ir.TermCondBr:
		wi.Op = opBr
		wi.Args = e.operands(t.CondBr.Cond)
		wi.Labels = []string{e.slots.Block(t.CondBr.Then), e.slots.Block(t.CondBr.Else)}
	case ir.TermSwitch:
		wi.Op = opSwitch
		wi.Args = []string{e.operand(t.Switch.Cond)}
		wi.Labels = []string{e.slots.Block(t.Switch.Default)}
		for _, c := range t.Switch.Cases {
			wi.Args = append(wi.Args, e.operand(c.Value))
			wi.Labels = append(wi.Labels, e.slots.Block(c.Target))
		}
	case ir.TermUnreachable:
		wi.Op = opUnreachable
	default:
		return Instr{}, fmt.Errorf("block has no terminator")
	}
	return wi, nil
}
