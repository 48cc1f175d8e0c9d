package rebuild

import (
	"errors"
	"math"

	"fortio.org/safecast"

	"bcrebuild/internal/ir"
	"bcrebuild/internal/types"
)

type phiState uint8

const (
	phiUnfilled phiState = iota // node exists, has no incoming edges yet
	phiFilled                   // every incoming edge translated
)

type phiSlot struct {
	old    *ir.Instr
	node   *ir.Instr
	state  phiState
	placed bool
}

// funcScope holds the old-to-new maps for rewriting one function body.
type funcScope struct {
	run *runState
	old *ir.Func
	new *ir.Func
	b   *ir.Builder

	blocks   map[*ir.Block]*ir.Block
	values   map[*ir.Value]*ir.Value
	phis     map[*ir.Instr]*phiSlot
	phiOrder []*phiSlot
}

func newFuncScope(run *runState, old, nf *ir.Func) *funcScope {
	return &funcScope{
		run:    run,
		old:    old,
		new:    nf,
		b:      ir.NewBuilder(run.module, run.folder),
		blocks: make(map[*ir.Block]*ir.Block, len(old.Blocks)),
		values: make(map[*ir.Value]*ir.Value),
		phis:   make(map[*ir.Instr]*phiSlot),
	}
}

func (s *funcScope) types() *types.Interner {
	return s.run.module.Types
}

func (s *funcScope) rewrite() error {
	for i, p := range s.old.Params {
		s.values[p] = s.new.Params[i]
	}
	for _, ob := range s.old.Blocks {
		s.blocks[ob] = s.new.NewBlock(ob.Name)
	}
	for _, ob := range s.old.ReversePostorder() {
		s.b.SetInsertPoint(s.blocks[ob])
		for _, in := range ob.Instrs {
			s.b.SetPos(in.Pos)
			if err := s.visit(in); err != nil {
				return s.atInstr(err, ir.FormatInstr(s.old, in), in)
			}
		}
		s.b.SetPos(ob.Term.Pos)
		if err := s.visitTerm(&ob.Term); err != nil {
			return s.atInstr(err, ir.FormatTerm(s.old, &ob.Term), nil)
		}
	}
	if err := s.fillPhis(); err != nil {
		return err
	}
	return s.checkPhis()
}

// atInstr attaches the offending instruction to err.
func (s *funcScope) atInstr(err error, text string, in *ir.Instr) error {
	var re *Error
	if !errors.As(err, &re) {
		re = &Error{Kind: MalformedInput, Msg: "rewrite failed", Err: err}
		err = re
	}
	if re.Func == "" {
		re.Func = s.old.Name
	}
	if re.Instr == "" {
		re.Instr = text
		if in != nil {
			re.Pos = in.Pos
		}
	}
	return err
}

func (s *funcScope) mapBlock(b *ir.Block) (*ir.Block, error) {
	nb, ok := s.blocks[b]
	if !ok {
		return nil, errorf(MalformedInput, "branch to a block outside @%s", s.old.Name)
	}
	return nb, nil
}

// mapValue returns the new counterpart of an old operand. Constants are
// shared; internal functions map to their rebuilt versions; phi results
// resolve through their slot even before the phi itself is visited.
func (s *funcScope) mapValue(v *ir.Value) (*ir.Value, error) {
	if v == nil {
		return nil, errorf(MalformedInput, "missing operand")
	}
	switch v.Kind {
	case ir.ValueConst:
		return v, nil
	case ir.ValueFunc:
		if nf, ok := s.run.funcs[v.Func]; ok {
			return nf.Value(), nil
		}
		return v, nil
	}
	if nv, ok := s.values[v]; ok {
		return nv, nil
	}
	if v.IsPhi() && v.Def.Block != nil && v.Def.Block.Parent == s.old {
		return s.ensurePhi(v.Def).node.Result, nil
	}
	return nil, errorf(MalformedInput, "operand %%%s is used before its definition", v.Name)
}

// mapPointer remaps p and casts it back to p's original type.
func (s *funcScope) mapPointer(p *ir.Value) (*ir.Value, error) {
	v, err := s.mapValue(p)
	if err != nil {
		return nil, err
	}
	return s.b.PointerCast(v, p.Type, "rbcast"), nil
}

// coerce reinterprets a pointer operand whose type differs from the type
// required at its use.
func (s *funcScope) coerce(v *ir.Value, want types.TypeID) *ir.Value {
	if v.Type == want || !s.types().IsPointer(v.Type) || !s.types().IsPointer(want) {
		return v
	}
	return s.b.PointerCast(v, want, "")
}

func (s *funcScope) define(old, nv *ir.Value) {
	if old != nil && nv != nil {
		s.values[old] = nv
	}
}

func resultName(in *ir.Instr) string {
	if in.Result == nil {
		return ""
	}
	return in.Result.Name
}

func (s *funcScope) visit(in *ir.Instr) error {
	switch in.Kind {
	case ir.InstrAlloca:
		return s.visitAlloca(in)
	case ir.InstrLoad:
		p, err := s.mapPointer(in.Load.Ptr)
		if err != nil {
			return err
		}
		v, err := s.b.Load(p, resultName(in))
		if err != nil {
			return &Error{Kind: MalformedInput, Msg: "load", Err: err}
		}
		s.define(in.Result, v)
		return nil
	case ir.InstrStore:
		p, err := s.mapPointer(in.Store.Ptr)
		if err != nil {
			return err
		}
		val, err := s.mapValue(in.Store.Val)
		if err != nil {
			return err
		}
		if elem, ok := s.types().Pointee(p.Type); ok {
			val = s.coerce(val, elem)
		}
		s.b.Store(val, p)
		return nil
	case ir.InstrGEP:
		v, err := s.rebuildAddress(in)
		if err != nil {
			return err
		}
		s.define(in.Result, v)
		return nil
	case ir.InstrICmp:
		x, err := s.mapValue(in.ICmp.X)
		if err != nil {
			return err
		}
		y, err := s.mapValue(in.ICmp.Y)
		if err != nil {
			return err
		}
		s.define(in.Result, s.b.ICmp(in.ICmp.Pred, x, s.coerce(y, x.Type), resultName(in)))
		return nil
	case ir.InstrPhi:
		return s.placePhi(in)
	case ir.InstrCast:
		x, err := s.mapValue(in.Cast.X)
		if err != nil {
			return err
		}
		to, err := s.run.types.Rebuild(in.Result.Type)
		if err != nil {
			return err
		}
		s.define(in.Result, s.b.Cast(in.Cast.Op, x, to, resultName(in)))
		return nil
	case ir.InstrSelect:
		cond, err := s.mapValue(in.Select.Cond)
		if err != nil {
			return err
		}
		x, err := s.mapValue(in.Select.X)
		if err != nil {
			return err
		}
		y, err := s.mapValue(in.Select.Y)
		if err != nil {
			return err
		}
		want := in.Result.Type
		s.define(in.Result, s.b.Select(cond, s.coerce(x, want), s.coerce(y, want), resultName(in)))
		return nil
	case ir.InstrCall:
		return s.visitCall(in)
	case ir.InstrBinary:
		x, err := s.mapValue(in.Binary.X)
		if err != nil {
			return err
		}
		y, err := s.mapValue(in.Binary.Y)
		if err != nil {
			return err
		}
		s.define(in.Result, s.b.Binary(in.Binary.Op, x, y, in.Binary.NSW, in.Binary.NUW, resultName(in)))
		return nil
	case ir.InstrVAArg, ir.InstrExtractValue, ir.InstrInsertValue:
		return errorf(UnsupportedConstruct, "%s instructions are not supported", in.Kind)
	default:
		return errorf(UnsupportedConstruct, "instruction %s is not supported", in.Kind)
	}
}

func (s *funcScope) visitAlloca(in *ir.Instr) error {
	var n uint64 = 1
	if c := in.Alloca.Count; c != nil {
		if !c.IsConst() || c.Const.Kind != ir.ConstInt {
			return errorf(UnsupportedConstruct, "stack allocation with a variable size")
		}
		n = c.Const.Unsigned()
	}
	elem, err := s.run.types.Rebuild(in.Alloca.Elem)
	if err != nil {
		return err
	}
	if s.types().KindOf(elem) == types.KindArray {
		t := s.types().MustLookup(elem)
		length := uint64(t.Count)
		if length != 0 && n > math.MaxUint64/length {
			return errorf(Overflow, "stack allocation of %d x %s", n, s.types().String(in.Alloca.Elem))
		}
		n *= length
		elem = t.Elem
	}
	var count *ir.Value
	if n != 1 {
		c, err := safecast.Conv[int64](n)
		if err != nil {
			return &Error{Kind: Overflow, Msg: "stack allocation element count", Err: err}
		}
		count = ir.NewIntConst(s.types(), s.types().Builtins().I64, c)
	}
	slot := s.b.Alloca(elem, count, resultName(in))
	s.define(in.Result, s.b.PointerCast(slot, in.Result.Type, resultName(in)))
	return nil
}

func (s *funcScope) visitCall(in *ir.Instr) error {
	callee := in.Call.Callee
	args := make([]*ir.Value, len(in.Call.Args))
	for i, a := range in.Call.Args {
		v, err := s.mapValue(a)
		if err != nil {
			return err
		}
		args[i] = v
	}

	target, internal := s.run.funcs[callee]
	if !internal {
		if callee.Variadic() {
			return errorf(UnsupportedConstruct, "call to variadic function @%s", callee.Name)
		}
		target = callee
	}
	sig := target.Signature()
	if sig == nil || len(sig.Params) != len(args) {
		return errorf(MalformedInput, "call to @%s does not match its signature", callee.Name)
	}
	for i, want := range sig.Params {
		if args[i].Type != want {
			args[i] = s.b.PointerCast(args[i], want, "")
		}
	}
	v, err := s.b.Call(target, args, resultName(in))
	if err != nil {
		return &Error{Kind: MalformedInput, Msg: "call", Err: err}
	}
	s.define(in.Result, v)
	return nil
}

func (s *funcScope) visitTerm(t *ir.Terminator) error {
	switch t.Kind {
	case ir.TermRet:
		if t.Ret.Value == nil {
			s.b.Ret(nil)
			return nil
		}
		v, err := s.mapValue(t.Ret.Value)
		if err != nil {
			return err
		}
		s.b.Ret(s.coerce(v, s.new.Result()))
		return nil
	case ir.TermBr:
		target, err := s.mapBlock(t.Br.Target)
		if err != nil {
			return err
		}
		s.b.Br(target)
		return nil
	case ir.TermCondBr:
		cond, err := s.mapValue(t.CondBr.Cond)
		if err != nil {
			return err
		}
		then, err := s.mapBlock(t.CondBr.Then)
		if err != nil {
			return err
		}
		els, err := s.mapBlock(t.CondBr.Else)
		if err != nil {
			return err
		}
		s.b.CondBr(cond, then, els)
		return nil
	case ir.TermSwitch:
		cond, err := s.mapValue(t.Switch.Cond)
		if err != nil {
			return err
		}
		def, err := s.mapBlock(t.Switch.Default)
		if err != nil {
			return err
		}
		sw := s.b.Switch(cond, def, len(t.Switch.Cases))
		for _, c := range t.Switch.Cases {
			target, err := s.mapBlock(c.Target)
			if err != nil {
				return err
			}
			sw.AddCase(c.Value, target)
		}
		return nil
	case ir.TermUnreachable:
		s.b.Unreachable()
		return nil
	default:
		return errorf(MalformedInput, "block has no terminator")
	}
}

// ensurePhi returns the slot for an old phi, creating an unfilled,
// unplaced node on first encounter.
func (s *funcScope) ensurePhi(old *ir.Instr) *phiSlot {
	if slot, ok := s.phis[old]; ok {
		return slot
	}
	slot := &phiSlot{old: old, node: s.b.NewPhi(old.Result.Type, old.Result.Name), state: phiUnfilled}
	s.phis[old] = slot
	s.phiOrder = append(s.phiOrder, slot)
	s.values[old.Result] = slot.node.Result
	return slot
}

func (s *funcScope) placePhi(old *ir.Instr) error {
	slot := s.ensurePhi(old)
	if slot.placed {
		return errorf(MalformedInput, "phi %%%s visited twice", old.Result.Name)
	}
	s.b.InsertPhi(slot.node)
	slot.placed = true
	return nil
}

// fillPhis translates the incoming edges of every phi once all blocks
// exist and every value has been defined.
func (s *funcScope) fillPhis() error {
	for i := 0; i < len(s.phiOrder); i++ {
		slot := s.phiOrder[i]
		text := ir.FormatInstr(s.old, slot.old)
		if !slot.placed {
			return s.atInstr(errorf(MalformedInput, "phi is referenced but never reached"), text, slot.old)
		}
		want := slot.node.Result.Type
		for _, e := range slot.old.Phi.Incoming {
			from, err := s.mapBlock(e.Block)
			if err != nil {
				return s.atInstr(err, text, slot.old)
			}
			v, err := s.mapValue(e.Value)
			if err != nil {
				return s.atInstr(err, text, slot.old)
			}
			if v.Type != want {
				v = s.b.InsertBeforeTerminator(from, func(*ir.Builder) *ir.Value {
					return s.coerce(v, want)
				})
			}
			ir.AddIncoming(slot.node, v, from)
		}
		slot.state = phiFilled
	}
	return nil
}

func (s *funcScope) checkPhis() error {
	for _, slot := range s.phiOrder {
		if slot.state != phiFilled || len(slot.node.Phi.Incoming) != len(slot.old.Phi.Incoming) {
			return s.atInstr(errorf(MalformedInput, "phi left unfilled"), ir.FormatInstr(s.old, slot.old), slot.old)
		}
	}
	return nil
}
