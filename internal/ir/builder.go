package ir

import (
	"fmt"

	"bcrebuild/internal/source"
	"bcrebuild/internal/types"
)

// Builder appends instructions at the end of a block. With a Folder it
// returns constants instead of emitting instructions whose operands are
// all constant.
type Builder struct {
	Module *Module
	Folder *Folder

	block *Block
	pos   source.Pos
}

// NewBuilder creates a builder for m. folder may be nil.
func NewBuilder(m *Module, folder *Folder) *Builder {
	return &Builder{Module: m, Folder: folder}
}

// SetInsertPoint directs subsequent instructions to the end of blk.
func (b *Builder) SetInsertPoint(blk *Block) {
	b.block = blk
}

// InsertBlock returns the current insertion block.
func (b *Builder) InsertBlock() *Block {
	return b.block
}

// SetPos sets the source position attached to new instructions.
func (b *Builder) SetPos(pos source.Pos) {
	b.pos = pos
}

func (b *Builder) types() *types.Interner {
	return b.Module.Types
}

func (b *Builder) newInstr(kind InstrKind, ty types.TypeID, name string) *Instr {
	in := &Instr{Kind: kind, Pos: b.pos}
	if ty != types.NoTypeID && b.types().KindOf(ty) != types.KindVoid {
		var fn *Func
		if b.block != nil {
			fn = b.block.Parent
		}
		if fn != nil {
			name = fn.claimName(name)
		}
		in.Result = &Value{Kind: ValueInstr, Type: ty, Name: name, Def: in}
	}
	return in
}

func (b *Builder) insert(in *Instr) *Value {
	if b.block == nil {
		panic("ir: builder has no insertion point")
	}
	in.Block = b.block
	b.block.Instrs = append(b.block.Instrs, in)
	return in.Result
}

// Alloca reserves count elements of elem; a nil count reserves one.
func (b *Builder) Alloca(elem types.TypeID, count *Value, name string) *Value {
	in := b.newInstr(InstrAlloca, b.types().PointerTo(elem), name)
	in.Alloca = AllocaInstr{Elem: elem, Count: count}
	return b.insert(in)
}

// Load reads the pointee of ptr.
func (b *Builder) Load(ptr *Value, name string) (*Value, error) {
	elem, ok := b.types().Pointee(ptr.Type)
	if !ok {
		return nil, fmt.Errorf("load from non-pointer %s", b.types().String(ptr.Type))
	}
	in := b.newInstr(InstrLoad, elem, name)
	in.Load = LoadInstr{Ptr: ptr}
	return b.insert(in), nil
}

// Store writes val through ptr.
func (b *Builder) Store(val, ptr *Value) {
	in := b.newInstr(InstrStore, types.NoTypeID, "")
	in.Store = StoreInstr{Val: val, Ptr: ptr}
	b.insert(in)
}

// GEPResultType computes the result type of an address computation over
// base with the given indices.
func GEPResultType(in *types.Interner, base types.TypeID, indices []*Value) (types.TypeID, error) {
	if !in.IsPointer(base) {
		return types.NoTypeID, fmt.Errorf("address base %s is not a pointer", in.String(base))
	}
	if len(indices) == 0 {
		return types.NoTypeID, fmt.Errorf("address computation without indices")
	}
	cur := base
	for i, idx := range indices {
		pos := 0
		if in.KindOf(cur) == types.KindStruct {
			c, ok := ConstIntValue(idx)
			if !ok {
				return types.NoTypeID, fmt.Errorf("index %d into struct %s is not constant", i, in.String(cur))
			}
			pos = int(c)
		}
		next, ok := in.ElemAt(cur, pos)
		if !ok {
			return types.NoTypeID, fmt.Errorf("index %d steps into non-composite %s", i, in.String(cur))
		}
		cur = next
	}
	return in.PointerTo(cur), nil
}

// GEP computes an address. Indices that are all zero and leave the type
// unchanged fold to base.
func (b *Builder) GEP(base *Value, indices []*Value, name string) (*Value, error) {
	ty, err := GEPResultType(b.types(), base.Type, indices)
	if err != nil {
		return nil, err
	}
	if b.Folder != nil && ty == base.Type {
		in := &Instr{Kind: InstrGEP, GEP: GEPInstr{Indices: indices}}
		if in.HasAllZeroIndices() {
			return base, nil
		}
	}
	in := b.newInstr(InstrGEP, ty, name)
	in.GEP = GEPInstr{Base: base, Indices: indices}
	return b.insert(in), nil
}

// ConstGEP1 advances base by offset elements using an i64 index.
func (b *Builder) ConstGEP1(base *Value, offset int64, name string) (*Value, error) {
	idx := NewIntConst(b.types(), b.types().Builtins().I64, offset)
	return b.GEP(base, []*Value{idx}, name)
}

// ICmp compares x and y.
func (b *Builder) ICmp(pred Predicate, x, y *Value, name string) *Value {
	if b.Folder != nil {
		if v := b.Folder.ICmp(pred, x, y); v != nil {
			return v
		}
	}
	in := b.newInstr(InstrICmp, b.types().Builtins().I1, name)
	in.ICmp = ICmpInstr{Pred: pred, X: x, Y: y}
	return b.insert(in)
}

// Binary applies op to x and y.
func (b *Builder) Binary(op BinOp, x, y *Value, nsw, nuw bool, name string) *Value {
	if b.Folder != nil {
		if v := b.Folder.Binary(op, x, y); v != nil {
			return v
		}
	}
	in := b.newInstr(InstrBinary, x.Type, name)
	in.Binary = BinaryInstr{Op: op, X: x, Y: y, NSW: nsw, NUW: nuw}
	return b.insert(in)
}

// NSWAdd adds with the no-signed-wrap flag.
func (b *Builder) NSWAdd(x, y *Value, name string) *Value {
	return b.Binary(BinAdd, x, y, true, false, name)
}

// NSWMul multiplies with the no-signed-wrap flag.
func (b *Builder) NSWMul(x, y *Value, name string) *Value {
	return b.Binary(BinMul, x, y, true, false, name)
}

// Cast converts x to type to. A bitcast to x's own type returns x.
func (b *Builder) Cast(op CastOp, x *Value, to types.TypeID, name string) *Value {
	if op == CastBitCast && x.Type == to {
		return x
	}
	if b.Folder != nil {
		if v := b.Folder.Cast(op, x, to); v != nil {
			return v
		}
	}
	in := b.newInstr(InstrCast, to, name)
	in.Cast = CastInstr{Op: op, X: x}
	return b.insert(in)
}

// PointerCast reinterprets x as type to, picking bitcast, ptrtoint or
// inttoptr from the operand and destination kinds.
func (b *Builder) PointerCast(x *Value, to types.TypeID, name string) *Value {
	if x.Type == to {
		return x
	}
	in := b.types()
	switch {
	case in.IsPointer(x.Type) && in.IsInteger(to):
		return b.Cast(CastPtrToInt, x, to, name)
	case in.IsInteger(x.Type) && in.IsPointer(to):
		return b.Cast(CastIntToPtr, x, to, name)
	default:
		return b.Cast(CastBitCast, x, to, name)
	}
}

// IntCast resizes an integer, sign-extending when widening.
func (b *Builder) IntCast(x *Value, to types.TypeID, name string) *Value {
	in := b.types()
	from, want := in.IntWidth(x.Type), in.IntWidth(to)
	switch {
	case x.Type == to:
		return x
	case from > want:
		return b.Cast(CastTrunc, x, to, name)
	case from < want:
		return b.Cast(CastSExt, x, to, name)
	default:
		return b.Cast(CastBitCast, x, to, name)
	}
}

// Select picks x when cond is true, y otherwise.
func (b *Builder) Select(cond, x, y *Value, name string) *Value {
	if b.Folder != nil {
		if v := b.Folder.Select(cond, x, y); v != nil {
			return v
		}
	}
	in := b.newInstr(InstrSelect, x.Type, name)
	in.Select = SelectInstr{Cond: cond, X: x, Y: y}
	return b.insert(in)
}

// Call calls callee. The result is nil for void callees.
func (b *Builder) Call(callee *Func, args []*Value, name string) (*Value, error) {
	sig := callee.Signature()
	if sig == nil {
		return nil, fmt.Errorf("callee %s has no signature", callee.Name)
	}
	if len(args) < len(sig.Params) || (!sig.Variadic && len(args) != len(sig.Params)) {
		return nil, fmt.Errorf("call to %s: got %d arguments, want %d", callee.Name, len(args), len(sig.Params))
	}
	in := b.newInstr(InstrCall, sig.Result, name)
	in.Call = CallInstr{Callee: callee, Args: args}
	return b.insert(in), nil
}

// NewPhi creates a phi node of type ty that is not yet in any block.
// Place it with InsertPhi.
func (b *Builder) NewPhi(ty types.TypeID, name string) *Instr {
	in := b.newInstr(InstrPhi, ty, name)
	return in
}

// InsertPhi places a detached phi at the current insertion point.
func (b *Builder) InsertPhi(phi *Instr) *Value {
	phi.Pos = b.pos
	return b.insert(phi)
}

// Phi creates a phi node at the current insertion point.
func (b *Builder) Phi(ty types.TypeID, name string) *Instr {
	phi := b.NewPhi(ty, name)
	b.insert(phi)
	return phi
}

// AddIncoming appends an incoming edge to phi.
func AddIncoming(phi *Instr, v *Value, from *Block) {
	phi.Phi.Incoming = append(phi.Phi.Incoming, PhiEdge{Value: v, Block: from})
}

// InsertBeforeTerminator appends a conversion at the end of blk without
// moving the insertion point.
func (b *Builder) InsertBeforeTerminator(blk *Block, fn func(*Builder) *Value) *Value {
	saved := b.block
	b.block = blk
	v := fn(b)
	b.block = saved
	return v
}

func (b *Builder) setTerm(t Terminator) {
	if b.block == nil {
		panic("ir: builder has no insertion point")
	}
	t.Pos = b.pos
	b.block.Term = t
}

// Ret terminates the block with a return; v is nil for void returns.
func (b *Builder) Ret(v *Value) {
	b.setTerm(Terminator{Kind: TermRet, Ret: RetTerm{Value: v}})
}

// Br terminates the block with an unconditional branch.
func (b *Builder) Br(target *Block) {
	b.setTerm(Terminator{Kind: TermBr, Br: BrTerm{Target: target}})
}

// CondBr terminates the block with a two-way branch.
func (b *Builder) CondBr(cond *Value, then, els *Block) {
	b.setTerm(Terminator{Kind: TermCondBr, CondBr: CondBrTerm{Cond: cond, Then: then, Else: els}})
}

// Switch terminates the block with a multi-way branch. Add cases with
// AddCase on the returned terminator.
func (b *Builder) Switch(cond *Value, def *Block, numCases int) *Terminator {
	b.setTerm(Terminator{Kind: TermSwitch, Switch: SwitchTerm{Cond: cond, Default: def, Cases: make([]SwitchCase, 0, numCases)}})
	return &b.block.Term
}

// AddCase appends a case to a switch terminator.
func (t *Terminator) AddCase(v *Value, target *Block) {
	t.Switch.Cases = append(t.Switch.Cases, SwitchCase{Value: v, Target: target})
}

// Unreachable terminates the block as unreachable.
func (b *Builder) Unreachable() {
	b.setTerm(Terminator{Kind: TermUnreachable})
}

// VAArg reads the next argument of type ty from a variadic list.
func (b *Builder) VAArg(list *Value, ty types.TypeID, name string) *Value {
	in := b.newInstr(InstrVAArg, ty, name)
	in.VAArg = VAArgInstr{List: list}
	return b.insert(in)
}

func (b *Builder) memberType(agg types.TypeID, indices []uint32) (types.TypeID, error) {
	cur := agg
	for _, idx := range indices {
		if !b.types().IsAggregate(cur) {
			return types.NoTypeID, fmt.Errorf("member index into non-aggregate %s", b.types().String(cur))
		}
		next, ok := b.types().ElemAt(cur, int(idx))
		if !ok {
			return types.NoTypeID, fmt.Errorf("%s has no member %d", b.types().String(cur), idx)
		}
		cur = next
	}
	return cur, nil
}

// ExtractValue reads a member of an aggregate value.
func (b *Builder) ExtractValue(agg *Value, indices []uint32, name string) (*Value, error) {
	ty, err := b.memberType(agg.Type, indices)
	if err != nil {
		return nil, err
	}
	in := b.newInstr(InstrExtractValue, ty, name)
	in.Aggregate = AggregateInstr{Agg: agg, Indices: indices}
	return b.insert(in), nil
}

// InsertValue replaces a member of an aggregate value.
func (b *Builder) InsertValue(agg, elem *Value, indices []uint32, name string) (*Value, error) {
	if _, err := b.memberType(agg.Type, indices); err != nil {
		return nil, err
	}
	in := b.newInstr(InstrInsertValue, agg.Type, name)
	in.Aggregate = AggregateInstr{Agg: agg, Elem: elem, Indices: indices}
	return b.insert(in), nil
}
