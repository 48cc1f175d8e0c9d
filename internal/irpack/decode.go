package irpack

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bcrebuild/internal/ir"
	"bcrebuild/internal/source"
	"bcrebuild/internal/types"
)

// ErrSchemaVersion reports a File written by an incompatible version.
var ErrSchemaVersion = errors.New("unsupported schema version")

// DecodeError locates a failure inside a File.
type DecodeError struct {
	Func  string
	Block string
	Index int // instruction index within Block, -1 for the terminator
	Pos   source.Pos
	Err   error
}

func (e *DecodeError) Error() string {
	var sb strings.Builder
	if e.Pos.IsValid() {
		sb.WriteString(e.Pos.String())
		sb.WriteString(": ")
	}
	if e.Func != "" {
		sb.WriteString("@" + e.Func)
		if e.Block != "" {
			sb.WriteString(", block " + e.Block)
			switch {
			case e.Index >= 0:
				sb.WriteString(", instr " + strconv.Itoa(e.Index))
			case e.Index == -1:
				sb.WriteString(", terminator")
			}
		}
		sb.WriteString(": ")
	}
	sb.WriteString(e.Err.Error())
	return sb.String()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// FromFile builds a module from its wire form. The result is not
// validated; run ir.Validate before using it.
func FromFile(f *File) (*ir.Module, error) {
	if f == nil {
		return nil, errors.New("irpack: nil file")
	}
	if f.Schema != SchemaVersion {
		return nil, fmt.Errorf("%w %d (want %d)", ErrSchemaVersion, f.Schema, SchemaVersion)
	}
	m := ir.NewModule(canonicalName(f.Module), nil)
	d := &decoder{module: m, source: f.Source, b: ir.NewBuilder(m, nil)}

	funcs := make([]*ir.Func, len(f.Funcs))
	for i := range f.Funcs {
		fn, err := d.declare(&f.Funcs[i])
		if err != nil {
			return nil, &DecodeError{Func: canonicalName(f.Funcs[i].Name), Index: -2, Err: err}
		}
		funcs[i] = fn
	}
	for i := range f.Funcs {
		if len(f.Funcs[i].Blocks) == 0 {
			continue
		}
		fd := newFuncDecoder(d, funcs[i], &f.Funcs[i])
		if err := fd.decode(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

type decoder struct {
	module *ir.Module
	source string
	b      *ir.Builder
}

func (d *decoder) types() *types.Interner {
	return d.module.Types
}

func (d *decoder) parseType(s string) (types.TypeID, error) {
	if strings.TrimSpace(s) == "" {
		return types.NoTypeID, errors.New("missing type")
	}
	return d.types().Parse(s)
}

func (d *decoder) pos(wi *Instr) source.Pos {
	if wi.Line == 0 {
		return source.Pos{}
	}
	return source.Pos{File: d.source, Line: wi.Line, Col: wi.Col}
}

func (d *decoder) declare(wf *Func) (*ir.Func, error) {
	name := canonicalName(wf.Name)
	if name == "" {
		return nil, errors.New("function without a name")
	}
	ty, err := d.parseType(wf.Type)
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	info, ok := d.types().FnInfo(ty)
	if !ok {
		return nil, fmt.Errorf("%s is not a function type", d.types().String(ty))
	}
	if len(wf.Params) > len(info.Params) {
		return nil, fmt.Errorf("%d parameter names for %d parameters", len(wf.Params), len(info.Params))
	}
	var linkage ir.Linkage
	switch wf.Linkage {
	case "", "external":
		linkage = ir.LinkageExternal
	case linkageInternal:
		linkage = ir.LinkageInternal
	default:
		return nil, fmt.Errorf("unknown linkage %q", wf.Linkage)
	}
	params := make([]string, len(wf.Params))
	for i, p := range wf.Params {
		params[i] = valueName(canonicalName(p))
	}
	return d.module.NewFunc(name, ty, linkage, params...)
}

type defSite struct {
	block int
	index int
}

type funcDecoder struct {
	d      *decoder
	fn     *ir.Func
	wf     *Func
	blocks map[string]*ir.Block
	values map[string]*ir.Value
	defs   map[string]defSite
	phis   map[defSite]*ir.Instr
}

func newFuncDecoder(d *decoder, fn *ir.Func, wf *Func) *funcDecoder {
	return &funcDecoder{
		d:      d,
		fn:     fn,
		wf:     wf,
		blocks: make(map[string]*ir.Block, len(wf.Blocks)),
		values: make(map[string]*ir.Value),
		defs:   make(map[string]defSite),
		phis:   make(map[defSite]*ir.Instr),
	}
}

func (fd *funcDecoder) fail(block, index int, err error) error {
	de := &DecodeError{Func: fd.fn.Name, Index: -2, Err: err}
	if block >= 0 && block < len(fd.wf.Blocks) {
		wb := &fd.wf.Blocks[block]
		de.Block = canonicalName(wb.Name)
		de.Index = index
		switch {
		case index >= 0 && index < len(wb.Instrs):
			de.Pos = fd.d.pos(&wb.Instrs[index])
		case index == -1:
			de.Pos = fd.d.pos(&wb.Term)
		}
	}
	return de
}

func (fd *funcDecoder) decode() error {
	for i, p := range fd.wf.Params {
		key := canonicalName(p)
		if key == "" {
			continue
		}
		if _, dup := fd.values[key]; dup {
			return fd.fail(-1, 0, fmt.Errorf("parameter %%%s is declared twice", key))
		}
		fd.values[key] = fd.fn.Params[i]
	}

	for bi := range fd.wf.Blocks {
		wb := &fd.wf.Blocks[bi]
		name := canonicalName(wb.Name)
		if name == "" {
			return fd.fail(bi, -2, errors.New("block without a label"))
		}
		if _, dup := fd.blocks[name]; dup {
			return fd.fail(bi, -2, fmt.Errorf("label %s is used twice", name))
		}
		fd.blocks[name] = fd.fn.NewBlock(blockName(name, bi))
	}

	for bi := range fd.wf.Blocks {
		for ii := range fd.wf.Blocks[bi].Instrs {
			key := canonicalName(fd.wf.Blocks[bi].Instrs[ii].Name)
			if key == "" {
				continue
			}
			_, isParam := fd.values[key]
			if _, dup := fd.defs[key]; dup || isParam {
				return fd.fail(bi, ii, fmt.Errorf("value %%%s is defined twice", key))
			}
			fd.defs[key] = defSite{block: bi, index: ii}
		}
	}

	if err := fd.createPhis(); err != nil {
		return err
	}
	if err := fd.buildBlocks(); err != nil {
		return err
	}
	return fd.fillPhis()
}

// createPhis makes every phi node up front so that any operand can name
// a phi result regardless of block order.
func (fd *funcDecoder) createPhis() error {
	for bi := range fd.wf.Blocks {
		wb := &fd.wf.Blocks[bi]
		fd.d.b.SetInsertPoint(fd.blocks[canonicalName(wb.Name)])
		for ii := range wb.Instrs {
			wi := &wb.Instrs[ii]
			if wi.Op != opPhi {
				continue
			}
			ty, err := fd.d.parseType(wi.Type)
			if err != nil {
				return fd.fail(bi, ii, err)
			}
			key := canonicalName(wi.Name)
			phi := fd.d.b.NewPhi(ty, valueName(key))
			fd.phis[defSite{block: bi, index: ii}] = phi
			if key != "" {
				fd.values[key] = phi.Result
			}
		}
	}
	return nil
}

// buildBlocks builds each block once all of its non-phi operands are
// available, repeating until every block is built or no block can make
// progress.
func (fd *funcDecoder) buildBlocks() error {
	done := make([]bool, len(fd.wf.Blocks))
	remaining := len(done)
	for remaining > 0 {
		progress := false
		for bi := range fd.wf.Blocks {
			if done[bi] {
				continue
			}
			if _, _, ok := fd.missing(bi); !ok {
				continue
			}
			if err := fd.buildBlock(bi); err != nil {
				return err
			}
			done[bi] = true
			remaining--
			progress = true
		}
		if progress {
			continue
		}
		for bi := range done {
			if done[bi] {
				continue
			}
			key, at, _ := fd.missing(bi)
			if _, defined := fd.defs[key]; defined {
				return fd.fail(bi, at, fmt.Errorf("operand %%%s is used before its definition", key))
			}
			return fd.fail(bi, at, fmt.Errorf("operand %%%s is never defined", key))
		}
	}
	return nil
}

// missing returns the first local operand of block bi that is not yet
// available, with the index of its use.
func (fd *funcDecoder) missing(bi int) (string, int, bool) {
	wb := &fd.wf.Blocks[bi]
	check := func(args []string, at int) (string, bool) {
		for _, a := range args {
			ref, ok := strings.CutPrefix(strings.TrimSpace(a), "%")
			if !ok {
				continue
			}
			key := canonicalName(ref)
			if _, ok := fd.values[key]; ok {
				continue
			}
			if site, ok := fd.defs[key]; ok && site.block == bi && site.index < at {
				continue
			}
			return key, false
		}
		return "", true
	}
	for ii := range wb.Instrs {
		if wb.Instrs[ii].Op == opPhi {
			continue
		}
		if key, ok := check(wb.Instrs[ii].Args, ii); !ok {
			return key, ii, false
		}
	}
	if key, ok := check(wb.Term.Args, len(wb.Instrs)); !ok {
		return key, -1, false
	}
	return "", 0, true
}

func (fd *funcDecoder) buildBlock(bi int) error {
	wb := &fd.wf.Blocks[bi]
	b := fd.d.b
	b.SetInsertPoint(fd.blocks[canonicalName(wb.Name)])
	for ii := range wb.Instrs {
		wi := &wb.Instrs[ii]
		b.SetPos(fd.d.pos(wi))
		if wi.Op == opPhi {
			b.InsertPhi(fd.phis[defSite{block: bi, index: ii}])
			continue
		}
		v, err := fd.buildInstr(wi)
		if err != nil {
			return fd.fail(bi, ii, err)
		}
		if key := canonicalName(wi.Name); key != "" {
			if v == nil {
				return fd.fail(bi, ii, fmt.Errorf("%s has no result to name %%%s", wi.Op, key))
			}
			fd.values[key] = v
		}
	}
	b.SetPos(fd.d.pos(&wb.Term))
	if err := fd.buildTerm(&wb.Term); err != nil {
		return fd.fail(bi, -1, err)
	}
	return nil
}

func (fd *funcDecoder) fillPhis() error {
	for bi := range fd.wf.Blocks {
		wb := &fd.wf.Blocks[bi]
		for ii := range wb.Instrs {
			wi := &wb.Instrs[ii]
			if wi.Op != opPhi {
				continue
			}
			if len(wi.Args) != len(wi.Labels) {
				return fd.fail(bi, ii, fmt.Errorf("phi has %d values for %d predecessors", len(wi.Args), len(wi.Labels)))
			}
			phi := fd.phis[defSite{block: bi, index: ii}]
			for k, a := range wi.Args {
				v, err := fd.operand(a)
				if err != nil {
					return fd.fail(bi, ii, err)
				}
				from, err := fd.block(wi.Labels[k])
				if err != nil {
					return fd.fail(bi, ii, err)
				}
				ir.AddIncoming(phi, v, from)
			}
		}
	}
	return nil
}

func (fd *funcDecoder) block(label string) (*ir.Block, error) {
	blk, ok := fd.blocks[canonicalName(label)]
	if !ok {
		return nil, fmt.Errorf("unknown label %s", label)
	}
	return blk, nil
}

// operand parses "%x", "@f" or "<type> <literal>".
func (fd *funcDecoder) operand(s string) (*ir.Value, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, errors.New("empty operand")
	case s[0] == '%':
		key := canonicalName(s[1:])
		v, ok := fd.values[key]
		if !ok {
			return nil, fmt.Errorf("operand %%%s is never defined", key)
		}
		return v, nil
	case s[0] == '@':
		return fd.callee(s)
	}
	sp := strings.LastIndexByte(s, ' ')
	if sp < 0 {
		return nil, fmt.Errorf("constant %q has no type", s)
	}
	ty, err := fd.d.parseType(s[:sp])
	if err != nil {
		return nil, err
	}
	in := fd.d.types()
	switch lit := s[sp+1:]; lit {
	case "undef":
		return ir.NewUndef(ty), nil
	case "null":
		if !in.IsPointer(ty) {
			return nil, fmt.Errorf("null constant of non-pointer type %s", in.String(ty))
		}
		return ir.NewNull(ty), nil
	case "true", "false":
		if in.IntWidth(ty) != types.Width1 {
			return nil, fmt.Errorf("boolean constant of type %s", in.String(ty))
		}
		if lit == "true" {
			return ir.NewIntConst(in, ty, 1), nil
		}
		return ir.NewIntConst(in, ty, 0), nil
	default:
		if !in.IsInteger(ty) {
			return nil, fmt.Errorf("integer constant of type %s", in.String(ty))
		}
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad integer constant %q: %w", lit, err)
		}
		return ir.NewIntConst(in, ty, n), nil
	}
}

func (fd *funcDecoder) callee(s string) (*ir.Value, error) {
	name, ok := strings.CutPrefix(strings.TrimSpace(s), "@")
	if !ok {
		return nil, fmt.Errorf("callee %q is not a function reference", s)
	}
	f := fd.d.module.Func(canonicalName(name))
	if f == nil {
		return nil, fmt.Errorf("unknown function @%s", name)
	}
	return f.Value(), nil
}

func (fd *funcDecoder) args(wi *Instr, n int) ([]*ir.Value, error) {
	if len(wi.Args) != n {
		return nil, fmt.Errorf("%s takes %d operands, got %d", wi.Op, n, len(wi.Args))
	}
	return fd.operandList(wi.Args)
}

func (fd *funcDecoder) operandList(args []string) ([]*ir.Value, error) {
	out := make([]*ir.Value, len(args))
	for i, a := range args {
		v, err := fd.operand(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func hasFlag(wi *Instr, flag string) bool {
	for _, f := range wi.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

func (fd *funcDecoder) buildInstr(wi *Instr) (*ir.Value, error) {
	b := fd.d.b
	name := valueName(canonicalName(wi.Name))
	switch wi.Op {
	case opAlloca:
		elem, err := fd.d.parseType(wi.Type)
		if err != nil {
			return nil, err
		}
		if len(wi.Args) > 1 {
			return nil, fmt.Errorf("alloca takes at most one count, got %d", len(wi.Args))
		}
		var count *ir.Value
		if len(wi.Args) == 1 {
			if count, err = fd.operand(wi.Args[0]); err != nil {
				return nil, err
			}
		}
		return b.Alloca(elem, count, name), nil
	case opLoad:
		ops, err := fd.args(wi, 1)
		if err != nil {
			return nil, err
		}
		return b.Load(ops[0], name)
	case opStore:
		ops, err := fd.args(wi, 2)
		if err != nil {
			return nil, err
		}
		b.Store(ops[0], ops[1])
		return nil, nil
	case opGEP:
		if len(wi.Args) == 0 {
			return nil, errors.New("getelementptr needs a base")
		}
		ops, err := fd.operandList(wi.Args)
		if err != nil {
			return nil, err
		}
		v, err := b.GEP(ops[0], ops[1:], name)
		if err != nil {
			return nil, err
		}
		v.Def.GEP.Inbounds = hasFlag(wi, flagInbounds)
		return v, nil
	case opICmp:
		pred, ok := ir.ParsePredicate(wi.Pred)
		if !ok {
			return nil, fmt.Errorf("unknown predicate %q", wi.Pred)
		}
		ops, err := fd.args(wi, 2)
		if err != nil {
			return nil, err
		}
		return b.ICmp(pred, ops[0], ops[1], name), nil
	case opSelect:
		ops, err := fd.args(wi, 3)
		if err != nil {
			return nil, err
		}
		return b.Select(ops[0], ops[1], ops[2], name), nil
	case opCall:
		if len(wi.Args) == 0 {
			return nil, errors.New("call needs a callee")
		}
		cv, err := fd.callee(wi.Args[0])
		if err != nil {
			return nil, err
		}
		ops, err := fd.operandList(wi.Args[1:])
		if err != nil {
			return nil, err
		}
		return b.Call(cv.Func, ops, name)
	case opVAArg:
		ty, err := fd.d.parseType(wi.Type)
		if err != nil {
			return nil, err
		}
		ops, err := fd.args(wi, 1)
		if err != nil {
			return nil, err
		}
		return b.VAArg(ops[0], ty, name), nil
	case opExtractValue:
		ops, err := fd.args(wi, 1)
		if err != nil {
			return nil, err
		}
		return b.ExtractValue(ops[0], wi.Indices, name)
	case opInsertValue:
		ops, err := fd.args(wi, 2)
		if err != nil {
			return nil, err
		}
		return b.InsertValue(ops[0], ops[1], wi.Indices, name)
	}
	if op, ok := ir.ParseCastOp(wi.Op); ok {
		to, err := fd.d.parseType(wi.Type)
		if err != nil {
			return nil, err
		}
		ops, err := fd.args(wi, 1)
		if err != nil {
			return nil, err
		}
		return b.Cast(op, ops[0], to, name), nil
	}
	if op, ok := ir.ParseBinOp(wi.Op); ok {
		ops, err := fd.args(wi, 2)
		if err != nil {
			return nil, err
		}
		return b.Binary(op, ops[0], ops[1], hasFlag(wi, flagNSW), hasFlag(wi, flagNUW), name), nil
	}
	return nil, fmt.Errorf("unknown instruction %q", wi.Op)
}

func (fd *funcDecoder) buildTerm(wi *Instr) error {
	b := fd.d.b
	switch wi.Op {
	case opRet:
		switch len(wi.Args) {
		case 0:
			b.Ret(nil)
			return nil
		case 1:
			v, err := fd.operand(wi.Args[0])
			if err != nil {
				return err
			}
			b.Ret(v)
			return nil
		}
		return fmt.Errorf("ret takes at most one value, got %d", len(wi.Args))
	case opBr:
		switch {
		case len(wi.Args) == 0 && len(wi.Labels) == 1:
			target, err := fd.block(wi.Labels[0])
			if err != nil {
				return err
			}
			b.Br(target)
			return nil
		case len(wi.Args) == 1 && len(wi.Labels) == 2:
			cond, err := fd.operand(wi.Args[0])
			if err != nil {
				return err
			}
			then, err := fd.block(wi.Labels[0])
			if err != nil {
				return err
			}
			els, err := fd.block(wi.Labels[1])
			if err != nil {
				return err
			}
			b.CondBr(cond, then, els)
			return nil
		}
		return fmt.Errorf("br takes one label, or a condition and two labels")
	case opSwitch:
		if len(wi.Args) == 0 || len(wi.Args) != len(wi.Labels) {
			return fmt.Errorf("switch needs a condition and one label per case plus a default")
		}
		cond, err := fd.operand(wi.Args[0])
		if err != nil {
			return err
		}
		def, err := fd.block(wi.Labels[0])
		if err != nil {
			return err
		}
		sw := b.Switch(cond, def, len(wi.Args)-1)
		for k := 1; k < len(wi.Args); k++ {
			v, err := fd.operand(wi.Args[k])
			if err != nil {
				return err
			}
			if !v.IsConst() {
				return fmt.Errorf("switch case %s is not a constant", wi.Args[k])
			}
			target, err := fd.block(wi.Labels[k])
			if err != nil {
				return err
			}
			sw.AddCase(v, target)
		}
		return nil
	case opUnreachable:
		b.Unreachable()
		return nil
	case "":
		return errors.New("block has no terminator")
	}
	return fmt.Errorf("unknown terminator %q", wi.Op)
}
