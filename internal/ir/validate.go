package ir

import (
	"errors"
	"fmt"
	"slices"

	"bcrebuild/internal/types"
)

// Validate checks module invariants and returns every violation joined.
func Validate(m *Module) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, f := range m.Funcs {
		if f == nil || f.IsDeclaration() {
			continue
		}
		if err := validateFunc(m, f); err != nil {
			errs = append(errs, fmt.Errorf("function %s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

func blockLabel(f *Func, b *Block) string {
	if b == nil {
		return "<nil block>"
	}
	if b.Name != "" {
		return b.Name
	}
	if i := slices.Index(f.Blocks, b); i >= 0 {
		return fmt.Sprintf("bb%d", i)
	}
	return "<foreign block>"
}

func validateFunc(m *Module, f *Func) error {
	var errs []error
	if err := validateBlocks(f); err != nil {
		errs = append(errs, err)
	}
	if err := validateOperands(m, f); err != nil {
		errs = append(errs, err)
	}
	if err := validatePhis(f); err != nil {
		errs = append(errs, err)
	}
	if err := validateTypes(f); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// validateBlocks checks terminators and branch targets.
func validateBlocks(f *Func) error {
	var errs []error
	for _, b := range f.Blocks {
		label := blockLabel(f, b)
		if b.Parent != f {
			errs = append(errs, fmt.Errorf("%s: block parent mismatch", label))
		}
		if !b.Terminated() {
			errs = append(errs, fmt.Errorf("%s: unterminated block", label))
		}
		for _, succ := range b.Term.Successors() {
			if succ == nil || succ.Parent != f || !slices.Contains(f.Blocks, succ) {
				errs = append(errs, fmt.Errorf("%s: branch to block outside the function", label))
			}
		}
		seenNonPhi := false
		for _, in := range b.Instrs {
			if in.Block != b {
				errs = append(errs, fmt.Errorf("%s: %s instruction not owned by block", label, in.Kind))
			}
			if in.Kind == InstrPhi {
				if seenNonPhi {
					errs = append(errs, fmt.Errorf("%s: phi after non-phi instruction", label))
				}
				continue
			}
			seenNonPhi = true
		}
	}
	return errors.Join(errs...)
}

func checkOperand(m *Module, f *Func, v *Value) error {
	if v == nil {
		return errors.New("nil operand")
	}
	switch v.Kind {
	case ValueConst:
		return nil
	case ValueParam:
		if v.Owner != f {
			return fmt.Errorf("parameter %%%s belongs to another function", v.Name)
		}
	case ValueInstr:
		if v.Def == nil || v.Def.Block == nil {
			return fmt.Errorf("value %%%s is not placed in a block", v.Name)
		}
		if v.Def.Block.Parent != f {
			return fmt.Errorf("value %%%s is defined in another function", v.Name)
		}
	case ValueFunc:
		if !slices.Contains(m.Funcs, v.Func) {
			return fmt.Errorf("function @%s is not in the module", v.Name)
		}
	}
	return nil
}

// validateOperands checks that every operand is reachable from f.
func validateOperands(m *Module, f *Func) error {
	var errs []error
	for _, b := range f.Blocks {
		label := blockLabel(f, b)
		for _, in := range b.Instrs {
			for _, op := range in.Operands() {
				if err := checkOperand(m, f, op); err != nil {
					errs = append(errs, fmt.Errorf("%s: %s: %w", label, in.Kind, err))
				}
			}
			if in.Kind == InstrCall && !slices.Contains(m.Funcs, in.Call.Callee) {
				errs = append(errs, fmt.Errorf("%s: call to function outside the module", label))
			}
		}
		for _, op := range b.Term.Operands() {
			if err := checkOperand(m, f, op); err != nil {
				errs = append(errs, fmt.Errorf("%s: %s: %w", label, b.Term.Kind, err))
			}
		}
	}
	return errors.Join(errs...)
}

// validatePhis checks that phi edges match the predecessor edges.
func validatePhis(f *Func) error {
	var errs []error
	preds := f.Predecessors()
	for _, b := range f.Blocks {
		label := blockLabel(f, b)
		for _, phi := range b.Phis() {
			for _, e := range phi.Phi.Incoming {
				if !slices.Contains(preds[b], e.Block) {
					errs = append(errs, fmt.Errorf("%s: phi edge from %s which is not a predecessor", label, blockLabel(f, e.Block)))
				}
			}
			for _, p := range preds[b] {
				if !slices.ContainsFunc(phi.Phi.Incoming, func(e PhiEdge) bool { return e.Block == p }) {
					errs = append(errs, fmt.Errorf("%s: phi missing edge from %s", label, blockLabel(f, p)))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// validateTypes checks operand types at every typed use.
func validateTypes(f *Func) error {
	in := f.Module.Types
	mismatch := func(label, what string, got, want types.TypeID) error {
		return fmt.Errorf("%s: %s has type %s, want %s", label, what, in.String(got), in.String(want))
	}
	var errs []error
	for _, b := range f.Blocks {
		label := blockLabel(f, b)
		for _, inst := range b.Instrs {
			if slices.Contains(inst.Operands(), nil) {
				continue
			}
			switch inst.Kind {
			case InstrLoad:
				if !in.IsPointer(inst.Load.Ptr.Type) {
					errs = append(errs, fmt.Errorf("%s: load from non-pointer", label))
				}
			case InstrStore:
				elem, ok := in.Pointee(inst.Store.Ptr.Type)
				if !ok {
					errs = append(errs, fmt.Errorf("%s: store to non-pointer", label))
				} else if inst.Store.Val.Type != elem {
					errs = append(errs, mismatch(label, "stored value", inst.Store.Val.Type, elem))
				}
			case InstrPhi:
				for _, e := range inst.Phi.Incoming {
					if e.Value.Type != inst.Result.Type {
						errs = append(errs, mismatch(label, "phi incoming value", e.Value.Type, inst.Result.Type))
					}
				}
			case InstrICmp:
				if inst.ICmp.X.Type != inst.ICmp.Y.Type {
					errs = append(errs, mismatch(label, "icmp operand", inst.ICmp.Y.Type, inst.ICmp.X.Type))
				}
			case InstrBinary:
				if inst.Binary.X.Type != inst.Binary.Y.Type {
					errs = append(errs, mismatch(label, "binary operand", inst.Binary.Y.Type, inst.Binary.X.Type))
				}
			case InstrSelect:
				if inst.Select.X.Type != inst.Select.Y.Type {
					errs = append(errs, mismatch(label, "select operand", inst.Select.Y.Type, inst.Select.X.Type))
				}
			case InstrCall:
				sig := inst.Call.Callee.Signature()
				if sig == nil {
					continue
				}
				for i, p := range sig.Params {
					if i < len(inst.Call.Args) && inst.Call.Args[i].Type != p {
						errs = append(errs, mismatch(label, fmt.Sprintf("argument %d to @%s", i, inst.Call.Callee.Name), inst.Call.Args[i].Type, p))
					}
				}
			}
		}
		if b.Term.Kind == TermRet {
			want := f.Result()
			v := b.Term.Ret.Value
			switch {
			case v == nil && in.KindOf(want) != types.KindVoid:
				errs = append(errs, fmt.Errorf("%s: missing return value", label))
			case v != nil && v.Type != want:
				errs = append(errs, mismatch(label, "return value", v.Type, want))
			}
		}
	}
	return errors.Join(errs...)
}

// IsRestrictedType reports whether ty is in the bytecode vocabulary:
// an integer, void, a pointer to an integer or a flat integer array.
func IsRestrictedType(in *types.Interner, ty types.TypeID) bool {
	tt, ok := in.Lookup(ty)
	if !ok {
		return false
	}
	switch tt.Kind {
	case types.KindInt, types.KindVoid:
		return true
	case types.KindPointer, types.KindArray:
		return in.IsInteger(tt.Elem)
	default:
		return false
	}
}

// ValidateRestricted checks that every defined function uses only
// restricted types in its signature, stack allocations and address
// computations.
func ValidateRestricted(m *Module) error {
	if m == nil {
		return nil
	}
	in := m.Types
	var errs []error
	for _, f := range m.Funcs {
		if f == nil || f.IsDeclaration() {
			continue
		}
		report := func(format string, args ...any) {
			errs = append(errs, fmt.Errorf("function %s: "+format, append([]any{f.Name}, args...)...))
		}
		if sig := f.Signature(); sig != nil {
			for i, p := range sig.Params {
				if !IsRestrictedType(in, p) {
					report("parameter %d has type %s", i, in.String(p))
				}
			}
			if !IsRestrictedType(in, sig.Result) {
				report("result has type %s", in.String(sig.Result))
			}
		}
		for _, b := range f.Blocks {
			for _, inst := range b.Instrs {
				switch inst.Kind {
				case InstrAlloca:
					elem := inst.Alloca.Elem
					if in.KindOf(elem) == types.KindArray || !IsRestrictedType(in, elem) {
						report("%s: stack slot of type %s", blockLabel(f, b), in.String(elem))
					}
				case InstrGEP:
					if !IsRestrictedType(in, inst.GEP.Base.Type) || !in.IsPointer(inst.GEP.Base.Type) {
						report("%s: address base of type %s", blockLabel(f, b), in.String(inst.GEP.Base.Type))
					}
					if !IsRestrictedType(in, inst.Result.Type) {
						report("%s: address result of type %s", blockLabel(f, b), in.String(inst.Result.Type))
					}
				}
			}
		}
	}
	return errors.Join(errs...)
}
