package rebuild

import (
	"fortio.org/safecast"

	"bcrebuild/internal/layout"
	"bcrebuild/internal/types"
)

// TypeRebuilder maps arbitrary types onto the bytecode vocabulary:
// integers, void, pointers to an integer and flat integer arrays.
// Results are memoised, and rebuilding a rebuilt type returns it
// unchanged.
type TypeRebuilder struct {
	types  *types.Interner
	layout *layout.Engine
	opts   Options
	memo   map[types.TypeID]types.TypeID
}

// NewTypeRebuilder creates a rebuilder over eng's interner and target.
func NewTypeRebuilder(eng *layout.Engine, opts Options) *TypeRebuilder {
	return &TypeRebuilder{
		types:  eng.Types,
		layout: eng,
		opts:   opts,
		memo:   make(map[types.TypeID]types.TypeID),
	}
}

// Rebuild returns the restricted counterpart of t.
func (r *TypeRebuilder) Rebuild(t types.TypeID) (types.TypeID, error) {
	if out, ok := r.memo[t]; ok {
		return out, nil
	}
	out, err := r.rebuild(t)
	if err != nil {
		return types.NoTypeID, err
	}
	r.memo[t] = out
	return out, nil
}

func (r *TypeRebuilder) rebuild(t types.TypeID) (types.TypeID, error) {
	switch r.types.KindOf(t) {
	case types.KindInt, types.KindVoid:
		return t, nil
	case types.KindPointer:
		leaf, err := r.innerLeaf(t)
		if err != nil {
			return types.NoTypeID, err
		}
		return r.types.PointerTo(leaf), nil
	case types.KindStruct, types.KindArray:
		return r.flatten(t)
	default:
		return types.NoTypeID, errorf(UnsupportedConstruct, "type %s is not supported", r.types.String(t))
	}
}

// innerLeaf descends through sub-element 0 of pointers, arrays and
// structs until it reaches a scalar, which must be an integer.
func (r *TypeRebuilder) innerLeaf(t types.TypeID) (types.TypeID, error) {
	cur := t
	for {
		switch r.types.KindOf(cur) {
		case types.KindPointer, types.KindArray, types.KindStruct:
			next, ok := r.types.ElemAt(cur, 0)
			if !ok {
				return types.NoTypeID, errorf(LayoutInvariantViolation,
					"%s has no scalar leaf: %s has no element 0", r.types.String(t), r.types.String(cur))
			}
			cur = next
		case types.KindInt:
			return cur, nil
		default:
			return types.NoTypeID, errorf(LayoutInvariantViolation,
				"leaf of %s is %s, not an integer", r.types.String(t), r.types.String(cur))
		}
	}
}

func (r *TypeRebuilder) flatten(t types.TypeID) (types.TypeID, error) {
	leaf, err := r.innerLeaf(t)
	if err != nil {
		return types.NoTypeID, err
	}
	if !r.opts.AllowNonUniform {
		if err := r.checkUniform(t, t, leaf); err != nil {
			return types.NoTypeID, err
		}
	}
	size, err := r.layout.SizeOf(t)
	if err != nil {
		return types.NoTypeID, &Error{Kind: LayoutInvariantViolation, Msg: "cannot size " + r.types.String(t), Err: err}
	}
	leafSize, err := r.layout.SizeOf(leaf)
	if err != nil || leafSize <= 0 {
		return types.NoTypeID, &Error{Kind: LayoutInvariantViolation, Msg: "cannot size leaf " + r.types.String(leaf), Err: err}
	}
	if size%leafSize != 0 {
		return types.NoTypeID, errorf(LayoutInvariantViolation,
			"%s is %d bytes, not a whole number of %d-byte %s elements",
			r.types.String(t), size, leafSize, r.types.String(leaf))
	}
	n, err := safecast.Conv[uint32](size / leafSize)
	if err != nil {
		return types.NoTypeID, &Error{Kind: Overflow, Msg: "element count of " + r.types.String(t), Err: err}
	}
	return r.types.ArrayOf(leaf, n), nil
}

// checkUniform requires every storage leaf of t to be leaf itself.
func (r *TypeRebuilder) checkUniform(root, t, leaf types.TypeID) error {
	switch r.types.KindOf(t) {
	case types.KindInt:
		if t != leaf {
			return errorf(LayoutInvariantViolation,
				"%s mixes %s and %s leaves", r.types.String(root), r.types.String(leaf), r.types.String(t))
		}
		return nil
	case types.KindArray:
		elem, _ := r.types.ElemAt(t, 0)
		return r.checkUniform(root, elem, leaf)
	case types.KindStruct:
		for i, n := 0, r.types.NumElems(t); i < n; i++ {
			field, _ := r.types.ElemAt(t, i)
			if err := r.checkUniform(root, field, leaf); err != nil {
				return err
			}
		}
		return nil
	default:
		return errorf(LayoutInvariantViolation,
			"%s stores a %s, which has no flat integer form", r.types.String(root), r.types.String(t))
	}
}

// RebuildSignature rebuilds the parameter and result types of a function
// type. Variadic signatures are rejected.
func (r *TypeRebuilder) RebuildSignature(fnType types.TypeID) (types.TypeID, error) {
	info, ok := r.types.FnInfo(fnType)
	if !ok {
		return types.NoTypeID, errorf(MalformedInput, "%s is not a function type", r.types.String(fnType))
	}
	if info.Variadic {
		return types.NoTypeID, errorf(UnsupportedConstruct, "variadic function type %s", r.types.String(fnType))
	}
	params := make([]types.TypeID, len(info.Params))
	for i, p := range info.Params {
		rp, err := r.Rebuild(p)
		if err != nil {
			return types.NoTypeID, err
		}
		params[i] = rp
	}
	result, err := r.Rebuild(info.Result)
	if err != nil {
		return types.NoTypeID, err
	}
	return r.types.RegisterFn(params, result, false), nil
}
