package layout

import (
	"bcrebuild/internal/types"
)

// TypeLayout is the storage layout of a type for a specific Target.
// Size already includes tail padding, so it doubles as the allocation size
// and as the stride between consecutive array elements.
type TypeLayout struct {
	Size  int
	Align int

	// Struct-only:
	FieldOffsets []int
}

// Engine computes memory layout for types. It is the data-layout query
// service consumed by the rebuild pass.
type Engine struct {
	Target Target
	Types  *types.Interner

	cache *cache
}

// New creates a new Engine for the specified target.
func New(target Target, typesIn *types.Interner) *Engine {
	return &Engine{
		Target: target,
		Types:  typesIn,
		cache:  newCache(),
	}
}

// LayoutOf computes and caches the layout of a type.
func (e *Engine) LayoutOf(t types.TypeID) (TypeLayout, error) {
	if e == nil {
		return TypeLayout{Size: 0, Align: 1}, nil
	}
	l, err := e.layoutOf(t)
	if err != nil {
		return l, err
	}
	return l, nil
}

func (e *Engine) layoutOf(t types.TypeID) (TypeLayout, *LayoutError) {
	if e.cache == nil {
		e.cache = newCache()
	}
	if cached, ok := e.cache.get(t); ok {
		return cached.Layout, cached.Err
	}
	l, err := e.computeLayout(t)
	e.cache.put(t, &cacheEntry{Layout: l, Err: err})
	return l, err
}

// SizeOf returns the allocation size of a type in bytes.
func (e *Engine) SizeOf(t types.TypeID) (int, error) {
	l, err := e.LayoutOf(t)
	return l.Size, err
}

// AlignOf returns the alignment requirement of a type in bytes.
func (e *Engine) AlignOf(t types.TypeID) (int, error) {
	l, err := e.LayoutOf(t)
	return l.Align, err
}

// FieldOffset returns the byte offset of a struct field.
func (e *Engine) FieldOffset(structT types.TypeID, fieldIdx int) (int, error) {
	l, err := e.LayoutOf(structT)
	if err != nil {
		return 0, err
	}
	if fieldIdx < 0 || fieldIdx >= len(l.FieldOffsets) {
		return 0, nil
	}
	return l.FieldOffsets[fieldIdx], nil
}
