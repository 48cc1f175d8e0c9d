package ir

import (
	"fmt"
	"slices"

	"bcrebuild/internal/types"
)

// Module is an ordered set of functions sharing one type interner.
type Module struct {
	Name  string
	Types *types.Interner
	Funcs []*Func
}

// NewModule creates an empty module.
func NewModule(name string, typesIn *types.Interner) *Module {
	if typesIn == nil {
		typesIn = types.NewInterner()
	}
	return &Module{Name: name, Types: typesIn}
}

// NewFunc creates a function and appends it to the module.
func (m *Module) NewFunc(name string, fnType types.TypeID, linkage Linkage, paramNames ...string) (*Func, error) {
	if m.Func(name) != nil {
		return nil, fmt.Errorf("function %s already defined", name)
	}
	f, err := newFunc(m, name, fnType, linkage, paramNames)
	if err != nil {
		return nil, err
	}
	m.Funcs = append(m.Funcs, f)
	return f, nil
}

// CreateFunc creates a function owned by the module without adding it to
// the function list. Use ReplaceFunc or AddFunc to publish it.
func (m *Module) CreateFunc(name string, fnType types.TypeID, linkage Linkage, paramNames ...string) (*Func, error) {
	return newFunc(m, name, fnType, linkage, paramNames)
}

// AddFunc appends a function created with CreateFunc.
func (m *Module) AddFunc(f *Func) error {
	if f.Module != m {
		return fmt.Errorf("function %s belongs to another module", f.Name)
	}
	if m.Func(f.Name) != nil {
		return fmt.Errorf("function %s already defined", f.Name)
	}
	m.Funcs = append(m.Funcs, f)
	return nil
}

// Func returns the function with the given name, or nil.
func (m *Module) Func(name string) *Func {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ReplaceFunc puts repl in old's position.
func (m *Module) ReplaceFunc(old, repl *Func) error {
	i := slices.Index(m.Funcs, old)
	if i < 0 {
		return fmt.Errorf("function %s is not in module %s", old.Name, m.Name)
	}
	if repl.Module != m {
		return fmt.Errorf("function %s belongs to another module", repl.Name)
	}
	m.Funcs[i] = repl
	return nil
}

// RemoveFunc drops f from the function list.
func (m *Module) RemoveFunc(f *Func) {
	m.Funcs = slices.DeleteFunc(m.Funcs, func(g *Func) bool { return g == f })
}
