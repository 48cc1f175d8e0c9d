package ir

import (
	"fmt"
	"slices"
	"strconv"

	"bcrebuild/internal/types"
)

// Linkage controls symbol visibility of a function.
type Linkage uint8

const (
	LinkageExternal Linkage = iota
	LinkageInternal
)

func (l Linkage) String() string {
	if l == LinkageInternal {
		return "internal"
	}
	return "external"
}

// Func is a function. A function without blocks is a declaration.
type Func struct {
	Name    string
	Type    types.TypeID
	Linkage Linkage
	Params  []*Value
	Blocks  []*Block
	Module  *Module

	value *Value
	names map[string]int
}

// IsDeclaration reports whether the function has no body.
func (f *Func) IsDeclaration() bool {
	return f == nil || len(f.Blocks) == 0
}

// Signature returns the function type's parameters, result and variadic flag.
func (f *Func) Signature() *types.FnInfo {
	if f == nil || f.Module == nil {
		return nil
	}
	info, ok := f.Module.Types.FnInfo(f.Type)
	if !ok {
		return nil
	}
	return info
}

// Variadic reports whether the function accepts a variable argument list.
func (f *Func) Variadic() bool {
	sig := f.Signature()
	return sig != nil && sig.Variadic
}

// Result returns the return type.
func (f *Func) Result() types.TypeID {
	if sig := f.Signature(); sig != nil {
		return sig.Result
	}
	return types.NoTypeID
}

// Value returns the function as an operand.
func (f *Func) Value() *Value {
	if f.value == nil {
		f.value = &Value{
			Kind: ValueFunc,
			Type: f.Module.Types.PointerTo(f.Type),
			Name: f.Name,
			Func: f,
		}
	}
	return f.value
}

// Entry returns the first block, or nil for declarations.
func (f *Func) Entry() *Block {
	if f.IsDeclaration() {
		return nil
	}
	return f.Blocks[0]
}

// NewBlock appends an empty block.
func (f *Func) NewBlock(name string) *Block {
	b := &Block{Name: name, Parent: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Block returns the block with the given name.
func (f *Func) Block(name string) *Block {
	for _, b := range f.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// DeleteBody drops every block, turning the function into a declaration.
func (f *Func) DeleteBody() {
	for _, b := range f.Blocks {
		b.Parent = nil
	}
	f.Blocks = nil
	f.names = nil
	for _, p := range f.Params {
		f.claimName(p.Name)
	}
}

// Predecessors maps every block to its predecessors, once per edge.
func (f *Func) Predecessors() map[*Block][]*Block {
	preds := make(map[*Block][]*Block, len(f.Blocks))
	for _, b := range f.Blocks {
		for _, succ := range b.Term.Successors() {
			preds[succ] = append(preds[succ], b)
		}
	}
	return preds
}

// NumInstrs counts instructions including terminators.
func (f *Func) NumInstrs() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Instrs)
		if b.Terminated() {
			n++
		}
	}
	return n
}

// claimName returns a function-unique value name derived from name.
// Empty names stay empty and are numbered when printed.
func (f *Func) claimName(name string) string {
	if name == "" {
		return ""
	}
	if f.names == nil {
		f.names = make(map[string]int)
	}
	n, taken := f.names[name]
	if !taken {
		f.names[name] = 0
		return name
	}
	for {
		n++
		candidate := name + strconv.Itoa(n)
		if _, clash := f.names[candidate]; !clash {
			f.names[name] = n
			f.names[candidate] = 0
			return candidate
		}
	}
}

func newFunc(m *Module, name string, fnType types.TypeID, linkage Linkage, paramNames []string) (*Func, error) {
	info, ok := m.Types.FnInfo(fnType)
	if !ok {
		return nil, fmt.Errorf("function %s: %s is not a function type", name, m.Types.String(fnType))
	}
	f := &Func{Name: name, Type: fnType, Linkage: linkage, Module: m}
	f.Params = make([]*Value, len(info.Params))
	for i, pt := range info.Params {
		pname := ""
		if i < len(paramNames) {
			pname = paramNames[i]
		}
		f.Params[i] = &Value{Kind: ValueParam, Type: pt, Name: f.claimName(pname), Index: i, Owner: f}
	}
	return f, nil
}

// ReversePostorder lists the blocks reachable from the entry in reverse
// postorder, followed by the unreachable blocks, also in reverse
// postorder of walks started from each unvisited block in layout order.
// A block comes after every block that dominates it within its part.
func (f *Func) ReversePostorder() []*Block {
	if f.IsDeclaration() {
		return nil
	}
	visited := make(map[*Block]bool, len(f.Blocks))
	order := f.postorderFrom(nil, visited, f.Blocks[0])
	slices.Reverse(order)
	var rest []*Block
	for _, b := range f.Blocks {
		if !visited[b] {
			rest = f.postorderFrom(rest, visited, b)
		}
	}
	slices.Reverse(rest)
	return append(order, rest...)
}

// postorderFrom appends the blocks reachable from start that are not yet
// visited to post, in postorder.
func (f *Func) postorderFrom(post []*Block, visited map[*Block]bool, start *Block) []*Block {
	type frame struct {
		b    *Block
		next int
	}
	visited[start] = true
	stack := []frame{{b: start}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := top.b.Term.Successors()
		if top.next < len(succs) {
			s := succs[top.next]
			top.next++
			if s != nil && !visited[s] {
				visited[s] = true
				stack = append(stack, frame{b: s})
			}
			continue
		}
		post = append(post, top.b)
		stack = stack[:len(stack)-1]
	}
	return post
}
