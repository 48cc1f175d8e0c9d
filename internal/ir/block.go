package ir

// Block is a basic block: straight-line instructions ended by Term.
type Block struct {
	Name   string
	Parent *Func
	Instrs []*Instr
	Term   Terminator
}

// Terminated reports whether the block has a terminator.
func (b *Block) Terminated() bool {
	if b == nil {
		return true
	}
	return b.Term.Kind != TermNone
}

// Phis returns the leading phi instructions of the block.
func (b *Block) Phis() []*Instr {
	if b == nil {
		return nil
	}
	n := 0
	for n < len(b.Instrs) && b.Instrs[n].Kind == InstrPhi {
		n++
	}
	return b.Instrs[:n]
}
