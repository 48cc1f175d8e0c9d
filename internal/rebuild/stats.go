package rebuild

import "bcrebuild/internal/ir"

// FuncStats describes how one function changed.
type FuncStats struct {
	Name         string
	Blocks       int
	InstrsBefore int
	InstrsAfter  int
	CastsAdded   int
	Phis         int
}

// Stats summarises a run.
type Stats struct {
	Funcs        []FuncStats
	Declarations int
}

// Totals sums the per-function counts.
func (s *Stats) Totals() FuncStats {
	total := FuncStats{Name: "total"}
	if s == nil {
		return total
	}
	for _, f := range s.Funcs {
		total.Blocks += f.Blocks
		total.InstrsBefore += f.InstrsBefore
		total.InstrsAfter += f.InstrsAfter
		total.CastsAdded += f.CastsAdded
		total.Phis += f.Phis
	}
	return total
}

func countKind(f *ir.Func, kind ir.InstrKind) int {
	n := 0
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Kind == kind {
				n++
			}
		}
	}
	return n
}

func collectFuncStats(old, nf *ir.Func) FuncStats {
	return FuncStats{
		Name:         old.Name,
		Blocks:       len(nf.Blocks),
		InstrsBefore: old.NumInstrs(),
		InstrsAfter:  nf.NumInstrs(),
		CastsAdded:   countKind(nf, ir.InstrCast) - countKind(old, ir.InstrCast),
		Phis:         countKind(nf, ir.InstrPhi),
	}
}
