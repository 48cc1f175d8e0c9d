package diag

// Reporter receives diagnostics from producers.
// Implementations: BagReporter, DedupReporter.
type Reporter interface {
	Report(d Diagnostic)
}

// BagReporter writes into a *Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(d Diagnostic) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(d)
}

type dedupKey struct {
	code Code
	sev  Severity
	file string
	line uint32
	col  uint32
	msg  string
}

// DedupReporter wraps another Reporter and suppresses diagnostics with the
// same code, severity, position and message.
type DedupReporter struct {
	next Reporter
	seen map[dedupKey]struct{}
}

func NewDedupReporter(next Reporter) *DedupReporter {
	return &DedupReporter{
		next: next,
		seen: make(map[dedupKey]struct{}),
	}
}

func (r *DedupReporter) Report(d Diagnostic) {
	if r == nil {
		return
	}
	key := dedupKey{
		code: d.Code,
		sev:  d.Severity,
		file: d.Pos.File,
		line: d.Pos.Line,
		col:  d.Pos.Col,
		msg:  d.Message,
	}
	if _, ok := r.seen[key]; ok {
		return
	}
	r.seen[key] = struct{}{}
	if r.next != nil {
		r.next.Report(d)
	}
}
