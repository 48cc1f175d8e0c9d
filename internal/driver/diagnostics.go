package driver

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"bcrebuild/internal/diag"
	"bcrebuild/internal/irpack"
	"bcrebuild/internal/rebuild"
	"bcrebuild/internal/source"
)

var rebuildCodes = map[rebuild.ErrorKind]diag.Code{
	rebuild.UnsupportedConstruct:     diag.RebuildUnsupported,
	rebuild.LayoutInvariantViolation: diag.RebuildLayout,
	rebuild.Overflow:                 diag.RebuildOverflow,
	rebuild.MalformedInput:           diag.RebuildMalformed,
}

// rebuildDiagnostic reports a pass failure against the offending input
// instruction.
func rebuildDiagnostic(err error) diag.Diagnostic {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return diag.NewError(diag.RebuildCancelled, source.Pos{}, "rebuild cancelled: "+err.Error())
	}
	var re *rebuild.Error
	if !errors.As(err, &re) {
		return diag.NewError(diag.RebuildMalformed, source.Pos{}, err.Error())
	}
	code, ok := rebuildCodes[re.Kind]
	if !ok {
		code = diag.RebuildMalformed
	}
	msg := re.Msg
	if re.Err != nil {
		msg += ": " + re.Err.Error()
	}
	return diag.NewError(code, re.Pos, msg).At(re.Func, re.Instr)
}

func loadDiagnostic(path string, err error) diag.Diagnostic {
	at := source.Pos{File: path}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return diag.NewError(diag.IOReadFailed, at, "failed to read module: "+pathErr.Err.Error())
	}
	if errors.Is(err, irpack.ErrSchemaVersion) {
		return diag.NewError(diag.IOSchemaVersion, at, err.Error())
	}
	var de *irpack.DecodeError
	if errors.As(err, &de) {
		if de.Pos.IsValid() {
			at = de.Pos
		}
		msg := de.Err.Error()
		if de.Block != "" {
			msg = "block " + de.Block + ": " + msg
		}
		return diag.NewError(diag.IODecodeFailed, at, msg).At(de.Func, "")
	}
	return diag.NewError(diag.IODecodeFailed, at, strings.TrimPrefix(err.Error(), path+": "))
}

// reportJoined adds one diagnostic per distinct joined error; continuation
// lines become notes.
func reportJoined(bag *diag.Bag, code diag.Code, file string, err error) {
	errs := []error{err}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		errs = j.Unwrap()
	}
	r := diag.NewDedupReporter(diag.BagReporter{Bag: bag})
	for _, e := range errs {
		lines := strings.Split(e.Error(), "\n")
		d := diag.NewError(code, source.Pos{File: file}, lines[0])
		for _, l := range lines[1:] {
			d = d.WithNote(source.Pos{}, l)
		}
		r.Report(d)
	}
}

// MergeBags collects the diagnostics of all results into one bag.
func MergeBags(results []*Result, maxDiagnostics int) *diag.Bag {
	bag := diag.NewBag(maxDiagnostics)
	for _, r := range results {
		if r != nil && r.Bag != nil {
			bag.Merge(r.Bag)
		}
	}
	return bag
}
