package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"bcrebuild/internal/diag"
)

type palette struct {
	err, warn, info, note, code, loc, instr *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:   color.New(color.FgRed, color.Bold),
		warn:  color.New(color.FgYellow, color.Bold),
		info:  color.New(color.FgCyan),
		note:  color.New(color.FgBlue),
		code:  color.New(color.Faint),
		loc:   color.New(color.Bold),
		instr: color.New(color.FgHiBlack),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.info, p.note, p.code, p.loc, p.instr} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	default:
		return p.info
	}
}

// Pretty writes diagnostics in human-readable form, one block per entry:
//
//	<path>:<line>:<col>: <SEV> <CODE>: <message>
//	    in @func: <instruction>
//	    note: <path>:<line>:<col>: <message>
//
// Items are written in bag order; call bag.Sort first for stable output.
func Pretty(w io.Writer, bag *diag.Bag, opts PrettyOpts) error {
	if bag == nil {
		return nil
	}
	pal := newPalette(opts.Color)
	var errs, warns int
	for _, d := range bag.Items() {
		switch d.Severity {
		case diag.SevError:
			errs++
		case diag.SevWarning:
			warns++
		}
		if err := prettyOne(w, &d, pal, opts); err != nil {
			return err
		}
	}
	if !opts.Summary {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(plural(errs, "error"))
	sb.WriteString(", ")
	sb.WriteString(plural(warns, "warning"))
	if n := bag.Dropped(); n > 0 {
		fmt.Fprintf(&sb, " (%d more not shown)", n)
	}
	_, err := fmt.Fprintln(w, sb.String())
	return err
}

func prettyOne(w io.Writer, d *diag.Diagnostic, pal palette, opts PrettyOpts) error {
	var sb strings.Builder
	if d.Pos.IsValid() || d.Pos.File != "" {
		sb.WriteString(pal.loc.Sprint(formatPos(d.Pos, opts.PathMode, opts.BaseDir)))
		sb.WriteString(": ")
	}
	sb.WriteString(pal.severity(d.Severity).Sprint(d.Severity.String()))
	sb.WriteByte(' ')
	sb.WriteString(pal.code.Sprint(d.Code.ID()))
	sb.WriteString(": ")
	sb.WriteString(d.Message)
	sb.WriteByte('\n')

	if opts.ShowInstr && (d.Func != "" || d.Instr != "") {
		sb.WriteString("    ")
		if d.Func != "" {
			sb.WriteString("in @" + d.Func)
			if d.Instr != "" {
				sb.WriteString(": ")
			}
		}
		if d.Instr != "" {
			sb.WriteString(pal.instr.Sprint(d.Instr))
		}
		sb.WriteByte('\n')
	}
	if opts.ShowNotes {
		for _, n := range d.Notes {
			sb.WriteString("    ")
			sb.WriteString(pal.note.Sprint("note"))
			sb.WriteString(": ")
			if n.Pos.IsValid() {
				sb.WriteString(formatPos(n.Pos, opts.PathMode, opts.BaseDir))
				sb.WriteString(": ")
			}
			sb.WriteString(n.Msg)
			sb.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
