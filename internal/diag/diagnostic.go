package diag

import "bcrebuild/internal/source"

type Note struct {
	Pos source.Pos
	Msg string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Pos      source.Pos
	Func     string
	Instr    string
	Notes    []Note
}

func New(sev Severity, code Code, pos source.Pos, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Pos:      pos,
		Message:  msg,
	}
}

func NewError(code Code, pos source.Pos, msg string) Diagnostic {
	return New(SevError, code, pos, msg)
}

func (d Diagnostic) WithNote(pos source.Pos, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Pos: pos, Msg: msg})
	return d
}

// At records the function and instruction the diagnostic is about.
func (d Diagnostic) At(fn, instr string) Diagnostic {
	d.Func = fn
	d.Instr = instr
	return d
}
