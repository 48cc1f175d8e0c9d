package rebuild

import (
	"errors"
	"fmt"
	"strings"

	"bcrebuild/internal/source"
)

// ErrorKind classifies why a rebuild failed.
type ErrorKind uint8

const (
	// UnsupportedConstruct: the input uses a type or instruction the
	// bytecode dialect cannot express.
	UnsupportedConstruct ErrorKind = iota + 1
	// LayoutInvariantViolation: an aggregate cannot be flattened into
	// whole elements of its leaf type.
	LayoutInvariantViolation
	// Overflow: a count or scale factor does not fit its target width.
	Overflow
	// MalformedInput: the input module breaks its own invariants.
	MalformedInput
)

func (k ErrorKind) String() string {
	switch k {
	case UnsupportedConstruct:
		return "unsupported construct"
	case LayoutInvariantViolation:
		return "layout invariant violation"
	case Overflow:
		return "overflow"
	case MalformedInput:
		return "malformed input"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// Error is the single failure type returned by the pass.
type Error struct {
	Kind  ErrorKind
	Msg   string
	Func  string     // enclosing function, if known
	Instr string     // rendered offending instruction, if any
	Pos   source.Pos // position of the offending instruction
	Err   error      // underlying cause
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if e.Func != "" {
		sb.WriteString(" in @")
		sb.WriteString(e.Func)
	}
	if e.Instr != "" {
		sb.WriteString(": `")
		sb.WriteString(e.Instr)
		sb.WriteString("`")
	}
	if e.Pos.IsValid() {
		sb.WriteString(" at ")
		sb.WriteString(e.Pos.String())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return 0, false
}
