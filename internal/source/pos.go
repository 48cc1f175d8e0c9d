package source

import "fmt"

// Pos is a human-readable position attached to an IR instruction by the
// front-end that produced it. The zero Pos means "unknown".
type Pos struct {
	File string
	Line uint32 // 1-based
	Col  uint32 // 1-based, 0 when only the line is known
}

// IsValid reports whether the position carries at least a line.
func (p Pos) IsValid() bool {
	return p.Line > 0
}

func (p Pos) String() string {
	file := p.File
	if file == "" {
		file = "<unknown>"
	}
	switch {
	case p.Line == 0:
		return file
	case p.Col == 0:
		return fmt.Sprintf("%s:%d", file, p.Line)
	default:
		return fmt.Sprintf("%s:%d:%d", file, p.Line, p.Col)
	}
}

// Less orders positions by file, line, then column.
func (p Pos) Less(other Pos) bool {
	if p.File != other.File {
		return p.File < other.File
	}
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Col < other.Col
}
