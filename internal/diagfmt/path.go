package diagfmt

import (
	"path/filepath"
	"strings"

	"bcrebuild/internal/source"
)

func formatPath(path string, mode PathMode, base string) string {
	if path == "" {
		return "<unknown>"
	}
	switch mode {
	case PathModeAbsolute:
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
	case PathModeRelative:
		if base != "" {
			if rel, err := filepath.Rel(base, path); err == nil && !strings.HasPrefix(rel, "..") {
				return rel
			}
		}
	case PathModeBasename:
		return filepath.Base(path)
	}
	return path
}

func formatPos(pos source.Pos, mode PathMode, base string) string {
	p := pos
	p.File = formatPath(pos.File, mode, base)
	return p.String()
}
