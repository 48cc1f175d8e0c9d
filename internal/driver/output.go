package driver

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"bcrebuild/internal/config"
	"bcrebuild/internal/diagfmt"
	"bcrebuild/internal/ir"
	"bcrebuild/internal/irpack"
	"bcrebuild/internal/rebuild"
)

// rebuiltSuffix marks outputs so that a directory can be rebuilt twice
// without picking up earlier results.
const rebuiltSuffix = ".rebuilt"

// Ext returns the file extension used for format.
func Ext(format string) string {
	switch format {
	case config.FormatText:
		return ".ll"
	case config.FormatYAML:
		return irpack.FormatYAML.Ext()
	default:
		return irpack.FormatMsgpack.Ext()
	}
}

// OutputPath places the result for input next to it, or in out.Dir when
// one is configured.
func OutputPath(input string, out config.Output) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	dir := out.Dir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, stem+rebuiltSuffix+Ext(out.Format))
}

// EncodeModule writes m to w in format.
func EncodeModule(w io.Writer, m *ir.Module, format string) error {
	switch format {
	case config.FormatText:
		return ir.Print(w, m)
	case config.FormatYAML:
		return irpack.Encode(w, m, irpack.FormatYAML)
	case config.FormatMsgpack, "":
		return irpack.Encode(w, m, irpack.FormatMsgpack)
	}
	return fmt.Errorf("unsupported format %q", format)
}

// WriteModule stores m at path in format.
func WriteModule(path string, m *ir.Module, format string) error {
	switch format {
	case config.FormatYAML:
		return irpack.WriteFile(path, m, irpack.FormatYAML)
	case config.FormatMsgpack, "":
		return irpack.WriteFile(path, m, irpack.FormatMsgpack)
	}
	var buf bytes.Buffer
	if err := EncodeModule(&buf, m, format); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// StatsRows converts pass statistics for diagfmt.StatsTable. The second
// result is the totals row.
func StatsRows(s *rebuild.Stats) ([]diagfmt.StatsRow, diagfmt.StatsRow) {
	if s == nil {
		return nil, diagfmt.StatsRow{Name: "total"}
	}
	rows := make([]diagfmt.StatsRow, 0, len(s.Funcs))
	for _, f := range s.Funcs {
		rows = append(rows, statsRow(f))
	}
	return rows, statsRow(s.Totals())
}

func statsRow(f rebuild.FuncStats) diagfmt.StatsRow {
	return diagfmt.StatsRow{
		Name:         f.Name,
		Blocks:       f.Blocks,
		InstrsBefore: f.InstrsBefore,
		InstrsAfter:  f.InstrsAfter,
		Casts:        f.CastsAdded,
		Phis:         f.Phis,
	}
}
