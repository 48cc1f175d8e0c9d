package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// StatsRow is one line of the statistics table.
type StatsRow struct {
	Name         string
	Blocks       int
	InstrsBefore int
	InstrsAfter  int
	Casts        int
	Phis         int
}

const defaultNameWidth = 24

// StatsTable writes rows as an aligned table followed by total, if non-nil.
// Function names are fitted by display width so wide runes keep the
// columns aligned.
func StatsTable(w io.Writer, rows []StatsRow, total *StatsRow, opts TableOpts) error {
	width := opts.NameWidth
	if width <= 0 {
		width = defaultNameWidth
	}
	head := color.New(color.Bold)
	if opts.Color {
		head.EnableColor()
	} else {
		head.DisableColor()
	}

	var sb strings.Builder
	sb.WriteString(head.Sprint(fitCell("function", width)))
	sb.WriteString(head.Sprintf(" %7s %8s %8s %6s %5s", "blocks", "before", "after", "casts", "phis"))
	sb.WriteByte('\n')
	line := func(r StatsRow) {
		sb.WriteString(fitCell(r.Name, width))
		fmt.Fprintf(&sb, " %7d %8d %8d %6d %5d\n", r.Blocks, r.InstrsBefore, r.InstrsAfter, r.Casts, r.Phis)
	}
	for _, r := range rows {
		line(r)
	}
	if total != nil {
		sb.WriteString(strings.Repeat("-", width+40))
		sb.WriteByte('\n')
		line(*total)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// fitCell pads or truncates value to exactly width display cells.
func fitCell(value string, width int) string {
	if runewidth.StringWidth(value) > width {
		if width <= 3 {
			value = runewidth.Truncate(value, width, "")
		} else {
			value = runewidth.Truncate(value, width, "...")
		}
	}
	return runewidth.FillRight(value, width)
}
