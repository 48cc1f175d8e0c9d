// Package version carries build information for the bcrebuild CLI.
package version

import (
	"strings"

	"github.com/fatih/color"
)

// These variables can be overridden at build time via -ldflags.
var (
	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var (
	majorColor = color.New(color.FgYellow, color.Bold)
	minorColor = color.New(color.FgGreen, color.Bold)
	patchColor = color.New(color.FgBlue, color.Bold)
)

// Colored renders Version with each numeric component highlighted. The
// pre-release suffix is left plain.
func Colored() string {
	core, suffix, found := strings.Cut(Version, "-")
	parts := strings.SplitN(core, ".", 3)
	if len(parts) != 3 {
		return Version
	}
	out := majorColor.Sprint(parts[0]) + "." + minorColor.Sprint(parts[1]) + "." + patchColor.Sprint(parts[2])
	if found {
		out += "-" + suffix
	}
	return out
}

// Banner is the one-line description printed by "bcrebuild version".
func Banner(colored bool) string {
	v := Version
	if colored {
		v = Colored()
	}
	var sb strings.Builder
	sb.WriteString("bcrebuild ")
	sb.WriteString(v)
	var extra []string
	if GitCommit != "" {
		extra = append(extra, "commit "+GitCommit)
	}
	if BuildDate != "" {
		extra = append(extra, "built "+BuildDate)
	}
	if len(extra) > 0 {
		sb.WriteString(" (" + strings.Join(extra, ", ") + ")")
	}
	return sb.String()
}
