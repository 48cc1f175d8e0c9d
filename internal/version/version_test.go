package version

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func withBuildInfo(t *testing.T, v, commit, date string) {
	t.Helper()
	origVersion, origCommit, origDate := Version, GitCommit, BuildDate
	Version, GitCommit, BuildDate = v, commit, date
	t.Cleanup(func() {
		Version, GitCommit, BuildDate = origVersion, origCommit, origDate
	})
}

func TestBanner(t *testing.T) {
	withBuildInfo(t, "1.2.3", "", "")
	assert.Equal(t, "bcrebuild 1.2.3", Banner(false))

	withBuildInfo(t, "1.2.3", "abc123", "2024-01-15")
	assert.Equal(t, "bcrebuild 1.2.3 (commit abc123, built 2024-01-15)", Banner(false))

	withBuildInfo(t, "1.2.3", "", "2024-01-15")
	assert.Equal(t, "bcrebuild 1.2.3 (built 2024-01-15)", Banner(false))
}

func TestColoredKeepsText(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	withBuildInfo(t, "0.4.1-rc1", "", "")
	assert.Equal(t, "0.4.1-rc1", Colored())

	withBuildInfo(t, "nightly", "", "")
	assert.Equal(t, "nightly", Colored())
}
