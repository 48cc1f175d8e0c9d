package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bcrebuild/internal/driver"
)

const fieldLoad = `schema: 1
module: good
funcs:
  - name: second
    type: i32 ({ i32, i32 }*)
    params: [p]
    blocks:
      - name: entry
        instrs:
          - {op: getelementptr, name: f, args: ["%p", "i32 0", "i32 1"]}
          - {op: load, name: v, args: ["%f"]}
        term: {op: ret, args: ["%v"]}
`

const variableAlloca = `schema: 1
module: bad
funcs:
  - name: f
    type: void (i32)
    params: [n]
    blocks:
      - name: entry
        instrs:
          - {op: alloca, name: buf, type: i32, args: ["%n"], line: 3, col: 3}
        term: {op: ret}
`

// workspace creates a directory with a config file and the given
// modules, returning the directory and the --config argument.
func workspace(t *testing.T, toml string, modules map[string]string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "bcrebuild.toml")
	require.NoError(t, os.WriteFile(cfg, []byte(toml), 0o600))
	for name, body := range modules {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir, "--config=" + cfg
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root, cleanup := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--color=off"}, args...))
	err := root.ExecuteContext(context.Background())
	cleanup()
	return out.String(), errOut.String(), err
}

func TestVersionJSON(t *testing.T) {
	out, _, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var payload versionPayload
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "bcrebuild", payload.Tool)
	assert.NotEmpty(t, payload.Version)
}

func TestRebuildWritesConfiguredFormat(t *testing.T) {
	dir, cfg := workspace(t, "[output]\nformat = \"yaml\"\ndir = \"out\"\n", map[string]string{"good.yaml": fieldLoad})

	out, _, err := execute(t, "rebuild", cfg, filepath.Join(dir, "good.yaml"))
	require.NoError(t, err)
	want := filepath.Join(dir, "out", "good.rebuilt.yaml")
	assert.Contains(t, out, "-> "+want)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Contains(t, string(data), "i32 (i32*)")
}

func TestRebuildReportsDiagnostics(t *testing.T) {
	dir, cfg := workspace(t, "", map[string]string{"bad.yaml": variableAlloca})

	_, stderr, err := execute(t, "rebuild", cfg, filepath.Join(dir, "bad.yaml"))
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "bad.yaml:3:3: ERROR RBD1001: stack allocation with a variable size")
	assert.Contains(t, stderr, "in @f: %buf = alloca i32, i32 %n")
	assert.Contains(t, stderr, "1 error, 0 warnings")
}

func TestRebuildToStdoutWithStats(t *testing.T) {
	dir, cfg := workspace(t, "", map[string]string{"good.yaml": fieldLoad})

	out, _, err := execute(t, "rebuild", cfg, "--format=text", "-o", "-", filepath.Join(dir, "good.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "define internal i32 @second(i32* %p)")
	_, err = os.Stat(filepath.Join(dir, "good.rebuilt.ll"))
	assert.True(t, os.IsNotExist(err))

	out, _, err = execute(t, "rebuild", cfg, "--dry-run", "--stats", filepath.Join(dir, "good.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "second")
	assert.Contains(t, out, "total")
}

func TestDump(t *testing.T) {
	dir, cfg := workspace(t, "", map[string]string{"good.yaml": fieldLoad})
	in := filepath.Join(dir, "good.yaml")

	out, _, err := execute(t, "dump", cfg, in)
	require.NoError(t, err)
	assert.Contains(t, out, "define i32 @second({ i32, i32 }* %p)")

	out, _, err = execute(t, "dump", cfg, "--rebuild", in)
	require.NoError(t, err)
	assert.Contains(t, out, "define internal i32 @second(i32* %p)")

	target := filepath.Join(dir, "copy.bcm")
	_, _, err = execute(t, "dump", cfg, "--format=msgpack", "-o", target, in)
	require.NoError(t, err)
	out, _, err = execute(t, "dump", cfg, target)
	require.NoError(t, err)
	assert.Contains(t, out, "define i32 @second({ i32, i32 }* %p)")
}

func TestRejectsBadFlags(t *testing.T) {
	_, _, err := execute(t, "version", "--color=sometimes")
	assert.ErrorContains(t, err, "unsupported color mode")

	dir, cfg := workspace(t, "", map[string]string{"good.yaml": fieldLoad})
	_, _, err = execute(t, "rebuild", cfg, "--target=vax", filepath.Join(dir, "good.yaml"))
	assert.ErrorContains(t, err, "unknown target")
}

func TestRebuildTimingsAndProfiles(t *testing.T) {
	dir, cfg := workspace(t, "", map[string]string{"good.yaml": fieldLoad})
	cpu := filepath.Join(dir, "cpu.pprof")
	mem := filepath.Join(dir, "mem.pprof")

	_, errOut, err := execute(t, "rebuild", cfg, "--dry-run", "--timings",
		"--cpuprofile="+cpu, "--memprofile="+mem, filepath.Join(dir, "good.yaml"))
	require.NoError(t, err)
	assert.Contains(t, errOut, "good.yaml:\n  load")
	assert.Contains(t, errOut, "(1 funcs)")
	assert.Contains(t, errOut, "  total")
	for _, p := range []string{cpu, mem} {
		_, statErr := os.Stat(p)
		assert.NoError(t, statErr, p)
	}
}

func TestBrokenConfigIsADiagnostic(t *testing.T) {
	dir, cfg := workspace(t, "[rebuild\n", map[string]string{"good.yaml": fieldLoad})

	_, stderr, err := execute(t, "rebuild", cfg, filepath.Join(dir, "good.yaml"))
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "ERROR CFG4001:")
	assert.Contains(t, stderr, "failed to parse TOML")
}

func TestRebuildToStdoutNeedsOneInput(t *testing.T) {
	dir, cfg := workspace(t, "", map[string]string{"a.yaml": fieldLoad, "b.yaml": fieldLoad})

	out, _, err := execute(t, "rebuild", cfg, "--format=text", "-o", "-", dir)
	require.ErrorIs(t, err, driver.ErrOutPathWithManyInputs)
	assert.Empty(t, out)
	_, statErr := os.Stat(filepath.Join(dir, "a.rebuilt.ll"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestUIMode(t *testing.T) {
	for _, bad := range []string{"sometimes", "yes"} {
		_, err := readUIMode(bad)
		assert.ErrorContains(t, err, "invalid --ui value")
	}
	mode, err := readUIMode(" ON ")
	require.NoError(t, err)
	assert.Equal(t, uiModeOn, mode)

	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	assert.True(t, shouldUseTUI(uiModeOn, cmd, false, false))
	assert.False(t, shouldUseTUI(uiModeOn, cmd, true, false), "stdout carries the module")
	assert.False(t, shouldUseTUI(uiModeOff, cmd, false, false))
	assert.False(t, shouldUseTUI(uiModeAuto, cmd, false, false), "a buffer is not a terminal")

	dir, cfg := workspace(t, "", map[string]string{"good.yaml": fieldLoad})
	_, _, err = execute(t, "rebuild", cfg, "--ui=sometimes", filepath.Join(dir, "good.yaml"))
	assert.ErrorContains(t, err, "invalid --ui value")

	out, _, err := execute(t, "rebuild", cfg, "--ui=off", "--dry-run", filepath.Join(dir, "good.yaml"))
	require.NoError(t, err)
	assert.Empty(t, out)
}
