package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bcrebuild/internal/layout"
	"bcrebuild/internal/types"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestFindWalksUp(t *testing.T) {
	root := t.TempDir()
	want := writeConfig(t, root, "")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, ok, err := Find(nested)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestResolveWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Resolve(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.Verify)
	assert.Equal(t, FormatMsgpack, cfg.Format)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[target]
name = "bytecode32"

[target.int_align]
i16 = 1

[rebuild]
allow_non_uniform = true
verify = false

[output]
format = "yml"
dir = "out"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "bytecode32", cfg.Target.Name)
	assert.Equal(t, 4, cfg.Target.PtrSize)
	assert.Equal(t, map[types.Width]int{types.Width64: 4, types.Width16: 1}, cfg.Target.IntAlign)
	assert.True(t, cfg.AllowNonUniform)
	assert.False(t, cfg.Verify)
	assert.Equal(t, FormatYAML, cfg.Format)
	assert.Equal(t, filepath.Join(dir, "out"), cfg.Dir)
}

func TestLoadCustomTarget(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[target]
name = "vm16"
pointer_size = 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, layout.Target{Name: "vm16", PtrSize: 2, PtrAlign: 2}, cfg.Target)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"unknown target":  "[target]\nname = \"x86\"\n",
		"bad format":      "[output]\nformat = \"xml\"\n",
		"bad width":       "[target.int_align]\nf32 = 4\n",
		"zero alignment":  "[target.int_align]\ni32 = 0\n",
		"unknown key":     "[rebuild]\nfast = true\n",
		"negative size":   "[target]\npointer_size = -8\n",
		"malformed toml":  "[target\n",
		"width too large": "[target.int_align]\ni128 = 16\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), body))
			assert.Error(t, err)
		})
	}
}

func TestTargetByName(t *testing.T) {
	tgt, err := TargetByName(" Bytecode32 ")
	require.NoError(t, err)
	assert.Equal(t, layout.Bytecode32(), tgt)

	tgt, err = TargetByName("")
	require.NoError(t, err)
	assert.Equal(t, layout.Bytecode64(), tgt)

	_, err = TargetByName("vax")
	assert.ErrorIs(t, err, ErrUnknownTarget)
}
