// Package config loads bcrebuild.toml, the per-project settings for the
// rebuild tool.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"

	"bcrebuild/internal/layout"
	"bcrebuild/internal/types"
)

// FileName is the configuration file looked up from the working directory.
const FileName = "bcrebuild.toml"

// Output formats for rebuilt modules.
const (
	FormatMsgpack = "msgpack"
	FormatYAML    = "yaml"
	FormatText    = "text"
)

// Config is the resolved configuration.
type Config struct {
	Path   string // file the values came from, empty for defaults
	Target layout.Target
	Rebuild
	Output
}

type Rebuild struct {
	AllowNonUniform bool
	Verify          bool
}

type Output struct {
	Format string
	Dir    string
}

// ErrUnknownTarget is returned for a target name without a preset when no
// explicit sizes are given.
var ErrUnknownTarget = errors.New("unknown target")

type fileConfig struct {
	Target struct {
		Name         string         `toml:"name"`
		PointerSize  int            `toml:"pointer_size"`
		PointerAlign int            `toml:"pointer_align"`
		IntAlign     map[string]int `toml:"int_align"`
	} `toml:"target"`
	Rebuild struct {
		AllowNonUniform bool `toml:"allow_non_uniform"`
		Verify          bool `toml:"verify"`
	} `toml:"rebuild"`
	Output struct {
		Format string `toml:"format"`
		Dir    string `toml:"dir"`
	} `toml:"output"`
}

// Default returns the configuration used when no file is found.
func Default() Config {
	return Config{
		Target:  layout.Bytecode64(),
		Rebuild: Rebuild{Verify: true},
		Output:  Output{Format: FormatMsgpack},
	}
}

// Find walks up from startDir to locate bcrebuild.toml.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load reads the file at path. Keys that are absent keep their defaults.
func Load(path string) (Config, error) {
	var fc fileConfig
	meta, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}

	cfg := Default()
	cfg.Path = path
	if meta.IsDefined("target") {
		t, err := resolveTarget(meta, &fc)
		if err != nil {
			return Config{}, fmt.Errorf("%s: [target]: %w", path, err)
		}
		cfg.Target = t
	}
	if meta.IsDefined("rebuild", "allow_non_uniform") {
		cfg.AllowNonUniform = fc.Rebuild.AllowNonUniform
	}
	if meta.IsDefined("rebuild", "verify") {
		cfg.Verify = fc.Rebuild.Verify
	}
	if meta.IsDefined("output", "format") {
		f, err := ParseFormat(fc.Output.Format)
		if err != nil {
			return Config{}, fmt.Errorf("%s: [output].format: %w", path, err)
		}
		cfg.Format = f
	}
	if meta.IsDefined("output", "dir") {
		dir := strings.TrimSpace(fc.Output.Dir)
		if dir != "" && !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(path), filepath.FromSlash(dir))
		}
		cfg.Dir = dir
	}
	return cfg, nil
}

// Resolve loads explicit when set, otherwise the nearest bcrebuild.toml
// above startDir, otherwise Default.
func Resolve(startDir, explicit string) (Config, error) {
	if explicit != "" {
		return Load(explicit)
	}
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// ParseFormat normalises an output format name.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case FormatMsgpack, "mp", "bin":
		return FormatMsgpack, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	case FormatText, "ll":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported format %q (expected msgpack|yaml|text)", s)
	}
}

// TargetByName returns the preset target with the given name.
func TargetByName(name string) (layout.Target, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bytecode64":
		return layout.Bytecode64(), nil
	case "bytecode32":
		return layout.Bytecode32(), nil
	}
	return layout.Target{}, fmt.Errorf("%w %q", ErrUnknownTarget, name)
}

func resolveTarget(meta toml.MetaData, fc *fileConfig) (layout.Target, error) {
	explicit := meta.IsDefined("target", "pointer_size")
	t, err := TargetByName(fc.Target.Name)
	if err != nil {
		if !explicit {
			return layout.Target{}, err
		}
		t = layout.Target{Name: fc.Target.Name}
	} else if meta.IsDefined("target", "name") {
		t.Name = strings.TrimSpace(fc.Target.Name)
		if t.Name == "" {
			t.Name = "bytecode64"
		}
	}
	if explicit {
		if fc.Target.PointerSize <= 0 {
			return layout.Target{}, fmt.Errorf("pointer_size must be positive, got %d", fc.Target.PointerSize)
		}
		t.PtrSize = fc.Target.PointerSize
		t.PtrAlign = fc.Target.PointerSize
	}
	if meta.IsDefined("target", "pointer_align") {
		if fc.Target.PointerAlign <= 0 {
			return layout.Target{}, fmt.Errorf("pointer_align must be positive, got %d", fc.Target.PointerAlign)
		}
		t.PtrAlign = fc.Target.PointerAlign
	}
	if len(fc.Target.IntAlign) > 0 {
		aligns := make(map[types.Width]int, len(fc.Target.IntAlign)+len(t.IntAlign))
		for w, a := range t.IntAlign {
			aligns[w] = a
		}
		for key, a := range fc.Target.IntAlign {
			w, err := parseWidth(key)
			if err != nil {
				return layout.Target{}, fmt.Errorf("int_align: %w", err)
			}
			if a <= 0 {
				return layout.Target{}, fmt.Errorf("int_align.%s must be positive, got %d", key, a)
			}
			aligns[w] = a
		}
		t.IntAlign = aligns
	}
	return t, nil
}

func parseWidth(key string) (types.Width, error) {
	digits, ok := strings.CutPrefix(strings.TrimSpace(key), "i")
	if !ok {
		return 0, fmt.Errorf("bad integer type %q (expected iN)", key)
	}
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad integer type %q: %w", key, err)
	}
	w, err := safecast.Conv[uint16](n)
	if err != nil || w == 0 || types.Width(w) > types.MaxIntWidth {
		return 0, fmt.Errorf("unsupported integer width %q", key)
	}
	return types.Width(w), nil
}
