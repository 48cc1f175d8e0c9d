package irpack

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"bcrebuild/internal/ir"
)

// Format selects the serialization of a File.
type Format uint8

const (
	FormatMsgpack Format = iota
	FormatYAML
)

func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "msgpack"
}

// Ext is the preferred file extension, including the dot.
func (f Format) Ext() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".bcm"
}

// ParseFormat accepts "msgpack" or "yaml" and their short forms.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "msgpack", "mp", "bin":
		return FormatMsgpack, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return FormatMsgpack, fmt.Errorf("unknown module format %q", s)
}

// FormatFromPath guesses the format from the file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bcm", ".mp", ".msgpack":
		return FormatMsgpack, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return FormatMsgpack, false
}

// Encode writes m to w.
func Encode(w io.Writer, m *ir.Module, format Format) error {
	f, err := ToFile(m)
	if err != nil {
		return err
	}
	return EncodeFile(w, f, format)
}

// EncodeFile writes f to w.
func EncodeFile(w io.Writer, f *File, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := msgpack.NewEncoder(w)
		enc.UseCompactInts(true)
		return enc.Encode(f)
	}
}

// DecodeFile reads a File from r. Unknown fields are rejected.
func DecodeFile(r io.Reader, format Format) (*File, error) {
	var f File
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("empty module file")
			}
			return nil, err
		}
	default:
		dec := msgpack.NewDecoder(r)
		dec.DisallowUnknownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

// Decode reads a module from r.
func Decode(r io.Reader, format Format) (*ir.Module, error) {
	f, err := DecodeFile(r, format)
	if err != nil {
		return nil, err
	}
	return FromFile(f)
}

// Marshal encodes m into memory.
func Marshal(m *ir.Module, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a module from data.
func Unmarshal(data []byte, format Format) (*ir.Module, error) {
	return Decode(bytes.NewReader(data), format)
}

// ReadFile loads a module; the format follows the extension and falls
// back to msgpack.
func ReadFile(path string) (*ir.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format, _ := FormatFromPath(path)
	f, err := DecodeFile(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if f.Source == "" {
		f.Source = filepath.Base(path)
	}
	return FromFile(f)
}

// WriteFile stores m at path, replacing any existing file atomically.
func WriteFile(path string, m *ir.Module, format Format) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if err = Encode(tmp, m, format); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
