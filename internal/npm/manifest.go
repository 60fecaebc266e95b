// Package npm reads and bumps package.json and publishes through the npm CLI.
package npm

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/buger/jsonparser"
)

const ManifestFile = "package.json"

// Manifest is a package.json kept as raw bytes so edits preserve the
// author's formatting and key order.
type Manifest struct {
	Path string
	raw  []byte
}

func ReadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(path, raw)
}

func ParseManifest(path string, raw []byte) (*Manifest, error) {
	if _, _, _, err := jsonparser.Get(raw); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &Manifest{Path: path, raw: raw}, nil
}

func (m *Manifest) Bytes() []byte { return m.raw }

func (m *Manifest) Name() string    { return m.str("name") }
func (m *Manifest) Version() string { return m.str("version") }
func (m *Manifest) Private() bool {
	v, err := jsonparser.GetBoolean(m.raw, "private")
	return err == nil && v
}

func (m *Manifest) str(keys ...string) string {
	v, err := jsonparser.GetString(m.raw, keys...)
	if err != nil {
		return ""
	}
	return v
}

// Files lists the "files" entries.
func (m *Manifest) Files() []string {
	var out []string
	_, _ = jsonparser.ArrayEach(m.raw, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if dataType == jsonparser.String {
			out = append(out, string(value))
		}
	}, "files")
	return out
}

// Script returns the npm script with the given name, if defined.
func (m *Manifest) Script(name string) (string, bool) {
	v, err := jsonparser.GetString(m.raw, "scripts", name)
	if err != nil {
		return "", false
	}
	return v, true
}

func (m *Manifest) SetVersion(version string) error {
	enc, err := json.Marshal(version)
	if err != nil {
		return err
	}
	out, err := jsonparser.Set(m.raw, enc, "version")
	if err != nil {
		return fmt.Errorf("set version: %w", err)
	}
	m.raw = out
	return nil
}

func (m *Manifest) Write() error {
	if m.Path == "" {
		return errors.New("manifest has no path")
	}
	info, err := os.Stat(m.Path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(m.Path, m.raw, mode); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// UnscopedName strips an "@scope/" prefix.
func UnscopedName(name string) string {
	if strings.HasPrefix(name, "@") {
		if _, rest, ok := strings.Cut(name, "/"); ok {
			return rest
		}
	}
	return name
}
