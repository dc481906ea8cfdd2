// Package manifest handles krb.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/kryon/vm"
)

// FileName is the manifest file looked up in a project directory.
const FileName = "krb.toml"

// DefaultCachePath is the cache database location relative to the project.
const DefaultCachePath = ".kryon/cache.db"

// Manifest represents a krb.toml project configuration.
type Manifest struct {
	Project Project       `toml:"project"`
	Source  Source        `toml:"source"`
	Output  OutputConfig  `toml:"output"`
	Runtime RuntimeConfig `toml:"runtime"`
	Cache   CacheConfig   `toml:"cache"`
	Log     LogConfig     `toml:"log"`

	// Dir is the directory containing the krb.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source names the KIR document to compile.
type Source struct {
	KIR string `toml:"kir"`
}

// OutputConfig configures module output.
type OutputConfig struct {
	Module string `toml:"module"`
	Debug  bool   `toml:"debug"`
}

// RuntimeConfig configures the interpreter.
type RuntimeConfig struct {
	StepLimit int `toml:"step-limit"`

	// Globals seeds global slots by name before init runs.
	Globals map[string]any `toml:"globals"`
}

// CacheConfig configures the compiled-module cache. Enabled is a pointer so
// an absent key can default to true.
type CacheConfig struct {
	Path    string `toml:"path"`
	Enabled *bool  `toml:"enabled"`
}

// LogConfig configures logging. Verbosity is passed to commonlog.Configure:
// 0 logs notices, 1 info, 2 debug; negative values are quieter.
type LogConfig struct {
	Verbosity int `toml:"verbosity"`
}

// Load parses a krb.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Project.Name == "" {
		m.Project.Name = filepath.Base(m.Dir)
	}
	if m.Source.KIR == "" {
		m.Source.KIR = m.Project.Name + ".kir"
	}
	if m.Output.Module == "" {
		m.Output.Module = m.Project.Name + ".krb"
	}
	if m.Runtime.StepLimit <= 0 {
		m.Runtime.StepLimit = vm.DefaultStepLimit
	}
	if m.Cache.Path == "" {
		m.Cache.Path = DefaultCachePath
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a krb.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// KIRPath returns the absolute path of the KIR source.
func (m *Manifest) KIRPath() string {
	return m.resolve(m.Source.KIR)
}

// ModulePath returns the absolute path of the compiled module.
func (m *Manifest) ModulePath() string {
	return m.resolve(m.Output.Module)
}

// CachePath returns the absolute path of the cache database, or "" when the
// cache is disabled.
func (m *Manifest) CachePath() string {
	if m.Cache.Enabled != nil && !*m.Cache.Enabled {
		return ""
	}
	return m.resolve(m.Cache.Path)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// GlobalValues converts the [runtime.globals] table to VM values. Arrays and
// tables are rejected.
func (m *Manifest) GlobalValues() (map[string]vm.Value, error) {
	out := make(map[string]vm.Value, len(m.Runtime.Globals))
	var bad []string
	for name, raw := range m.Runtime.Globals {
		switch v := raw.(type) {
		case int64:
			out[name] = vm.Int(v)
		case float64:
			out[name] = vm.Float(float32(v))
		case string:
			out[name] = vm.String(v)
		case bool:
			out[name] = vm.Bool(v)
		default:
			bad = append(bad, fmt.Sprintf("%s (%T)", name, raw))
		}
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("unsupported global values in %s: %s", FileName, strings.Join(bad, ", "))
	}
	return out, nil
}
