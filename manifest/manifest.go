// Package manifest handles kagami.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up in a project directory.
const FileName = "kagami.toml"

// Defaults applied by Load.
const (
	DefaultEntry        = "main.kbc"
	DefaultMaxCallDepth = 10000
	DefaultEventBuffer  = 64
	DefaultEventSource  = "feed"
	DefaultStorePath    = ".kagami/blocks.db"
)

// Manifest represents a kagami.toml project configuration.
type Manifest struct {
	Project   Project            `toml:"project"`
	Source    Source             `toml:"source"`
	Libraries map[string]Library `toml:"libraries"`
	VM        VMConfig           `toml:"vm"`
	Events    Events             `toml:"events"`
	Store     Store              `toml:"store"`

	// Dir is the directory containing the kagami.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures script locations.
type Source struct {
	Dirs   []string `toml:"dirs"`
	Entry  string   `toml:"entry"`
	Layout string   `toml:"layout"`
}

// Library is a local script library. Scripts use it as
// `using "<alias>/<path>"`.
type Library struct {
	Path  string `toml:"path"`
	Alias string `toml:"alias"`
}

// VMConfig tunes the machine.
type VMConfig struct {
	MaxCallDepth int  `toml:"max-call-depth"`
	Verbosity    int  `toml:"verbosity"`
	Offensive    bool `toml:"offensive"`
}

// Events configures the external event feed.
type Events struct {
	URL    string `toml:"url"`
	Source string `toml:"source"`
	Buffer int    `toml:"buffer"`
}

// Store configures the compiled block cache.
type Store struct {
	Path     string `toml:"path"`
	Disabled bool   `toml:"disabled"`
}

// Load parses a kagami.toml file from the given directory.
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
	m.setDefaults()
	return &m, nil
}

// Default returns the manifest used when a project has no kagami.toml.
func Default(dir string) (*Manifest, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m := &Manifest{Dir: abs}
	m.Source.Dirs = []string{"."}
	m.setDefaults()
	return m, nil
}

func (m *Manifest) setDefaults() {
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Source.Entry == "" {
		m.Source.Entry = DefaultEntry
	}
	if m.VM.MaxCallDepth <= 0 {
		m.VM.MaxCallDepth = DefaultMaxCallDepth
	}
	if m.Events.Buffer <= 0 {
		m.Events.Buffer = DefaultEventBuffer
	}
	if m.Events.Source == "" {
		m.Events.Source = DefaultEventSource
	}
	if m.Store.Path == "" {
		m.Store.Path = DefaultStorePath
	}
}

// FindAndLoad walks up from startDir to find a kagami.toml file,
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
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.abs(d))
	}
	return paths
}

// StorePath returns the absolute path of the block cache database.
func (m *Manifest) StorePath() string {
	return m.abs(m.Store.Path)
}

// LayoutPath returns the absolute path of the startup layout, or "".
func (m *Manifest) LayoutPath() string {
	if m.Source.Layout == "" {
		return ""
	}
	return m.abs(m.Source.Layout)
}

func (m *Manifest) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
