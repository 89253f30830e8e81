package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[project]
name = "test-app"
version = "0.1.0"

[source]
dirs = ["src", "lib"]
entry = "start.kbc"
layout = "ui/main.toml"

[libraries]
helper = { path = "../helper" }
widgets = { path = "../widgets", alias = "w" }

[vm]
max-call-depth = 500
verbosity = 2
offensive = true

[events]
url = "ws://localhost:9000/events"
source = "bridge"
buffer = 8

[store]
path = "cache/blocks.db"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if len(m.Source.Dirs) != 2 {
		t.Errorf("source dirs count = %d, want 2", len(m.Source.Dirs))
	}
	if m.Source.Entry != "start.kbc" {
		t.Errorf("source entry = %q, want start.kbc", m.Source.Entry)
	}
	if len(m.Libraries) != 2 {
		t.Errorf("libraries count = %d, want 2", len(m.Libraries))
	}
	if lib, ok := m.Libraries["helper"]; !ok || lib.Path != "../helper" {
		t.Errorf("helper = %v, want path ../helper", m.Libraries["helper"])
	}
	if lib := m.Libraries["widgets"]; lib.Alias != "w" {
		t.Errorf("widgets alias = %q, want w", lib.Alias)
	}
	if m.VM.MaxCallDepth != 500 {
		t.Errorf("max call depth = %d, want 500", m.VM.MaxCallDepth)
	}
	if m.VM.Verbosity != 2 || !m.VM.Offensive {
		t.Errorf("vm = %+v, want verbosity 2 offensive", m.VM)
	}
	if m.Events.URL != "ws://localhost:9000/events" {
		t.Errorf("events url = %q", m.Events.URL)
	}
	if m.Events.Source != "bridge" || m.Events.Buffer != 8 {
		t.Errorf("events = %+v, want source bridge buffer 8", m.Events)
	}

	absDir, _ := filepath.Abs(dir)
	if m.Dir != absDir {
		t.Errorf("dir = %q, want %q", m.Dir, absDir)
	}
	if got, want := m.StorePath(), filepath.Join(absDir, "cache", "blocks.db"); got != want {
		t.Errorf("StorePath() = %q, want %q", got, want)
	}
	if got, want := m.LayoutPath(), filepath.Join(absDir, "ui", "main.toml"); got != want {
		t.Errorf("LayoutPath() = %q, want %q", got, want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[project]\nname = \"bare\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("source dirs = %v, want [src]", m.Source.Dirs)
	}
	if m.Source.Entry != DefaultEntry {
		t.Errorf("entry = %q, want %q", m.Source.Entry, DefaultEntry)
	}
	if m.VM.MaxCallDepth != DefaultMaxCallDepth {
		t.Errorf("max call depth = %d, want %d", m.VM.MaxCallDepth, DefaultMaxCallDepth)
	}
	if m.Events.Buffer != DefaultEventBuffer || m.Events.Source != DefaultEventSource {
		t.Errorf("events = %+v", m.Events)
	}
	if m.Store.Path != DefaultStorePath {
		t.Errorf("store path = %q, want %q", m.Store.Path, DefaultStorePath)
	}
	if m.LayoutPath() != "" {
		t.Errorf("LayoutPath() = %q, want empty", m.LayoutPath())
	}
}

func TestDefaultManifest(t *testing.T) {
	dir := t.TempDir()
	m, err := Default(dir)
	if err != nil {
		t.Fatal(err)
	}
	paths := m.SourceDirPaths()
	if len(paths) != 1 || paths[0] != m.Dir {
		t.Errorf("SourceDirPaths() = %v, want [%s]", paths, m.Dir)
	}
}

func TestLoadManifestParseError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[project\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "parse error") {
		t.Errorf("Load = %v, want parse error", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[project]\nname = \"found\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	subdir := filepath.Join(dir, "src", "deep")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(subdir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found" {
		t.Errorf("name = %q, want found", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when none exists")
	}
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	env := "KAGAMI_ENTRY=boot.kbc\nKAGAMI_MAX_CALL_DEPTH=64\nKAGAMI_VERBOSITY=1\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvMaxCallDepth, "128")
	t.Setenv(EnvOffensive, "true")

	m, err := Default(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if m.Source.Entry != "boot.kbc" {
		t.Errorf("entry = %q, want boot.kbc", m.Source.Entry)
	}
	if m.VM.MaxCallDepth != 128 {
		t.Errorf("max call depth = %d, want the process value 128", m.VM.MaxCallDepth)
	}
	if m.VM.Verbosity != 1 || !m.VM.Offensive {
		t.Errorf("vm = %+v", m.VM)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{EnvMaxCallDepth, "0"},
		{EnvMaxCallDepth, "deep"},
		{EnvVerbosity, "loud"},
		{EnvOffensive, "maybe"},
	}
	for _, tc := range tests {
		m := &Manifest{}
		if err := m.applyEnv(map[string]string{tc.key: tc.value}); err == nil {
			t.Errorf("%s=%q accepted", tc.key, tc.value)
		}
	}
}
