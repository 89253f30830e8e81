package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ResolvedLibrary is a library that has been resolved to a local path.
type ResolvedLibrary struct {
	Name      string    // key in [libraries]
	Alias     string    // first segment of using paths that reach it
	LocalPath string    // library root
	Manifest  *Manifest // the library's own manifest (may be nil)
}

// SourceDirs returns the library's script directories.
func (l *ResolvedLibrary) SourceDirs() []string {
	if l.Manifest != nil {
		return l.Manifest.SourceDirPaths()
	}
	return []string{l.LocalPath}
}

// Resolver maps `using` paths to script files of the project and its
// libraries.
type Resolver struct {
	manifest *Manifest
	libs     map[string]*ResolvedLibrary
	order    []*ResolvedLibrary
}

// NewResolver creates a resolver for m. Libraries are resolved lazily on
// the first lookup.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Libraries resolves every library, transitive ones included, and returns
// them in load order: libraries before the libraries that use them.
func (r *Resolver) Libraries() ([]*ResolvedLibrary, error) {
	if r.libs != nil {
		return r.order, nil
	}
	libs := make(map[string]*ResolvedLibrary)
	order, err := r.resolveAll(r.manifest, libs)
	if err != nil {
		return nil, err
	}
	r.libs, r.order = libs, order
	return order, nil
}

// resolveAll resolves the libraries of m recursively. Names are visited
// in sorted order so the result is deterministic.
func (r *Resolver) resolveAll(m *Manifest, resolved map[string]*ResolvedLibrary) ([]*ResolvedLibrary, error) {
	names := make([]string, 0, len(m.Libraries))
	for name := range m.Libraries {
		names = append(names, name)
	}
	sort.Strings(names)

	var order []*ResolvedLibrary
	for _, name := range names {
		lib := m.Libraries[name]
		alias := lib.Alias
		if alias == "" {
			alias = ToAlias(name)
		}
		if prev, ok := resolved[alias]; ok {
			if prev.Name != name {
				return nil, fmt.Errorf("libraries %q and %q share alias %q", prev.Name, name, alias)
			}
			continue
		}

		rl, err := resolveOne(m, name, alias, lib)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		resolved[alias] = rl

		if rl.Manifest != nil && len(rl.Manifest.Libraries) > 0 {
			transitive, err := r.resolveAll(rl.Manifest, resolved)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}
		order = append(order, rl)
	}
	return order, nil
}

func resolveOne(m *Manifest, name, alias string, lib Library) (*ResolvedLibrary, error) {
	if IsReservedAlias(alias) {
		return nil, fmt.Errorf("library %q resolves to reserved alias %q; add alias = \"...\" in [libraries]", name, alias)
	}
	if lib.Path == "" {
		return nil, fmt.Errorf("library %q has no path", name)
	}
	localPath := lib.Path
	if !filepath.IsAbs(localPath) {
		localPath = filepath.Join(m.Dir, localPath)
	}
	localPath, err := filepath.Abs(localPath)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", lib.Path, err)
	}
	if _, err := os.Stat(localPath); err != nil {
		return nil, fmt.Errorf("library %q not found at %s: %w", name, localPath, err)
	}

	var libManifest *Manifest
	if _, err := os.Stat(filepath.Join(localPath, FileName)); err == nil {
		if libManifest, err = Load(localPath); err != nil {
			return nil, err
		}
	}
	return &ResolvedLibrary{
		Name:      name,
		Alias:     alias,
		LocalPath: localPath,
		Manifest:  libManifest,
	}, nil
}

// Resolve returns the file a `using` path names. Absolute paths are used
// as is; "<alias>/rest" searches the library's directories; anything else
// searches the project's source directories in order.
func (r *Resolver) Resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("script %s: %w", path, err)
		}
		return path, nil
	}
	if _, err := r.Libraries(); err != nil {
		return "", err
	}

	clean := filepath.ToSlash(filepath.Clean(path))
	if strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("script %s: path escapes the project", path)
	}
	dirs := r.manifest.SourceDirPaths()
	if head, rest, ok := strings.Cut(clean, "/"); ok {
		if lib, found := r.libs[head]; found {
			dirs, clean = lib.SourceDirs(), rest
		}
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, filepath.FromSlash(clean))
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("script %s not found in %s: %w", path, strings.Join(dirs, ", "), fs.ErrNotExist)
}
