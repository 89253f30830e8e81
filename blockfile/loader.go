package blockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/vgxbj/Kagami/vm"
)

// PathResolver maps a `using` path to a file. *manifest.Resolver
// satisfies it.
type PathResolver interface {
	Resolve(path string) (string, error)
}

// Cache remembers decoded blocks by file identity. A cache hit must
// return the block stored for the same path, size and modification time.
type Cache interface {
	Lookup(path string, size, modTime int64) (*vm.Block, bool)
	Save(path string, size, modTime int64, b *vm.Block) error
}

// Loader implements vm.ScriptLoader for block files.
type Loader struct {
	resolver PathResolver
	cache    Cache
	log      commonlog.Logger
}

var _ vm.ScriptLoader = (*Loader)(nil)

// NewLoader creates a loader resolving paths through r. A nil r uses paths
// as given. cache may be nil.
func NewLoader(r PathResolver, cache Cache) *Loader {
	return &Loader{
		resolver: r,
		cache:    cache,
		log:      commonlog.GetLogger("kagami.blockfile"),
	}
}

// LoadScript implements vm.ScriptLoader. A path without extension gets
// Ext appended.
func (l *Loader) LoadScript(path string) (*vm.Block, error) {
	if filepath.Ext(path) == "" {
		path += Ext
	}
	if !strings.EqualFold(filepath.Ext(path), Ext) {
		return nil, fmt.Errorf("not a block file: %s", path)
	}
	full := path
	if l.resolver != nil {
		var err error
		if full, err = l.resolver.Resolve(path); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	size, mtime := info.Size(), info.ModTime().UnixNano()
	if l.cache != nil {
		if b, ok := l.cache.Lookup(full, size, mtime); ok {
			l.log.Debugf("cache hit for %s", full)
			return b, nil
		}
	}

	b, err := ReadFile(full)
	if err != nil {
		return nil, err
	}
	if l.cache != nil {
		if err := l.cache.Save(full, size, mtime, b); err != nil {
			l.log.Warningf("cannot cache %s: %s", full, err)
		}
	}
	return b, nil
}
