package layout

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/vgxbj/Kagami/vm"
)

// PathResolver maps a script-relative path to a file. *manifest.Resolver
// satisfies it.
type PathResolver interface {
	Resolve(path string) (string, error)
}

// file is the document shape of a layout file:
//
//	[[window]]
//	id = "main_window"
//	title = "Main"
//	width = 640
//	height = 480
//
//	[[window.element]]
//	id = "ok"
//	type = "button"
//	text = "OK"
type file struct {
	Windows []Window `toml:"window"`
}

// Loader implements vm.ConfigLoader over TOML files.
type Loader struct {
	resolver PathResolver
	windows  map[string]*Window
	log      commonlog.Logger
}

var _ vm.ConfigLoader = (*Loader)(nil)

// NewLoader creates a loader. Paths go through r when it is non-nil and
// are used as given otherwise.
func NewLoader(r PathResolver) *Loader {
	return &Loader{
		resolver: r,
		windows:  make(map[string]*Window),
		log:      commonlog.GetLogger("kagami.layout"),
	}
}

// Window returns the window loaded under id.
func (l *Loader) Window(id string) (*Window, bool) {
	w, ok := l.windows[id]
	return w, ok
}

// Windows returns the ids of all loaded windows, sorted.
func (l *Loader) Windows() []string {
	ids := make([]string, 0, len(l.windows))
	for id := range l.windows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l *Loader) resolve(path string) (string, error) {
	if l.resolver == nil {
		return path, nil
	}
	return l.resolver.Resolve(path)
}

func (l *Loader) readLayout(path string) (*file, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	var f file
	md, err := toml.DecodeFile(full, &f)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", full, err)
	}
	for _, key := range md.Undecoded() {
		l.log.Warningf("%s: unknown key %s", full, key)
	}
	if len(f.Windows) == 0 {
		return nil, fmt.Errorf("no windows in %s", full)
	}
	seen := make(map[string]bool, len(f.Windows))
	for i := range f.Windows {
		w := &f.Windows[i]
		if err := w.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", full, err)
		}
		if seen[w.ID] {
			return nil, fmt.Errorf("%s: duplicate window %q", full, w.ID)
		}
		seen[w.ID] = true
		w.source = full
	}
	return &f, nil
}

// LoadWindow binds every window of the layout at path as a global of m.
func (l *Loader) LoadWindow(m *vm.Machine, path string) error {
	f, err := l.readLayout(path)
	if err != nil {
		return err
	}
	for i := range f.Windows {
		w := f.Windows[i]
		l.windows[w.ID] = &w
		m.SetGlobal(w.ID, w.Value())
	}
	l.log.Infof("loaded %d window(s) from %s", len(f.Windows), path)
	return nil
}

// LoadTable decodes the TOML file at path into a table. When window is a
// window value and the file has a section named after it, only that
// section is returned.
func (l *Loader) LoadTable(m *vm.Machine, path string, window vm.Value) (vm.Value, error) {
	full, err := l.resolve(path)
	if err != nil {
		return vm.Null(), err
	}
	var doc map[string]any
	if _, err := toml.DecodeFile(full, &doc); err != nil {
		return vm.Null(), fmt.Errorf("parse error in %s: %w", full, err)
	}
	if w := windowOf(m, window); w != nil {
		if section, ok := doc[w.ID].(map[string]any); ok {
			return tableOf(section), nil
		}
	}
	return tableOf(doc), nil
}

// ApplyLayout restyles window from the layout at path. The window entry
// with the same id is used; a file with a single window applies to any.
func (l *Loader) ApplyLayout(m *vm.Machine, path string, window vm.Value) error {
	w := windowOf(m, window)
	if w == nil {
		return fmt.Errorf("apply_layout needs a window, have %s", m.Heap().Unpack(window).TypeID())
	}
	f, err := l.readLayout(path)
	if err != nil {
		return err
	}
	var src *Window
	for i := range f.Windows {
		if f.Windows[i].ID == w.ID {
			src = &f.Windows[i]
			break
		}
	}
	if src == nil {
		if len(f.Windows) != 1 {
			return fmt.Errorf("no layout for window %s in %s", w.ID, path)
		}
		src = &f.Windows[0]
	}
	w.apply(src)
	l.log.Debugf("applied %s to window %s", path, w.ID)
	return nil
}

func windowOf(m *vm.Machine, v vm.Value) *Window {
	w, _ := m.Heap().Unpack(v).Payload().(*Window)
	return w
}
