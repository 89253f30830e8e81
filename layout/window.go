// Package layout loads headless window descriptions from TOML files and
// exposes them to scripts as window values.
package layout

import (
	"fmt"

	"github.com/vgxbj/Kagami/vm"
)

// TypeWindow is the type id of window values.
const TypeWindow = "window"

// Element is one widget of a window.
type Element struct {
	ID     string         `toml:"id"`
	Type   string         `toml:"type"`
	Text   string         `toml:"text"`
	X      int64          `toml:"x"`
	Y      int64          `toml:"y"`
	Width  int64          `toml:"width"`
	Height int64          `toml:"height"`
	Props  map[string]any `toml:"props"`
}

// Window is the payload of a window value. Nothing is rendered; the window
// only records what a layout file described.
type Window struct {
	ID       string    `toml:"id"`
	Title    string    `toml:"title"`
	Width    int64     `toml:"width"`
	Height   int64     `toml:"height"`
	Elements []Element `toml:"element"`

	source string
}

// EventSourceID lets scripts name a window in a handle command.
func (w *Window) EventSourceID() string { return w.ID }

// Source returns the layout file the window was last loaded from.
func (w *Window) Source() string { return w.source }

// Element returns the element with the given id.
func (w *Window) Element(id string) (*Element, bool) {
	for i := range w.Elements {
		if w.Elements[i].ID == id {
			return &w.Elements[i], true
		}
	}
	return nil, false
}

// apply replaces the geometry and elements of w with those of o. The id
// is kept.
func (w *Window) apply(o *Window) {
	if o.Title != "" {
		w.Title = o.Title
	}
	if o.Width > 0 {
		w.Width = o.Width
	}
	if o.Height > 0 {
		w.Height = o.Height
	}
	if len(o.Elements) > 0 {
		w.Elements = append([]Element(nil), o.Elements...)
	}
	w.source = o.source
}

func (w *Window) validate() error {
	if !validID(w.ID) {
		return fmt.Errorf("invalid window id %q", w.ID)
	}
	seen := make(map[string]bool, len(w.Elements))
	for _, e := range w.Elements {
		if e.ID == "" {
			return fmt.Errorf("window %s: element without id", w.ID)
		}
		if seen[e.ID] {
			return fmt.Errorf("window %s: duplicate element %q", w.ID, e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}

func validID(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Value wraps w as a script value.
func (w *Window) Value() vm.Value {
	return vm.HandleValue(w, TypeWindow)
}

// table converts e to a script table.
func (e *Element) table() vm.Value {
	t := vm.NewTable()
	t.SetString("id", vm.String(e.ID))
	t.SetString("type", vm.String(e.Type))
	t.SetString("text", vm.String(e.Text))
	t.SetString("x", vm.Int(e.X))
	t.SetString("y", vm.Int(e.Y))
	t.SetString("width", vm.Int(e.Width))
	t.SetString("height", vm.Int(e.Height))
	for _, k := range sortedKeys(e.Props) {
		t.SetString(k, convert(e.Props[k]))
	}
	return vm.TableOf(t)
}
