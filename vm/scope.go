package vm

import "sort"

// ---------------------------------------------------------------------------
// Scope stack
// ---------------------------------------------------------------------------

// Binding names with special meaning.
const (
	// SelfBinding is the receiver of a method call.
	SelfBinding = "self"
	// FunctionMarker marks the layer of a user function call.
	FunctionMarker = "__function__"
	// ContextBinding holds the window an event handler runs for.
	ContextBinding = "this_window"

	iteratorBinding  = "__iterator__"
	containerBinding = "__container__"
	caseBinding      = "__case__"
	modulesBinding   = "__modules__"
)

// Layer is one level of the scope stack: an ordered name -> cell map.
type Layer struct {
	names []string
	slots map[string]Handle
}

func newLayer() *Layer {
	return &Layer{slots: make(map[string]Handle)}
}

// Find returns the cell bound to name in this layer.
func (l *Layer) Find(name string) (Handle, bool) {
	h, ok := l.slots[name]
	return h, ok
}

// Names returns the names bound in this layer, in binding order.
func (l *Layer) Names() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// Len returns the number of bindings.
func (l *Layer) Len() int { return len(l.names) }

// ScopeStack is the lexical environment of a machine: a stack of layers
// whose cells live in the shared heap. The outermost layer may be shared
// with a parent machine.
type ScopeStack struct {
	heap   *Heap
	layers []*Layer
	shared bool
}

// NewScopeStack creates a stack with one empty base layer.
func NewScopeStack(heap *Heap) *ScopeStack {
	return &ScopeStack{heap: heap, layers: []*Layer{newLayer()}}
}

// newDelegatedScope creates a stack whose base layer is root, owned by
// another machine.
func newDelegatedScope(heap *Heap, root *Layer) *ScopeStack {
	return &ScopeStack{heap: heap, layers: []*Layer{root}, shared: true}
}

// Depth returns the number of layers.
func (s *ScopeStack) Depth() int { return len(s.layers) }

// Base returns the outermost layer.
func (s *ScopeStack) Base() *Layer { return s.layers[0] }

// Current returns the innermost layer.
func (s *ScopeStack) Current() *Layer { return s.layers[len(s.layers)-1] }

// Push adds an empty layer.
func (s *ScopeStack) Push() {
	s.layers = append(s.layers, newLayer())
}

// Pop removes the innermost layer and releases its cells. The base layer
// is never popped.
func (s *ScopeStack) Pop() bool {
	if len(s.layers) <= 1 {
		return false
	}
	top := s.layers[len(s.layers)-1]
	s.layers = s.layers[:len(s.layers)-1]
	s.release(top, nil)
	return true
}

func (s *ScopeStack) release(l *Layer, keep map[string]bool) {
	var kept []string
	for _, name := range l.names {
		if keep[name] {
			kept = append(kept, name)
			continue
		}
		h := l.slots[name]
		delete(l.slots, name)
		s.heap.Release(h)
	}
	l.names = kept
}

// ClearCurrent releases every binding of the innermost layer except the
// names listed in keep.
func (s *ScopeStack) ClearCurrent(keep ...string) {
	var set map[string]bool
	if len(keep) > 0 {
		set = make(map[string]bool, len(keep))
		for _, k := range keep {
			set[k] = true
		}
	}
	s.release(s.Current(), set)
}

// Find looks name up from the innermost layer outward.
func (s *ScopeStack) Find(name string) (Handle, bool) {
	for i := len(s.layers) - 1; i >= 0; i-- {
		if h, ok := s.layers[i].slots[name]; ok {
			return h, true
		}
	}
	return 0, false
}

// FindLocal looks name up in the innermost layer only.
func (s *ScopeStack) FindLocal(name string) (Handle, bool) {
	return s.Current().Find(name)
}

// FindIn looks up member of the struct bound to domain.
func (s *ScopeStack) FindIn(member, domain string) (Handle, bool) {
	h, ok := s.Find(domain)
	if !ok {
		return 0, false
	}
	st, err := s.heap.Unpack(RefValue(h)).AsStruct()
	if err != nil {
		return 0, false
	}
	return st.Find(member)
}

// Create binds name to v in the innermost layer, replacing an existing
// binding of the same name there.
func (s *ScopeStack) Create(name string, v Value) Handle {
	return s.createIn(s.Current(), name, v)
}

func (s *ScopeStack) createIn(l *Layer, name string, v Value) Handle {
	if h, ok := l.slots[name]; ok {
		s.heap.Store(h, v)
		return h
	}
	h := s.heap.Alloc(v)
	l.slots[name] = h
	l.names = append(l.names, name)
	return h
}

// Merge binds every entry of m that is not yet bound in the innermost
// layer. Names are bound in sorted order.
func (s *ScopeStack) Merge(m map[string]Value) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	cur := s.Current()
	for _, name := range names {
		if _, ok := cur.slots[name]; ok {
			s.heap.Drop(m[name])
			continue
		}
		s.createIn(cur, name, m[name])
	}
}

// mergeClosure binds fresh copies of the captured bindings that are not
// already bound in the innermost layer.
func (s *ScopeStack) mergeClosure(c *Closure) {
	if c == nil {
		return
	}
	cur := s.Current()
	for _, name := range c.names {
		if _, ok := cur.slots[name]; ok {
			continue
		}
		s.createIn(cur, name, s.heap.Copy(c.vals[name]))
	}
}

// capture snapshots the bindings visible from the innermost layer outward,
// stopping after the layer that carries the enclosing function marker.
// Shadowed names, the marker and the context binding are skipped.
func (s *ScopeStack) capture() *Closure {
	c := newClosure()
	for i := len(s.layers) - 1; i >= 0; i-- {
		l := s.layers[i]
		for _, name := range l.names {
			if name == FunctionMarker || name == ContextBinding {
				continue
			}
			if _, seen := c.vals[name]; seen {
				continue
			}
			c.add(name, s.heap.Copy(RefValue(l.slots[name])))
		}
		if _, ok := l.slots[FunctionMarker]; ok {
			break
		}
	}
	return c
}

// popToFunction pops layers above the innermost function layer.
func (s *ScopeStack) popToFunction() {
	for len(s.layers) > 1 {
		if _, ok := s.Current().slots[FunctionMarker]; ok {
			return
		}
		s.Pop()
	}
}
