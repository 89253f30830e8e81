package vm

import (
	"math"
	"strconv"

	"github.com/zeebo/xxh3"
)

// ---------------------------------------------------------------------------
// Array
// ---------------------------------------------------------------------------

// Array is the payload of an array value.
type Array struct {
	Elems []Value
}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.Elems) }

// At returns the element at i, or Null when out of range.
func (a *Array) At(i int) Value {
	if i < 0 || i >= len(a.Elems) {
		return Null()
	}
	return a.Elems[i]
}

// ---------------------------------------------------------------------------
// Table
// ---------------------------------------------------------------------------

// Table is an insertion-ordered map keyed by plain values.
type Table struct {
	keys  []Value
	vals  []Value
	index map[uint64][]int
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{index: make(map[uint64][]int)}
}

// HashValue hashes a plain value. ok is false for values that cannot be
// used as table keys.
func HashValue(v Value) (uint64, bool) {
	if v.mode == Reference {
		return 0, false
	}
	var buf [9]byte
	switch v.tag {
	case TagInt, TagBool:
		buf[0] = byte(v.tag)
		putUint64(buf[1:], uint64(v.num))
		return xxh3.Hash(buf[:]), true
	case TagFloat:
		buf[0] = byte(v.tag)
		putUint64(buf[1:], math.Float64bits(v.fl))
		return xxh3.Hash(buf[:]), true
	case TagString:
		return xxh3.HashString("s" + v.str), true
	case TagWideString:
		return xxh3.HashString("s" + string(v.wstr)), true
	}
	return 0, false
}

func putUint64(b []byte, x uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(x >> (8 * i))
	}
}

func (t *Table) find(key Value) (int, uint64, bool) {
	h, ok := HashValue(key)
	if !ok {
		return -1, 0, false
	}
	for _, i := range t.index[h] {
		if plainEqual(t.keys[i], key) || (isStringTag(t.keys[i]) && isStringTag(key) && key.String() == t.keys[i].String()) {
			return i, h, true
		}
	}
	return -1, h, true
}

func isStringTag(v Value) bool { return v.tag == TagString || v.tag == TagWideString }

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.keys) }

// Get returns the value stored under key.
func (t *Table) Get(key Value) (Value, bool) {
	i, _, _ := t.find(key)
	if i < 0 {
		return Null(), false
	}
	return t.vals[i], true
}

// Set stores val under key. It returns false when key is not hashable.
func (t *Table) Set(key, val Value) bool {
	i, h, ok := t.find(key)
	if !ok {
		return false
	}
	if i >= 0 {
		t.vals[i] = val
		return true
	}
	t.keys = append(t.keys, key)
	t.vals = append(t.vals, val)
	t.index[h] = append(t.index[h], len(t.keys)-1)
	return true
}

// SetString is shorthand for Set(String(key), val).
func (t *Table) SetString(key string, val Value) { t.Set(String(key), val) }

// Keys returns the keys in insertion order.
func (t *Table) Keys() []Value {
	out := make([]Value, len(t.keys))
	copy(out, t.keys)
	return out
}

// Each calls fn for every entry in insertion order until fn returns false.
func (t *Table) Each(fn func(key, val Value) bool) {
	for i := range t.keys {
		if !fn(t.keys[i], t.vals[i]) {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Struct
// ---------------------------------------------------------------------------

// Member names with special meaning inside struct templates.
const (
	memberInitializer      = "initializer"
	memberSuperInitializer = "super_initializer"
	memberStructID         = "__struct_id__"
)

// Struct is the payload of a struct template, module or instance. Members
// live in heap cells so that method bodies can alias them by handle.
type Struct struct {
	names []string
	slots map[string]Handle
}

func newStruct() *Struct {
	return &Struct{slots: make(map[string]Handle)}
}

// Find returns the heap cell holding member name.
func (s *Struct) Find(name string) (Handle, bool) {
	h, ok := s.slots[name]
	return h, ok
}

// Names returns member names in definition order.
func (s *Struct) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of members.
func (s *Struct) Len() int { return len(s.names) }

// add inserts a member if absent. It reports whether the member was added.
func (s *Struct) add(heap *Heap, name string, v Value) bool {
	if _, ok := s.slots[name]; ok {
		return false
	}
	s.slots[name] = heap.Alloc(v)
	s.names = append(s.names, name)
	return true
}

// replace inserts or overwrites a member.
func (s *Struct) replace(heap *Heap, name string, v Value) {
	if h, ok := s.slots[name]; ok {
		heap.Store(h, v)
		return
	}
	s.slots[name] = heap.Alloc(v)
	s.names = append(s.names, name)
}

// release frees all member cells.
func (s *Struct) release(heap *Heap) {
	for _, name := range s.names {
		heap.Release(s.slots[name])
	}
	s.names = nil
	s.slots = make(map[string]Handle)
}

// Member returns the unpacked value of member name.
func (s *Struct) Member(heap *Heap, name string) (Value, bool) {
	h, ok := s.slots[name]
	if !ok {
		return Null(), false
	}
	return heap.Load(h), true
}

func structIDOf(heap *Heap, s *Struct) string {
	v, ok := s.Member(heap, memberStructID)
	if !ok {
		return ""
	}
	if str, err := v.AsString(); err == nil {
		return str
	}
	return strconv.Quote(v.String())
}
