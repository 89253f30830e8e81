package vm

// ---------------------------------------------------------------------------
// Heap: value arena addressed by handles
// ---------------------------------------------------------------------------

// Handle addresses a heap cell. The low 32 bits are the slot index and the
// high 32 bits its generation, so a handle to a released cell never
// resolves to a later occupant of the same slot. The zero Handle is
// invalid.
type Handle uint64

func makeHandle(index, gen uint32) Handle { return Handle(uint64(gen)<<32 | uint64(index)) }

func (h Handle) index() uint32 { return uint32(h) }
func (h Handle) gen() uint32   { return uint32(h >> 32) }

type cell struct {
	val  Value
	gen  uint32
	refs int32
	live bool
}

// Heap owns every value bound to a name or stored as a struct member.
type Heap struct {
	cells []cell
	free  []uint32
	live  int
}

// NewHeap creates an empty heap. Slot 0 is reserved.
func NewHeap() *Heap {
	return &Heap{cells: make([]cell, 1, 256)}
}

// Alloc stores v in a fresh cell with one owner.
func (h *Heap) Alloc(v Value) Handle {
	v.delivering = false
	var idx uint32
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		h.cells = append(h.cells, cell{})
		idx = uint32(len(h.cells) - 1)
	}
	c := &h.cells[idx]
	c.gen++
	c.val = v
	c.refs = 1
	c.live = true
	h.live++
	return makeHandle(idx, c.gen)
}

func (h *Heap) cell(hd Handle) *cell {
	idx := hd.index()
	if idx == 0 || int(idx) >= len(h.cells) {
		return nil
	}
	c := &h.cells[idx]
	if !c.live || c.gen != hd.gen() {
		return nil
	}
	return c
}

// Valid reports whether hd addresses a live cell.
func (h *Heap) Valid(hd Handle) bool { return h.cell(hd) != nil }

// Live returns the number of live cells.
func (h *Heap) Live() int { return h.live }

// Load returns the value stored in hd, or Null for a stale handle.
func (h *Heap) Load(hd Handle) Value {
	if c := h.cell(hd); c != nil {
		return c.val
	}
	return Null()
}

// Store replaces the content of hd, releasing what it held before.
func (h *Heap) Store(hd Handle, v Value) bool {
	c := h.cell(hd)
	if c == nil {
		return false
	}
	old := c.val
	v.delivering = false
	c.val = v
	if !sameStorage(old, v) {
		h.Drop(old)
	}
	return true
}

// take moves the content out of hd without releasing it.
func (h *Heap) take(hd Handle) Value {
	c := h.cell(hd)
	if c == nil {
		return Null()
	}
	v := c.val
	c.val = Null()
	return v
}

// Retain adds an owner to hd.
func (h *Heap) Retain(hd Handle) {
	if c := h.cell(hd); c != nil {
		c.refs++
	}
}

// Release drops an owner of hd; the cell and everything it owns are freed
// when the last owner goes away.
func (h *Heap) Release(hd Handle) {
	c := h.cell(hd)
	if c == nil {
		return
	}
	c.refs--
	if c.refs > 0 {
		return
	}
	v := c.val
	c.val = Null()
	c.live = false
	h.free = append(h.free, hd.index())
	h.live--
	h.Drop(v)
}

// Drop releases the resources owned by a value that is being discarded:
// struct member cells, nested aggregates and external owners. Reference
// values own nothing.
func (h *Heap) Drop(v Value) {
	if v.mode == Reference {
		return
	}
	switch x := v.obj.(type) {
	case *Struct:
		x.release(h)
	case *Array:
		for _, e := range x.Elems {
			h.Drop(e)
		}
	case *Table:
		for _, e := range x.vals {
			h.Drop(e)
		}
	case *External:
		x.release()
	}
}

func sameStorage(a, b Value) bool {
	if a.obj == nil || b.obj == nil {
		return false
	}
	switch a.obj.(type) {
	case *Struct, *Array, *Table, *External:
		return a.obj == b.obj
	}
	return false
}

// Unpack follows Reference indirections to the stored value.
func (h *Heap) Unpack(v Value) Value {
	for i := 0; v.mode == Reference; i++ {
		if i > 64 {
			return Null()
		}
		v = h.Load(v.ref)
	}
	return v
}

// Resolve returns the cell that finally stores the value behind v.
func (h *Heap) Resolve(v Value) (Handle, bool) {
	if v.mode != Reference {
		return 0, false
	}
	hd := v.ref
	for i := 0; i < 64; i++ {
		next := h.Load(hd)
		if next.mode != Reference {
			return hd, h.Valid(hd)
		}
		hd = next.ref
	}
	return 0, false
}

// Copy returns an independent copy of v. Scalars copy cheaply, aggregates
// deeply; function descriptors are immutable and shared, external payloads
// gain an owner.
func (h *Heap) Copy(v Value) Value {
	v = h.Unpack(v)
	v.delivering = false
	switch x := v.obj.(type) {
	case *Array:
		elems := make([]Value, len(x.Elems))
		for i, e := range x.Elems {
			elems[i] = h.Copy(e)
		}
		v.obj = &Array{Elems: elems}
	case *Table:
		t := NewTable()
		for i := range x.keys {
			t.Set(x.keys[i], h.Copy(x.vals[i]))
		}
		v.obj = t
	case *Struct:
		s := newStruct()
		for _, name := range x.names {
			s.add(h, name, h.Copy(h.Load(x.slots[name])))
		}
		v.obj = s
	case *External:
		x.retain()
	}
	if v.tag == TagWideString {
		v.wstr = append([]rune(nil), v.wstr...)
	}
	return v
}

// Deliver moves the value behind v out of its cell, leaving Null behind.
// Non-reference values are returned as delivering temporaries.
func (h *Heap) Deliver(v Value) Value {
	if hd, ok := h.Resolve(v); ok {
		out := h.take(hd)
		out.delivering = true
		return out
	}
	v.delivering = true
	return v
}

// Assign stores v through the Reference target.
func (h *Heap) Assign(target, v Value) bool {
	hd, ok := h.Resolve(target)
	if !ok {
		return false
	}
	return h.Store(hd, v)
}
