package vm

// ---------------------------------------------------------------------------
// External: host-owned payloads and the foreign call ABI
// ---------------------------------------------------------------------------

// External is an opaque host payload shared by every Value that copies it.
// Its disposer runs exactly once, when the last owner is released.
type External struct {
	ptr      any
	dispose  func(any)
	owners   int32
	disposed bool
}

// NewExternalValue wraps ptr as an ExternallyOwned value with one owner.
func NewExternalValue(ptr any, typeID string, disposer func(any)) Value {
	ext := &External{ptr: ptr, dispose: disposer, owners: 1}
	return Value{tag: TagHandle, mode: ExternallyOwned, obj: ext, typeID: typeID}
}

// Payload returns the wrapped host pointer.
func (e *External) Payload() any { return e.ptr }

// Owners returns the current owner count.
func (e *External) Owners() int { return int(e.owners) }

// Disposed reports whether the disposer has already run.
func (e *External) Disposed() bool { return e.disposed }

func (e *External) retain() { e.owners++ }

func (e *External) release() {
	if e.owners > 0 {
		e.owners--
	}
	if e.owners == 0 && !e.disposed {
		e.disposed = true
		if e.dispose != nil {
			e.dispose(e.ptr)
		}
	}
}

// ExtType tags the value an external function hands back.
type ExtType int

const (
	ExtNull ExtType = iota
	ExtInt
	ExtFloat
	ExtBool
	ExtString
	ExtWideString
	ExtFunctionPointer
	ExtObjectPointer
)

// ExternalFunc is the foreign call signature. A status below 1 is an error.
type ExternalFunc func(ctx *ExternalContext) int

// ExternalContext carries the bound arguments into a foreign call and the
// delivered result out of it.
type ExternalContext struct {
	Args    map[string]Value
	machine *Machine
	result  Value
	set     bool
}

// Arg returns the unpacked argument bound to name.
func (c *ExternalContext) Arg(name string) Value {
	v, ok := c.Args[name]
	if !ok {
		return Null()
	}
	if c.machine != nil {
		return c.machine.heap.Unpack(v)
	}
	return v
}

// Machine returns the machine performing the call.
func (c *ExternalContext) Machine() *Machine { return c.machine }

// Deliver sets the call's return value from a raw Go value.
func (c *ExternalContext) Deliver(value any, tag ExtType) {
	c.result = convertExternal(value, tag)
	c.set = true
}

// Result returns the delivered value, or Null.
func (c *ExternalContext) Result() Value { return c.result }

func convertExternal(value any, tag ExtType) Value {
	switch tag {
	case ExtInt:
		switch x := value.(type) {
		case int:
			return Int(int64(x))
		case int32:
			return Int(int64(x))
		case int64:
			return Int(x)
		}
	case ExtFloat:
		switch x := value.(type) {
		case float32:
			return Float(float64(x))
		case float64:
			return Float(x)
		}
	case ExtBool:
		switch x := value.(type) {
		case bool:
			return Bool(x)
		case int:
			return Bool(x == 1)
		}
	case ExtString:
		if s, ok := value.(string); ok {
			return String(s)
		}
	case ExtWideString:
		switch x := value.(type) {
		case string:
			return WideString(x)
		case []rune:
			return Value{tag: TagWideString, wstr: x}
		}
	case ExtFunctionPointer:
		return HandleValue(value, TypeFunctionPointer)
	case ExtObjectPointer:
		return HandleValue(value, TypeObjectPointer)
	}
	return Null()
}
