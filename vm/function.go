package vm

import "strings"

// ---------------------------------------------------------------------------
// Function descriptors
// ---------------------------------------------------------------------------

// Pattern selects the parameter binding algorithm.
type Pattern uint8

const (
	// Fixed requires exactly len(Params) arguments.
	Fixed Pattern = iota
	// AutoFill binds Limit..len(Params) arguments; missing ones are Null.
	AutoFill
	// AutoSize collects surplus arguments into the last parameter.
	AutoSize
)

func (p Pattern) String() string {
	switch p {
	case Fixed:
		return "fixed"
	case AutoFill:
		return "auto_fill"
	case AutoSize:
		return "auto_size"
	}
	return "pattern?"
}

// ImplKind is the implementation variant of a Function.
type ImplKind uint8

const (
	ImplNative ImplKind = iota
	ImplBytecode
	ImplExternal
)

// Level is the severity of a native Result.
type Level uint8

const (
	LevelOk Level = iota
	LevelWarning
	LevelError
)

// InvokeRequest asks the dispatcher to call a method on a value on behalf
// of a native function.
type InvokeRequest struct {
	Receiver Value
	Method   string
	Args     map[string]Value
}

// Result is what a native Activity returns.
type Result struct {
	Value  Value
	Level  Level
	Detail string
	Invoke *InvokeRequest
}

// Ok returns a successful result.
func Ok(v Value) Result { return Result{Value: v} }

// Warn returns a result carrying a warning.
func Warn(v Value, detail string) Result {
	return Result{Value: v, Level: LevelWarning, Detail: detail}
}

// Fail returns an error result.
func Fail(detail string) Result { return Result{Level: LevelError, Detail: detail} }

// Args is the argument view handed to native functions.
type Args struct {
	m       map[string]Value
	machine *Machine
}

// Get returns the unpacked argument bound to name.
func (a *Args) Get(name string) Value {
	v, ok := a.m[name]
	if !ok {
		return Null()
	}
	return a.machine.heap.Unpack(v)
}

// Raw returns the argument as bound, without unpacking references.
func (a *Args) Raw(name string) Value { return a.m[name] }

// Has reports whether name is bound.
func (a *Args) Has(name string) bool {
	_, ok := a.m[name]
	return ok
}

// Self returns the unpacked receiver of a method call.
func (a *Args) Self() Value { return a.Get(SelfBinding) }

// Machine returns the calling machine.
func (a *Args) Machine() *Machine { return a.machine }

// Heap returns the calling machine's heap.
func (a *Args) Heap() *Heap { return a.machine.heap }

// Activity is the native function signature.
type Activity func(args *Args) Result

// Function is an immutable function descriptor. Exactly one of native,
// block or external is set, as indicated by kind.
type Function struct {
	ID      string
	Params  []string
	Pattern Pattern
	Limit   int

	kind     ImplKind
	native   Activity
	block    *Block
	offset   int
	external ExternalFunc
	closure  *Closure
}

// SplitParams splits a "a|b|c" parameter list.
func SplitParams(params string) []string {
	if params == "" {
		return nil
	}
	return strings.Split(params, "|")
}

// NewNative creates a natively implemented function. params is a
// "|"-separated parameter list.
func NewNative(id, params string, pattern Pattern, fn Activity) *Function {
	return &Function{ID: id, Params: SplitParams(params), Pattern: pattern, kind: ImplNative, native: fn}
}

// NewBytecode creates a function whose body is block. offset is the
// position of block's first instruction in its origin block.
func NewBytecode(id string, block *Block, offset int, params []string, pattern Pattern) *Function {
	return &Function{ID: id, Params: params, Pattern: pattern, kind: ImplBytecode, block: block, offset: offset}
}

// NewExternal creates a function backed by the foreign call ABI.
func NewExternal(id string, params []string, pattern Pattern, fn ExternalFunc) *Function {
	return &Function{ID: id, Params: params, Pattern: pattern, kind: ImplExternal, external: fn}
}

// WithLimit returns a copy of f with the AutoFill lower bound set.
func (f *Function) WithLimit(limit int) *Function {
	g := *f
	g.Limit = limit
	return &g
}

// Kind returns the implementation variant.
func (f *Function) Kind() ImplKind { return f.kind }

// Block returns the bytecode body, or nil.
func (f *Function) Block() *Block { return f.block }

// Offset returns the body's position in its origin block.
func (f *Function) Offset() int { return f.offset }

// Closure returns the captured record, or nil.
func (f *Function) Closure() *Closure { return f.closure }

// Same reports whether f and g share an implementation.
func (f *Function) Same(g *Function) bool {
	if f == g {
		return true
	}
	if f == nil || g == nil || f.kind != g.kind {
		return false
	}
	if f.kind == ImplBytecode {
		return f.block == g.block && f.offset == g.offset
	}
	return false
}

// ---------------------------------------------------------------------------
// Closure record
// ---------------------------------------------------------------------------

// Closure is the ordered snapshot of bindings captured at definition time.
type Closure struct {
	names []string
	vals  map[string]Value
}

func newClosure() *Closure {
	return &Closure{vals: make(map[string]Value)}
}

func (c *Closure) add(name string, v Value) bool {
	if _, ok := c.vals[name]; ok {
		return false
	}
	c.vals[name] = v
	c.names = append(c.names, name)
	return true
}

// Names returns the captured names in capture order.
func (c *Closure) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Get returns the captured value of name.
func (c *Closure) Get(name string) (Value, bool) {
	if c == nil {
		return Null(), false
	}
	v, ok := c.vals[name]
	return v, ok
}

// Len returns the number of captured bindings.
func (c *Closure) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}
