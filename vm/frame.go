package vm

// ---------------------------------------------------------------------------
// Execution frame
// ---------------------------------------------------------------------------

// blockContext is the state of one open if/while/for/case/struct/module
// block. Positions are origin-block indices.
type blockContext struct {
	kind        Keyword
	begin       int
	exit        int
	branches    []int
	next        int
	matched     bool
	pushedScope bool
	finished    bool

	// struct/module definitions
	id      string
	super   string
	modules []Value
}

// Frame is the execution state of one block activation.
type Frame struct {
	IP         int
	jumpOffset int

	blocks  []blockContext
	returns []Value

	err        *Error
	warning    string
	hasWarning bool

	disableStep        bool
	voidCall           bool
	reentered          bool
	eventProcessing    bool
	eventRoot          bool
	invoked            bool
	initializerCalling bool
	insideInitializer  bool

	structID      string
	superStructID string
	structBase    Value
	assertScratch Value
	assertSet     bool
	functionScope string
}

func newFrame(scope string) *Frame {
	return &Frame{functionScope: scope}
}

// Err returns the frame's error, or nil.
func (f *Frame) Err() error {
	if f.err == nil {
		return nil
	}
	return f.err
}

func (f *Frame) failed() bool { return f.err != nil }

func (f *Frame) setError(kind ErrorKind, format string, args ...any) {
	if f.err == nil {
		f.err = newError(kind, format, args...)
	}
}

func (f *Frame) setErr(e *Error) {
	if f.err == nil && e != nil {
		f.err = e
	}
}

func (f *Frame) warn(msg string) {
	f.warning = msg
	f.hasWarning = true
}

// step advances to the next instruction unless a jump already did.
func (f *Frame) step() {
	if f.disableStep {
		f.disableStep = false
		return
	}
	f.IP++
}

// jump moves to the origin-block position target.
func (f *Frame) jump(target int) {
	f.IP = target - f.jumpOffset
	f.disableStep = true
}

// absolute converts the current position to origin-block coordinates.
func (f *Frame) absolute() int { return f.IP + f.jumpOffset }

func (f *Frame) pushReturn(v Value) {
	if f.voidCall {
		return
	}
	f.returns = append(f.returns, v)
}

func (f *Frame) popReturn() (Value, bool) {
	n := len(f.returns)
	if n == 0 {
		return Null(), false
	}
	v := f.returns[n-1]
	f.returns[n-1] = Value{}
	f.returns = f.returns[:n-1]
	return v, true
}

func (f *Frame) peekReturn() (Value, bool) {
	n := len(f.returns)
	if n == 0 {
		return Null(), false
	}
	return f.returns[n-1], true
}

func (f *Frame) clearReturns(heap *Heap) {
	for i := range f.returns {
		heap.Drop(f.returns[i])
		f.returns[i] = Value{}
	}
	f.returns = f.returns[:0]
}

func (f *Frame) pushBlock(ctx blockContext) {
	f.blocks = append(f.blocks, ctx)
}

func (f *Frame) topBlock() *blockContext {
	if len(f.blocks) == 0 {
		return nil
	}
	return &f.blocks[len(f.blocks)-1]
}

func (f *Frame) popBlock() (blockContext, bool) {
	n := len(f.blocks)
	if n == 0 {
		return blockContext{}, false
	}
	ctx := f.blocks[n-1]
	f.blocks = f.blocks[:n-1]
	return ctx, true
}

// loopAt returns the index in f.blocks of the depth-th enclosing loop,
// counting from the innermost.
func (f *Frame) loopAt(depth int) int {
	if depth < 1 {
		depth = 1
	}
	for i := len(f.blocks) - 1; i >= 0; i-- {
		if f.blocks[i].kind.isLoop() {
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// BlockDepth returns the number of open block contexts.
func (f *Frame) BlockDepth() int { return len(f.blocks) }

// ReturnDepth returns the number of values on the return stack.
func (f *Frame) ReturnDepth() int { return len(f.returns) }
