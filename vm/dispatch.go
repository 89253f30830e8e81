package vm

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// invocation describes a synchronous method call run by a nested loop.
type invocation struct {
	fn   *Function
	args map[string]Value
}

// run executes instructions until the block finishes. With inv set it
// pushes a frame for the invoked function and returns as soon as that
// frame is gone; errors are then reported on the invoking frame.
func (m *Machine) run(inv *invocation) {
	stop := len(m.frames)
	if inv != nil {
		if !m.pushFunction(inv.fn, inv.args, m.top()) {
			return
		}
		m.top().invoked = true
	} else {
		m.frames = append(m.frames, newFrame(""))
	}

	for {
		if inv != nil && len(m.frames) == stop {
			return
		}
		frame := m.top()
		block := m.calls[len(m.calls)-1]
		size := block.Len()

		if frame.hasWarning {
			m.log.Warningf("%s", frame.warning)
			frame.warning, frame.hasWarning = "", false
		}
		if frame.IP >= size && len(m.frames) == stop+1 && inv == nil && !m.hanging {
			break
		}
		m.freezing = inv == nil && frame.IP >= size && m.hanging && len(m.frames) == stop+1

		if m.offensive && m.refresh != nil {
			m.refresh()
		}

		if m.hanging && !frame.eventProcessing {
			if m.suspend() {
				continue
			}
			if m.err != nil {
				break
			}
		} else if m.hanging {
			m.holdEvent()
		}
		if m.freezing {
			continue
		}

		if frame.IP >= size {
			m.leaveFrame(Null())
			continue
		}

		ins := block.At(frame.IP)
		if ins.Header.Branch && m.skipClause(frame, ins) {
			frame.step()
			continue
		}

		frame.voidCall = ins.Header.VoidCall
		switched := false
		if ins.Header.Kind == RequestFunction {
			switched = m.callFunction(ins, frame, block)
		} else {
			switched = m.execCommand(ins, frame, block)
		}

		if frame.failed() {
			if frame.err.Index < 0 {
				frame.err.Index = ins.Header.Source
			}
			m.log.Errorf("%s: %s", block.Name, frame.err)
			if inv != nil {
				m.unwind(stop)
				if caller := m.top(); caller != nil {
					caller.setError(InvocationError, msgInvokingError)
				}
				return
			}
			m.err = frame.err
			break
		}
		if switched {
			continue
		}
		frame.step()
	}

	if inv == nil {
		m.unwind(stop)
		if f := m.top(); f != nil && len(m.frames) > stop {
			f.clearReturns(m.heap)
		}
		if len(m.frames) > stop {
			m.frames = m.frames[:stop]
		}
		if len(m.calls) > 0 {
			m.calls = m.calls[:len(m.calls)-1]
		}
	}
}

// skipClause jumps past the rest of an if/case block when the clause that
// starts at ins belongs to a block whose earlier clause already matched.
func (m *Machine) skipClause(f *Frame, ins *Instruction) bool {
	ctx := f.topBlock()
	if ctx == nil || ctx.begin != ins.Header.Nest || !ctx.matched {
		return false
	}
	f.jump(ctx.exit)
	return true
}

// unwind pops every frame above depth together with its scope layers and
// call stack entry.
func (m *Machine) unwind(depth int) {
	for len(m.frames) > depth+1 || (len(m.frames) > depth && m.top().functionScope != "") {
		f := m.top()
		f.clearReturns(m.heap)
		m.scopes.popToFunction()
		m.scopes.Pop()
		m.frames = m.frames[:len(m.frames)-1]
		m.calls = m.calls[:len(m.calls)-1]
	}
}

// leaveFrame finishes the current function frame, handing ret to the
// caller. Initializer frames hand over the constructed instance instead.
func (m *Machine) leaveFrame(ret Value) {
	f := m.top()
	if f.insideInitializer {
		m.heap.Drop(ret)
		ret = Null()
		if h, ok := m.scopes.FindLocal(SelfBinding); ok {
			ret = m.heap.take(h)
		}
	}
	f.clearReturns(m.heap)
	m.scopes.popToFunction()
	m.scopes.Pop()
	m.frames = m.frames[:len(m.frames)-1]
	m.calls = m.calls[:len(m.calls)-1]

	caller := m.top()
	if caller == nil || f.eventRoot {
		m.heap.Drop(ret)
		return
	}
	if caller.voidCall {
		m.heap.Drop(ret)
	} else {
		caller.pushReturn(ret.WithDelivering(true))
	}
	if !f.invoked {
		caller.step()
	}
}

// pushFunction enters a bytecode function: a new call stack entry, frame
// and scope layer holding the marker, the arguments and the closure.
func (m *Machine) pushFunction(fn *Function, args map[string]Value, caller *Frame) bool {
	if len(m.calls) >= m.maxDepth {
		if caller != nil {
			caller.setError(InvocationError, "Call stack overflow (depth %d)", m.maxDepth)
		}
		return false
	}
	m.calls = append(m.calls, fn.block)
	if len(m.calls) > m.peakDepth {
		m.peakDepth = len(m.calls)
	}
	f := newFrame(fn.ID)
	f.jumpOffset = fn.offset
	if caller != nil {
		f.eventProcessing = caller.eventProcessing
	}
	m.frames = append(m.frames, f)
	m.scopes.Push()
	m.scopes.Create(FunctionMarker, Bool(true))
	m.scopes.Merge(args)
	m.scopes.mergeClosure(fn.closure)
	return true
}

// ---------------------------------------------------------------------------
// Function calls
// ---------------------------------------------------------------------------

// fetchArgs evaluates call arguments right to left, so values taken from
// the return stack come off in reverse push order. Named bindings are
// copied; temporaries are moved.
func (m *Machine) fetchArgs(args []Argument, f *Frame) []Value {
	out := make([]Value, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		v := m.fetch(&args[i], f, false)
		if f.failed() {
			return nil
		}
		out[i] = m.own(v)
	}
	return out
}

// own turns a fetched value into one the receiver may keep.
func (m *Machine) own(v Value) Value {
	if v.IsRef() {
		return m.heap.Copy(v)
	}
	return v.WithDelivering(false)
}

// findMethod resolves name against the receiver's type table, then its
// members when the receiver is a struct or module instance.
func (m *Machine) findMethod(recv Value, name string) *Function {
	v := m.heap.Unpack(recv)
	if fn := m.reg.Method(v.TypeID(), name); fn != nil {
		return fn
	}
	if st, err := v.AsStruct(); err == nil {
		if mv, ok := st.Member(m.heap, name); ok {
			if fn, err := mv.AsFunction(); err == nil {
				return fn
			}
		}
	}
	return nil
}

// callFunction executes a function request. It reports whether the frame
// stack changed, in which case the caller must not step.
func (m *Machine) callFunction(ins *Instruction, f *Frame, block *Block) bool {
	h := &ins.Header
	vals := m.fetchArgs(ins.Args, f)
	if f.failed() {
		return false
	}

	var (
		fn      *Function
		self    Value
		hasSelf bool
	)
	if h.Domain.Kind != ArgNull {
		self = m.fetch(&h.Domain, f, false)
		if f.failed() {
			return false
		}
		hasSelf = true
		fn = m.findMethod(self, h.Func)
		if fn == nil {
			f.setError(LookupError, "Method %q is not found in type %s", h.Func, m.heap.Unpack(self).TypeID())
			return false
		}
	} else if fn = m.reg.Function(h.Func); fn == nil {
		hd, ok := m.scopes.Find(h.Func)
		if !ok {
			f.setError(LookupError, "Function is not found - %s", h.Func)
			return false
		}
		local := m.heap.Unpack(RefValue(hd))
		if st, err := local.AsStruct(); err == nil && !local.IsContainer() {
			return m.construct(h.Func, st, vals, f)
		}
		if fn, _ = local.AsFunction(); fn == nil {
			f.setError(TypeError, "%s is not a function", h.Func)
			return false
		}
	}

	args, err := BindArguments(fn, vals)
	if err != nil {
		f.setErr(err.(*Error))
		return false
	}
	if hasSelf {
		args[SelfBinding] = self
	}
	return m.call(fn, args, f, block)
}

// call runs fn with bound args on behalf of frame f.
func (m *Machine) call(fn *Function, args map[string]Value, f *Frame, block *Block) bool {
	switch fn.kind {
	case ImplNative:
		res := fn.native(&Args{m: args, machine: m})
		m.finishNative(res, args, f)
		return false
	case ImplExternal:
		ctx := &ExternalContext{Args: args, machine: m}
		if status := fn.external(ctx); status < 1 {
			f.setError(InvocationError, "External function %s failed with status %d", fn.ID, status)
			return false
		}
		m.dropArgs(args, ctx.result)
		f.pushReturn(ctx.result)
		return false
	}

	if fn.block == nil {
		f.setError(InternalError, "Function %s has no body", fn.ID)
		return false
	}
	if !f.insideInitializer && !m.refersToCurrent(args) && m.tailPosition(f, block) {
		if fn.block == block {
			m.tailRecursion(fn, args)
			return true
		}
		if len(m.frames) > 1 {
			m.tailCall(fn, args)
			return true
		}
	}
	return m.pushFunction(fn, args, f)
}

func (m *Machine) finishNative(res Result, args map[string]Value, f *Frame) {
	switch res.Level {
	case LevelError:
		f.setError(InvocationError, "%s", res.Detail)
		return
	case LevelWarning:
		f.warn(res.Detail)
	}
	if res.Invoke != nil {
		v, err := m.Invoke(res.Invoke.Receiver, res.Invoke.Method, res.Invoke.Args)
		if err != nil {
			f.setErr(asError(err))
			return
		}
		res.Value = v
	}
	m.dropArgs(args, res.Value)
	if f.voidCall {
		m.heap.Drop(res.Value)
		return
	}
	f.pushReturn(res.Value.WithDelivering(true))
}

// dropArgs releases temporaries passed to a native call, sparing whatever
// the call handed back.
func (m *Machine) dropArgs(args map[string]Value, result Value) {
	for _, v := range args {
		if v.IsRef() || sameStorage(v, result) {
			continue
		}
		m.heap.Drop(v)
	}
}

// refersToCurrent reports whether an argument aliases a cell of the
// innermost layer, which a tail call would release.
func (m *Machine) refersToCurrent(args map[string]Value) bool {
	cur := m.scopes.Current()
	for _, v := range args {
		hd, ok := m.heap.Resolve(v)
		if !ok {
			continue
		}
		for _, name := range cur.names {
			if cur.slots[name] == hd {
				return true
			}
		}
	}
	return false
}

// tailPosition reports whether the instruction at f.IP is the last one of
// block, or the second to last followed by a bare `return` of its result.
func (m *Machine) tailPosition(f *Frame, block *Block) bool {
	size := block.Len()
	if f.IP == size-1 {
		return true
	}
	if f.IP != size-2 {
		return false
	}
	next := block.At(size - 1)
	cur := block.At(f.IP)
	return next.IsCommand(KwReturn) &&
		len(next.Args) == 1 &&
		next.Args[0].Kind == ArgReturn &&
		!cur.Header.VoidCall
}

// resetFrame replaces the top frame with a fresh one for fn, keeping the
// flags that belong to the activation rather than to the body.
func (m *Machine) resetFrame(fn *Function) *Frame {
	old := m.top()
	next := newFrame(fn.ID)
	next.jumpOffset = fn.offset
	next.eventProcessing = old.eventProcessing
	next.eventRoot = old.eventRoot
	next.invoked = old.invoked
	old.clearReturns(m.heap)
	m.frames[len(m.frames)-1] = next
	return next
}

func (m *Machine) rebindFunctionLayer(fn *Function, args map[string]Value) {
	m.scopes.popToFunction()
	m.scopes.ClearCurrent()
	m.scopes.Create(FunctionMarker, Bool(true))
	m.scopes.Merge(args)
	m.scopes.mergeClosure(fn.closure)
}

// tailRecursion restarts the current function in place.
func (m *Machine) tailRecursion(fn *Function, args map[string]Value) {
	m.resetFrame(fn)
	m.rebindFunctionLayer(fn, args)
}

// tailCall replaces the current function with fn.
func (m *Machine) tailCall(fn *Function, args map[string]Value) {
	m.resetFrame(fn)
	m.calls[len(m.calls)-1] = fn.block
	m.rebindFunctionLayer(fn, args)
}

// ---------------------------------------------------------------------------
// Invoke
// ---------------------------------------------------------------------------

// Invoke calls method on recv synchronously and returns its result. args
// are bound by name; the receiver is bound as self.
func (m *Machine) Invoke(recv Value, method string, args map[string]Value) (Value, error) {
	fn := m.findMethod(recv, method)
	if fn == nil {
		return Null(), newError(LookupError, "Method %q is not found in type %s", method, m.heap.Unpack(recv).TypeID())
	}
	return m.invokeFunction(fn, recv, true, args)
}

func (m *Machine) invokeFunction(fn *Function, recv Value, hasSelf bool, args map[string]Value) (Value, error) {
	bound := make(map[string]Value, len(args)+1)
	for k, v := range args {
		bound[k] = v
	}
	if hasSelf {
		bound[SelfBinding] = recv
	}

	switch fn.kind {
	case ImplNative:
		res := fn.native(&Args{m: bound, machine: m})
		switch res.Level {
		case LevelError:
			return Null(), newError(InvocationError, "%s", res.Detail)
		case LevelWarning:
			if f := m.top(); f != nil {
				f.warn(res.Detail)
			}
		}
		if res.Invoke != nil {
			return m.Invoke(res.Invoke.Receiver, res.Invoke.Method, res.Invoke.Args)
		}
		return res.Value, nil
	case ImplExternal:
		ctx := &ExternalContext{Args: bound, machine: m}
		if status := fn.external(ctx); status < 1 {
			return Null(), newError(InvocationError, "External function %s failed with status %d", fn.ID, status)
		}
		return ctx.result, nil
	}

	host := false
	if len(m.frames) == 0 {
		m.frames = append(m.frames, newFrame(""))
		m.calls = append(m.calls, NewBlock("host", nil))
		host = true
	}
	caller := m.top()
	saved := caller.voidCall
	caller.voidCall = false
	m.run(&invocation{fn: fn, args: bound})
	caller.voidCall = saved

	var (
		ret Value
		err error
	)
	if caller.failed() {
		err = caller.err
		if host {
			caller.err = nil
		}
	} else {
		ret, _ = caller.popReturn()
		ret = ret.WithDelivering(false)
	}
	if host {
		m.frames = m.frames[:len(m.frames)-1]
		m.calls = m.calls[:len(m.calls)-1]
	}
	return ret, err
}

func asError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return newError(InternalError, "%s", err)
}
