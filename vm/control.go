package vm

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// condition fetches a block condition, which must be a bool.
func (m *Machine) condition(arg *Argument, f *Frame) (bool, bool) {
	v := m.fetchValue(arg, f)
	if f.failed() {
		return false, false
	}
	b, err := v.AsBool()
	if err != nil {
		f.setError(TypeError, "Invalid state value type - %s", v.TypeID())
		return false, false
	}
	return b, true
}

// nextBranch jumps to the next untried clause of the innermost if/case
// block, or to its end when none is left.
func (m *Machine) nextBranch(f *Frame) {
	ctx := f.topBlock()
	if ctx.next < len(ctx.branches) {
		target := ctx.branches[ctx.next]
		ctx.next++
		f.jump(target)
		return
	}
	f.jump(ctx.exit)
}

// ownerBlock returns the innermost context when it is the if/case block
// that owns clause instruction ins.
func (m *Machine) ownerBlock(ins *Instruction, f *Frame, kinds ...Keyword) *blockContext {
	ctx := f.topBlock()
	if ctx != nil && ctx.begin == ins.Header.Nest {
		for _, k := range kinds {
			if ctx.kind == k {
				return ctx
			}
		}
	}
	f.setError(ControlFlowError, "Unexpected %s", ins.Header.Op)
	return nil
}

func (m *Machine) cmdIf(ins *Instruction, f *Frame, block *Block) {
	if !argCount(ins, f, 1) {
		return
	}
	cond, ok := m.condition(&ins.Args[0], f)
	if !ok {
		return
	}
	begin := f.absolute()
	f.pushBlock(blockContext{
		kind:     KwIf,
		begin:    begin,
		exit:     ins.Header.NestEnd,
		branches: block.Branches(begin),
		matched:  cond,
	})
	if !cond {
		m.nextBranch(f)
	}
}

func (m *Machine) cmdElif(ins *Instruction, f *Frame) {
	ctx := m.ownerBlock(ins, f, KwIf)
	if ctx == nil || !argCount(ins, f, 1) {
		return
	}
	if ctx.matched {
		f.jump(ctx.exit)
		return
	}
	cond, ok := m.condition(&ins.Args[0], f)
	if !ok {
		return
	}
	if cond {
		ctx.matched = true
		return
	}
	m.nextBranch(f)
}

func (m *Machine) cmdElse(ins *Instruction, f *Frame) {
	ctx := m.ownerBlock(ins, f, KwIf, KwCase)
	if ctx == nil {
		return
	}
	if ctx.matched {
		f.jump(ctx.exit)
		return
	}
	ctx.matched = true
}

func (m *Machine) cmdCase(ins *Instruction, f *Frame, block *Block) {
	if !argCount(ins, f, 1) {
		return
	}
	subject := m.own(m.fetch(&ins.Args[0], f, false))
	if f.failed() {
		return
	}
	if u := m.heap.Unpack(subject); !u.IsPlain() {
		f.setError(TypeError, "Non-plain object is not supported - %s", u.TypeID())
		return
	}
	begin := f.absolute()
	m.scopes.Push()
	m.scopes.Create(caseBinding, subject)
	f.pushBlock(blockContext{
		kind:        KwCase,
		begin:       begin,
		exit:        ins.Header.NestEnd,
		branches:    block.Branches(begin),
		pushedScope: true,
	})
	m.nextBranch(f)
}

// cmdWhen matches the case subject against the candidates in listed order.
// Only plain candidates of the subject's type can match.
func (m *Machine) cmdWhen(ins *Instruction, f *Frame) {
	ctx := m.ownerBlock(ins, f, KwCase)
	if ctx == nil {
		return
	}
	if ctx.matched {
		f.jump(ctx.exit)
		return
	}
	cands := make([]Value, len(ins.Args))
	for i := len(ins.Args) - 1; i >= 0; i-- {
		cands[i] = m.fetchValue(&ins.Args[i], f)
		if f.failed() {
			return
		}
	}
	var subject Value
	if h, ok := m.scopes.FindLocal(caseBinding); ok {
		subject = m.heap.Load(h)
	}
	for _, c := range cands {
		if subject.IsPlain() && c.IsPlain() && plainEqual(subject, c) {
			ctx.matched = true
			return
		}
	}
	m.nextBranch(f)
}

func (m *Machine) cmdWhile(ins *Instruction, f *Frame) {
	if !argCount(ins, f, 1) {
		return
	}
	if f.reentered {
		f.reentered = false
	} else {
		m.scopes.Push()
		f.pushBlock(blockContext{
			kind:        KwWhile,
			begin:       f.absolute(),
			exit:        ins.Header.NestEnd,
			pushedScope: true,
		})
	}
	cond, ok := m.condition(&ins.Args[0], f)
	if !ok {
		return
	}
	if !cond {
		f.topBlock().finished = true
		f.jump(ins.Header.NestEnd)
	}
}

// iterable reports whether v honors the container contract.
func (m *Machine) iterable(v Value) bool {
	for _, name := range []string{"head", "tail", "empty"} {
		if m.findMethod(v, name) == nil {
			return false
		}
	}
	return true
}

func (m *Machine) invokeOn(f *Frame, recv Value, method string, args map[string]Value) (Value, bool) {
	v, err := m.Invoke(recv, method, args)
	if err != nil {
		f.setErr(asError(err))
		return Null(), false
	}
	return v, true
}

// cmdFor starts a for-each loop, or advances it when re-entered from the
// loop end.
func (m *Machine) cmdFor(ins *Instruction, f *Frame) {
	if !argCount(ins, f, 2) {
		return
	}
	unit := ins.Args[0].Data

	if f.reentered {
		f.reentered = false
		m.forStep(unit, ins, f)
		return
	}

	container := m.fetch(&ins.Args[1], f, false)
	if f.failed() {
		return
	}
	if !m.iterable(container) {
		f.setError(TypeError, "Object is not iterable - %s", m.heap.Unpack(container).TypeID())
		return
	}
	m.scopes.Push()
	f.pushBlock(blockContext{
		kind:        KwFor,
		begin:       f.absolute(),
		exit:        ins.Header.NestEnd,
		pushedScope: true,
	})
	m.scopes.Create(containerBinding, container)
	ref := m.containerRef()

	empty, ok := m.invokeOn(f, ref, "empty", nil)
	if !ok {
		return
	}
	if b, _ := empty.AsBool(); b {
		f.topBlock().finished = true
		f.jump(ins.Header.NestEnd)
		return
	}
	iter, ok := m.invokeOn(f, ref, "head", nil)
	if !ok {
		return
	}
	m.scopes.Create(iteratorBinding, iter)
	m.bindUnit(unit, f)
}

func (m *Machine) containerRef() Value {
	h, _ := m.scopes.FindLocal(containerBinding)
	if cell, ok := m.heap.Resolve(RefValue(h)); ok {
		return RefValue(cell)
	}
	return RefValue(h)
}

func (m *Machine) iteratorRef() Value {
	h, _ := m.scopes.FindLocal(iteratorBinding)
	return RefValue(h)
}

func (m *Machine) forStep(unit string, ins *Instruction, f *Frame) {
	iter := m.iteratorRef()
	if _, ok := m.invokeOn(f, iter, "step_forward", nil); !ok {
		return
	}
	tail, ok := m.invokeOn(f, m.containerRef(), "tail", nil)
	if !ok {
		return
	}
	done, ok := m.invokeOn(f, iter, "compare", map[string]Value{"rhs": tail})
	m.heap.Drop(tail)
	if !ok {
		return
	}
	if b, _ := done.AsBool(); b {
		f.topBlock().finished = true
		f.jump(ins.Header.NestEnd)
		return
	}
	m.bindUnit(unit, f)
}

func (m *Machine) bindUnit(unit string, f *Frame) {
	v, ok := m.invokeOn(f, m.iteratorRef(), "obj", nil)
	if !ok {
		return
	}
	m.scopes.Create(unit, m.own(v))
}

// cmdEnd closes the block named by the end instruction's nest kind.
func (m *Machine) cmdEnd(ins *Instruction, f *Frame) {
	switch ins.Header.NestKind {
	case KwFn:
		return
	case KwStruct, KwModule:
		m.finishStruct(ins, f)
		return
	case KwWhile, KwFor:
		m.loopEnd(ins, f)
		return
	}
	ctx, ok := f.popBlock()
	if !ok {
		f.setError(ControlFlowError, msgUnexpectedEnd)
		return
	}
	if ctx.pushedScope {
		m.scopes.Pop()
	}
}

// loopEnd either re-enters the loop head or, once the loop has finished,
// closes it.
func (m *Machine) loopEnd(ins *Instruction, f *Frame) {
	ctx := f.topBlock()
	if ctx == nil || !ctx.kind.isLoop() {
		f.setError(ControlFlowError, msgUnexpectedEnd)
		return
	}
	f.clearReturns(m.heap)
	if ctx.finished {
		f.popBlock()
		if ctx.pushedScope {
			m.scopes.Pop()
		}
		return
	}
	m.scopes.ClearCurrent(iteratorBinding, containerBinding)
	f.reentered = true
	f.jump(ins.Header.Nest)
}

// cmdEscape implements break and continue. The escape depth counts
// enclosing loops; every block opened inside the target loop is closed.
func (m *Machine) cmdEscape(ins *Instruction, f *Frame, isBreak bool) {
	idx := f.loopAt(ins.Header.EscapeDepth)
	if idx < 0 {
		f.setError(ControlFlowError, msgUnexpectedBreak)
		return
	}
	for len(f.blocks)-1 > idx {
		ctx, _ := f.popBlock()
		if ctx.pushedScope {
			m.scopes.Pop()
		}
	}
	ctx := f.topBlock()
	if isBreak {
		ctx.finished = true
	}
	f.jump(ctx.exit)
}
