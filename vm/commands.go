package vm

import (
	"strconv"
	"time"
)

// ---------------------------------------------------------------------------
// Command dispatch
// ---------------------------------------------------------------------------

// execCommand runs a command request. It reports whether the frame stack
// changed.
func (m *Machine) execCommand(ins *Instruction, f *Frame, block *Block) bool {
	op := ins.Header.Op
	if op.isOperator() {
		m.cmdOperator(ins, f)
		return false
	}

	switch op {
	case KwNop:
	case KwBind:
		m.cmdBind(ins, f, false)
	case KwDelivering:
		m.cmdBind(ins, f, true)
	case KwSwap:
		m.cmdSwap(ins, f)
	case KwDestroy:
		m.cmdDestroy(ins, f)
	case KwHash:
		m.cmdHash(ins, f)
	case KwTypeID:
		m.cmdTypeID(ins, f)
	case KwMethods:
		m.cmdMethods(ins, f)
	case KwExist:
		m.cmdExist(ins, f)
	case KwNullObj:
		m.cmdNullObj(ins, f)
	case KwConvert:
		m.cmdConvert(ins, f)
	case KwReturn:
		return m.cmdReturn(ins, f)
	case KwAssert:
		m.cmdAssert(ins, f)
	case KwHandle:
		m.cmdHandle(ins, f)
	case KwWait:
		m.hanging = true
	case KwLeave:
		m.hanging = false
	case KwDomainAssert:
		m.cmdDomainAssert(ins, f)
	case KwExpList:
		m.cmdExpList(ins, f)
	case KwInitArray:
		m.cmdInitArray(ins, f)
	case KwUsing:
		m.cmdUsing(ins, f)
	case KwUsingTable:
		m.cmdUsingTable(ins, f)
	case KwApplyLayout:
		m.cmdApplyLayout(ins, f)
	case KwOffensiveMode:
		m.cmdOffensiveMode(ins, f)
	case KwTime:
		f.pushReturn(String(time.Now().Format(time.ANSIC)))
	case KwVersion:
		f.pushReturn(String(Version))
	case KwCodeName:
		f.pushReturn(String(CodeName))
	case KwInclude:
		m.cmdInclude(ins, f)
	case KwSuper:
		m.cmdSuper(ins, f)

	case KwIf:
		m.cmdIf(ins, f, block)
	case KwElif:
		m.cmdElif(ins, f)
	case KwElse:
		m.cmdElse(ins, f)
	case KwWhile:
		m.cmdWhile(ins, f)
	case KwFor:
		m.cmdFor(ins, f)
	case KwCase:
		m.cmdCase(ins, f, block)
	case KwWhen:
		m.cmdWhen(ins, f)
	case KwEnd:
		m.cmdEnd(ins, f)
	case KwBreak:
		m.cmdEscape(ins, f, true)
	case KwContinue:
		m.cmdEscape(ins, f, false)
	case KwStruct:
		m.cmdStruct(ins, f, false)
	case KwModule:
		m.cmdStruct(ins, f, true)
	case KwFn:
		m.cmdFn(ins, f, block)
	default:
		f.setError(InternalError, "Unknown command %s", op)
	}
	return false
}

func argCount(ins *Instruction, f *Frame, want int) bool {
	if len(ins.Args) < want {
		f.setError(InternalError, "%s needs %d argument(s), have %d", ins.Header.Op, want, len(ins.Args))
		return false
	}
	return true
}

// pushResult hands a freshly created value to the return stack, releasing
// it right away for void calls.
func (m *Machine) pushResult(f *Frame, v Value) {
	if f.voidCall {
		m.heap.Drop(v)
		return
	}
	f.pushReturn(v.WithDelivering(true))
}

// ---------------------------------------------------------------------------
// Binding
// ---------------------------------------------------------------------------

// definingStruct reports whether the innermost open block is a struct or
// module body.
func (f *Frame) definingStruct() bool {
	ctx := f.topBlock()
	return ctx != nil && (ctx.kind == KwStruct || ctx.kind == KwModule)
}

// cmdBind implements `a = b` and, with move set, `a <- b`.
func (m *Machine) cmdBind(ins *Instruction, f *Frame, move bool) {
	if !argCount(ins, f, 2) {
		return
	}
	rhs := m.fetch(&ins.Args[1], f, false)
	if f.failed() {
		return
	}
	var val Value
	if move {
		val = m.heap.Deliver(rhs).WithDelivering(false)
	} else {
		val = m.own(rhs)
	}

	target := &ins.Args[0]
	if target.Kind == ArgLiteral {
		name := target.Data
		if !isIdentifier(name) {
			m.heap.Drop(val)
			f.setError(ArgumentError, "Invalid object id - %s", name)
			return
		}
		if !ins.Header.Local && !f.definingStruct() {
			if h, ok := m.scopes.Find(name); ok {
				m.heap.Store(h, val)
				return
			}
		}
		m.scopes.Create(name, val)
		return
	}

	lhs := m.fetch(target, f, false)
	if f.failed() {
		m.heap.Drop(val)
		return
	}
	if !lhs.IsRef() || !m.heap.Assign(lhs, val) {
		m.heap.Drop(val)
		f.setError(ArgumentError, "Left-hand side is not assignable")
	}
}

func (m *Machine) cmdSwap(ins *Instruction, f *Frame) {
	if !argCount(ins, f, 2) {
		return
	}
	rhs := m.fetch(&ins.Args[1], f, false)
	lhs := m.fetch(&ins.Args[0], f, false)
	if f.failed() {
		return
	}
	lh, lok := m.heap.Resolve(lhs)
	rh, rok := m.heap.Resolve(rhs)
	if !lok || !rok {
		f.setError(ArgumentError, "swap needs two bindings")
		return
	}
	lv, rv := m.heap.take(lh), m.heap.take(rh)
	m.heap.Store(lh, rv)
	m.heap.Store(rh, lv)
}

func (m *Machine) cmdDestroy(ins *Instruction, f *Frame) {
	for i := range ins.Args {
		v := m.fetch(&ins.Args[i], f, false)
		if f.failed() {
			return
		}
		if !v.IsRef() {
			m.heap.Drop(v)
			continue
		}
		m.heap.Assign(v, Null())
	}
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

func (m *Machine) cmdHash(ins *Instruction, f *Frame) {
	if !argCount(ins, f, 1) {
		return
	}
	v := m.fetchValue(&ins.Args[0], f)
	if f.failed() {
		return
	}
	h, ok := HashValue(v)
	if !ok {
		f.setError(TypeError, "Unsupported type for hash - %s", v.TypeID())
		return
	}
	m.pushResult(f, Int(int64(h)))
}

func (m *Machine) cmdTypeID(ins *Instruction, f *Frame) {
	if len(ins.Args) == 1 {
		v := m.fetch(&ins.Args[0], f, false)
		if f.failed() {
			return
		}
		id := m.heap.Unpack(v).TypeID()
		if !v.IsRef() {
			m.heap.Drop(v)
		}
		m.pushResult(f, String(id))
		return
	}
	ids := make([]Value, len(ins.Args))
	for i := len(ins.Args) - 1; i >= 0; i-- {
		v := m.fetch(&ins.Args[i], f, false)
		if f.failed() {
			return
		}
		ids[i] = String(m.heap.Unpack(v).TypeID())
		if !v.IsRef() {
			m.heap.Drop(v)
		}
	}
	m.pushResult(f, ArrayOf(ids...))
}

func (m *Machine) cmdMethods(ins *Instruction, f *Frame) {
	if !argCount(ins, f, 1) {
		return
	}
	v := m.fetchValue(&ins.Args[0], f)
	if f.failed() {
		return
	}
	var names []Value
	for _, name := range m.reg.Methods(v.TypeID()) {
		names = append(names, String(name))
	}
	if st, err := v.AsStruct(); err == nil {
		for _, name := range st.Names() {
			if mv, _ := st.Member(m.heap, name); mv.Tag() == TagFunction {
				names = append(names, String(name))
			}
		}
	}
	m.pushResult(f, ArrayOf(names...))
}

func (m *Machine) cmdExist(ins *Instruction, f *Frame) {
	if !argCount(ins, f, 2) {
		return
	}
	id := m.fetchValue(&ins.Args[1], f)
	obj := m.fetch(&ins.Args[0], f, false)
	if f.failed() {
		return
	}
	name, err := id.AsString()
	if err != nil {
		f.setErr(asError(err))
		return
	}
	found := m.findMethod(obj, name) != nil
	if !found {
		if st, err := m.heap.Unpack(obj).AsStruct(); err == nil {
			_, found = st.Find(name)
		}
	}
	m.pushResult(f, Bool(found))
}

func (m *Machine) cmdNullObj(ins *Instruction, f *Frame) {
	if !argCount(ins, f, 1) {
		return
	}
	v := m.fetchValue(&ins.Args[0], f)
	if f.failed() {
		return
	}
	m.pushResult(f, Bool(v.IsNull()))
}

// cmdConvert turns a string into the value its text spells, and anything
// else into a string.
func (m *Machine) cmdConvert(ins *Instruction, f *Frame) {
	if !argCount(ins, f, 1) {
		return
	}
	raw := m.fetch(&ins.Args[0], f, false)
	if f.failed() {
		return
	}
	v := m.heap.Unpack(raw)
	var out Value
	switch {
	case v.Tag() == TagString && v.IsPlain():
		s := v.str
		switch lexicalType(s) {
		case TagInt:
			i, _ := strconv.ParseInt(s, 10, 64)
			out = Int(i)
		case TagFloat:
			fl, _ := strconv.ParseFloat(s, 64)
			out = Float(fl)
		case TagBool:
			out = Bool(s == "true")
		default:
			out = String(s)
		}
	case v.IsPlain() || v.Tag() == TagWideString || v.IsNull():
		out = String(v.String())
	default:
		res, err := m.Invoke(raw, "get_str", nil)
		if err != nil {
			f.setErr(asError(err))
			return
		}
		out = res
	}
	m.pushResult(f, out)
}

// ---------------------------------------------------------------------------
// Return and assertions
// ---------------------------------------------------------------------------

func (m *Machine) cmdReturn(ins *Instruction, f *Frame) bool {
	if f.functionScope == "" {
		f.setError(ControlFlowError, msgUnexpectedRet)
		return false
	}
	var ret Value
	switch len(ins.Args) {
	case 0:
		ret = Null()
	case 1:
		ret = m.own(m.fetch(&ins.Args[0], f, false))
	default:
		vals := m.fetchArgs(ins.Args, f)
		ret = ArrayOf(vals...)
	}
	if f.failed() {
		return false
	}
	m.leaveFrame(ret)
	return true
}

func (m *Machine) cmdAssert(ins *Instruction, f *Frame) {
	if !argCount(ins, f, 1) {
		return
	}
	v := m.fetchValue(&ins.Args[0], f)
	if f.failed() {
		return
	}
	b, err := v.AsBool()
	if err != nil {
		f.setErr(asError(err))
		return
	}
	if !b {
		f.setError(InvocationError, "Assertion failed")
	}
}

// cmdDomainAssert records the struct a chained member access continues
// from.
func (m *Machine) cmdDomainAssert(ins *Instruction, f *Frame) {
	if !argCount(ins, f, 1) {
		return
	}
	v := m.fetch(&ins.Args[0], f, false)
	if f.failed() {
		return
	}
	if _, err := m.heap.Unpack(v).AsStruct(); err != nil {
		f.setError(TypeError, "Domain is not a struct - %s", m.heap.Unpack(v).TypeID())
		return
	}
	f.assertScratch, f.assertSet = v, true
}

func (m *Machine) cmdExpList(ins *Instruction, f *Frame) {
	if len(ins.Args) == 0 {
		m.pushResult(f, Null())
		return
	}
	vals := m.fetchArgs(ins.Args, f)
	if f.failed() {
		return
	}
	for _, v := range vals[:len(vals)-1] {
		m.heap.Drop(v)
	}
	m.pushResult(f, vals[len(vals)-1])
}

func (m *Machine) cmdInitArray(ins *Instruction, f *Frame) {
	vals := m.fetchArgs(ins.Args, f)
	if f.failed() {
		return
	}
	m.pushResult(f, ArrayOf(vals...))
}

func (m *Machine) cmdOffensiveMode(ins *Instruction, f *Frame) {
	if !argCount(ins, f, 1) {
		return
	}
	b, err := m.fetchValue(&ins.Args[0], f).AsBool()
	if f.failed() {
		return
	}
	if err != nil {
		f.setErr(asError(err))
		return
	}
	m.offensive = b
}
