package vm

// ---------------------------------------------------------------------------
// Struct and module composition
// ---------------------------------------------------------------------------

// cmdStruct opens a struct (or module) body. Bindings made inside the body
// become members of the template built at the matching end.
func (m *Machine) cmdStruct(ins *Instruction, f *Frame, module bool) {
	if !argCount(ins, f, 1) {
		return
	}
	id := ins.Args[0].Data
	if !isIdentifier(id) {
		f.setError(ArgumentError, "Invalid struct id - %s", id)
		return
	}
	kind := KwStruct
	if module {
		kind = KwModule
	}
	ctx := blockContext{
		kind:        kind,
		begin:       f.absolute(),
		exit:        ins.Header.NestEnd,
		pushedScope: true,
		id:          id,
	}
	if !module && len(ins.Args) > 1 {
		ctx.super = ins.Args[1].Data
	}
	m.scopes.Push()
	f.pushBlock(ctx)
	f.structID, f.superStructID = ctx.id, ctx.super
}

// cmdInclude mixes a module into the struct being defined. Members the
// body defines win over module members.
func (m *Machine) cmdInclude(ins *Instruction, f *Frame) {
	if !argCount(ins, f, 1) {
		return
	}
	ctx := f.topBlock()
	if ctx == nil || (ctx.kind != KwStruct && ctx.kind != KwModule) {
		f.setError(ControlFlowError, "include outside struct definition")
		return
	}
	v := m.fetchValue(&ins.Args[0], f)
	if f.failed() {
		return
	}
	if _, err := v.AsStruct(); err != nil {
		f.setError(TypeError, "Included object is not a module - %s", v.TypeID())
		return
	}
	ctx.modules = append(ctx.modules, v)
}

// shareOrCopy copies a member for a new template or instance; function
// descriptors are shared.
func (m *Machine) shareOrCopy(v Value) Value {
	v = m.heap.Unpack(v)
	if v.Tag() == TagFunction {
		return v
	}
	return m.heap.Copy(v)
}

// finishStruct builds the template from the struct body: inherited
// members first, then included modules, then the body itself.
func (m *Machine) finishStruct(ins *Instruction, f *Frame) {
	ctx, ok := f.popBlock()
	if !ok || (ctx.kind != KwStruct && ctx.kind != KwModule) {
		f.setError(ControlFlowError, msgUnexpectedEnd)
		return
	}
	tmpl := newStruct()

	if ctx.super != "" {
		h, found := m.scopes.Find(ctx.super)
		var base *Struct
		if found {
			base, _ = m.heap.Unpack(RefValue(h)).AsStruct()
		}
		if base == nil {
			m.scopes.Pop()
			f.setError(LookupError, "Super struct is not found - %s", ctx.super)
			return
		}
		for _, name := range base.Names() {
			if name == memberStructID || name == memberSuperInitializer {
				continue
			}
			v, _ := base.Member(m.heap, name)
			if name == memberInitializer {
				name = memberSuperInitializer
			}
			tmpl.add(m.heap, name, m.shareOrCopy(v))
		}
	}

	for _, mod := range ctx.modules {
		st, _ := mod.AsStruct()
		for _, name := range st.Names() {
			if name == memberStructID {
				continue
			}
			v, _ := st.Member(m.heap, name)
			tmpl.add(m.heap, name, m.shareOrCopy(v))
		}
	}

	layer := m.scopes.Current()
	for _, name := range layer.Names() {
		hd, _ := layer.Find(name)
		tmpl.replace(m.heap, name, m.heap.take(hd))
	}
	tmpl.replace(m.heap, memberStructID, String(ctx.id))
	m.scopes.Pop()

	f.structID, f.superStructID = "", ""
	if outer := f.topBlock(); outer != nil && (outer.kind == KwStruct || outer.kind == KwModule) {
		f.structID, f.superStructID = outer.id, outer.super
	}

	value := StructValue(tmpl, TypeStruct, false)
	if ctx.kind == KwModule {
		value = StructValue(tmpl, ctx.id, true)
	}
	m.scopes.Create(ctx.id, value)
}

// instantiate builds an instance of tmpl: every member except the
// initializer and the struct id, data deep-copied and functions shared.
func (m *Machine) instantiate(tmpl *Struct) *Struct {
	inst := newStruct()
	for _, name := range tmpl.Names() {
		if name == memberInitializer || name == memberStructID {
			continue
		}
		v, _ := tmpl.Member(m.heap, name)
		inst.add(m.heap, name, m.shareOrCopy(v))
	}
	return inst
}

// construct calls the struct template bound to id: the instance is bound
// as self, the initializer runs, and the instance is handed back to the
// caller when it finishes.
func (m *Machine) construct(id string, tmpl *Struct, vals []Value, f *Frame) bool {
	inst := StructValue(m.instantiate(tmpl), id, true)
	if sid := structIDOf(m.heap, tmpl); sid != "" {
		inst.typeID = sid
	}

	initVal, ok := tmpl.Member(m.heap, memberInitializer)
	if !ok {
		if len(vals) > 0 {
			m.heap.Drop(inst)
			f.setError(ArgumentError, "Struct %s has no initializer", id)
			return false
		}
		m.pushResult(f, inst)
		return false
	}
	initFn, err := initVal.AsFunction()
	if err != nil || initFn.kind != ImplBytecode {
		m.heap.Drop(inst)
		f.setError(TypeError, "Initializer of %s is not a script function", id)
		return false
	}
	args, bindErr := BindArguments(initFn, vals)
	if bindErr != nil {
		m.heap.Drop(inst)
		f.setErr(bindErr.(*Error))
		return false
	}
	args[SelfBinding] = inst
	f.structBase = StructValue(tmpl, id, false)
	f.initializerCalling = true
	if !m.pushFunction(initFn, args, f) {
		return false
	}
	m.top().insideInitializer = true
	return true
}

// cmdSuper runs the inherited initializer on the current self.
func (m *Machine) cmdSuper(ins *Instruction, f *Frame) {
	h, ok := m.scopes.Find(SelfBinding)
	if !ok {
		f.setError(LookupError, "super outside struct initializer")
		return
	}
	self := RefValue(h)
	if cell, ok := m.heap.Resolve(self); ok {
		self = RefValue(cell)
	}
	st, err := m.heap.Unpack(self).AsStruct()
	if err != nil {
		f.setError(TypeError, "self is not a struct")
		return
	}
	sv, ok := st.Member(m.heap, memberSuperInitializer)
	if !ok {
		f.setError(LookupError, "Struct has no super initializer")
		return
	}
	fn, err := sv.AsFunction()
	if err != nil {
		f.setError(TypeError, "super initializer is not a function")
		return
	}
	vals := m.fetchArgs(ins.Args, f)
	if f.failed() {
		return
	}
	args, err := BindArguments(fn, vals)
	if err != nil {
		f.setErr(asError(err))
		return
	}
	ret, err := m.invokeFunction(fn, self, true, args)
	if err != nil {
		f.setErr(asError(err))
		return
	}
	m.heap.Drop(ret)
}

// ---------------------------------------------------------------------------
// Function definitions
// ---------------------------------------------------------------------------

// cmdFn defines a function whose body is the instructions up to the
// matching end. Definitions nested inside a running function capture the
// visible bindings.
func (m *Machine) cmdFn(ins *Instruction, f *Frame, block *Block) {
	if !argCount(ins, f, 1) {
		return
	}
	id := ins.Args[0].Data
	if !isIdentifier(id) {
		f.setError(ArgumentError, "Invalid function id - %s", id)
		return
	}
	var (
		params   []string
		optional int
		variable bool
	)
	for _, p := range ins.Args[1:] {
		params = append(params, p.Data)
		if p.Optional {
			optional++
		}
		if p.Variable {
			variable = true
		}
	}
	pattern := Fixed
	limit := 0
	switch {
	case variable:
		pattern = AutoSize
	case optional > 0:
		pattern = AutoFill
		limit = len(params) - optional
	}

	end := ins.Header.NestEnd - f.jumpOffset
	body := block.splice(f.IP+1, end)
	fn := NewBytecode(id, body, f.absolute()+1, params, pattern)
	fn.Limit = limit
	if len(m.frames) > 1 {
		fn.closure = m.scopes.capture()
	}
	m.scopes.Create(id, FunctionValue(fn))
	f.jump(ins.Header.NestEnd + 1)
}
