package vm

import "strconv"

// ---------------------------------------------------------------------------
// Operand fetching
// ---------------------------------------------------------------------------

// literal decodes a literal argument.
func literal(arg *Argument) (Value, *Error) {
	switch arg.Lit {
	case LitInt:
		i, err := strconv.ParseInt(arg.Data, 10, 64)
		if err != nil {
			return Null(), newError(InternalError, "malformed int literal %q", arg.Data)
		}
		return Int(i), nil
	case LitFloat:
		f, err := strconv.ParseFloat(arg.Data, 64)
		if err != nil {
			return Null(), newError(InternalError, "malformed float literal %q", arg.Data)
		}
		return Float(f), nil
	case LitBool:
		return Bool(arg.Data == "true"), nil
	case LitWideString:
		return WideString(arg.Data), nil
	}
	return String(arg.Data), nil
}

// fetch evaluates an operand. Named bindings and members come back as
// Reference values aliasing their cell; literals and return-stack values
// come back as delivering temporaries. With checking set, a return-stack
// operand is peeked rather than popped.
func (m *Machine) fetch(arg *Argument, f *Frame, checking bool) Value {
	switch arg.Kind {
	case ArgNull:
		return Null()

	case ArgLiteral:
		v, err := literal(arg)
		if err != nil {
			f.setErr(err)
			return Null()
		}
		return v.WithDelivering(true)

	case ArgReturn:
		var (
			v  Value
			ok bool
		)
		if checking {
			v, ok = f.peekReturn()
		} else {
			v, ok = f.popReturn()
		}
		if !ok {
			f.setError(InternalError, "Can't get object from stack.")
			return Null()
		}
		if v.IsRef() {
			return v
		}
		return v.WithDelivering(true)
	}

	switch {
	case arg.UseLastAssert:
		return m.fetchAsserted(arg, f)
	case arg.DomainKind == ArgReturn:
		return m.fetchReturnMember(arg, f, checking)
	case arg.Domain != "":
		h, ok := m.scopes.FindIn(arg.Data, arg.Domain)
		if !ok {
			f.setError(LookupError, "Member '%s' is not found inside %s", arg.Data, arg.Domain)
			return Null()
		}
		return RefValue(h)
	}

	if h, ok := m.scopes.Find(arg.Data); ok {
		if cell, ok := m.heap.Resolve(RefValue(h)); ok {
			return RefValue(cell)
		}
		return RefValue(h)
	}
	if c, ok := m.reg.Constant(arg.Data); ok {
		return c.WithDelivering(true)
	}
	if fn := m.reg.Function(arg.Data); fn != nil {
		return FunctionValue(fn).WithDelivering(true)
	}
	f.setError(LookupError, "Object is not found - %s", arg.Data)
	return Null()
}

// fetchAsserted resolves a member against the value recorded by the last
// domain_assert.
func (m *Machine) fetchAsserted(arg *Argument, f *Frame) Value {
	if !f.assertSet {
		f.setError(LookupError, "Member '%s' has no asserted domain", arg.Data)
		return Null()
	}
	st, err := m.heap.Unpack(f.assertScratch).AsStruct()
	if arg.AssertChainTail {
		f.assertScratch, f.assertSet = Null(), false
	}
	if err != nil {
		f.setError(TypeError, "Member '%s' requested from non-struct value", arg.Data)
		return Null()
	}
	h, ok := st.Find(arg.Data)
	if !ok {
		f.setError(LookupError, "Member '%s' is not found", arg.Data)
		return Null()
	}
	return RefValue(h)
}

// fetchReturnMember takes member arg.Data out of the struct on top of the
// return stack.
func (m *Machine) fetchReturnMember(arg *Argument, f *Frame, checking bool) Value {
	var (
		base Value
		ok   bool
	)
	if checking {
		base, ok = f.peekReturn()
	} else {
		base, ok = f.popReturn()
	}
	if !ok {
		f.setError(InternalError, "Can't get object from stack.")
		return Null()
	}
	st, err := m.heap.Unpack(base).AsStruct()
	if err != nil {
		f.setError(TypeError, "Member '%s' requested from non-struct value", arg.Data)
		return Null()
	}
	h, found := st.Find(arg.Data)
	if !found {
		f.setError(LookupError, "Member '%s' is not found", arg.Data)
		return Null()
	}
	if base.IsRef() || checking {
		return RefValue(h)
	}
	v := m.heap.Copy(RefValue(h))
	m.heap.Drop(base)
	return v.WithDelivering(true)
}

// fetchValue fetches an operand and unpacks it.
func (m *Machine) fetchValue(arg *Argument, f *Frame) Value {
	return m.heap.Unpack(m.fetch(arg, f, false))
}
