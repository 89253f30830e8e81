package vm

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// promote returns the result tag of a binary operation on plain operands:
// any string gives a string, else any float a float, else any int an int,
// and two bools stay bool.
func promote(a, b Tag) Tag {
	switch {
	case a == TagString || b == TagString:
		return TagString
	case a == TagFloat || b == TagFloat:
		return TagFloat
	case a == TagInt || b == TagInt:
		return TagInt
	}
	return TagBool
}

func toInt(v Value) int64 {
	switch v.tag {
	case TagInt, TagBool:
		return v.num
	case TagFloat:
		return int64(v.fl)
	}
	return 0
}

func toFloat(v Value) float64 {
	switch v.tag {
	case TagInt, TagBool:
		return float64(v.num)
	case TagFloat:
		return v.fl
	}
	return 0
}

// truthy converts a plain value to bool: numbers are true above zero,
// strings when non-empty.
func truthy(v Value) bool {
	switch v.tag {
	case TagInt, TagBool:
		return v.num > 0
	case TagFloat:
		return v.fl > 0
	case TagString:
		return v.str != ""
	}
	return false
}

func (m *Machine) cmdOperator(ins *Instruction, f *Frame) {
	op := ins.Header.Op
	if op == KwNot {
		if !argCount(ins, f, 1) {
			return
		}
		v := m.fetchValue(&ins.Args[0], f)
		if f.failed() {
			return
		}
		if !v.IsPlain() {
			f.setError(TypeError, "Unsupported operand type for not - %s", v.TypeID())
			return
		}
		m.pushResult(f, Bool(!truthy(v)))
		return
	}
	if !argCount(ins, f, 2) {
		return
	}
	rhsRaw := m.fetch(&ins.Args[1], f, false)
	lhsRaw := m.fetch(&ins.Args[0], f, false)
	if f.failed() {
		return
	}
	lhs, rhs := m.heap.Unpack(lhsRaw), m.heap.Unpack(rhsRaw)

	var (
		res Value
		err *Error
	)
	if lhs.IsPlain() && rhs.IsPlain() {
		res, err = binaryPlain(op, lhs, rhs)
	} else {
		res, err = m.binaryObject(op, lhsRaw, rhsRaw, f)
	}
	if !lhsRaw.IsRef() {
		m.heap.Drop(lhsRaw)
	}
	if !rhsRaw.IsRef() {
		m.heap.Drop(rhsRaw)
	}
	if err != nil {
		f.setErr(err)
		return
	}
	m.pushResult(f, res)
}

// binaryObject handles operands that are not both plain. Equality on a
// non-plain left operand dispatches to its compare method; math is an
// error and the remaining logic operators yield null.
func (m *Machine) binaryObject(op Keyword, lhsRaw, rhsRaw Value, f *Frame) (Value, *Error) {
	lhs, rhs := m.heap.Unpack(lhsRaw), m.heap.Unpack(rhsRaw)
	switch op {
	case KwAdd, KwSub, KwMul, KwDiv:
		return Null(), newError(TypeError, "Unsupported operand type for %s - %s, %s", op, lhs.TypeID(), rhs.TypeID())
	case KwEquals, KwNotEqual:
		var eq bool
		switch {
		case lhs.IsNull() || rhs.IsNull():
			eq = lhs.IsNull() && rhs.IsNull()
		case lhs.IsPlain():
			eq = false
		case m.findMethod(lhsRaw, "compare") != nil:
			r, err := m.Invoke(lhsRaw, "compare", map[string]Value{"rhs": rhsRaw})
			if err != nil {
				return Null(), asError(err)
			}
			eq = truthy(m.heap.Unpack(r))
		default:
			eq = lhs.Tag() == rhs.Tag() && lhs.obj != nil && lhs.obj == rhs.obj
		}
		if op == KwNotEqual {
			eq = !eq
		}
		return Bool(eq), nil
	}
	return Null(), nil
}

func binaryPlain(op Keyword, lhs, rhs Value) (Value, *Error) {
	kind := promote(lhs.tag, rhs.tag)
	switch op {
	case KwAdd, KwSub, KwMul, KwDiv:
		return mathOp(op, kind, lhs, rhs)
	}
	return logicOp(op, kind, lhs, rhs), nil
}

func mathOp(op Keyword, kind Tag, lhs, rhs Value) (Value, *Error) {
	switch kind {
	case TagString:
		if op != KwAdd {
			return Null(), nil
		}
		return String(lhs.String() + rhs.String()), nil
	case TagFloat:
		a, b := toFloat(lhs), toFloat(rhs)
		switch op {
		case KwAdd:
			return Float(a + b), nil
		case KwSub:
			return Float(a - b), nil
		case KwMul:
			return Float(a * b), nil
		}
		return Float(a / b), nil
	case TagInt:
		a, b := toInt(lhs), toInt(rhs)
		switch op {
		case KwAdd:
			return Int(a + b), nil
		case KwSub:
			return Int(a - b), nil
		case KwMul:
			return Int(a * b), nil
		}
		if b == 0 {
			return Null(), newError(TypeError, msgDividedByZero)
		}
		return Int(a / b), nil
	}
	a, b := lhs.num, rhs.num
	switch op {
	case KwAdd:
		return Bool(a+b > 0), nil
	case KwSub:
		return Bool(a-b != 0), nil
	case KwMul:
		return Bool(a*b > 0), nil
	}
	if b == 0 {
		return Null(), newError(TypeError, msgDividedByZero)
	}
	return Bool(a/b > 0), nil
}

func logicOp(op Keyword, kind Tag, lhs, rhs Value) Value {
	if kind == TagString {
		switch op {
		case KwEquals:
			return Bool(lhs.String() == rhs.String())
		case KwNotEqual:
			return Bool(lhs.String() != rhs.String())
		}
		return Null()
	}
	switch op {
	case KwAnd:
		return Bool(truthy(lhs) && truthy(rhs))
	case KwOr:
		return Bool(truthy(lhs) || truthy(rhs))
	}

	var c int
	if kind == TagFloat {
		a, b := toFloat(lhs), toFloat(rhs)
		switch {
		case a < b:
			c = -1
		case a > b:
			c = 1
		}
	} else {
		a, b := toInt(lhs), toInt(rhs)
		switch {
		case a < b:
			c = -1
		case a > b:
			c = 1
		}
	}
	switch op {
	case KwEquals:
		return Bool(c == 0)
	case KwNotEqual:
		return Bool(c != 0)
	case KwLess:
		return Bool(c < 0)
	case KwLessOrEqual:
		return Bool(c <= 0)
	case KwGreater:
		return Bool(c > 0)
	case KwGreaterOrEqual:
		return Bool(c >= 0)
	}
	return Null()
}
