package vm

import "fmt"

// ---------------------------------------------------------------------------
// Built-in container types
// ---------------------------------------------------------------------------

// arrayIterator walks an array. When the array lives in a heap cell the
// iterator follows the cell, so elements pushed during a loop are seen.
type arrayIterator struct {
	cell  Handle
	arr   *Array
	index int
}

func (it *arrayIterator) array(heap *Heap) *Array {
	if it.cell != 0 {
		a, err := heap.Load(it.cell).AsArray()
		if err != nil {
			return &Array{}
		}
		return a
	}
	return it.arr
}

func newArrayIterator(args *Args, index int) Value {
	it := &arrayIterator{index: index}
	if hd, ok := args.Heap().Resolve(args.Raw(SelfBinding)); ok {
		it.cell = hd
	} else {
		it.arr, _ = args.Self().AsArray()
	}
	return HandleValue(it, TypeArrayIterator)
}

func selfArray(args *Args) (*Array, Result, bool) {
	a, err := args.Self().AsArray()
	if err != nil {
		return nil, Fail(err.Error()), false
	}
	return a, Result{}, true
}

func selfIterator(args *Args) (*arrayIterator, Result, bool) {
	it, ok := args.Self().Payload().(*arrayIterator)
	if !ok {
		return nil, Fail("self is not an array iterator"), false
	}
	return it, Result{}, true
}

func registerArrayBuiltins(r *Registry) {
	array := []*Function{
		NewNative("size", "", Fixed, func(args *Args) Result {
			a, res, ok := selfArray(args)
			if !ok {
				return res
			}
			return Ok(Int(int64(a.Len())))
		}),
		NewNative("empty", "", Fixed, func(args *Args) Result {
			a, res, ok := selfArray(args)
			if !ok {
				return res
			}
			return Ok(Bool(a.Len() == 0))
		}),
		NewNative("head", "", Fixed, func(args *Args) Result {
			if _, res, ok := selfArray(args); !ok {
				return res
			}
			return Ok(newArrayIterator(args, 0))
		}),
		NewNative("tail", "", Fixed, func(args *Args) Result {
			a, res, ok := selfArray(args)
			if !ok {
				return res
			}
			return Ok(newArrayIterator(args, a.Len()))
		}),
		NewNative("at", "index", Fixed, func(args *Args) Result {
			a, res, ok := selfArray(args)
			if !ok {
				return res
			}
			i, err := args.Get("index").AsInt()
			if err != nil {
				return Fail(err.Error())
			}
			if i < 0 || int(i) >= a.Len() {
				return Warn(Null(), fmt.Sprintf("Index %d is out of range (size %d)", i, a.Len()))
			}
			return Ok(args.Heap().Copy(a.At(int(i))))
		}),
		NewNative("push", "value", Fixed, func(args *Args) Result {
			a, res, ok := selfArray(args)
			if !ok {
				return res
			}
			a.Elems = append(a.Elems, args.Heap().Copy(args.Raw("value")))
			return Ok(Null())
		}),
	}
	iterator := []*Function{
		NewNative("step_forward", "", Fixed, func(args *Args) Result {
			it, res, ok := selfIterator(args)
			if !ok {
				return res
			}
			it.index++
			return Ok(Null())
		}),
		NewNative("compare", "rhs", Fixed, func(args *Args) Result {
			it, res, ok := selfIterator(args)
			if !ok {
				return res
			}
			rhs, ok := args.Get("rhs").Payload().(*arrayIterator)
			if !ok {
				return Ok(Bool(false))
			}
			return Ok(Bool(it.index == rhs.index && it.array(args.Heap()) == rhs.array(args.Heap())))
		}),
		NewNative("obj", "", Fixed, func(args *Args) Result {
			it, res, ok := selfIterator(args)
			if !ok {
				return res
			}
			a := it.array(args.Heap())
			if it.index < 0 || it.index >= a.Len() {
				return Ok(Null())
			}
			return Ok(args.Heap().Copy(a.At(it.index)))
		}),
	}
	table := []*Function{
		NewNative("size", "", Fixed, func(args *Args) Result {
			t, err := args.Self().AsTable()
			if err != nil {
				return Fail(err.Error())
			}
			return Ok(Int(int64(t.Len())))
		}),
		NewNative("get", "key", Fixed, func(args *Args) Result {
			t, err := args.Self().AsTable()
			if err != nil {
				return Fail(err.Error())
			}
			v, ok := t.Get(args.Get("key"))
			if !ok {
				return Ok(Null())
			}
			return Ok(args.Heap().Copy(v))
		}),
		NewNative("set", "key|value", Fixed, func(args *Args) Result {
			t, err := args.Self().AsTable()
			if err != nil {
				return Fail(err.Error())
			}
			key := args.Get("key")
			if _, ok := HashValue(key); !ok {
				return Fail(fmt.Sprintf("Unsupported table key type - %s", key.TypeID()))
			}
			old, had := t.Get(key)
			t.Set(key, args.Heap().Copy(args.Raw("value")))
			if had {
				args.Heap().Drop(old)
			}
			return Ok(Null())
		}),
		NewNative("keys", "", Fixed, func(args *Args) Result {
			t, err := args.Self().AsTable()
			if err != nil {
				return Fail(err.Error())
			}
			return Ok(ArrayOf(t.Keys()...))
		}),
	}

	for _, id := range []string{TypeArray, TypeArrayIterator, TypeTable} {
		if r.methods[id] == nil {
			r.methods[id] = make(map[string]*Function)
		}
	}
	for _, fn := range array {
		r.methods[TypeArray][fn.ID] = fn
	}
	for _, fn := range iterator {
		r.methods[TypeArrayIterator][fn.ID] = fn
	}
	for _, fn := range table {
		r.methods[TypeTable][fn.ID] = fn
	}
}
