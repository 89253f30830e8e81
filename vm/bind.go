package vm

// ---------------------------------------------------------------------------
// Parameter binding
// ---------------------------------------------------------------------------

// BindArguments binds positional args to fn's parameters according to its
// pattern. Arguments are expected to be owned copies; their delivering
// flag is cleared.
func BindArguments(fn *Function, args []Value) (map[string]Value, error) {
	out := make(map[string]Value, len(fn.Params))
	for i := range args {
		args[i].delivering = false
	}

	switch fn.Pattern {
	case AutoSize:
		return bindAutoSize(fn, args, out)
	case AutoFill:
		return bindAutoFill(fn, args, out)
	}
	return bindFixed(fn, args, out)
}

func bindFixed(fn *Function, args []Value, out map[string]Value) (map[string]Value, error) {
	n := len(fn.Params)
	switch {
	case len(args) > n:
		return nil, newError(ArgumentError, "Too many arguments")
	case len(args) < n:
		return nil, newError(ArgumentError, "Minimum argument amount is %d", n)
	}
	for i, p := range fn.Params {
		out[p] = args[i]
	}
	return out, nil
}

func bindAutoFill(fn *Function, args []Value, out map[string]Value) (map[string]Value, error) {
	n := len(fn.Params)
	switch {
	case len(args) > n:
		return nil, newError(ArgumentError, "Too many arguments")
	case len(args) < fn.Limit:
		return nil, newError(ArgumentError, "Minimum argument amount is %d", fn.Limit)
	}
	for i, p := range fn.Params {
		if i < len(args) {
			out[p] = args[i]
		} else {
			out[p] = Null()
		}
	}
	return out, nil
}

func bindAutoSize(fn *Function, args []Value, out map[string]Value) (map[string]Value, error) {
	n := len(fn.Params)
	if n == 0 {
		if len(args) > 0 {
			return nil, newError(ArgumentError, "Too many arguments")
		}
		return out, nil
	}
	if len(args) < n-1 {
		return nil, newError(ArgumentError, "Minimum argument amount is %d", n-1)
	}
	for i := 0; i < n-1; i++ {
		out[fn.Params[i]] = args[i]
	}
	tail := make([]Value, 0, len(args)-(n-1))
	tail = append(tail, args[n-1:]...)
	out[fn.Params[n-1]] = ArrayOf(tail...)
	return out, nil
}
