package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/vgxbj/Kagami/vm"
)

// registerBuiltins adds the host functions the CLI offers scripts.
func registerBuiltins(reg *vm.Registry, out io.Writer) error {
	printFn := vm.NewNative("print", "values", vm.AutoSize, func(args *vm.Args) vm.Result {
		values, err := args.Get("values").AsArray()
		if err != nil {
			return vm.Fail(err.Error())
		}
		parts := make([]string, len(values.Elems))
		for i, v := range values.Elems {
			parts[i] = args.Heap().Unpack(v).String()
		}
		fmt.Fprintln(out, strings.Join(parts, " "))
		return vm.Ok(vm.Null())
	})
	return reg.RegisterFunction(printFn)
}
