package layout

import (
	"fmt"

	"github.com/vgxbj/Kagami/vm"
)

func selfWindow(args *vm.Args) (*Window, vm.Result, bool) {
	w, ok := args.Self().Payload().(*Window)
	if !ok {
		return nil, vm.Fail("self is not a window"), false
	}
	return w, vm.Result{}, true
}

// Register adds the window methods to reg:
//
//	element(id)      table of the element's properties, null if missing
//	elements()       array of element ids
//	id()             window id
//	title()          window title
//	set_title(text)  replace the title
//	size()           [width, height]
func Register(reg *vm.Registry) error {
	methods := []*vm.Function{
		vm.NewNative("element", "id", vm.Fixed, func(args *vm.Args) vm.Result {
			w, res, ok := selfWindow(args)
			if !ok {
				return res
			}
			id, err := args.Get("id").AsString()
			if err != nil {
				return vm.Fail(err.Error())
			}
			e, found := w.Element(id)
			if !found {
				return vm.Warn(vm.Null(), fmt.Sprintf("Window %s has no element %s", w.ID, id))
			}
			return vm.Ok(e.table())
		}),
		vm.NewNative("elements", "", vm.Fixed, func(args *vm.Args) vm.Result {
			w, res, ok := selfWindow(args)
			if !ok {
				return res
			}
			ids := make([]vm.Value, len(w.Elements))
			for i, e := range w.Elements {
				ids[i] = vm.String(e.ID)
			}
			return vm.Ok(vm.ArrayOf(ids...))
		}),
		vm.NewNative("id", "", vm.Fixed, func(args *vm.Args) vm.Result {
			w, res, ok := selfWindow(args)
			if !ok {
				return res
			}
			return vm.Ok(vm.String(w.ID))
		}),
		vm.NewNative("title", "", vm.Fixed, func(args *vm.Args) vm.Result {
			w, res, ok := selfWindow(args)
			if !ok {
				return res
			}
			return vm.Ok(vm.String(w.Title))
		}),
		vm.NewNative("set_title", "text", vm.Fixed, func(args *vm.Args) vm.Result {
			w, res, ok := selfWindow(args)
			if !ok {
				return res
			}
			text := args.Get("text")
			if text.Tag() != vm.TagString && text.Tag() != vm.TagWideString {
				return vm.Fail(fmt.Sprintf("Invalid title type - %s", text.TypeID()))
			}
			w.Title = text.String()
			return vm.Ok(vm.Null())
		}),
		vm.NewNative("size", "", vm.Fixed, func(args *vm.Args) vm.Result {
			w, res, ok := selfWindow(args)
			if !ok {
				return res
			}
			return vm.Ok(vm.ArrayOf(vm.Int(w.Width), vm.Int(w.Height)))
		}),
	}
	for _, fn := range methods {
		if err := reg.RegisterMethod(TypeWindow, fn); err != nil {
			return err
		}
	}
	return nil
}
