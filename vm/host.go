package vm

import "strings"

// ---------------------------------------------------------------------------
// Host collaborators
// ---------------------------------------------------------------------------

// ScriptLoader resolves the path of a `using` command to a block.
type ScriptLoader interface {
	LoadScript(path string) (*Block, error)
}

// ConfigLoader resolves layout and configuration files. Window handles it
// creates are ordinary values dispatched through the registry.
type ConfigLoader interface {
	// LoadWindow builds the windows described by path and binds them as
	// globals of m.
	LoadWindow(m *Machine, path string) error
	// LoadTable returns the table described by path, for window.
	LoadTable(m *Machine, path string, window Value) (Value, error)
	// ApplyLayout applies the layout at path to window.
	ApplyLayout(m *Machine, path string, window Value) error
}

// ScriptLoaderFunc adapts a function to ScriptLoader.
type ScriptLoaderFunc func(path string) (*Block, error)

// LoadScript implements ScriptLoader.
func (fn ScriptLoaderFunc) LoadScript(path string) (*Block, error) { return fn(path) }

func isLayoutFile(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".toml")
}

// cmdUsing loads every listed file. Scripts run once per machine family on
// a sub-machine sharing the heap and the outermost layer; layout files go
// to the config loader.
func (m *Machine) cmdUsing(ins *Instruction, f *Frame) {
	paths := make([]string, len(ins.Args))
	for i := len(ins.Args) - 1; i >= 0; i-- {
		v := m.fetchValue(&ins.Args[i], f)
		if f.failed() {
			return
		}
		s, err := v.AsString()
		if err != nil {
			f.setError(TypeError, "Invalid path type - %s", v.TypeID())
			return
		}
		paths[i] = s
	}
	for _, path := range paths {
		if err := m.using(path); err != nil {
			f.setErr(err)
			return
		}
	}
}

func (m *Machine) using(path string) *Error {
	if isLayoutFile(path) {
		if m.config == nil {
			return newError(LoadError, "No layout loader for %s", path)
		}
		if err := m.config.LoadWindow(m, path); err != nil {
			return newError(LoadError, "Cannot load layout %s: %s", path, err)
		}
		return nil
	}

	if m.included[path] {
		return nil
	}
	if m.loader == nil {
		return newError(LoadError, "No script loader for %s", path)
	}
	block, err := m.loader.LoadScript(path)
	if err != nil {
		return newError(LoadError, "Cannot load script %s: %s", path, err)
	}
	m.included[path] = true
	m.log.Infof("machine %s: using %s", m.id, path)

	sub := m.newSubMachine(block)
	if err := sub.Run(m.ctx); err != nil {
		return newError(LoadError, "Script %s failed: %s", path, err)
	}
	return nil
}

// windowArgs fetches the (path, window) operand pair of using_table and
// apply_layout. The window is optional.
func (m *Machine) windowArgs(ins *Instruction, f *Frame) (string, Value, bool) {
	if !argCount(ins, f, 1) {
		return "", Null(), false
	}
	window := Null()
	if len(ins.Args) > 1 {
		window = m.fetch(&ins.Args[1], f, false)
	}
	pv := m.fetchValue(&ins.Args[0], f)
	if f.failed() {
		return "", Null(), false
	}
	path, err := pv.AsString()
	if err != nil {
		f.setError(TypeError, "Invalid path type - %s", pv.TypeID())
		return "", Null(), false
	}
	if m.config == nil {
		f.setError(LoadError, "No layout loader for %s", path)
		return "", Null(), false
	}
	return path, window, true
}

func (m *Machine) cmdUsingTable(ins *Instruction, f *Frame) {
	path, window, ok := m.windowArgs(ins, f)
	if !ok {
		return
	}
	v, err := m.config.LoadTable(m, path, window)
	if err != nil {
		f.setError(LoadError, "Cannot load table %s: %s", path, err)
		return
	}
	m.pushResult(f, v)
}

func (m *Machine) cmdApplyLayout(ins *Instruction, f *Frame) {
	path, window, ok := m.windowArgs(ins, f)
	if !ok {
		return
	}
	if err := m.config.ApplyLayout(m, path, window); err != nil {
		f.setError(LoadError, "Cannot apply layout %s: %s", path, err)
	}
}

// ---------------------------------------------------------------------------
// Host embedding
// ---------------------------------------------------------------------------

// PushObject binds v to id in the innermost layer of the running scope.
// It returns false when id is not a valid identifier.
func (m *Machine) PushObject(id string, v Value) bool {
	if !isIdentifier(id) {
		return false
	}
	m.scopes.Create(id, v)
	return true
}

// PushError raises a fatal error from host code on the running frame. The
// dispatch loop reports it after the current instruction.
func (m *Machine) PushError(msg string) {
	e := newError(InvocationError, "%s", msg)
	if f := m.top(); f != nil {
		f.setErr(e)
		return
	}
	m.err = e
}
