package vm

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Registry: built-in functions, type method tables and constants
// ---------------------------------------------------------------------------

// Registry holds the native functions and methods visible to scripts. It is
// built before any machine runs and frozen afterwards; machines only read
// it, so one registry can serve many machines.
type Registry struct {
	functions map[string]*Function
	methods   map[string]map[string]*Function
	constants map[string]Value
	frozen    bool
}

// NewRegistry creates a registry preloaded with the built-in types.
func NewRegistry() *Registry {
	r := &Registry{
		functions: make(map[string]*Function),
		methods:   make(map[string]map[string]*Function),
		constants: make(map[string]Value),
	}
	for _, id := range []string{TypeNull, TypeInt, TypeFloat, TypeBool, TypeString, TypeWideString, TypeTable, TypeFunction} {
		r.methods[id] = make(map[string]*Function)
	}
	for name, id := range map[string]string{
		"kTypeIdNull":   TypeNull,
		"kTypeIdInt":    TypeInt,
		"kTypeIdFloat":  TypeFloat,
		"kTypeIdBool":   TypeBool,
		"kTypeIdString": TypeString,
		"kTypeIdArray":  TypeArray,
		"kTypeIdTable":  TypeTable,
		"kTypeIdStruct": TypeStruct,
	} {
		r.constants[name] = String(id)
	}
	registerArrayBuiltins(r)
	return r
}

// DefaultRegistry returns a frozen registry with only the built-ins.
func DefaultRegistry() *Registry {
	return NewRegistry().Freeze()
}

// Freeze forbids further registration and returns r.
func (r *Registry) Freeze() *Registry {
	r.frozen = true
	return r
}

// Frozen reports whether r accepts registrations.
func (r *Registry) Frozen() bool { return r.frozen }

func (r *Registry) check(what string) error {
	if r.frozen {
		return fmt.Errorf("registry is frozen: cannot register %s", what)
	}
	return nil
}

// RegisterFunction adds a global function.
func (r *Registry) RegisterFunction(fn *Function) error {
	if err := r.check(fn.ID); err != nil {
		return err
	}
	r.functions[fn.ID] = fn
	return nil
}

// RegisterMethod adds fn to the method table of typeID.
func (r *Registry) RegisterMethod(typeID string, fn *Function) error {
	if err := r.check(typeID + "." + fn.ID); err != nil {
		return err
	}
	table, ok := r.methods[typeID]
	if !ok {
		table = make(map[string]*Function)
		r.methods[typeID] = table
	}
	table[fn.ID] = fn
	return nil
}

// SetConstant exports a named constant.
func (r *Registry) SetConstant(name string, v Value) error {
	if err := r.check(name); err != nil {
		return err
	}
	r.constants[name] = v
	return nil
}

// Function returns the global function id, or nil.
func (r *Registry) Function(id string) *Function { return r.functions[id] }

// Method returns method id of typeID, or nil.
func (r *Registry) Method(typeID, id string) *Function {
	if table, ok := r.methods[typeID]; ok {
		return table[id]
	}
	return nil
}

// Methods returns the sorted method names of typeID.
func (r *Registry) Methods(typeID string) []string {
	table := r.methods[typeID]
	out := make([]string, 0, len(table))
	for name := range table {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HasType reports whether typeID has a method table.
func (r *Registry) HasType(typeID string) bool {
	_, ok := r.methods[typeID]
	return ok
}

// HasBehavior reports whether typeID provides all of methods.
func (r *Registry) HasBehavior(typeID string, methods ...string) bool {
	for _, m := range methods {
		if r.Method(typeID, m) == nil {
			return false
		}
	}
	return true
}

// Constant returns the exported constant name.
func (r *Registry) Constant(name string) (Value, bool) {
	v, ok := r.constants[name]
	return v, ok
}
