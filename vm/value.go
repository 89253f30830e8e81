package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Value: tagged script value
// ---------------------------------------------------------------------------

// Tag identifies the payload kind carried by a Value.
type Tag uint8

const (
	TagNull Tag = iota
	TagInt
	TagFloat
	TagBool
	TagString
	TagWideString
	TagArray
	TagTable
	TagStruct
	TagFunction
	TagHandle
)

var tagNames = [...]string{
	TagNull:       "null",
	TagInt:        "int",
	TagFloat:      "float",
	TagBool:       "bool",
	TagString:     "string",
	TagWideString: "wstring",
	TagArray:      "array",
	TagTable:      "table",
	TagStruct:     "struct",
	TagFunction:   "function",
	TagHandle:     "handle",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "tag(" + strconv.Itoa(int(t)) + ")"
}

// Mode is the ownership mode of a Value.
type Mode uint8

const (
	// Owned values carry their payload directly.
	Owned Mode = iota
	// Reference values carry only a Handle into the Heap.
	Reference
	// ExternallyOwned values wrap an *External payload with a disposer.
	ExternallyOwned
)

// Type ids of the built-in types.
const (
	TypeNull            = "null"
	TypeInt             = "int"
	TypeFloat           = "float"
	TypeBool            = "bool"
	TypeString          = "string"
	TypeWideString      = "wstring"
	TypeArray           = "array"
	TypeTable           = "table"
	TypeStruct          = "struct"
	TypeFunction        = "function"
	TypeFunctionPointer = "function_pointer"
	TypeObjectPointer   = "object_pointer"
	TypeArrayIterator   = "array_iterator"
)

// Value is a script value. The zero Value is Null.
//
// Values are small and passed by value. Aggregates (Array, Table, Struct)
// hold a pointer to their payload; exactly one owner (a heap cell or a
// return-stack temporary) is responsible for releasing it.
type Value struct {
	tag        Tag
	mode       Mode
	typeID     string
	ref        Handle
	num        int64
	fl         float64
	str        string
	wstr       []rune
	obj        any
	delivering bool
	container  bool
}

// Null returns the null value.
func Null() Value { return Value{} }

// Int returns an integer value.
func Int(i int64) Value { return Value{tag: TagInt, num: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{tag: TagFloat, fl: f} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{tag: TagBool}
	if b {
		v.num = 1
	}
	return v
}

// String returns a string value.
func String(s string) Value { return Value{tag: TagString, str: s} }

// WideString returns a wide (rune) string value.
func WideString(s string) Value { return Value{tag: TagWideString, wstr: []rune(s)} }

// ArrayOf returns an array value holding elems.
func ArrayOf(elems ...Value) Value {
	return Value{tag: TagArray, obj: &Array{Elems: elems}}
}

// TableOf returns a value wrapping t.
func TableOf(t *Table) Value {
	if t == nil {
		t = NewTable()
	}
	return Value{tag: TagTable, obj: t}
}

// FunctionValue wraps a function descriptor.
func FunctionValue(fn *Function) Value {
	return Value{tag: TagFunction, obj: fn}
}

// StructValue wraps a struct payload. typeID names the template; instance
// marks a constructed struct/module object (the container flag).
func StructValue(s *Struct, typeID string, instance bool) Value {
	return Value{tag: TagStruct, obj: s, typeID: typeID, container: instance}
}

// HandleValue wraps an opaque host payload owned by the script.
func HandleValue(payload any, typeID string) Value {
	return Value{tag: TagHandle, obj: payload, typeID: typeID}
}

// RefValue returns a Reference-mode value aliasing the heap cell h.
func RefValue(h Handle) Value {
	return Value{mode: Reference, ref: h}
}

// Pack wraps a raw Go value. An empty typeID selects the default type id
// for the payload.
func Pack(raw any, typeID string) Value {
	var v Value
	switch x := raw.(type) {
	case nil:
		v = Null()
	case Value:
		v = x
	case int:
		v = Int(int64(x))
	case int32:
		v = Int(int64(x))
	case int64:
		v = Int(x)
	case float32:
		v = Float(float64(x))
	case float64:
		v = Float(x)
	case bool:
		v = Bool(x)
	case string:
		v = String(x)
	case []rune:
		v = Value{tag: TagWideString, wstr: x}
	case *Array:
		v = Value{tag: TagArray, obj: x}
	case []Value:
		v = ArrayOf(x...)
	case *Table:
		v = TableOf(x)
	case *Struct:
		v = StructValue(x, TypeStruct, false)
	case *Function:
		v = FunctionValue(x)
	case *External:
		x.retain()
		v = Value{tag: TagHandle, mode: ExternallyOwned, obj: x}
	default:
		v = HandleValue(x, "")
	}
	if typeID != "" {
		v.typeID = typeID
	}
	return v
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Tag returns the payload tag. Reference values report TagNull; unpack
// them through the Heap first.
func (v Value) Tag() Tag { return v.tag }

// Mode returns the ownership mode.
func (v Value) Mode() Mode { return v.mode }

// Handle returns the heap handle of a Reference value.
func (v Value) Handle() Handle { return v.ref }

// TypeID returns the type id used for method dispatch.
func (v Value) TypeID() string {
	if v.typeID != "" {
		return v.typeID
	}
	return v.tag.String()
}

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.mode != Reference && v.tag == TagNull }

// IsRef reports whether v is a Reference-mode value.
func (v Value) IsRef() bool { return v.mode == Reference }

// IsPlain reports whether v is one of int, float, bool or string.
func (v Value) IsPlain() bool {
	if v.mode == Reference || (v.typeID != "" && v.typeID != v.tag.String()) {
		return false
	}
	switch v.tag {
	case TagInt, TagFloat, TagBool, TagString:
		return true
	}
	return false
}

// IsContainer reports whether v is a struct/module instance.
func (v Value) IsContainer() bool { return v.container }

// Delivering reports whether v is an rvalue that may be moved on bind.
func (v Value) Delivering() bool { return v.delivering }

// WithDelivering returns a copy of v with the delivering flag set to d.
func (v Value) WithDelivering(d bool) Value {
	v.delivering = d
	return v
}

// Deliver moves the payload out of *v: the returned copy is marked as
// delivering and *v becomes Null.
func (v *Value) Deliver() Value {
	out := *v
	out.delivering = true
	*v = Null()
	return out
}

// Payload returns the raw payload of handle, struct, array, table and
// function values.
func (v Value) Payload() any {
	if ext, ok := v.obj.(*External); ok {
		return ext.Payload()
	}
	return v.obj
}

// ---------------------------------------------------------------------------
// Casts
// ---------------------------------------------------------------------------

func mismatch(want string, v Value) *Error {
	return newError(TypeError, "type mismatch: want %s, have %s", want, v.TypeID())
}

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, error) {
	if v.tag != TagInt || v.mode == Reference {
		return 0, mismatch(TypeInt, v)
	}
	return v.num, nil
}

// AsFloat returns the float payload.
func (v Value) AsFloat() (float64, error) {
	if v.tag != TagFloat || v.mode == Reference {
		return 0, mismatch(TypeFloat, v)
	}
	return v.fl, nil
}

// AsBool returns the bool payload.
func (v Value) AsBool() (bool, error) {
	if v.tag != TagBool || v.mode == Reference {
		return false, mismatch(TypeBool, v)
	}
	return v.num != 0, nil
}

// AsString returns the string payload.
func (v Value) AsString() (string, error) {
	if v.tag != TagString || v.mode == Reference {
		return "", mismatch(TypeString, v)
	}
	return v.str, nil
}

// AsWideString returns the wide string payload.
func (v Value) AsWideString() ([]rune, error) {
	if v.tag != TagWideString || v.mode == Reference {
		return nil, mismatch(TypeWideString, v)
	}
	return v.wstr, nil
}

// AsArray returns the array payload.
func (v Value) AsArray() (*Array, error) {
	if a, ok := v.obj.(*Array); ok && v.tag == TagArray {
		return a, nil
	}
	return nil, mismatch(TypeArray, v)
}

// AsTable returns the table payload.
func (v Value) AsTable() (*Table, error) {
	if t, ok := v.obj.(*Table); ok && v.tag == TagTable {
		return t, nil
	}
	return nil, mismatch(TypeTable, v)
}

// AsStruct returns the struct payload.
func (v Value) AsStruct() (*Struct, error) {
	if s, ok := v.obj.(*Struct); ok && v.tag == TagStruct {
		return s, nil
	}
	return nil, mismatch(TypeStruct, v)
}

// AsFunction returns the function payload.
func (v Value) AsFunction() (*Function, error) {
	if fn, ok := v.obj.(*Function); ok && v.tag == TagFunction {
		return fn, nil
	}
	return nil, mismatch(TypeFunction, v)
}

// AsExternal returns the external payload of an ExternallyOwned value.
func (v Value) AsExternal() (*External, error) {
	if ext, ok := v.obj.(*External); ok && v.mode == ExternallyOwned {
		return ext, nil
	}
	return nil, mismatch("external", v)
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

// formatFloat mirrors the six-digit fixed formatting scripts expect when a
// float is converted to a string.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

func (v Value) String() string {
	if v.mode == Reference {
		return fmt.Sprintf("<ref %d>", v.ref)
	}
	switch v.tag {
	case TagNull:
		return "null"
	case TagInt:
		return strconv.FormatInt(v.num, 10)
	case TagFloat:
		return formatFloat(v.fl)
	case TagBool:
		if v.num != 0 {
			return "true"
		}
		return "false"
	case TagString:
		return v.str
	case TagWideString:
		return string(v.wstr)
	case TagArray:
		a := v.obj.(*Array)
		parts := make([]string, len(a.Elems))
		for i, e := range a.Elems {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TagTable:
		return fmt.Sprintf("<table %d>", v.obj.(*Table).Len())
	case TagStruct:
		return "<" + v.TypeID() + ">"
	case TagFunction:
		return "<function " + v.obj.(*Function).ID + ">"
	}
	return "<" + v.TypeID() + ">"
}

// ---------------------------------------------------------------------------
// Plain value helpers
// ---------------------------------------------------------------------------

// plainEqual compares two plain values of the same tag.
func plainEqual(a, b Value) bool {
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case TagNull:
		return true
	case TagInt, TagBool:
		return a.num == b.num
	case TagFloat:
		return a.fl == b.fl
	case TagString:
		return a.str == b.str
	case TagWideString:
		return string(a.wstr) == string(b.wstr)
	}
	return false
}

// lexicalType classifies the text of a string for conversion.
func lexicalType(s string) Tag {
	if s == "true" || s == "false" {
		return TagBool
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return TagInt
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return TagFloat
	}
	return TagString
}

// isIdentifier reports whether s can name a binding.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
