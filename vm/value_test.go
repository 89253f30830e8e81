package vm

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Value construction and casts
// ---------------------------------------------------------------------------

func TestValueTypeIDs(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Null(), TypeNull},
		{Int(1), TypeInt},
		{Float(1), TypeFloat},
		{Bool(true), TypeBool},
		{String("s"), TypeString},
		{WideString("w"), TypeWideString},
		{ArrayOf(), TypeArray},
		{TableOf(nil), TypeTable},
		{FunctionValue(NewNative("f", "", Fixed, nil)), TypeFunction},
		{StructValue(newStruct(), "Point", true), "Point"},
		{HandleValue(struct{}{}, "window"), "window"},
	}
	for _, tt := range tests {
		if got := tt.v.TypeID(); got != tt.want {
			t.Errorf("TypeID(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestValueIsPlain(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{Int(1), true},
		{Float(1), true},
		{Bool(false), true},
		{String(""), true},
		{Pack(1, TypeInt), true},
		{Pack(1, "Celsius"), false},
		{Null(), false},
		{WideString("x"), false},
		{ArrayOf(), false},
		{RefValue(1), false},
	}
	for _, tt := range tests {
		if got := tt.v.IsPlain(); got != tt.want {
			t.Errorf("IsPlain(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestValueCastMismatch(t *testing.T) {
	_, err := String("x").AsInt()
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("AsInt(string) err = %v, want a type mismatch", err)
	}
	if want := "TypeError: type mismatch: want int, have string"; err.Error() != want {
		t.Errorf("err = %q, want %q", err, want)
	}
	if _, err := Int(1).AsArray(); err == nil {
		t.Error("AsArray(int) succeeded")
	}
	if _, err := RefValue(3).AsInt(); err == nil {
		t.Error("AsInt(reference) succeeded")
	}
}

func TestValuePack(t *testing.T) {
	tests := []struct {
		raw  any
		tag  Tag
		text string
	}{
		{nil, TagNull, "null"},
		{7, TagInt, "7"},
		{int64(8), TagInt, "8"},
		{2.5, TagFloat, "2.500000"},
		{true, TagBool, "true"},
		{"s", TagString, "s"},
		{[]Value{Int(1)}, TagArray, "[1]"},
		{[]rune("wide"), TagWideString, "wide"},
	}
	for _, tt := range tests {
		v := Pack(tt.raw, "")
		if v.Tag() != tt.tag {
			t.Errorf("Pack(%v).Tag() = %v, want %v", tt.raw, v.Tag(), tt.tag)
		}
		if v.String() != tt.text {
			t.Errorf("Pack(%v) = %q, want %q", tt.raw, v.String(), tt.text)
		}
	}
}

func TestValueDeliver(t *testing.T) {
	v := String("moved")
	out := v.Deliver()
	if !out.Delivering() {
		t.Error("delivered value is not marked delivering")
	}
	if out.String() != "moved" {
		t.Errorf("delivered %v, want moved", out)
	}
	if !v.IsNull() {
		t.Errorf("source = %v after Deliver, want null", v)
	}
}

func TestLexicalType(t *testing.T) {
	tests := map[string]Tag{
		"12":    TagInt,
		"-3":    TagInt,
		"1.5":   TagFloat,
		"true":  TagBool,
		"false": TagBool,
		"abc":   TagString,
		"":      TagString,
	}
	for s, want := range tests {
		if got := lexicalType(s); got != want {
			t.Errorf("lexicalType(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestIsIdentifier(t *testing.T) {
	for _, s := range []string{"x", "_a", "camelCase", "a1"} {
		if !isIdentifier(s) {
			t.Errorf("isIdentifier(%q) = false", s)
		}
	}
	for _, s := range []string{"", "1a", "a-b", "a b"} {
		if isIdentifier(s) {
			t.Errorf("isIdentifier(%q) = true", s)
		}
	}
}
