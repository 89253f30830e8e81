package manifest

import "testing"

func TestToAlias(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"models", "models"},
		{"my-app", "my_app"},
		{"my_app", "my_app"},
		{"myApp", "my_app"},
		{"UPPER", "upper"},
		{"UI-Kit", "ui_kit"},
		{"netTools", "net_tools"},
		{"a.b", "a_b"},
		{"", ""},
	}

	for _, tc := range tests {
		got := ToAlias(tc.input)
		if got != tc.want {
			t.Errorf("ToAlias(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestIsReservedAlias(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"array", true},
		{"table", true},
		{"window", true},
		{"src", true},
		{"widgets", false},
		{"ui_kit", false},
		{"Array", false},
	}

	for _, tc := range tests {
		got := IsReservedAlias(tc.name)
		if got != tc.want {
			t.Errorf("IsReservedAlias(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
