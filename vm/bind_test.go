package vm

import (
	"errors"
	"testing"
)

func TestBindArguments(t *testing.T) {
	fixed := NewNative("f", "a|b", Fixed, nil)
	fill := NewNative("f", "a|b|c", AutoFill, nil).WithLimit(2)
	size := NewNative("f", "a|rest", AutoSize, nil)
	size3 := NewNative("f", "a|b|rest", AutoSize, nil)

	tests := []struct {
		name    string
		fn      *Function
		args    []Value
		want    map[string]string
		wantErr string
	}{
		{"fixed exact", fixed, []Value{Int(1), Int(2)}, map[string]string{"a": "1", "b": "2"}, ""},
		{"fixed too many", fixed, []Value{Int(1), Int(2), Int(3)}, nil, "Too many arguments"},
		{"fixed too few", fixed, []Value{Int(1)}, nil, "Minimum argument amount is 2"},
		{"auto fill missing tail", fill, []Value{Int(1), Int(2)}, map[string]string{"a": "1", "b": "2", "c": "null"}, ""},
		{"auto fill full", fill, []Value{Int(1), Int(2), Int(3)}, map[string]string{"a": "1", "b": "2", "c": "3"}, ""},
		{"auto fill below limit", fill, []Value{Int(1)}, nil, "Minimum argument amount is 2"},
		{"auto fill too many", fill, []Value{Int(1), Int(2), Int(3), Int(4)}, nil, "Too many arguments"},
		{"auto size collects", size, []Value{Int(1), Int(2), Int(3)}, map[string]string{"a": "1", "rest": "[2, 3]"}, ""},
		{"auto size empty tail", size, []Value{Int(1)}, map[string]string{"a": "1", "rest": "[]"}, ""},
		{"auto size too few", size3, []Value{Int(1)}, nil, "Minimum argument amount is 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BindArguments(tt.fn, tt.args)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("BindArguments() succeeded, want %q", tt.wantErr)
				}
				if !errors.Is(err, &Error{Kind: ArgumentError, Message: tt.wantErr}) {
					t.Errorf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("BindArguments() = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("bound %d names, want %d", len(got), len(tt.want))
			}
			for name, want := range tt.want {
				v, ok := got[name]
				if !ok {
					t.Errorf("%s is not bound", name)
					continue
				}
				if v.String() != want {
					t.Errorf("%s = %s, want %s", name, v, want)
				}
				if v.Delivering() {
					t.Errorf("%s is still delivering", name)
				}
			}
		})
	}
}

func TestSplitParams(t *testing.T) {
	if got := SplitParams(""); got != nil {
		t.Errorf("SplitParams(\"\") = %v, want nil", got)
	}
	got := SplitParams("a|b|c")
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("SplitParams(a|b|c) = %v", got)
	}
}
