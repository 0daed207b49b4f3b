package engine

import "testing"

func TestParseIntrinsic(t *testing.T) {
	tests := []struct {
		input    string
		kind     intrinsic
		resource string
	}{
		{"[resource-new]counter", intrinsicNew, "counter"},
		{"[resource-rep]counter", intrinsicRep, "counter"},
		{"[resource-drop]blob", intrinsicDrop, "blob"},
		{"[resource-drop]", intrinsicDrop, ""},
		{"greet", intrinsicNone, ""},
		{"[method]counter.get", intrinsicNone, ""},
		{"[dtor]counter", intrinsicNone, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			kind, res := parseIntrinsic(tt.input)
			if kind != tt.kind || res != tt.resource {
				t.Errorf("parseIntrinsic(%q) = (%d, %q), want (%d, %q)", tt.input, kind, res, tt.kind, tt.resource)
			}
		})
	}
}
