package template

import "testing"

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "hello", "hello"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"float whole", float64(3), "3"},
		{"float fraction", 3.5, "3.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coerce(tt.in); got != tt.want {
				t.Errorf("coerce(%v): got %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBagFromJSON(t *testing.T) {
	raw := map[string]any{
		"name":  "Amy",
		"count": float64(2), // JSON numbers decode as float64
		"done":  true,
		"items": []any{
			map[string]any{"label": "A"},
			map[string]any{"label": "B"},
		},
		"tags": []any{"x", "y"}, // array of non-objects stays scalar
	}

	bag := BagFromJSON(raw)

	if got := Render("{{name}} {{count}} {{done}}", bag); got != "Amy 2 true" {
		t.Errorf("scalar conversion: got %q", got)
	}
	if got := Render("{{#each items}}{{label}}{{/each}}", bag); got != "AB" {
		t.Errorf("items conversion: got %q", got)
	}
	if got := Render("{{#each tags}}x{{/each}}", bag); got != "" {
		t.Errorf("non-object array should not iterate, got %q", got)
	}
}

func TestBagFromJSON_Nil(t *testing.T) {
	bag := BagFromJSON(nil)
	if bag == nil {
		t.Fatal("expected non-nil bag for nil input")
	}
	if got := Render("{{a}}", bag); got != "{{a}}" {
		t.Errorf("got %q", got)
	}
}
