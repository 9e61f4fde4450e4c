package engine

import "testing"

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```", "[1,2]"},
		{"surrounding space", "  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.in); got != tt.want {
				t.Errorf("StripFences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSalvageJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"object in prose", `Here is the result: {"a": 1} hope it helps`, `{"a": 1}`, true},
		{"array in prose", `Sure! [1, 2, 3] is the list.`, `[1, 2, 3]`, true},
		{"nested object", `x {"a": {"b": [1]}} y`, `{"a": {"b": [1]}}`, true},
		{"brace inside string", `{"a": "close } brace"}`, `{"a": "close } brace"}`, true},
		{"escaped quote in string", `{"a": "say \"hi\" {now}"}`, `{"a": "say \"hi\" {now}"}`, true},
		{"unbalanced", `{"a": 1`, "", false},
		{"no json at all", `nothing here`, "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SalvageJSON(tt.in)
			if ok != tt.ok {
				t.Fatalf("SalvageJSON() ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("SalvageJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}
