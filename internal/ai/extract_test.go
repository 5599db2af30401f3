package ai

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{`Sure! Here is the result: {"category_id": "work", "confidence": 0.9} Hope that helps.`, `{"category_id": "work", "confidence": 0.9}`},
		{`prefix {"nested": {"x": [1, 2]}} suffix`, `{"nested": {"x": [1, 2]}}`},
		{`{"s": "braces in \"strings\" like } are fine"}`, `{"s": "braces in \"strings\" like } are fine"}`},
	}
	for _, tt := range tests {
		if got := ExtractJSON(tt.in); got != tt.want {
			t.Errorf("ExtractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractJSONMalformedReturnsInput(t *testing.T) {
	tests := []string{
		"no json here",
		`{"unterminated": true`,
		"}{",
		"",
	}
	for _, in := range tests {
		if got := ExtractJSON(in); got != in {
			t.Errorf("ExtractJSON(%q) = %q, want input unchanged", in, got)
		}
	}
}
