package jsontext

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "empty",
			input: "",
			want:  "",
		},
		{
			name:  "plain_object",
			input: `{"a": "b"}`,
			want:  `{"a": "b"}`,
		},
		{
			name:  "json_fence",
			input: "```json\n{\"a\": \"b\"}\n```",
			want:  `{"a": "b"}`,
		},
		{
			name:  "uppercase_fence_tag",
			input: "```JSON\n{\"a\": \"b\"}\n```",
			want:  `{"a": "b"}`,
		},
		{
			name:  "bare_fence",
			input: "```\n{\"a\": \"b\"}\n```",
			want:  `{"a": "b"}`,
		},
		{
			name:  "commentary_around_object",
			input: "Here is the result:\n{\"a\": \"b\"}\nHope that helps!",
			want:  `{"a": "b"}`,
		},
		{
			name:  "crlf_normalized",
			input: "{\"a\":\r\n\"b\"}",
			want:  "{\"a\":\n\"b\"}",
		},
		{
			name:  "nul_stripped",
			input: "{\"a\": \"b\"\x00}",
			want:  `{"a": "b"}`,
		},
		{
			name:  "trailing_comma_removed",
			input: "```json\n{\"a\": \"b\",}\n```",
			want:  `{"a": "b"}`,
		},
		{
			name:  "no_object_left_unchanged",
			input: "sorry, I cannot help with that",
			want:  "sorry, I cannot help with that",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		`{"a": "b"}`,
		`{"a": {"b": ["c", "d"]}, "e": "f"}`,
		"Some preamble\n```json\n{\"a\": \"b\",}\n```\ntrailing notes",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			t.Errorf("Sanitize not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestSanitizeOutputProperties(t *testing.T) {
	// Regardless of input, output carries no fence markers and no trailing
	// comma immediately preceding a closing bracket.
	inputs := []string{
		"```json\n{\"a\": [1,2,],}\n```",
		"``` {\"x\": 1,\n}",
		"no json here",
		"{\"a\": \"has ``` inside\",}",
	}
	for _, in := range inputs {
		got := Sanitize(in)
		if strings.Contains(got, "```") {
			t.Errorf("Sanitize(%q) = %q still contains a fence marker", in, got)
		}
		var sc scanner
		for i := 0; i < len(got); i++ {
			b := got[i]
			if sc.advance(b) != stateNormal || b != ',' {
				continue
			}
			j := i + 1
			for j < len(got) && isJSONSpace(got[j]) {
				j++
			}
			if j < len(got) && (got[j] == '}' || got[j] == ']') {
				t.Errorf("Sanitize(%q) = %q still has a trailing comma at %d", in, got, i)
			}
		}
	}
}
