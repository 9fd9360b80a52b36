// Package jsontext normalizes raw model output into a decodable JSON object
// candidate and classifies candidates that were cut off mid-object.
//
// All scanning in this package is string-literal aware: braces and commas
// inside quoted strings are never counted or altered, including strings that
// contain escaped quotes.
package jsontext

// scanState is the lexer state for a single-pass scan over a JSON candidate.
type scanState int

const (
	stateNormal scanState = iota
	stateInString
	stateEscaped
)

// scanner tracks whether the current byte position is inside a JSON string
// literal. Escape sequences consume exactly one byte.
//
// It is safe to iterate bytes for the ASCII delimiters (quote, backslash,
// braces, comma) because UTF-8 guarantees ASCII bytes never appear inside a
// multi-byte sequence.
type scanner struct {
	state scanState
}

// advance consumes one byte and returns the state the byte was read in.
// A byte read in stateNormal is structural; anything else belongs to a
// string literal.
func (s *scanner) advance(b byte) scanState {
	switch s.state {
	case stateEscaped:
		s.state = stateInString
		return stateEscaped
	case stateInString:
		switch b {
		case '\\':
			s.state = stateEscaped
		case '"':
			s.state = stateNormal
		}
		return stateInString
	default:
		if b == '"' {
			s.state = stateInString
		}
		return stateNormal
	}
}

// inString reports whether the scan ended inside an unterminated string
// literal.
func (s *scanner) inString() bool {
	return s.state != stateNormal
}

func isJSONSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// RemoveTrailingCommas drops every comma that is directly followed, after
// optional whitespace, by a closing brace or bracket. The skipped whitespace
// is dropped with the comma. Commas inside string literals are untouched.
func RemoveTrailingCommas(s string) string {
	var out []byte
	out = make([]byte, 0, len(s))
	var sc scanner
	for i := 0; i < len(s); i++ {
		b := s[i]
		if sc.advance(b) == stateNormal && b == ',' {
			j := i + 1
			for j < len(s) && isJSONSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				i = j - 1
				continue
			}
		}
		out = append(out, b)
	}
	return string(out)
}
