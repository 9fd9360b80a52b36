package jsontext

import "strings"

// IsLikelyTruncated reports whether a sanitized candidate looks structurally
// incomplete: empty input, missing object delimiters, unbalanced braces, or
// a scan that ends inside a string literal. Braces inside string literals do
// not count toward the balance.
//
// This is a cheap structural pre-check, not a parse. It lets callers report
// "ran out of tokens mid-object" distinctly from a generic decode failure
// and skip a pointless decode attempt.
func IsLikelyTruncated(candidate string) bool {
	s := strings.TrimSpace(candidate)
	if s == "" {
		return true
	}
	if s[0] != '{' || s[len(s)-1] != '}' {
		return true
	}

	depth := 0
	var sc scanner
	for i := 0; i < len(s); i++ {
		b := s[i]
		if sc.advance(b) != stateNormal {
			continue
		}
		switch b {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return true
			}
		}
	}
	return depth != 0 || sc.inString()
}
