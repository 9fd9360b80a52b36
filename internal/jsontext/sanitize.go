package jsontext

import (
	"regexp"
	"strings"
)

// fencePattern matches a markdown code fence opener or closer, with an
// optional language tag and the whitespace around it.
var fencePattern = regexp.MustCompile("(?i)[ \t]*```[a-z0-9]*[ \t]*\r?\n?")

// objectPattern greedily matches the widest {...} span in the text. The
// match is only a rough cut; the truncation check and the decoder decide
// whether it is actually usable.
var objectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Sanitize converts a raw model-returned string into a canonical JSON-object
// candidate. It strips code fences, isolates the first {...} span when the
// text does not already start with an object, normalizes line endings,
// removes NUL bytes and drops trailing commas. Pure function; empty input
// yields an empty string.
//
// Sanitizing an already-clean JSON object string returns it unchanged.
func Sanitize(raw string) string {
	s := fencePattern.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)

	if !strings.HasPrefix(s, "{") {
		if span := objectPattern.FindString(s); span != "" {
			s = span
		}
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	s = RemoveTrailingCommas(s)

	return strings.TrimSpace(s)
}
