package canvas

import (
	"fmt"
	"strings"
)

// compactReportLimit bounds how much of the report text the compact prompt
// carries, keeping the fallback attempt cheap.
const compactReportLimit = 4000

// BuildPrompt renders the generation prompt for one attempt. The compact
// variant carries tighter constraints and a clipped report so a smaller
// output ceiling is enough to finish the object.
func BuildPrompt(topic, report string, compact bool) string {
	if compact {
		return buildCompactPrompt(topic, report)
	}

	var b strings.Builder
	b.WriteString("You are a business analyst. Based on the topic and research report below, ")
	b.WriteString("produce a Business Model Canvas as a single JSON object.\n\n")
	b.WriteString("The object must contain exactly these nine string fields and nothing else:\n")
	for _, field := range RequiredFields {
		fmt.Fprintf(&b, "- %s\n", field)
	}
	b.WriteString("\nEach field holds a few short paragraphs or bullet lines as plain text. ")
	b.WriteString("Respond with the JSON object only, no commentary and no code fences.\n\n")
	fmt.Fprintf(&b, "Topic: %s\n\nResearch report:\n%s\n", topic, report)
	return b.String()
}

func buildCompactPrompt(topic, report string) string {
	if len(report) > compactReportLimit {
		report = report[:compactReportLimit]
	}

	var b strings.Builder
	b.WriteString("Return ONLY a minified JSON object with exactly these nine string fields: ")
	b.WriteString(strings.Join(RequiredFields, ", "))
	b.WriteString(". At most two short sentences per field. ")
	b.WriteString("No markdown, no code fences, no extra keys.\n\n")
	fmt.Fprintf(&b, "Topic: %s\n\nReport (may be clipped):\n%s\n", topic, report)
	return b.String()
}
