// Package canvas defines the Business Model Canvas shape the pipeline must
// obtain from the model, and validates candidate objects against it.
package canvas

import (
	"fmt"
	"strings"
)

// Canvas holds the nine canvas blocks. Every field is mandatory; an empty
// string is a valid (if useless) block, a missing or non-string field is not.
type Canvas struct {
	KeyPartners           string `json:"keyPartners"`
	KeyActivities         string `json:"keyActivities"`
	KeyResources          string `json:"keyResources"`
	ValuePropositions     string `json:"valuePropositions"`
	CustomerRelationships string `json:"customerRelationships"`
	Channels              string `json:"channels"`
	CustomerSegments      string `json:"customerSegments"`
	CostStructure         string `json:"costStructure"`
	RevenueStreams        string `json:"revenueStreams"`
}

// RequiredFields lists the nine block keys, in canvas reading order.
var RequiredFields = []string{
	"keyPartners",
	"keyActivities",
	"keyResources",
	"valuePropositions",
	"customerRelationships",
	"channels",
	"customerSegments",
	"costStructure",
	"revenueStreams",
}

// FromObject validates a parsed object against the canvas shape. All nine
// fields must be present and hold strings; values are trimmed. On failure
// it returns a field-level violation list for diagnostics; callers log the
// list but surface a single generic message.
func FromObject(obj map[string]any) (*Canvas, []string) {
	var violations []string
	values := make(map[string]string, len(RequiredFields))

	for _, field := range RequiredFields {
		raw, ok := obj[field]
		if !ok {
			violations = append(violations, fmt.Sprintf("%s: missing", field))
			continue
		}
		s, ok := raw.(string)
		if !ok {
			violations = append(violations, fmt.Sprintf("%s: expected string, got %T", field, raw))
			continue
		}
		values[field] = strings.TrimSpace(s)
	}
	if len(violations) > 0 {
		return nil, violations
	}

	return &Canvas{
		KeyPartners:           values["keyPartners"],
		KeyActivities:         values["keyActivities"],
		KeyResources:          values["keyResources"],
		ValuePropositions:     values["valuePropositions"],
		CustomerRelationships: values["customerRelationships"],
		Channels:              values["channels"],
		CustomerSegments:      values["customerSegments"],
		CostStructure:         values["costStructure"],
		RevenueStreams:        values["revenueStreams"],
	}, nil
}
