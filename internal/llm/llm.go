// Package llm abstracts the generative model behind a narrow Generator
// interface and extracts usable payloads from heterogeneous responses.
package llm

import (
	"context"
	"errors"
)

// ErrUpstreamRejected marks a call the provider refused outright (bad
// credentials, no model access). Retrying with a smaller budget cannot fix
// it, so callers surface it without escalation.
var ErrUpstreamRejected = errors.New("upstream rejected the request")

// Request is one bounded generation call.
type Request struct {
	Prompt          string
	Temperature     float32
	MaxOutputTokens int
	// ResponseFields, when set, hints the provider that the output must be a
	// JSON object with exactly these required string fields.
	ResponseFields []string
}

// Generator is the opaque model call: prompt plus generation options in,
// raw fragments plus a token-usage count out.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
