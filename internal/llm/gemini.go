package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini-backed Generator.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// GeminiClient implements Generator using the Google GenAI SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini client against the public Gemini API.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Generate runs one bounded generation call. Token usage is reported even
// when the downstream content turns out to be unusable.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: int32(req.MaxOutputTokens),
	}
	if len(req.ResponseFields) > 0 {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = stringObjectSchema(req.ResponseFields)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, classifyGenaiError(err)
	}
	return fromGenaiResponse(resp), nil
}

// stringObjectSchema builds the expected-output hint: an object with the
// given required string fields and nothing else.
func stringObjectSchema(fields []string) *genai.Schema {
	props := make(map[string]*genai.Schema, len(fields))
	for _, f := range fields {
		props[f] = &genai.Schema{Type: genai.TypeString}
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   append([]string(nil), fields...),
	}
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) *Response {
	out := &Response{}
	if resp == nil {
		return out
	}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	out.Text = resp.Text()

	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			switch {
			case part.FunctionCall != nil:
				out.Fragments = append(out.Fragments, FunctionCallFragment{
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				})
			case part.FunctionResponse != nil:
				out.Fragments = append(out.Fragments, FunctionResponseFragment{
					Name:     part.FunctionResponse.Name,
					Response: part.FunctionResponse.Response,
				})
			case part.Text != "":
				out.Fragments = append(out.Fragments, TextFragment{Text: part.Text})
			}
		}
	}
	return out
}

// classifyGenaiError maps credential and access failures onto
// ErrUpstreamRejected so the pipeline knows not to retry them.
func classifyGenaiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrUpstreamRejected, apiErr.Message)
		}
	}
	return fmt.Errorf("gemini generate: %w", err)
}
