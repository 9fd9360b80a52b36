package llm

import "strings"

// Fragment is one piece of model output. Exactly one concrete kind applies
// to each fragment; each kind carries only its own fields.
type Fragment interface {
	isFragment()
}

// TextFragment is a plain text part.
type TextFragment struct {
	Text string
}

// FunctionCallFragment is a tool-call part with its arguments.
type FunctionCallFragment struct {
	Name string
	Args map[string]any
}

// FunctionResponseFragment is a tool-response part.
type FunctionResponseFragment struct {
	Name     string
	Response map[string]any
}

func (TextFragment) isFragment()             {}
func (FunctionCallFragment) isFragment()     {}
func (FunctionResponseFragment) isFragment() {}

// Response is the model's reply to one Generate call.
type Response struct {
	// Text is the provider's consolidated text output, possibly empty.
	Text string
	// Fragments are the raw parts in arrival order.
	Fragments []Fragment
	// TokensUsed is the total token count the provider billed for this
	// call, success or not.
	TokensUsed int
}

// Payload is the raw material extracted from a response: either a string
// still to be sanitized and decoded, or an already-structured object.
type Payload struct {
	Text   string
	Object map[string]any
}

// IsObject reports whether the payload skipped the text stage entirely.
func (p *Payload) IsObject() bool {
	return p.Object != nil
}

// ExtractPayload selects the first usable payload from a response, in
// priority order: the consolidated text, then function-call arguments, then
// every fragment in arrival order. A nil result means the model returned
// nothing usable, which is an expected outcome rather than an error.
func ExtractPayload(resp *Response) *Payload {
	if resp == nil {
		return nil
	}
	if text := strings.TrimSpace(resp.Text); text != "" {
		return &Payload{Text: text}
	}

	for _, frag := range resp.Fragments {
		if fc, ok := frag.(FunctionCallFragment); ok {
			if p := unwrapEntry(fc.Args); p != nil {
				return p
			}
		}
	}

	for _, frag := range resp.Fragments {
		switch f := frag.(type) {
		case TextFragment:
			if text := strings.TrimSpace(f.Text); text != "" {
				return &Payload{Text: text}
			}
		case FunctionCallFragment:
			if p := unwrapEntry(f.Args); p != nil {
				return p
			}
		case FunctionResponseFragment:
			if p := unwrapEntry(f.Response); p != nil {
				return p
			}
		}
	}
	return nil
}

// unwrapEntry unwraps a function-call or function-response entry. An entry
// carrying a nested "json" string yields that string trimmed; a nested
// object yields the object as-is; otherwise the whole entry is the payload
// when it has at least one key.
func unwrapEntry(entry map[string]any) *Payload {
	if len(entry) == 0 {
		return nil
	}
	if nested, ok := entry["json"]; ok {
		switch v := nested.(type) {
		case string:
			if text := strings.TrimSpace(v); text != "" {
				return &Payload{Text: text}
			}
			return nil
		case map[string]any:
			return &Payload{Object: v}
		}
	}
	return &Payload{Object: entry}
}
