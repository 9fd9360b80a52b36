package pipeline

import "net/http"

// FailureKind classifies terminal pipeline failures.
type FailureKind int

const (
	// FailureBudgetExhausted: no tokens remain before or during attempts.
	// Not retried; the caller must wait for the allowance to reset.
	FailureBudgetExhausted FailureKind = iota
	// FailureEmptyResponse: the model returned nothing usable.
	FailureEmptyResponse
	// FailureTruncatedResponse: the candidate looked structurally cut off.
	FailureTruncatedResponse
	// FailureParse: the candidate could not be decoded, even after repair.
	FailureParse
	// FailureSchema: the decoded object did not match the canvas shape.
	FailureSchema
	// FailureModelCall: the model call itself failed (transport, timeout).
	FailureModelCall
	// FailureUpstreamRejected: credentials or model access were refused.
	// Retrying with a smaller budget cannot fix this.
	FailureUpstreamRejected
)

func (k FailureKind) String() string {
	switch k {
	case FailureBudgetExhausted:
		return "budget_exhausted"
	case FailureEmptyResponse:
		return "empty_response"
	case FailureTruncatedResponse:
		return "truncated_response"
	case FailureParse:
		return "parse_failure"
	case FailureSchema:
		return "schema_violation"
	case FailureModelCall:
		return "model_call_failed"
	case FailureUpstreamRejected:
		return "upstream_rejected"
	default:
		return "unknown"
	}
}

// Failure is the terminal error a pipeline run surfaces to its caller.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return f.Message + ": " + f.Err.Error()
	}
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// HTTPStatus maps the failure onto the response status: 429 for budget
// exhaustion, 502 for everything the model got wrong.
func (f *Failure) HTTPStatus() int {
	if f.Kind == FailureBudgetExhausted {
		return http.StatusTooManyRequests
	}
	return http.StatusBadGateway
}
