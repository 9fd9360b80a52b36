// Package pipeline orchestrates the degrading attempt sequence that turns a
// topic and report into a validated canvas, billing every consumed token to
// the ledger whether or not an attempt succeeds.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"

	"canvasforge/internal/budget"
	"canvasforge/internal/canvas"
	"canvasforge/internal/jsontext"
	"canvasforge/internal/llm"
)

// AttemptConfig describes one pass at obtaining a valid canvas.
type AttemptConfig struct {
	Label           string
	Compact         bool
	MaxOutputTokens int
	Temperature     float32
}

// DefaultAttempts is the fixed escalation ladder: a full-size primary pass,
// then a compact fallback with a materially smaller ceiling and a tighter
// prompt. Escalation is strictly one-directional; no configuration is ever
// retried, which bounds worst-case spend per request to the sum of the two
// ceilings clamped by the remaining allowance.
func DefaultAttempts() []AttemptConfig {
	return []AttemptConfig{
		{Label: "primary", Compact: false, MaxOutputTokens: 8192, Temperature: 0.7},
		{Label: "compact", Compact: true, MaxOutputTokens: 2048, Temperature: 0.4},
	}
}

// Result is a successful pipeline run.
type Result struct {
	Canvas     *canvas.Canvas
	TokensUsed int
	Snapshot   budget.Snapshot
}

// Scheduler runs the attempt sequence. Each incoming request gets its own
// Run call; the ledger is the only shared state.
type Scheduler struct {
	gen      llm.Generator
	ledger   *budget.Ledger
	attempts []AttemptConfig
	log      *zap.Logger
}

// NewScheduler wires a scheduler. A nil or empty attempts slice falls back
// to DefaultAttempts.
func NewScheduler(gen llm.Generator, ledger *budget.Ledger, attempts []AttemptConfig, log *zap.Logger) *Scheduler {
	if len(attempts) == 0 {
		attempts = DefaultAttempts()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{gen: gen, ledger: ledger, attempts: attempts, log: log}
}

// Run executes the attempt ladder until the first validated success, budget
// exhaustion, or the final attempt fails. Tokens consumed by failed attempts
// are committed to the ledger before any error is returned; spend accounting
// is never skipped because of a downstream decoding failure.
func (s *Scheduler) Run(ctx context.Context, topic, report string) (*Result, error) {
	snap := s.ledger.Snapshot(ctx)
	if snap.Remaining <= 0 {
		s.log.Info("budget exhausted before any attempt", zap.Int("used", snap.Used))
		return nil, &Failure{Kind: FailureBudgetExhausted, Message: "token allowance exhausted"}
	}
	available := snap.Remaining

	total := 0
	var last *Failure

	for i, cfg := range s.attempts {
		finalAttempt := i == len(s.attempts)-1

		capped := cfg.MaxOutputTokens
		if left := available - total; left < capped {
			capped = left
		}
		if capped <= 0 {
			// The previous attempt exhausted the visible budget; skipping is
			// not a hard stop.
			s.log.Debug("skipping attempt, no visible budget left", zap.String("attempt", cfg.Label))
			continue
		}

		resp, err := s.gen.Generate(ctx, llm.Request{
			Prompt:          canvas.BuildPrompt(topic, report, cfg.Compact),
			Temperature:     cfg.Temperature,
			MaxOutputTokens: capped,
			ResponseFields:  canvas.RequiredFields,
		})
		if resp != nil {
			// Billed regardless of what happens downstream: a charged but
			// unusable response still cost real tokens.
			total += resp.TokensUsed
		}
		if err != nil {
			if errors.Is(err, llm.ErrUpstreamRejected) {
				s.log.Error("upstream rejected the request", zap.Error(err))
				return nil, s.commitFailure(ctx, total, &Failure{
					Kind:    FailureUpstreamRejected,
					Message: "model provider rejected the request",
					Err:     err,
				})
			}
			s.log.Warn("model call failed", zap.String("attempt", cfg.Label), zap.Error(err))
			last = &Failure{Kind: FailureModelCall, Message: "model call failed", Err: err}
			if finalAttempt {
				break
			}
			continue
		}

		payload := llm.ExtractPayload(resp)
		if payload == nil {
			s.log.Warn("model returned nothing", zap.String("attempt", cfg.Label))
			last = &Failure{Kind: FailureEmptyResponse, Message: "model returned nothing"}
			continue
		}

		obj, failure := s.decodePayload(payload)
		if failure != nil {
			s.log.Warn("attempt produced unusable payload",
				zap.String("attempt", cfg.Label),
				zap.String("kind", failure.Kind.String()))
			last = failure
			if finalAttempt {
				break
			}
			continue
		}

		result, violations := canvas.FromObject(obj)
		if len(violations) > 0 {
			s.log.Warn("schema validation failed",
				zap.String("attempt", cfg.Label),
				zap.Strings("violations", violations))
			last = &Failure{Kind: FailureSchema, Message: "response did not match the expected shape"}
			if finalAttempt {
				break
			}
			continue
		}

		newSnap := s.ledger.RecordUsage(ctx, float64(total), fmt.Sprintf("canvas %s", cfg.Label))
		s.log.Info("canvas generated",
			zap.String("attempt", cfg.Label),
			zap.Int("tokens", total),
			zap.Int("remaining", newSnap.Remaining))
		return &Result{Canvas: result, TokensUsed: total, Snapshot: newSnap}, nil
	}

	if last == nil {
		last = &Failure{Kind: FailureBudgetExhausted, Message: "token allowance exhausted"}
	}
	return nil, s.commitFailure(ctx, total, last)
}

// decodePayload takes an extracted payload to a parsed object. String
// payloads are sanitized, checked for truncation, decoded, and as a last
// resort run through JSON repair before counting as a parse failure.
func (s *Scheduler) decodePayload(payload *llm.Payload) (map[string]any, *Failure) {
	if payload.IsObject() {
		return payload.Object, nil
	}

	candidate := jsontext.Sanitize(payload.Text)
	if jsontext.IsLikelyTruncated(candidate) {
		return nil, &Failure{Kind: FailureTruncatedResponse, Message: "response looked incomplete"}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(candidate)
		if repairErr != nil {
			return nil, &Failure{Kind: FailureParse, Message: "could not decode model response", Err: err}
		}
		if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
			return nil, &Failure{Kind: FailureParse, Message: "could not decode model response", Err: err}
		}
	}
	return obj, nil
}

// commitFailure bills whatever the failed run consumed, then returns the
// failure unchanged.
func (s *Scheduler) commitFailure(ctx context.Context, total int, f *Failure) *Failure {
	if total > 0 {
		s.ledger.RecordUsage(ctx, float64(total), "canvas failed")
	}
	return f
}
