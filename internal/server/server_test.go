package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"canvasforge/internal/budget"
	"canvasforge/internal/canvas"
	"canvasforge/internal/pipeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// go.opencensus.io starts a background stats worker in a package
		// init (pulled in transitively via google.golang.org/genai); it is
		// not a goroutine leaked by the code under test.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

type stubGenerator struct {
	result *pipeline.Result
	err    error
	calls  int
}

func (g *stubGenerator) Run(_ context.Context, _, _ string) (*pipeline.Result, error) {
	g.calls++
	return g.result, g.err
}

func newTestServer(t *testing.T, gen CanvasGenerator, allowance int) (*Server, *budget.Ledger) {
	t.Helper()
	store, err := budget.NewFileStore(filepath.Join(t.TempDir(), "ledger.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ledger := budget.NewLedger(allowance, store, zap.NewNop())
	return New(gen, ledger, zap.NewNop()), ledger
}

func postCanvas(t *testing.T, s *Server, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/canvas", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func validBody() map[string]string {
	return map[string]string{
		"topic":      "urban vertical farming",
		"reportText": strings.Repeat("Detailed market research findings. ", 5),
	}
}

func TestHandleCanvas_Success(t *testing.T) {
	result := &pipeline.Result{
		Canvas:     &canvas.Canvas{KeyPartners: "farm co-ops"},
		TokensUsed: 420,
		Snapshot:   budget.Snapshot{Allowance: 10000, Used: 420, Remaining: 9580},
	}
	gen := &stubGenerator{result: result}
	s, _ := newTestServer(t, gen, 10000)

	rec := postCanvas(t, s, validBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Canvas          canvas.Canvas `json:"canvas"`
		TokensUsed      int           `json:"tokensUsed"`
		Allowance       int           `json:"allowance"`
		TokensRemaining int           `json:"tokensRemaining"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Canvas.KeyPartners != "farm co-ops" || resp.TokensUsed != 420 || resp.TokensRemaining != 9580 {
		t.Fatalf("response = %+v", resp)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestHandleCanvas_FieldValidation(t *testing.T) {
	gen := &stubGenerator{}
	s, _ := newTestServer(t, gen, 10000)

	rec := postCanvas(t, s, map[string]string{"topic": "x", "reportText": "too short"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := resp.Fields["topic"]; !ok {
		t.Error("missing topic field error")
	}
	if _, ok := resp.Fields["reportText"]; !ok {
		t.Error("missing reportText field error")
	}
	if gen.calls != 0 {
		t.Fatalf("pipeline invoked %d times on invalid input, want 0", gen.calls)
	}
}

func TestHandleCanvas_MalformedBody(t *testing.T) {
	s, _ := newTestServer(t, &stubGenerator{}, 10000)
	req := httptest.NewRequest(http.MethodPost, "/v1/canvas", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleCanvas_BudgetExhausted(t *testing.T) {
	gen := &stubGenerator{err: &pipeline.Failure{
		Kind:    pipeline.FailureBudgetExhausted,
		Message: "token allowance exhausted",
	}}
	s, ledger := newTestServer(t, gen, 100)
	ledger.RecordUsage(context.Background(), 100, "spent")

	rec := postCanvas(t, s, validBody())
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// All three budget fields must be present even when their value is zero.
	for _, key := range []string{"allowance", "used", "remaining"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("body missing %q: %s", key, rec.Body.String())
		}
	}
	if resp["allowance"] != float64(100) || resp["used"] != float64(100) || resp["remaining"] != float64(0) {
		t.Fatalf("budget fields = %v", resp)
	}
}

func TestHandleCanvas_ValidationCountsRunes(t *testing.T) {
	gen := &stubGenerator{result: &pipeline.Result{Canvas: &canvas.Canvas{}}}
	s, _ := newTestServer(t, gen, 10000)

	// 60 bytes of multibyte text but only 20 runes: still too short.
	rec := postCanvas(t, s, map[string]string{
		"topic":      "縦型農業",
		"reportText": strings.Repeat("農", 20),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a 20-rune report", rec.Code)
	}
	if gen.calls != 0 {
		t.Fatalf("pipeline invoked %d times, want 0", gen.calls)
	}

	// Exactly 50 ASCII runes passes.
	rec = postCanvas(t, s, map[string]string{
		"topic":      "縦型農業",
		"reportText": strings.Repeat("r", 50),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for a 50-rune report: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleCanvas_StructuralFailure(t *testing.T) {
	gen := &stubGenerator{err: &pipeline.Failure{
		Kind:    pipeline.FailureTruncatedResponse,
		Message: "response looked incomplete",
	}}
	s, _ := newTestServer(t, gen, 10000)

	rec := postCanvas(t, s, validBody())
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "response looked incomplete") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestHandleBudget(t *testing.T) {
	s, ledger := newTestServer(t, &stubGenerator{}, 5000)
	ledger.RecordUsage(context.Background(), 1200, "earlier run")

	req := httptest.NewRequest(http.MethodGet, "/v1/budget", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap budget.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Allowance != 5000 || snap.Used != 1200 || snap.Remaining != 3800 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t, &stubGenerator{}, 100)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
