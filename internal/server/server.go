// Package server exposes the canvas pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"canvasforge/internal/budget"
	"canvasforge/internal/pipeline"
)

// shutdownGrace bounds how long in-flight requests may run after the serve
// context is cancelled.
const shutdownGrace = 5 * time.Second

// CanvasGenerator is the pipeline surface the server needs.
type CanvasGenerator interface {
	Run(ctx context.Context, topic, report string) (*pipeline.Result, error)
}

// Server wires the HTTP API: canvas generation, budget snapshot, health.
type Server struct {
	gen    CanvasGenerator
	ledger *budget.Ledger
	log    *zap.Logger
	mux    *http.ServeMux
}

// New creates a Server with all routes registered.
func New(gen CanvasGenerator, ledger *budget.Ledger, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{gen: gen, ledger: ledger, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /v1/canvas", s.handleCanvas)
	s.mux.HandleFunc("GET /v1/budget", s.handleBudget)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler, tagging every request with an ID and
// logging its outcome.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)
	start := time.Now()

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)

	s.log.Info("request handled",
		zap.String("request_id", requestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("duration", time.Since(start)))
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// canvasRequest is the inbound generation request.
type canvasRequest struct {
	Topic      string `json:"topic"`
	ReportText string `json:"reportText"`
}

// validate returns a field-error map; an empty map means the request is
// well-formed.
func (req *canvasRequest) validate() map[string]string {
	fields := make(map[string]string)
	if utf8.RuneCountInString(strings.TrimSpace(req.Topic)) < 2 {
		fields["topic"] = "must be at least 2 characters"
	}
	if utf8.RuneCountInString(req.ReportText) < 50 {
		fields["reportText"] = "must be at least 50 characters"
	}
	return fields
}

type canvasResponse struct {
	Canvas          any `json:"canvas"`
	TokensUsed      int `json:"tokensUsed"`
	Allowance       int `json:"allowance"`
	TokensRemaining int `json:"tokensRemaining"`
}

// errorResponse is the body for request-side errors (malformed or invalid
// input).
type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// failureResponse is the body for pipeline failures. The budget fields are
// always present; zero is a meaningful value for each of them.
type failureResponse struct {
	Error     string `json:"error"`
	Allowance int    `json:"allowance"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
}

func (s *Server) handleCanvas(w http.ResponseWriter, r *http.Request) {
	var req canvasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if fields := req.validate(); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request", Fields: fields})
		return
	}

	result, err := s.gen.Run(r.Context(), strings.TrimSpace(req.Topic), req.ReportText)
	if err != nil {
		snap := s.ledger.Snapshot(r.Context())
		status := http.StatusBadGateway
		message := "canvas generation failed"
		var f *pipeline.Failure
		if errors.As(err, &f) {
			status = f.HTTPStatus()
			message = f.Message
		}
		writeJSON(w, status, failureResponse{
			Error:     message,
			Allowance: snap.Allowance,
			Used:      snap.Used,
			Remaining: snap.Remaining,
		})
		return
	}

	writeJSON(w, http.StatusOK, canvasResponse{
		Canvas:          result.Canvas,
		TokensUsed:      result.TokensUsed,
		Allowance:       result.Snapshot.Allowance,
		TokensRemaining: result.Snapshot.Remaining,
	})
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Snapshot(r.Context()))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
