// Package server exposes the scoring pipeline over HTTP: probability
// scoring, policy decisions, health and hot reload of the artifact.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"riskgate/internal/engine"
	"riskgate/internal/frame"
	"riskgate/internal/metrics"
	"riskgate/internal/policy"
	"riskgate/internal/store"
)

// Record is one applicant as loosely typed JSON. Numeric fields arrive
// as numbers, categorical fields as strings.
type Record map[string]any

// ScoreRequest asks for probabilities over a batch of records.
type ScoreRequest struct {
	Records   []Record `json:"records"`
	RequestID string   `json:"request_id,omitempty"`
}

// ScoreResponse carries the calibrated probabilities in request order.
type ScoreResponse struct {
	Probabilities []float64 `json:"probabilities"`
	RequestID     string    `json:"request_id,omitempty"`
	Latency       float64   `json:"latency_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// DecideRequest asks for a terminal decision on a single record.
type DecideRequest struct {
	Record    Record `json:"record"`
	RequestID string `json:"request_id,omitempty"`
}

// DecideResponse is the decision plus its supporting numbers.
type DecideResponse struct {
	Probability float64         `json:"probability"`
	Decision    policy.Decision `json:"decision"`
	Uncertainty float64         `json:"uncertainty"`
	CostRisk    float64         `json:"cost_risk"`
	RequestID   string          `json:"request_id,omitempty"`
	Latency     float64         `json:"latency_ms"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Broadcaster receives every audited decision, e.g. to fan out to
// dashboard clients. May be nil.
type Broadcaster interface {
	Publish(rec store.DecisionRecord)
}

// Server serves scoring requests against a hot-swappable engine.
type Server struct {
	engine       atomic.Pointer[engine.Engine]
	policy       *policy.Policy
	store        *store.Store
	metrics      *metrics.Wrapper
	broadcaster  Broadcaster
	artifactPath string
	server       *http.Server
	loadedAt     atomic.Int64
}

// New builds the server. A nil initial engine is allowed: the server
// starts in a not-ready state and scoring returns 503 until a reload
// succeeds. Store and broadcaster may be nil.
func New(eng *engine.Engine, pol *policy.Policy, st *store.Store, mw *metrics.Wrapper, bc Broadcaster, artifactPath string, port int) *Server {
	s := &Server{
		policy:       pol,
		store:        st,
		metrics:      mw,
		broadcaster:  bc,
		artifactPath: artifactPath,
	}
	if eng != nil {
		s.engine.Store(eng)
		s.loadedAt.Store(time.Now().UnixNano())
		mw.SetEngineReady(true)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/predict", s.handlePredict)
	mux.HandleFunc("/decide", s.handleDecide)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/reload", s.handleReload)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests and blocks until shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting scoring server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the route multiplexer, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Engine returns the currently installed engine, nil when not ready.
func (s *Server) Engine() *engine.Engine {
	return s.engine.Load()
}

// Reload loads a fresh engine from the artifact path off the request
// path and swaps it in atomically.
func (s *Server) Reload() error {
	eng, err := engine.Load(s.artifactPath)
	if err != nil {
		s.metrics.ReloadFailed()
		return err
	}
	s.engine.Store(eng)
	s.loadedAt.Store(time.Now().UnixNano())
	s.metrics.ReloadSucceeded()
	s.metrics.SetEngineReady(true)
	log.Info().Str("path", s.artifactPath).Msg("engine reloaded")
	return nil
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	eng := s.engine.Load()
	if eng == nil {
		http.Error(w, "model not ready", http.StatusServiceUnavailable)
		return
	}

	start := time.Now()
	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Records) == 0 {
		http.Error(w, "records cannot be empty", http.StatusBadRequest)
		return
	}

	batch, err := buildFrame(req.Records)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid records: %v", err), http.StatusBadRequest)
		return
	}
	probs, err := eng.PredictCalibrated(batch)
	if err != nil {
		s.metrics.PredictionError()
		log.Error().Err(err).Msg("scoring failed")
		http.Error(w, fmt.Sprintf("scoring failed: %v", err), http.StatusInternalServerError)
		return
	}

	latency := time.Since(start)
	for _, p := range probs {
		s.metrics.ObservePrediction(p, latency.Seconds())
	}

	writeJSON(w, http.StatusOK, ScoreResponse{
		Probabilities: probs,
		RequestID:     req.RequestID,
		Latency:       float64(latency.Milliseconds()),
		Timestamp:     time.Now(),
	})
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	eng := s.engine.Load()
	if eng == nil {
		http.Error(w, "model not ready", http.StatusServiceUnavailable)
		return
	}

	start := time.Now()
	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Record) == 0 {
		http.Error(w, "record cannot be empty", http.StatusBadRequest)
		return
	}

	batch, err := buildFrame([]Record{req.Record})
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid record: %v", err), http.StatusBadRequest)
		return
	}
	probs, err := eng.PredictCalibrated(batch)
	if err != nil {
		s.metrics.PredictionError()
		log.Error().Err(err).Msg("scoring failed")
		http.Error(w, fmt.Sprintf("scoring failed: %v", err), http.StatusInternalServerError)
		return
	}

	prob := policy.Sanitize(probs[0])
	decision := s.policy.Decide(prob)
	uncertainty := policy.Uncertainty(prob)
	costRisk := policy.CostRisk(prob)
	latency := time.Since(start)

	s.metrics.ObservePrediction(prob, latency.Seconds())
	s.metrics.ObserveDecision(decision, uncertainty)

	rec := store.DecisionRecord{
		RequestID:   req.RequestID,
		Timestamp:   time.Now(),
		Probability: prob,
		Decision:    decision,
		Uncertainty: uncertainty,
		CostRisk:    costRisk,
	}
	if s.store != nil {
		if err := s.store.StoreDecision(rec); err != nil {
			log.Warn().Err(err).Msg("failed to audit decision")
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.Publish(rec)
	}

	writeJSON(w, http.StatusOK, DecideResponse{
		Probability: prob,
		Decision:    decision,
		Uncertainty: uncertainty,
		CostRisk:    costRisk,
		RequestID:   req.RequestID,
		Latency:     float64(latency.Milliseconds()),
		Timestamp:   rec.Timestamp,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	eng := s.engine.Load()
	status := http.StatusOK
	ready := eng != nil
	if !ready {
		status = http.StatusServiceUnavailable
	}
	var ageSeconds float64
	if ready {
		ageSeconds = time.Since(time.Unix(0, s.loadedAt.Load())).Seconds()
		s.metrics.SetModelAge(ageSeconds)
	}
	writeJSON(w, status, map[string]any{
		"ready":             ready,
		"calibrated":        ready && eng.HasCalibrator(),
		"model_age_seconds": ageSeconds,
		"timestamp":         time.Now(),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.Reload(); err != nil {
		log.Error().Err(err).Msg("engine reload failed")
		http.Error(w, fmt.Sprintf("reload failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reloaded": true, "timestamp": time.Now()})
}

// buildFrame converts JSON records into a frame. A field is numeric when
// every record supplies it as a number; string values make it
// categorical. Missing fields stay missing and are imputed downstream.
func buildFrame(records []Record) (*frame.Frame, error) {
	names := make([]string, 0)
	seen := make(map[string]bool)
	numeric := make(map[string]bool)
	for _, rec := range records {
		for name, v := range rec {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
				numeric[name] = true
			}
			switch v.(type) {
			case float64, nil:
			case string:
				numeric[name] = false
			default:
				return nil, fmt.Errorf("field %q has unsupported type %T", name, v)
			}
		}
	}

	f := frame.New(len(records))
	for _, name := range names {
		if numeric[name] {
			vals := make([]float64, len(records))
			for i, rec := range records {
				if v, ok := rec[name].(float64); ok {
					vals[i] = v
				} else {
					vals[i] = math.NaN()
				}
			}
			f.AddNumeric(name, vals)
		} else {
			vals := make([]string, len(records))
			for i, rec := range records {
				if v, ok := rec[name].(string); ok {
					vals[i] = v
				}
			}
			f.AddCategorical(name, vals)
		}
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
