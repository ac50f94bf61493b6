package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/allaspectsdev/genrelay/internal/catalog"
	"github.com/allaspectsdev/genrelay/internal/metrics"
	"github.com/allaspectsdev/genrelay/internal/orchestrator"
	"github.com/allaspectsdev/genrelay/internal/store"
	"github.com/allaspectsdev/genrelay/internal/telemetry"
	"github.com/allaspectsdev/genrelay/internal/tokenizer"
	"github.com/allaspectsdev/genrelay/internal/version"
)

const (
	msgUnavailable = "generation temporarily unavailable"
	msgCancelled   = "generation cancelled"
)

type generateRequest struct {
	Prompt      string   `json:"prompt"`
	TaskType    string   `json:"task_type"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxRetries  int      `json:"max_retries,omitempty"`
}

type generateResponse struct {
	ID             string `json:"id"`
	Content        string `json:"content"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	TokensIn       int    `json:"tokens_in"`
	TokensOut      int    `json:"tokens_out"`
	ProvidersTried int    `json:"providers_tried"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	task, err := catalog.ParseTaskType(body.TaskType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task_type")
		return
	}
	if body.MaxRetries < 0 {
		writeError(w, http.StatusBadRequest, "max_retries must not be negative")
		return
	}
	temp := s.temps.For(task)
	if body.Temperature != nil {
		temp = *body.Temperature
	}

	var tried int32
	req := orchestrator.Request{
		Prompt:      body.Prompt,
		TaskType:    task,
		Temperature: temp,
		MaxRetries:  body.MaxRetries,
		Observer: orchestrator.ObserverFunc(func(provider string) {
			atomic.AddInt32(&tried, 1)
		}),
	}

	s.inflight.Add(1)
	defer s.inflight.Done()
	ctx := r.Context()
	if s.genDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.genDeadline)
		defer cancel()
	}

	id := uuid.NewString()
	start := time.Now()
	s.collector.IncrementActive()
	res, genErr := s.executor.Generate(ctx, req)
	s.collector.DecrementActive()
	elapsed := time.Since(start)

	gen := &store.Generation{
		ID:             id,
		Timestamp:      start.UTC().Format(time.RFC3339),
		TaskType:       task.String(),
		Temperature:    temp,
		Prompt:         body.Prompt,
		LatencyMs:      elapsed.Milliseconds(),
		ProvidersTried: int(atomic.LoadInt32(&tried)),
	}
	outcome := metrics.OutcomeSucceeded

	if genErr != nil {
		status, msg := classify(genErr)
		if status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
			// Rejected before any provider was called; nothing to record.
			writeError(w, status, msg)
			return
		}
		gen.Status = store.GenerationFailed
		outcome = metrics.OutcomeFailed
		if errors.Is(genErr, orchestrator.ErrCancelled) {
			gen.Status = store.GenerationCancelled
			outcome = metrics.OutcomeCancelled
		}
		gen.ErrorMessage = genErr.Error()
		s.logger.Warn().Err(genErr).Str("id", id).Str("task_type", task.String()).Msg("generation failed")
		s.finish(gen, outcome)
		writeJSON(w, status, map[string]string{"error": msg, "id": id})
		return
	}

	tokensIn, tokensOut := s.tokenizer.Usage(res.Model, body.Prompt, res.Content)
	gen.Status = store.GenerationSucceeded
	gen.Provider = res.Provider
	gen.Model = res.Model
	gen.Content = res.Content
	gen.TokensIn = int64(tokensIn)
	gen.TokensOut = int64(tokensOut)
	s.finish(gen, outcome)

	writeJSON(w, http.StatusOK, generateResponse{
		ID:             id,
		Content:        res.Content,
		Provider:       res.Provider,
		Model:          res.Model,
		TokensIn:       tokensIn,
		TokensOut:      tokensOut,
		ProvidersTried: gen.ProvidersTried,
	})
}

// finish records a completed generation in metrics, the recent cache, and
// the store.
func (s *Server) finish(g *store.Generation, outcome string) {
	s.collector.RecordGeneration(metrics.Generation{
		TaskType:       g.TaskType,
		Provider:       g.Provider,
		Outcome:        outcome,
		TokensIn:       int(g.TokensIn),
		TokensOut:      int(g.TokensOut),
		CostUSD:        tokenizer.EstimateCost(g.Model, int(g.TokensIn), int(g.TokensOut)),
		Latency:        time.Duration(g.LatencyMs) * time.Millisecond,
		ProvidersTried: g.ProvidersTried,
	})
	s.recent.Add(viewFromStore(g))
	if s.store != nil {
		if err := s.store.InsertGeneration(g); err != nil {
			s.logger.Error().Err(err).Str("id", g.ID).Msg("failed to persist generation")
		}
	}
}

// classify maps an orchestrator error to an HTTP status and a public
// message. Provider error text is never included.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidTaskType):
		return http.StatusBadRequest, "invalid task_type"
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		return http.StatusBadRequest, strings.TrimPrefix(err.Error(), orchestrator.ErrInvalidRequest.Error()+": ")
	case errors.Is(err, orchestrator.ErrNoProvidersConfigured):
		return http.StatusUnprocessableEntity, "no providers configured for this task type"
	case errors.Is(err, orchestrator.ErrCancelled):
		return http.StatusRequestTimeout, msgCancelled
	case errors.Is(err, orchestrator.ErrAllProvidersFailed):
		return http.StatusServiceUnavailable, msgUnavailable
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) handleGetGeneration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if v, ok := s.recent.Get(id); ok {
		writeJSON(w, http.StatusOK, v)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotFound, "generation not found")
		return
	}
	g, err := s.store.GetGeneration(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "generation not found")
			return
		}
		s.logger.Error().Err(err).Str("id", id).Msg("failed to load generation")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	v := viewFromStore(g)
	s.recent.Add(v)
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleListGenerations(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []GenerationView{})
		return
	}
	limit := clamp(queryInt(r, "limit", 50), 1, 500)
	offset := max(queryInt(r, "offset", 0), 0)
	gens, err := s.store.ListGenerations(limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list generations")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]GenerationView, 0, len(gens))
	for _, g := range gens {
		out = append(out, viewFromStore(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Stats())
}

// handleTelemetry returns attempt statistics. By default they cover the
// in-memory log; ?source=store&since=7d aggregates the persisted history.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") != "store" {
		writeJSON(w, http.StatusOK, s.executor.Stats())
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotFound, "telemetry persistence is disabled")
		return
	}
	window, err := parseDurationParam(queryString(r, "since", "24h"))
	if err != nil || window <= 0 {
		writeError(w, http.StatusBadRequest, "invalid since parameter")
		return
	}
	stats, err := s.store.AttemptStats(time.Now().Add(-window))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to aggregate attempts")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") != "store" {
		writeJSON(w, http.StatusOK, s.executor.Log().Records())
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotFound, "telemetry persistence is disabled")
		return
	}
	limit := clamp(queryInt(r, "limit", 100), 1, 1000)
	offset := max(queryInt(r, "offset", 0), 0)
	records, err := s.store.ListAttempts(limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list attempts")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if records == nil {
		records = []telemetry.AttemptRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleCleanup(w http.ResponseWriter, _ *http.Request) {
	dropped := s.executor.Cleanup()
	writeJSON(w, http.StatusOK, map[string]int{"dropped": dropped, "retained": s.executor.Log().Len()})
}

type providerListing struct {
	catalog.Listing
	Circuits map[string]string `json:"circuits,omitempty"`
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	var circuits map[string]string
	if b := s.executor.Breakers(); b != nil {
		circuits = make(map[string]string)
		for name, st := range b.States() {
			circuits[name] = st.String()
		}
	}
	listings := s.catalog.List()
	out := make([]providerListing, 0, len(listings))
	for _, l := range listings {
		out = append(out, providerListing{Listing: l, Circuits: circuits})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetConfig returns the running configuration with secrets redacted.
func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	raw, err := json.Marshal(s.cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	redactKeys(m)
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := map[string]string{"status": "ok", "version": version.Version}
	if s.store != nil {
		if err := s.store.Ping(); err != nil {
			status["status"] = "degraded"
			status["store"] = "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		if v, err := s.store.SchemaVersion(); err == nil {
			status["schema_version"] = strconv.Itoa(v)
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// handleMetrics refreshes breaker gauges and writes Prometheus text.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if b := s.executor.Breakers(); b != nil {
		for name, st := range b.States() {
			s.collector.SetCircuitState(name, float64(st))
		}
	}
	metrics.PrometheusHandler(s.collector)(w, r)
}

// --- helpers ---

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryString(r *http.Request, key, defaultVal string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return defaultVal
}

// queryInt reads an integer query parameter with a default fallback.
func queryInt(r *http.Request, key string, defaultVal int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return defaultVal
	}
	return n
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// parseDurationParam converts a shorthand like "7d" or "24h" to a time.Duration.
func parseDurationParam(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// redactKeys walks a decoded JSON object and replaces string values whose
// key mentions a key, secret or token with "****".
func redactKeys(m map[string]any) {
	for k, v := range m {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "key") || strings.Contains(lower, "secret") || strings.Contains(lower, "token") {
			if _, ok := v.(string); ok {
				m[k] = "****"
				continue
			}
		}
		switch child := v.(type) {
		case map[string]any:
			redactKeys(child)
		case []any:
			for _, item := range child {
				if sub, ok := item.(map[string]any); ok {
					redactKeys(sub)
				}
			}
		}
	}
}
