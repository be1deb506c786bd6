// Package handlers provides HTTP handlers for portfolio analysis.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/analysis"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/prices"
	"github.com/aristath/frontier/internal/modules/returns"
	"github.com/aristath/frontier/internal/modules/simulation"
)

// streamWriteTimeout bounds a single websocket message write.
const streamWriteTimeout = 5 * time.Second

// Handler handles analysis HTTP requests
type Handler struct {
	service          *analysis.Service
	progressInterval time.Duration
	log              zerolog.Logger
}

// NewHandler creates a new analysis handler
func NewHandler(service *analysis.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service:          service,
		progressInterval: 200 * time.Millisecond,
		log:              log.With().Str("handler", "analysis").Logger(),
	}
}

// StreamMessage is one frame of the frontier stream.
type StreamMessage struct {
	Type    string                   `json:"type"`
	Done    int                      `json:"done,omitempty"`
	Total   int                      `json:"total,omitempty"`
	Summary *domain.FrontierSummary  `json:"summary,omitempty"`
	Samples *domain.PortfolioSamples `json:"samples,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

// HandleRun handles POST /api/analysis/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	report, err := h.service.Run(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "Failed to run analysis")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(report.Run))
}

// HandleListRuns handles GET /api/analysis/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	runs, err := h.service.ListRuns(limit)
	if err != nil {
		h.writeError(w, err, "Failed to list analysis runs")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"runs":  runs,
			"count": len(runs),
		},
		"metadata": metadata(),
	})
}

// HandleGetRun handles GET /api/analysis/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.service.GetRun(id)
	if err != nil {
		h.writeError(w, err, "Failed to get analysis run")
		return
	}
	if run == nil {
		http.Error(w, "analysis run not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(run))
}

// HandleStats handles POST /api/analysis/stats
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	req = h.service.Resolve(req)
	stats, err := h.service.Stats(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "Failed to calculate portfolio statistics")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"tickers": req.Tickers,
		"weights": req.Weights,
		"stats":   stats,
	}))
}

// HandleReturns handles POST /api/analysis/returns
func (h *Handler) HandleReturns(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	rets, err := h.service.Returns(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "Failed to calculate returns")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(rets))
}

// HandleFrontierStream handles GET /api/analysis/frontier/stream.
// The request is read from query parameters; the socket receives progress frames,
// then one summary frame with the samples, or an error frame.
func (h *Handler) HandleFrontierStream(w http.ResponseWriter, r *http.Request) {
	req, err := parseStreamQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to accept websocket")
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())

	throttle := rate.Sometimes{Interval: h.progressInterval}
	progress := func(done, total int) {
		if done == total {
			return
		}
		throttle.Do(func() {
			if err := h.send(ctx, conn, StreamMessage{Type: "progress", Done: done, Total: total}); err != nil {
				h.log.Debug().Err(err).Msg("Dropped progress frame")
			}
		})
	}

	samples, summary, err := h.service.Frontier(ctx, req, progress)
	if err != nil {
		h.log.Warn().Err(err).Msg("Frontier stream failed")
		_ = h.send(ctx, conn, StreamMessage{Type: "error", Error: err.Error()})
		conn.Close(websocket.StatusInternalError, "frontier generation failed")
		return
	}

	final := StreamMessage{
		Type:    "summary",
		Done:    samples.Len(),
		Total:   samples.Len(),
		Summary: &summary,
	}
	if r.URL.Query().Get("include_samples") == "true" {
		final.Samples = samples
	}
	if err := h.send(ctx, conn, final); err != nil {
		h.log.Warn().Err(err).Msg("Failed to send frontier summary")
		return
	}

	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg StreamMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}

func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (domain.AnalysisRequest, bool) {
	var req domain.AnalysisRequest
	if r.Body == nil || r.ContentLength == 0 {
		return req, true
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// parseStreamQuery builds a request from
// ?tickers=A,B&start_date=&end_date=&num_portfolios=&trading_days=&risk_free_rate=&seed=
func parseStreamQuery(r *http.Request) (domain.AnalysisRequest, error) {
	q := r.URL.Query()
	req := domain.AnalysisRequest{
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
	}
	if raw := q.Get("tickers"); raw != "" {
		req.Tickers = strings.Split(raw, ",")
	}
	if raw := q.Get("num_portfolios"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return req, errors.New("num_portfolios must be a non-negative integer")
		}
		req.NumPortfolios = n
	}
	if raw := q.Get("trading_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, errors.New("trading_days must be an integer")
		}
		req.TradingDays = n
	}
	if raw := q.Get("risk_free_rate"); raw != "" {
		rf, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return req, errors.New("risk_free_rate must be a number")
		}
		req.RiskFreeRate = &rf
	}
	if raw := q.Get("seed"); raw != "" {
		seed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return req, errors.New("seed must be an unsigned integer")
		}
		req.Seed = &seed
	}
	return req, nil
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, optimization.ErrWeightsSum),
		errors.Is(err, optimization.ErrDimensionMismatch),
		errors.Is(err, optimization.ErrEmptyReturns),
		errors.Is(err, optimization.ErrInvalidSampleCount),
		errors.Is(err, returns.ErrNonPositivePrice),
		errors.Is(err, prices.ErrInvalidRequest),
		errors.Is(err, simulation.ErrInvalidOptions),
		errors.Is(err, simulation.ErrCovariance):
		return http.StatusBadRequest
	case errors.Is(err, prices.ErrNoData), errors.Is(err, prices.ErrConnection):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(msg)
	} else {
		h.log.Warn().Err(err).Msg(msg)
	}

	h.writeJSON(w, status, map[string]interface{}{
		"error":    err.Error(),
		"metadata": metadata(),
	})
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data":     data,
		"metadata": metadata(),
	}
}

func metadata() map[string]interface{} {
	return map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
