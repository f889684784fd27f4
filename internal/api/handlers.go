package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"algotrader/internal/backtest"
	"algotrader/internal/domain"
	"algotrader/internal/store"
	"algotrader/internal/strategy"
	algotrader "algotrader/pkg/algotrader"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/strategies", s.handleStrategies)
	mux.HandleFunc("POST /api/v1/backtests", s.handleRunBacktest)
	mux.HandleFunc("POST /api/v1/backtests/compare", s.handleCompare)
	mux.HandleFunc("POST /api/v1/backtests/sweep", s.handleSweep)
	mux.HandleFunc("GET /api/v1/backtests", s.handleListBacktests)
	mux.HandleFunc("GET /api/v1/backtests/{id}", s.handleGetBacktest)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, algotrader.HealthResponse{Status: "ok"})
}

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, algotrader.StrategiesResponse{Strategies: s.runner.Strategies()})
}

func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var body algotrader.BacktestRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := toRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Strategy == "" {
		writeError(w, http.StatusBadRequest, "strategy is required")
		return
	}

	result, err := s.runner.Run(r.Context(), req)
	if err != nil {
		s.fail(w, "running backtest", err, "strategy", req.Strategy, "symbol", req.Symbol)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type compareResponse struct {
	Results map[string]*domain.BacktestResult `json:"results"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var body algotrader.CompareRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if len(body.Strategies) == 0 {
		writeError(w, http.StatusBadRequest, "strategies is required")
		return
	}
	req, err := toRequest(body.BacktestRequest)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.runner.Compare(r.Context(), body.Strategies, req)
	if err != nil {
		s.fail(w, "comparing strategies", err, "symbol", req.Symbol)
		return
	}
	writeJSON(w, http.StatusOK, compareResponse{Results: results})
}

type sweepResponse struct {
	Results []backtest.SweepResult `json:"results"`
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var body algotrader.SweepRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if len(body.Grid) == 0 {
		writeError(w, http.StatusBadRequest, "grid is required")
		return
	}
	req, err := toRequest(body.BacktestRequest)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Strategy == "" {
		writeError(w, http.StatusBadRequest, "strategy is required")
		return
	}

	results, err := s.runner.Sweep(r.Context(), req, backtest.Grid(body.Grid))
	if err != nil {
		s.fail(w, "sweeping parameters", err, "strategy", req.Strategy, "symbol", req.Symbol)
		return
	}
	if results == nil {
		results = []backtest.SweepResult{}
	}
	writeJSON(w, http.StatusOK, sweepResponse{Results: results})
}

func (s *Server) handleListBacktests(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusServiceUnavailable, "result store not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}

	summaries, err := s.results.ListResults(r.Context(), limit)
	if err != nil {
		s.fail(w, "listing backtests", err)
		return
	}
	if summaries == nil {
		summaries = []store.ResultSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"backtests": summaries})
}

func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusServiceUnavailable, "result store not configured")
		return
	}
	id := r.PathValue("id")
	result, err := s.results.GetResult(r.Context(), id)
	if err != nil {
		s.fail(w, "loading backtest", err, "id", id)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// toRequest validates an API request and converts it for the runner.
func toRequest(in algotrader.BacktestRequest) (backtest.Request, error) {
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if symbol == "" {
		return backtest.Request{}, errors.New("symbol is required")
	}
	start, err := time.Parse(algotrader.DateLayout, in.StartDate)
	if err != nil {
		return backtest.Request{}, fmt.Errorf("invalid start_date %q", in.StartDate)
	}
	end, err := time.Parse(algotrader.DateLayout, in.EndDate)
	if err != nil {
		return backtest.Request{}, fmt.Errorf("invalid end_date %q", in.EndDate)
	}
	if in.InitialCapital.IsNegative() {
		return backtest.Request{}, errors.New("initial_capital must not be negative")
	}
	return backtest.Request{
		Strategy:       in.Strategy,
		Symbol:         symbol,
		Start:          start,
		End:            end,
		InitialCapital: in.InitialCapital,
		Params:         strategy.Params(in.Parameters),
	}, nil
}

// statusFor maps a runner or store error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, strategy.ErrUnknownStrategy),
		errors.Is(err, backtest.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, backtest.ErrDataUnavailable),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error, attrs ...any) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(op, append(attrs, "error", err)...)
	} else {
		s.log.Info(op, append(attrs, "status", status, "error", err)...)
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, algotrader.ErrorResponse{Error: msg})
}
