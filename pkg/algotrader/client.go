// Package algotrader is a Go client for the algotrader-server HTTP API.
package algotrader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client provides a Go SDK for interacting with the algotrader-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new algotrader API client. Backtests can take a while,
// so the default timeout is generous.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("algotrader: %d %s", e.StatusCode, e.Message)
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Strategies lists the strategy names the server can run.
func (c *Client) Strategies(ctx context.Context) ([]string, error) {
	var out StrategiesResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/strategies", nil, &out); err != nil {
		return nil, err
	}
	return out.Strategies, nil
}

// RunBacktest runs one backtest and returns its full result.
func (c *Client) RunBacktest(ctx context.Context, req BacktestRequest) (*BacktestResult, error) {
	var out BacktestResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/backtests", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Compare runs several strategies over the same symbol and range.
func (c *Client) Compare(ctx context.Context, req CompareRequest) (map[string]*BacktestResult, error) {
	var out CompareResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/backtests/compare", req, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Sweep runs a parameter sweep and returns the runs best first.
func (c *Client) Sweep(ctx context.Context, req SweepRequest) ([]SweepRun, error) {
	var out SweepResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/backtests/sweep", req, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// ListBacktests returns up to limit stored result summaries, newest first.
// A limit of zero uses the server default.
func (c *Client) ListBacktests(ctx context.Context, limit int) ([]ResultSummary, error) {
	path := "/api/v1/backtests"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out ListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Backtests, nil
}

// GetBacktest fetches one stored result by ID.
func (c *Client) GetBacktest(ctx context.Context, id string) (*BacktestResult, error) {
	var out BacktestResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/backtests/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
