// Package solverclient calls the VRP solver microservice over HTTP on
// behalf of the route & time engine, rate limiting outbound calls the way
// pkg/security/ratelimit.go rate limits inbound ones, and retrying
// transient failures a small bounded number of times before giving up for
// the current planning cycle.
package solverclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/pageza/fieldsched/internal/schederr"
	"github.com/pageza/fieldsched/internal/solver/model"
)

// Client optimizes a single day's routing request. Implementations include
// the real HTTP client and the in-process fallback heuristic.
type Client interface {
	Optimize(ctx context.Context, req model.Request) (*model.Response, error)
}

// HTTPClient is the production Client: it POSTs to a solver service
// instance, bounded by a rate limiter and a small retry count.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// New builds an HTTPClient against baseURL (e.g. "http://solver:8081"),
// allowing requestsPerSecond outbound calls (burst 1) and retrying
// transient failures up to maxRetries times.
func New(baseURL string, requestsPerSecond float64, maxRetries int, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		maxRetries: maxRetries,
	}
}

// Optimize implements Client.
func (c *HTTPClient) Optimize(ctx context.Context, req model.Request) (*model.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, schederr.Internal("marshal solver request", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, schederr.TransientIO("rate limiter wait", err)
		}

		resp, err := c.post(ctx, body)
		if err == nil {
			return resp, nil
		}
		if schederr.KindOf(err) == schederr.KindInputValidation {
			return nil, err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, schederr.TransientIO("context cancelled waiting to retry solver call", ctx.Err())
		case <-time.After(backoff(attempt)):
		}
	}

	return nil, schederr.TransientIO("solver call failed after retries", lastErr)
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt+1) * 100 * time.Millisecond
}

func (c *HTTPClient) post(ctx context.Context, body []byte) (*model.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/optimize-schedule", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return nil, fmt.Errorf("solver returned %d", httpResp.StatusCode)
	}
	if httpResp.StatusCode == http.StatusBadRequest {
		var body model.Response
		json.NewDecoder(httpResp.Body).Decode(&body)
		return nil, schederr.InputValidation("solver rejected request: %s", body.Message)
	}

	var out model.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// chained tries a primary Client first and falls through to a secondary
// Client on any error from the primary, so the route & time engine can keep
// producing a day's schedule via the in-process heuristic when the solver
// service is unreachable.
type chained struct {
	primary   Client
	secondary Client
}

// Fallback wraps primary so that Optimize falls through to secondary
// whenever primary returns an error. A non-error response from primary
// (including a model.StatusError response body) is returned as-is; the
// fallback only triggers when primary returns an error, of any kind.
func Fallback(primary, secondary Client) Client {
	return &chained{primary: primary, secondary: secondary}
}

func (c *chained) Optimize(ctx context.Context, req model.Request) (*model.Response, error) {
	resp, err := c.primary.Optimize(ctx, req)
	if err == nil {
		return resp, nil
	}
	return c.secondary.Optimize(ctx, req)
}

// Health checks the solver service's GET /health endpoint.
func (c *HTTPClient) Health(ctx context.Context) (*model.HealthResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, schederr.TransientIO("solver health check", err)
	}
	defer resp.Body.Close()

	var out model.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
