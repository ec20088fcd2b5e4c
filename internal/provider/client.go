// Package provider talks to the third-party social-graph API.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"kolmeter/internal/config"
	"kolmeter/internal/fetcher"
	"kolmeter/internal/normalize"
	"kolmeter/internal/util"
)

// Client defines the provider calls the pipeline uses.
type Client interface {
	Profile(ctx context.Context, handle string) (*normalize.Result, error)
	Timeline(ctx context.Context, accountID string, count int) (*normalize.Result, error)
}

// HTTPClient is an API-key client for the profile and timeline endpoints.
type HTTPClient struct {
	baseURL string
	apiKey  string
	fetch   *fetcher.Fetcher
	limiter *rate.Limiter
}

// NewHTTPClient builds a client from the provider config.
func NewHTTPClient(cfg config.ProviderConfig, httpClient *http.Client) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		fetch: fetcher.New(httpClient, fetcher.Options{
			MaxAttempts: cfg.MaxAttempts,
			Timeout:     cfg.Timeout(),
			BackoffStep: cfg.BackoffStep(),
		}),
		limiter: newLimiter(cfg.RequestsPerSecond, cfg.Burst),
	}
}

// WithFetcher swaps the fetcher, mostly to shorten backoff in tests.
func (c *HTTPClient) WithFetcher(f *fetcher.Fetcher) *HTTPClient {
	c.fetch = f
	return c
}

// Profile resolves a handle to its profile answer.
func (c *HTTPClient) Profile(ctx context.Context, handle string) (*normalize.Result, error) {
	if handle == "" {
		return nil, errors.New("empty handle")
	}
	q := url.Values{"handle": {handle}}
	return c.get(ctx, "/profile", q)
}

// Timeline returns the most recent count entries of an account's timeline.
func (c *HTTPClient) Timeline(ctx context.Context, accountID string, count int) (*normalize.Result, error) {
	if accountID == "" {
		return nil, errors.New("empty account id")
	}
	q := url.Values{"accountId": {accountID}, "count": {strconv.Itoa(clamp(count, 1, 200))}}
	return c.get(ctx, "/timeline", q)
}

func (c *HTTPClient) get(ctx context.Context, path string, q url.Values) (*normalize.Result, error) {
	if c.apiKey != "" {
		q.Set("apiKey", c.apiKey)
	}
	u := c.baseURL + path + "?" + q.Encode()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.fetch.Fetch(ctx, http.MethodGet, u, http.Header{"Accept": []string{"application/json"}})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &normalize.ProviderError{HTTPStatus: resp.StatusCode, Msg: snippet(resp.Body)}
	}
	res, err := normalize.Normalize(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

func snippet(b []byte) string {
	const max = 200
	s := util.NormalizeWhitespace(string(b))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
