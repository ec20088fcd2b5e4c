// Package fetcher performs single outbound HTTP calls with a per-attempt
// deadline, failure classification and linear backoff between retries.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"kolmeter/internal/logging"
	"kolmeter/internal/metrics"
	"kolmeter/internal/model"
)

// Class is the failure class of one attempt.
type Class string

const (
	ClassTimeout    Class = "timeout"
	ClassConnection Class = "connectionError"
	ClassOther      Class = "other"
)

// Retryable reports whether a failure of this class is worth another attempt.
func (c Class) Retryable() bool { return c == ClassTimeout || c == ClassConnection }

// Options bounds a single Fetch call.
type Options struct {
	MaxAttempts int
	Timeout     time.Duration
	BackoffStep time.Duration
}

// DefaultOptions: 3 attempts, 30s each, waiting 2s then 4s between them.
func DefaultOptions() Options {
	return Options{MaxAttempts: 3, Timeout: 30 * time.Second, BackoffStep: 2 * time.Second}
}

// Response is a fully read transport result. Any HTTP status is a success at
// this level.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// FetchError is the final failure of a Fetch call.
type FetchError struct {
	Class    Class
	Attempts int
	Endpoint string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s) (%s): %v", e.Endpoint, e.Attempts, e.Class, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets callers match a FetchError against the model sentinels.
func (e *FetchError) Is(target error) bool {
	switch target {
	case model.ErrTimeout:
		return e.Class == ClassTimeout
	case model.ErrConnection:
		return e.Class == ClassConnection
	}
	return false
}

// Fetcher is stateless across calls; it is safe for concurrent use.
type Fetcher struct {
	httpClient *http.Client
	opts       Options
	sleep      func(ctx context.Context, d time.Duration) error
}

func New(httpClient *http.Client, opts Options) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	def := DefaultOptions()
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.BackoffStep < 0 {
		opts.BackoffStep = 0
	}
	return &Fetcher{httpClient: httpClient, opts: opts, sleep: sleepCtx}
}

// Options returns the bounds this fetcher applies.
func (f *Fetcher) Options() Options { return f.opts }

// Fetch performs method on rawURL. Timeouts and connection errors are retried
// up to MaxAttempts, waiting n*BackoffStep after failed attempt n. The parent
// context is honored both in flight and while backing off.
func (f *Fetcher) Fetch(ctx context.Context, method, rawURL string, header http.Header) (*Response, error) {
	endpoint := endpointOf(rawURL)
	var lastErr error
	var lastClass Class
	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		resp, err := f.attempt(ctx, method, rawURL, header)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, &FetchError{Class: ClassOther, Attempts: attempt, Endpoint: endpoint, Err: ctx.Err()}
		}
		lastErr, lastClass = err, Classify(err)
		if !lastClass.Retryable() {
			return nil, &FetchError{Class: lastClass, Attempts: attempt, Endpoint: endpoint, Err: err}
		}
		if attempt == f.opts.MaxAttempts {
			break
		}
		wait := time.Duration(attempt) * f.opts.BackoffStep
		metrics.IncAPIRetry(endpoint, string(lastClass))
		logging.Warn("fetch_retry", map[string]any{
			"endpoint": endpoint, "attempt": attempt, "class": string(lastClass),
			"wait_ms": wait.Milliseconds(), "error": err.Error(),
		})
		if err := f.sleep(ctx, wait); err != nil {
			return nil, &FetchError{Class: ClassOther, Attempts: attempt, Endpoint: endpoint, Err: err}
		}
	}
	return nil, &FetchError{Class: lastClass, Attempts: f.opts.MaxAttempts, Endpoint: endpoint, Err: lastErr}
}

func (f *Fetcher) attempt(ctx context.Context, method, rawURL string, header http.Header) (*Response, error) {
	actx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(actx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if header != nil {
		req.Header = header.Clone()
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = stripQuery(ue.URL)
		}
		return nil, err
	}
	defer resp.Body.Close()
	// A body that stalls past the deadline is a timeout too.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Classify maps a transport error onto a failure class.
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ClassConnection
	}
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED, syscall.ENETUNREACH, syscall.EHOSTUNREACH, syscall.EPIPE} {
		if errors.Is(err, errno) {
			return ClassConnection
		}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassConnection
	}
	return ClassOther
}

// endpointOf strips the query so credentials never reach logs or labels.
func endpointOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "unknown"
	}
	return u.Path
}

func stripQuery(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "redacted"
	}
	u.RawQuery = ""
	return u.String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
