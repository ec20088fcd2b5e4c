package fetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kolmeter/internal/model"
)

// recordSleeps replaces the backoff sleep with a recorder.
func recordSleeps(f *Fetcher) *[]time.Duration {
	var waits []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return &waits
}

func TestFetchConnectionErrorBacksOffLinearly(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := ts.URL
	ts.Close()

	f := New(nil, DefaultOptions())
	waits := recordSleeps(f)

	_, err := f.Fetch(context.Background(), http.MethodGet, addr+"/profile?apiKey=secret", nil)
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ClassConnection, fe.Class)
	assert.Equal(t, 3, fe.Attempts)
	assert.Equal(t, "/profile", fe.Endpoint)
	assert.True(t, errors.Is(err, model.ErrConnection))
	assert.False(t, errors.Is(err, model.ErrTimeout))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *waits)
	assert.NotContains(t, err.Error(), "secret")
}

func TestFetchTimeoutIsRetriedThenSucceeds(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`{"code":1}`))
	}))
	defer ts.Close()

	f := New(ts.Client(), Options{MaxAttempts: 3, Timeout: 50 * time.Millisecond, BackoffStep: 2 * time.Second})
	waits := recordSleeps(f)

	resp, err := f.Fetch(context.Background(), http.MethodGet, ts.URL+"/timeline", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"code":1}`, string(resp.Body))
	assert.Equal(t, []time.Duration{2 * time.Second}, *waits)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestFetchTimeoutExhaustsAttempts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	f := New(ts.Client(), Options{MaxAttempts: 2, Timeout: 20 * time.Millisecond, BackoffStep: time.Second})
	waits := recordSleeps(f)

	_, err := f.Fetch(context.Background(), http.MethodGet, ts.URL+"/profile", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrTimeout))
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 2, fe.Attempts)
	assert.Equal(t, []time.Duration{time.Second}, *waits)
}

func TestFetchReturnsHTTPErrorsWithoutRetry(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("X-Test") != "yes" {
			t.Errorf("header not forwarded")
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer ts.Close()

	f := New(ts.Client(), DefaultOptions())
	waits := recordSleeps(f)
	resp, err := f.Fetch(context.Background(), http.MethodGet, ts.URL+"/profile", http.Header{"X-Test": []string{"yes"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "boom", string(resp.Body))
	assert.Empty(t, *waits)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestFetchStopsWhenParentCanceledDuringBackoff(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := ts.URL
	ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := New(nil, DefaultOptions())
	sleeps := 0
	f.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		cancel()
		return ctx.Err()
	}
	_, err := f.Fetch(ctx, http.MethodGet, addr+"/profile", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, sleeps)
}

func TestFetchNonRetryableErrorFailsFast(t *testing.T) {
	f := New(nil, DefaultOptions())
	waits := recordSleeps(f)
	_, err := f.Fetch(context.Background(), http.MethodGet, "ftp://example.invalid/x", nil)
	require.Error(t, err)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ClassOther, fe.Class)
	assert.Equal(t, 1, fe.Attempts)
	assert.Empty(t, *waits)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, ClassConnection, Classify(&net.DNSError{Err: "no such host", Name: "x.invalid"}))
	assert.Equal(t, ClassConnection, Classify(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.Equal(t, ClassOther, Classify(errors.New("bad request")))
	assert.True(t, ClassTimeout.Retryable())
	assert.False(t, ClassOther.Retryable())
}
