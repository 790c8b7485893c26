package collyfetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bulk-article-scraper/internal/scrape"
)

func newTestFetcher(t *testing.T, cfg Config, maxRetries int) *Fetcher {
	t.Helper()
	policy, err := scrape.NewRetryPolicy(maxRetries, 0, nil)
	require.NoError(t, err)
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	f, err := New(cfg, policy, zap.NewNop())
	require.NoError(t, err)
	return f
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	var userAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.UserAgent())
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{UserAgent: "bulk-test", VerifyTLS: true}, 0)
	outcome := f.Fetch(context.Background(), srv.URL+"/article")

	require.Equal(t, scrape.OutcomeSuccess, outcome.Kind)
	require.Equal(t, http.StatusOK, outcome.StatusCode)
	require.Contains(t, string(outcome.Body), "hello")
	require.Equal(t, srv.URL+"/article", outcome.FinalURL)
	require.Equal(t, 1, outcome.Attempts)
	require.Equal(t, "bulk-test", userAgent.Load())
}

func TestFetchNonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{}, 3)
	outcome := f.Fetch(context.Background(), srv.URL)

	require.Equal(t, scrape.OutcomeHTTPError, outcome.Kind)
	require.Equal(t, http.StatusNotFound, outcome.StatusCode)
	require.Equal(t, 1, outcome.Attempts, "non-retryable status must not be retried")
}

func TestFetchRetryableStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		maxRetries int
		wantCalls  int32
	}{
		{name: "no retries", maxRetries: 0, wantCalls: 1},
		{name: "two retries", maxRetries: 2, wantCalls: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer srv.Close()

			f := newTestFetcher(t, Config{}, tc.maxRetries)
			outcome := f.Fetch(context.Background(), srv.URL)

			require.Equal(t, scrape.OutcomeTransientFailure, outcome.Kind)
			require.Equal(t, scrape.FailureRetriesExhausted, outcome.Reason)
			require.Equal(t, http.StatusServiceUnavailable, outcome.StatusCode)
			require.Equal(t, tc.wantCalls, calls.Load())
			require.Equal(t, int(tc.wantCalls), outcome.Attempts)
		})
	}
}

func TestFetchRecoversAfterTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{}, 2)
	outcome := f.Fetch(context.Background(), srv.URL)

	require.Equal(t, scrape.OutcomeSuccess, outcome.Kind)
	require.Equal(t, 2, outcome.Attempts)
}

func TestFetchRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/target", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/target", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("target"))
	})
	srv := httptest.NewServer(mux)
	// Parallel subtests run after this function returns.
	t.Cleanup(srv.Close)

	t.Run("loop", func(t *testing.T) {
		t.Parallel()
		f := newTestFetcher(t, Config{AllowRedirects: true}, 2)
		outcome := f.Fetch(context.Background(), srv.URL+"/loop")
		require.Equal(t, scrape.OutcomeTerminalFailure, outcome.Kind)
		require.Equal(t, scrape.FailureRedirectLoopExceeded, outcome.Reason)
		require.ErrorIs(t, outcome.Err, ErrTooManyRedirects)
		require.Equal(t, 1, outcome.Attempts)
	})

	t.Run("followed", func(t *testing.T) {
		t.Parallel()
		f := newTestFetcher(t, Config{AllowRedirects: true}, 0)
		outcome := f.Fetch(context.Background(), srv.URL+"/moved")
		require.Equal(t, scrape.OutcomeSuccess, outcome.Kind)
		require.Equal(t, srv.URL+"/target", outcome.FinalURL)
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		f := newTestFetcher(t, Config{AllowRedirects: false}, 0)
		outcome := f.Fetch(context.Background(), srv.URL+"/moved")
		require.Equal(t, scrape.OutcomeSuccess, outcome.Kind)
		require.Equal(t, http.StatusMovedPermanently, outcome.StatusCode)
	})
}

func TestFetchRejectsBadURLs(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		rawURL string
		reason scrape.FailureKind
	}{
		{name: "missing scheme", rawURL: "not-a-url", reason: scrape.FailureMissingScheme},
		{name: "bare host", rawURL: "example.com/path", reason: scrape.FailureMissingScheme},
		{name: "unsupported scheme", rawURL: "ftp://example.com/file", reason: scrape.FailureMalformedURL},
		{name: "no host", rawURL: "http://", reason: scrape.FailureMalformedURL},
		{name: "unparsable", rawURL: "http://%zz", reason: scrape.FailureMalformedURL},
	}

	f := newTestFetcher(t, Config{}, 3)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			outcome := f.Fetch(context.Background(), tc.rawURL)
			require.Equal(t, scrape.OutcomeTerminalFailure, outcome.Kind)
			require.Equal(t, tc.reason, outcome.Reason)
			require.Zero(t, outcome.Attempts)
		})
	}
}

func TestFetchConnectionRefused(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	f := newTestFetcher(t, Config{Timeout: time.Second}, 1)
	outcome := f.Fetch(context.Background(), "http://"+addr+"/")

	require.Equal(t, scrape.OutcomeTransientFailure, outcome.Kind)
	require.Equal(t, scrape.FailureConnectionFailed, outcome.Reason)
	require.Equal(t, 2, outcome.Attempts)
	require.Error(t, outcome.Err)
}

func TestFetchTLSVerification(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("secure"))
	}))
	defer srv.Close()

	verified := newTestFetcher(t, Config{VerifyTLS: true}, 0)
	outcome := verified.Fetch(context.Background(), srv.URL)
	require.Equal(t, scrape.OutcomeTransientFailure, outcome.Kind)
	require.Equal(t, scrape.FailureConnectionFailed, outcome.Reason)

	unverified := newTestFetcher(t, Config{VerifyTLS: false}, 0)
	outcome = unverified.Fetch(context.Background(), srv.URL)
	require.Equal(t, scrape.OutcomeSuccess, outcome.Kind)
	require.Equal(t, "secure", string(outcome.Body))
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher(t, Config{}, 5)
	outcome := f.Fetch(ctx, srv.URL)
	require.NotEqual(t, scrape.OutcomeSuccess, outcome.Kind)
	require.LessOrEqual(t, outcome.Attempts, 1)
}

func TestFetchCanceledMidRequest(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	f := newTestFetcher(t, Config{}, 3)
	outcome := f.Fetch(ctx, srv.URL)

	require.Equal(t, scrape.OutcomeTransientFailure, outcome.Kind)
	require.Equal(t, scrape.FailureConnectionFailed, outcome.Reason)
	require.ErrorIs(t, outcome.Err, context.Canceled)
	require.Equal(t, 1, outcome.Attempts, "a canceled fetch is not retried")
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(t, Config{}, 0)
	var (
		result   attemptResult
		fetchErr error
	)

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Contains(t, collyReq.Headers.Get("Accept"), "text/html")

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/final")},
	})
	require.Equal(t, http.StatusCreated, result.status)
	require.Equal(t, "body", string(result.body))
	require.Equal(t, "https://example.com/final", result.finalURL)

	hooks.onError(&colly.Response{}, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
	require.Equal(t, http.StatusCreated, result.status, "empty error response keeps the previous result")
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	f, err := New(Config{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, f.cfg.Timeout)
	require.Zero(t, f.policy.MaxRetries())
	require.NotNil(t, f.logger)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
