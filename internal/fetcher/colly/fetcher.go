// Package collyfetcher implements scrape.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/bulk-article-scraper/internal/metrics"
	"github.com/JakeFAU/bulk-article-scraper/internal/scrape"
)

// maxRedirects bounds a redirect chain before it is treated as a loop.
const maxRedirects = 30

// ErrTooManyRedirects is reported when a redirect chain exceeds maxRedirects.
var ErrTooManyRedirects = errors.New("stopped after too many redirects")

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	AllowRedirects bool
	VerifyTLS      bool
	MaxBodyBytes   int
}

// Fetcher implements scrape.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	policy        *scrape.RetryPolicy
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// attemptResult captures what a single collector visit observed.
type attemptResult struct {
	status   int
	body     []byte
	finalURL string
}

// New builds a Fetcher. A nil policy disables retries.
func New(cfg Config, policy *scrape.RetryPolicy, logger *zap.Logger) (*Fetcher, error) {
	if policy == nil {
		p, err := scrape.NewRetryPolicy(0, 0, nil)
		if err != nil {
			return nil, fmt.Errorf("build default retry policy: %w", err)
		}
		policy = p
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	c.WithTransport(newHTTPTransport(cfg.VerifyTLS))
	c.SetRequestTimeout(cfg.Timeout)
	c.SetRedirectHandler(redirectHandler(cfg.AllowRedirects))

	return &Fetcher{
		cfg:           cfg,
		policy:        policy,
		logger:        logger,
		baseCollector: c,
	}, nil
}

// Fetch retrieves rawURL, retrying transient failures according to the
// retry policy. Failures are reported through the outcome.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) scrape.FetchOutcome {
	if outcome, ok := validateURL(rawURL); !ok {
		return outcome
	}

	var (
		last     scrape.FetchOutcome
		attempts int
	)
	operation := func() error {
		attempts++
		last = f.attempt(ctx, rawURL)
		switch last.Kind {
		case scrape.OutcomeTransientFailure:
			if ctx.Err() != nil {
				return backoff.Permanent(last.Err)
			}
			return last.Err
		case scrape.OutcomeTerminalFailure:
			return backoff.Permanent(last.Err)
		default:
			return nil
		}
	}
	notify := func(err error, wait time.Duration) {
		metrics.ObserveRetry(rawURL)
		f.logger.Debug("Retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	// The error is already captured in last.
	_ = backoff.RetryNotify(operation, f.policy.NewBackOff(ctx), notify)
	last.Attempts = attempts
	return last
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string) scrape.FetchOutcome {
	var (
		result   attemptResult
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx, &result, &fetchErr)
	err := f.runCollector(ctx, collector, rawURL, &fetchErr)
	outcome := f.classifyAttempt(result, err)
	metrics.ObserveFetchAttempt(rawURL, outcome.Kind.String(), time.Since(start))
	if outcome.Kind == scrape.OutcomeSuccess {
		metrics.ObserveBytes(rawURL, len(outcome.Body))
	}
	return outcome
}

func (f *Fetcher) classifyAttempt(result attemptResult, err error) scrape.FetchOutcome {
	switch {
	case err != nil && errors.Is(err, ErrTooManyRedirects):
		return scrape.TerminalFailure(scrape.FailureRedirectLoopExceeded, err)
	case err != nil:
		return scrape.TransientFailure(scrape.FailureConnectionFailed, err)
	case f.policy.IsRetryableStatus(result.status):
		outcome := scrape.TransientFailure(
			scrape.FailureRetriesExhausted,
			fmt.Errorf("retryable status %d", result.status),
		)
		outcome.StatusCode = result.status
		return outcome
	case result.status >= http.StatusBadRequest:
		return scrape.HTTPError(result.status)
	default:
		return scrape.Success(result.body, result.finalURL, result.status)
	}
}

func (f *Fetcher) buildCollector(ctx context.Context, result *attemptResult, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *attemptResult, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = attemptResult{
			status:   r.StatusCode,
			body:     append([]byte(nil), r.Body...),
			finalURL: r.Request.URL.String(),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && r.Request != nil {
			*result = attemptResult{
				status:   r.StatusCode,
				body:     append([]byte(nil), r.Body...),
				finalURL: r.Request.URL.String(),
			}
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		// The request carries ctx, so Visit returns promptly. Wait for it so
		// the hooks are done writing before the result is read.
		<-done
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

// validateURL rejects URLs that can never be fetched.
func validateURL(rawURL string) (scrape.FetchOutcome, bool) {
	trimmed := strings.TrimSpace(rawURL)
	u, err := url.Parse(trimmed)
	if err != nil {
		return scrape.TerminalFailure(scrape.FailureMalformedURL, fmt.Errorf("parse url: %w", err)), false
	}
	switch strings.ToLower(u.Scheme) {
	case "":
		return scrape.TerminalFailure(
			scrape.FailureMissingScheme,
			fmt.Errorf("invalid url %q: no scheme supplied", rawURL),
		), false
	case "http", "https":
	default:
		return scrape.TerminalFailure(
			scrape.FailureMalformedURL,
			fmt.Errorf("no connection adapters were found for %q", rawURL),
		), false
	}
	if u.Host == "" {
		return scrape.TerminalFailure(
			scrape.FailureMalformedURL,
			fmt.Errorf("invalid url %q: no host supplied", rawURL),
		), false
	}
	return scrape.FetchOutcome{}, true
}

func redirectHandler(allow bool) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if !allow {
			return http.ErrUseLastResponse
		}
		if len(via) >= maxRedirects {
			return ErrTooManyRedirects
		}
		return nil
	}
}

func newHTTPTransport(verifyTLS bool) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			// #nosec G402 -- disabled only when the operator passes --unverified.
			InsecureSkipVerify: !verifyTLS,
		},
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
