// Package fetcher executes one logical HTTP fetch at a time: robots check,
// concurrency gate, rate-limit permit, UA rotation and browser-shaped
// headers, then a request with exponential-backoff retry. It is the single
// choke point every Source Adapter routes its requests through.
package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/rehttp"
	"github.com/codepr/topicscraper/internal/ratelimit"
	"github.com/codepr/topicscraper/internal/robots"
	"github.com/codepr/topicscraper/internal/scraperrors"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	backoffBase       = time.Second
	backoffCap        = 30 * time.Second
	maxJitter         = 500 * time.Millisecond
)

// Result is the outcome of a successful fetch.
type Result struct {
	Body       []byte
	StatusCode int
	Attempts   int
}

// CallOptions lets a caller override per-call fetch behavior.
type CallOptions struct {
	Method     string
	Headers    http.Header
	Body       io.Reader
	MaxRetries int
	UAClass    Class
}

// RobotsLog receives the run-log side effects a Fetch call produces,
// letting the caller append them without the fetcher depending on the
// run-log package: a warning when a URL is skipped for robots
// non-compliance, and an error entry for every failed attempt, recorded
// before that attempt's retry sleep regardless of whether a later attempt
// goes on to succeed.
type RobotsLog interface {
	WarnRobotsDisallowed(url string)
	WarnRobotsFetchError(origin string, err error)
	RecordAttemptFailure(url string, attempt int, err error)
}

// Fetcher performs single logical HTTP fetches behind the politeness and
// resilience envelope described in §4.3.
type Fetcher struct {
	client       *http.Client
	robots       *robots.Cache
	limiter      *ratelimit.Limiter
	userAgent    string
	timeout      time.Duration
	defaultRetry int
	skipRobots   bool
	backoffBase  time.Duration
	backoffCap   time.Duration
	proxyURL     string
}

// Option configures a Fetcher at construction time.
type Option func(*Fetcher)

// WithTimeout overrides the default 30s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// WithDefaultMaxRetries overrides the default retry budget of 3.
func WithDefaultMaxRetries(n int) Option {
	return func(f *Fetcher) { f.defaultRetry = n }
}

// WithoutRobots disables the robots-compliance check; used by tests.
func WithoutRobots() Option {
	return func(f *Fetcher) { f.skipRobots = true }
}

// WithBackoff overrides the exponential backoff base and cap, primarily
// for tests that don't want to wait out the production delay schedule.
func WithBackoff(base, cap time.Duration) Option {
	return func(f *Fetcher) { f.backoffBase = base; f.backoffCap = cap }
}

// WithProxy routes every outgoing fetch through proxyURL (scheme://
// [user[:pass]@]host[:port]), per the optional PROXY_HOST/PORT/USERNAME/
// PASSWORD settings of §6. A blank proxyURL is a no-op, leaving the
// transport's direct dial in place.
func WithProxy(proxyURL string) Option {
	return func(f *Fetcher) { f.proxyURL = proxyURL }
}

// New builds a Fetcher wired to a shared robots cache and rate limiter.
// The user agent used when consulting robots.txt rules is set separately
// with SetRobotsUserAgent; fetches themselves rotate user agents per attempt.
func New(robotsCache *robots.Cache, limiter *ratelimit.Limiter, opts ...Option) *Fetcher {
	f := &Fetcher{
		robots:       robotsCache,
		limiter:      limiter,
		timeout:      defaultTimeout,
		defaultRetry: defaultMaxRetries,
		backoffBase:  backoffBase,
		backoffCap:   backoffCap,
	}
	for _, opt := range opts {
		opt(f)
	}

	baseTransport := &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: false}}
	if f.proxyURL != "" {
		if parsed, err := url.Parse(f.proxyURL); err == nil {
			baseTransport.Proxy = http.ProxyURL(parsed)
		}
	}
	transport := rehttp.NewTransport(
		baseTransport,
		rehttp.RetryAll(rehttp.RetryMaxRetries(1), rehttp.RetryTemporaryErr()),
		rehttp.ExpJitterDelay(200*time.Millisecond, 2*time.Second),
	)
	f.client = &http.Client{Timeout: f.timeout, Transport: transport}
	return f
}

// Fetch executes one logical fetch of url, applying robots, concurrency,
// rate-limiting and retry/backoff per §4.3. warn, if non-nil, receives a
// notice when the URL is skipped for robots non-compliance, and an error
// entry for every failed attempt along the way — independent of whether a
// later attempt eventually succeeds, per §8 Scenario 4.
func (f *Fetcher) Fetch(ctx context.Context, url string, opts CallOptions, warn RobotsLog) (*Result, error) {
	maxRetries := f.defaultRetry
	if opts.MaxRetries > 0 {
		maxRetries = opts.MaxRetries
	}

	if !f.skipRobots && f.robots != nil {
		ua := f.robotsUserAgent()
		allowed, robotsErr := f.robots.Check(url, ua)
		if robotsErr != nil && warn != nil {
			warn.WarnRobotsFetchError(robotsOrigin(url), robotsErr)
		}
		if !allowed {
			if warn != nil {
				warn.WarnRobotsDisallowed(url)
			}
			return nil, fmt.Errorf("fetch %s: %w", url, scraperrors.ErrRobotsDisallowed)
		}
	}

	var lastErr error
	attempts := 0
	for attempt := 0; ; attempt++ {
		attempts = attempt + 1
		result, err := f.attempt(ctx, url, opts)
		if err == nil {
			result.Attempts = attempt + 1
			return result, nil
		}
		lastErr = err
		if warn != nil {
			warn.RecordAttemptFailure(url, attempt+1, err)
		}
		if attempt >= maxRetries {
			break
		}
		if sleepErr := f.backoffSleep(ctx, attempt+1); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}
	return nil, &scraperrors.FetchError{URL: url, Attempts: attempts, Err: lastErr}
}

// attempt performs exactly one concurrency-gated, rate-limited HTTP
// round-trip.
func (f *Fetcher) attempt(ctx context.Context, url string, opts CallOptions) (*Result, error) {
	if f.limiter != nil {
		release, err := f.limiter.AcquireConcurrency(ctx)
		if err != nil {
			return nil, err
		}
		defer release()

		if _, err := f.limiter.Acquire(ctx, ratelimit.BaseDomain(url)); err != nil {
			return nil, err
		}
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, url, opts.Body)
	if err != nil {
		return nil, err
	}
	f.applyHeaders(req, opts)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return &Result{Body: body, StatusCode: resp.StatusCode}, nil
}

// applyHeaders picks a user agent and sets browser-shaped headers, then
// layers any per-call overrides on top.
func (f *Fetcher) applyHeaders(req *http.Request, opts CallOptions) {
	a := Pick(opts.UAClass)
	req.Header.Set("User-Agent", a.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if a.chromium {
		req.Header.Set("Sec-Ch-Ua", `"Chromium";v="124", "Not.A/Brand";v="24"`)
		req.Header.Set("Sec-Ch-Ua-Mobile", mobileFlag(a.class))
		req.Header.Set("Sec-Ch-Ua-Platform", `"Windows"`)
	}
	for k, vs := range opts.Headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
}

func mobileFlag(c Class) string {
	if c == ClassMobile {
		return "?1"
	}
	return "?0"
}

// robotsOrigin extracts the scheme://host origin from rawURL for use in a
// WarnRobotsFetchError report, falling back to rawURL itself if it doesn't
// parse as a URL (should not happen for a value that reached Fetch).
func robotsOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

func (f *Fetcher) robotsUserAgent() string {
	if f.userAgent != "" {
		return f.userAgent
	}
	return "*"
}

// SetRobotsUserAgent sets the user agent string used when consulting the
// robots cache, independent of the rotating UA used for the actual fetch.
func (f *Fetcher) SetRobotsUserAgent(ua string) { f.userAgent = ua }

// backoffSleep implements the exponential backoff with jitter of §4.3 step
// 6: min(cap, 2^attempts * 1000ms + jitter[0..500ms]).
func (f *Fetcher) backoffSleep(ctx context.Context, attempt int) error {
	delay := f.backoffBase*time.Duration(1<<uint(attempt)) + time.Duration(rand.Int63n(int64(maxJitter)))
	if delay > f.backoffCap {
		delay = f.backoffCap
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
