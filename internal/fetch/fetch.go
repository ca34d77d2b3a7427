// Package fetch implements the polite HTTP fetcher (C2): a GET with a
// descriptive User-Agent, bounded redirects, a configurable timeout, a
// retry policy for transient failures, and a per-host rate limit waited on
// once before each Fetch (retry attempts and robots.txt lookups are not
// separately rate limited).
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"

	"briefly/internal/discoveryerr"
	"briefly/internal/logger"
)

const (
	defaultTimeout       = 15 * time.Second
	defaultMaxBodyBytes  = 10 * 1024 * 1024 // 10 MiB
	defaultMaxRedirects  = 5
	defaultMinSpacing    = 500 * time.Millisecond
	defaultUserAgent     = "briefly-discovery/1.0 (+https://github.com/rcliao/briefly; citation discovery bot)"
	defaultRetryMax      = 3
	defaultRetryWaitMin  = 250 * time.Millisecond
	defaultRetryWaitBase = 1 * time.Second
)

// Options configures a single Fetch call, overriding the Fetcher's defaults.
type Options struct {
	Method       string // defaults to GET
	Timeout      time.Duration
	CheckRobots  bool
	SkipRetry    bool
}

// Result is the outcome of a fetch (§4.2).
type Result struct {
	Status      int
	FinalURL    string
	ContentType string
	Body        []byte
	ElapsedMs   int64
}

// Fetcher performs rate-limited, retrying HTTP fetches and enforces a
// per-host minimum spacing shared across all callers in the process.
type Fetcher struct {
	client       *retryablehttp.Client
	userAgent    string
	maxBodyBytes int64
	minSpacing   time.Duration
	checkRobots  bool

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	robots   map[string]*robotstxt.RobotsData
}

// Config holds construction-time settings for a Fetcher.
type Config struct {
	Timeout        time.Duration
	MaxBodyBytes   int64
	MinHostSpacing time.Duration
	UserAgent      string
	CheckRobots    bool
}

// New constructs a Fetcher. Zero-valued fields in cfg fall back to the
// defaults named in §4.2.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.MinHostSpacing <= 0 {
		cfg.MinHostSpacing = defaultMinSpacing
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = defaultRetryMax
	rc.RetryWaitMin = defaultRetryWaitMin
	rc.RetryWaitMax = 4 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.HTTPClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= defaultMaxRedirects {
			return fmt.Errorf("stopped after %d redirects", defaultMaxRedirects)
		}
		return nil
	}
	rc.CheckRetry = shouldRetry

	return &Fetcher{
		client:       rc,
		userAgent:    cfg.UserAgent,
		maxBodyBytes: cfg.MaxBodyBytes,
		minSpacing:   cfg.MinHostSpacing,
		checkRobots:  cfg.CheckRobots,
		limiters:     make(map[string]*rate.Limiter),
		robots:       make(map[string]*robotstxt.RobotsData),
	}
}

// shouldRetry implements the transient-failure policy: connection/DNS
// errors and 408/429/5xx are retried; other 4xx are not (§4.2).
func shouldRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp == nil {
		return true, nil
	}
	if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests {
		return true, nil
	}
	if resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// Fetch performs a single fetch of rawURL, blocking until this host's rate
// limiter admits the request, then issuing the HTTP call with the
// configured retry policy.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, discoveryerr.New(discoveryerr.FetchConnect, "fetch", err)
	}
	host := registrableHost(parsed.Hostname())

	if opts.CheckRobots || f.checkRobots {
		allowed, err := f.robotsAllowed(ctx, parsed)
		if err != nil {
			logger.Get().Warn("robots.txt check failed, proceeding", "host", host, "error", err)
		} else if !allowed {
			return nil, discoveryerr.New(discoveryerr.BlockedByRobots, "fetch", nil)
		}
	}

	if err := f.waitForHost(ctx, host); err != nil {
		return nil, discoveryerr.New(discoveryerr.FetchTimeout, "fetch", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, discoveryerr.New(discoveryerr.FetchConnect, "fetch", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	start := time.Now()
	var resp *http.Response
	if opts.SkipRetry {
		resp, err = f.client.HTTPClient.Do(req.Request)
	} else {
		resp, err = f.client.Do(req)
	}
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return nil, discoveryerr.New(classifyTransportError(err), "fetch", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, discoveryerr.New(discoveryerr.HTTPClient, "fetch", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 500 {
		return nil, discoveryerr.New(discoveryerr.HTTPServer, "fetch", fmt.Errorf("status %d", resp.StatusCode))
	}

	limited := io.LimitReader(resp.Body, f.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, discoveryerr.New(discoveryerr.FetchConnect, "fetch", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, discoveryerr.New(discoveryerr.TooLarge, "fetch", fmt.Errorf("body exceeds %d bytes", f.maxBodyBytes))
	}

	return &Result{
		Status:      resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		ElapsedMs:   elapsed,
	}, nil
}

func classifyTransportError(err error) discoveryerr.Kind {
	if err == nil {
		return discoveryerr.FetchConnect
	}
	var netErr net.Error
	if nerr, ok := err.(net.Error); ok {
		netErr = nerr
		if netErr.Timeout() {
			return discoveryerr.FetchTimeout
		}
	}
	if dnsErr, ok := err.(*net.DNSError); ok && dnsErr != nil {
		return discoveryerr.FetchDNS
	}
	if strings.Contains(err.Error(), "no such host") {
		return discoveryerr.FetchDNS
	}
	return discoveryerr.FetchConnect
}

// waitForHost blocks until the per-host limiter admits a request,
// respecting ctx cancellation (§5: workers must re-check cancellation
// before every external call).
func (f *Fetcher) waitForHost(ctx context.Context, host string) error {
	limiter := f.limiterFor(host)
	return limiter.Wait(ctx)
}

func (f *Fetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	limiter, ok := f.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(f.minSpacing), 1)
		f.limiters[host] = limiter
	}
	return limiter
}

func (f *Fetcher) robotsAllowed(ctx context.Context, target *url.URL) (bool, error) {
	host := target.Hostname()

	f.mu.Lock()
	data, cached := f.robots[host]
	f.mu.Unlock()
	if cached {
		return data.TestAgent(target.Path, f.userAgent), nil
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", target.Scheme, target.Host)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return true, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return true, err
	}
	defer func() { _ = resp.Body.Close() }()

	parsed, err := robotstxt.FromResponse(resp)
	if err != nil {
		return true, err
	}

	f.mu.Lock()
	f.robots[host] = parsed
	f.mu.Unlock()

	return parsed.TestAgent(target.Path, f.userAgent), nil
}

// registrableHost strips a leading "www." the way the canonicalizer does,
// giving the rate limiter and robots cache a stable key per site.
func registrableHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
