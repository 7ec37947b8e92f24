package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/Wisny97/Projet-1/config"
)

// Fetcher retrieves the raw body of a page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// FetchStats counts HTTP attempts made by a fetcher.
type FetchStats struct {
	Requests int
	Retries  int
}

type phaseKey struct{}

// Crawl phases used to label request metrics.
const (
	PhaseHome    = "home"
	PhaseListing = "listing"
	PhaseProduct = "product"
)

// WithPhase tags ctx so fetches made with it are counted under phase.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseKey{}, phase)
}

func phaseFrom(ctx context.Context) string {
	if phase, ok := ctx.Value(phaseKey{}).(string); ok {
		return phase
	}
	return "other"
}

const (
	ctxBody   = "body"
	ctxStatus = "status"
	ctxParent = "parent"
)

// CollyFetcher issues synchronous requests through a shared colly collector
// and retries transient failures with capped exponential backoff.
type CollyFetcher struct {
	collector *colly.Collector
	retry     *retryPolicy
	metrics   *Metrics
	logger    *slog.Logger

	requestCount int64
	retryCount   int64

	handlersOnce sync.Once
}

// NewCollyFetcher builds a fetcher restricted to the home URL's host.
func NewCollyFetcher(cfg *config.Config, metrics *Metrics, logger *slog.Logger) (*CollyFetcher, error) {
	parsed, err := url.Parse(cfg.HomeURL)
	if err != nil {
		return nil, fmt.Errorf("parse home url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("home url must include a host")
	}
	if logger == nil {
		logger = slog.Default()
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	return &CollyFetcher{
		collector: collector,
		retry:     newRetryPolicy(cfg),
		metrics:   metrics,
		logger:    logger.With("component", "fetcher"),
	}, nil
}

// Fetch returns the body at rawURL. Failures are reported as *TransportError
// once the retry budget is spent or the failure class is not transient.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	f.configureHandlers()
	phase := phaseFrom(ctx)

	var (
		lastErr    error
		lastStatus int
		attempts   int
	)
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		if attempt > 0 {
			atomic.AddInt64(&f.retryCount, 1)
			f.metrics.IncRetries()
			if err := f.retry.wait(ctx, attempt); err != nil {
				lastErr = err
				break
			}
		}

		attempts++
		body, status, err := f.do(ctx, rawURL, phase)
		if err == nil {
			return body, nil
		}
		lastErr, lastStatus = err, status

		label := errorTypeLabel(err)
		f.metrics.IncError(label)
		f.logger.Debug("fetch attempt failed",
			slog.String("url", rawURL),
			slog.Int("attempt", attempts),
			slog.String("error_type", label),
			slog.Any("error", err),
		)
		if !retryable(err) || attempt >= f.retry.maxRetries {
			break
		}
	}

	return nil, &TransportError{URL: rawURL, StatusCode: lastStatus, Attempts: attempts, Err: lastErr}
}

// Stats reports the attempts made so far.
func (f *CollyFetcher) Stats() FetchStats {
	return FetchStats{
		Requests: int(atomic.LoadInt64(&f.requestCount)),
		Retries:  int(atomic.LoadInt64(&f.retryCount)),
	}
}

// do issues one request. colly v2.1.0 requests carry no context, so ctx is
// checked from the OnRequest and OnResponseHeaders hooks; a body already
// streaming when ctx is cancelled is bounded by the per-request timeout.
func (f *CollyFetcher) do(ctx context.Context, rawURL, phase string) ([]byte, int, error) {
	reqCtx := colly.NewContext()
	reqCtx.Put(ctxParent, ctx)
	atomic.AddInt64(&f.requestCount, 1)
	f.metrics.IncRequest(phase)

	start := time.Now()
	err := f.collector.Request(http.MethodGet, rawURL, nil, reqCtx, nil)
	f.metrics.ObserveDuration(time.Since(start))

	status, _ := reqCtx.GetAny(ctxStatus).(int)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, status, ctxErr
	}
	if err != nil {
		return nil, status, classifyError(err, status)
	}
	body, _ := reqCtx.GetAny(ctxBody).([]byte)
	return body, status, nil
}

func (f *CollyFetcher) configureHandlers() {
	f.handlersOnce.Do(func() {
		f.collector.OnRequest(func(r *colly.Request) {
			if cancelled(r.Ctx) {
				r.Abort()
			}
		})

		f.collector.OnResponseHeaders(func(r *colly.Response) {
			if cancelled(r.Ctx) {
				r.Request.Abort()
			}
		})

		f.collector.OnResponse(func(r *colly.Response) {
			r.Ctx.Put(ctxStatus, r.StatusCode)
			r.Ctx.Put(ctxBody, r.Body)
		})

		f.collector.OnError(func(r *colly.Response, err error) {
			if r == nil || r.Ctx == nil {
				return
			}
			r.Ctx.Put(ctxStatus, r.StatusCode)
		})
	})
}

func cancelled(reqCtx *colly.Context) bool {
	parent, ok := reqCtx.GetAny(ctxParent).(context.Context)
	return ok && parent.Err() != nil
}

type retryPolicy struct {
	maxRetries int
	base       time.Duration
	max        time.Duration
}

func newRetryPolicy(cfg *config.Config) *retryPolicy {
	return &retryPolicy{
		maxRetries: cfg.MaxRetries,
		base:       cfg.RetryBackoff,
		max:        cfg.RetryBackoffMax,
	}
}

func (rp *retryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rp.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rp.max; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (rp *retryPolicy) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(rp.backoff(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
