package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/biosbias/internal/model"
	"github.com/ppiankov/biosbias/internal/util"
	"github.com/ppiankov/biosbias/internal/worker"
)

// fetchSleepFunc is swapped out in tests
var fetchSleepFunc = time.Sleep

// StatusError is a non-2xx response other than 404
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "unexpected status: " + e.Status
}

// HTTPSource reads shards over HTTP(S) from an archive mirror
type HTTPSource struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	maxAttempts int
	limiter     *worker.Limiter
	robots      *util.RobotsChecker
	delays      sync.Map
	logger      *zap.Logger
}

// NewHTTPSource creates an HTTP source. A nil limiter disables rate limiting.
func NewHTTPSource(cfg model.FetchConfig, limiter *worker.Limiter, logger *zap.Logger) *HTTPSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("stopped after 3 redirects")
			}
			return nil
		},
	}

	s := &HTTPSource{
		httpClient:  client,
		baseURL:     cfg.BaseURL,
		userAgent:   cfg.UserAgent,
		maxAttempts: maxAttempts,
		limiter:     limiter,
		logger:      logger,
	}
	if cfg.RespectRobots {
		s.robots = util.NewRobotsChecker(client, cfg.UserAgent, logger)
	}
	return s
}

// URL joins the base URL and a shard path
func (s *HTTPSource) URL(path string) string {
	return strings.TrimSuffix(s.baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

// Open fetches a shard. The caller must close the returned body.
func (s *HTTPSource) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	rawURL := s.URL(path)

	if s.robots != nil {
		allowed, delay, err := s.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
		}
		s.applyCrawlDelay(rawURL, delay)
	}

	return s.FetchWithRetry(ctx, rawURL)
}

// applyCrawlDelay slows a host down to its robots.txt crawl delay, once
func (s *HTTPSource) applyCrawlDelay(rawURL string, delay time.Duration) {
	if delay <= 0 || s.limiter == nil {
		return
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	if _, loaded := s.delays.LoadOrStore(u.Host, delay); !loaded {
		s.limiter.SetHostRate(u.Host, 1/delay.Seconds(), 1)
	}
}

// FetchWithRetry GETs rawURL, retrying transient failures with exponential
// backoff. Only obtaining the response is retried; errors while reading the
// body surface to the caller.
func (s *HTTPSource) FetchWithRetry(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			s.logger.Debug("retrying fetch",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			fetchSleepFunc(backoff)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := s.fetch(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryableFetchError(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (s *HTTPSource) fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		_ = resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	return resp.Body, nil
}

// isRetryableFetchError reports whether err is transient: 5xx and 429
// responses, refused or reset connections and timeouts
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
