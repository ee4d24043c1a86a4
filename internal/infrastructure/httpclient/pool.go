package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// maxBodySnippet bounds how much of an error body is kept on StatusError.
const maxBodySnippet = 256

type ClientConfig struct {
	MaxConcurrency int
	RequestTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	UserAgent      string
	Headers        map[string]string
}

// DefaultClientConfig is tuned for public market-data APIs.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxConcurrency: 2,
		RequestTimeout: 30 * time.Second,
		MaxRetries:     2,
		BackoffBase:    time.Second,
		BackoffMax:     30 * time.Second,
		UserAgent:      "CryptoLens/1.0",
	}
}

// StatusError is a non-2xx response that survived all retries.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d: %s", e.URL, e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// IsClientError reports whether err is a 4xx StatusError other than 429.
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
}

type ClientStats struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	RetriedRequests int64
	TotalLatency    time.Duration
}

// ClientPool bounds concurrent requests and retries transient failures.
type ClientPool struct {
	config    ClientConfig
	semaphore chan struct{}
	client    *http.Client
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	mu        sync.RWMutex
	stats     ClientStats
}

func NewClientPool(config ClientConfig) *ClientPool {
	return NewClientPoolWithHTTP(config, &http.Client{Timeout: config.RequestTimeout})
}

// NewClientPoolWithHTTP uses a caller-supplied transport client.
func NewClientPoolWithHTTP(config ClientConfig, client *http.Client) *ClientPool {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}
	return &ClientPool{
		config:    config,
		semaphore: make(chan struct{}, config.MaxConcurrency),
		client:    client,
		sleep:     sleepCtx,
		now:       time.Now,
	}
}

// GetJSON fetches rawURL with params and decodes the body into out.
func (cp *ClientPool) GetJSON(ctx context.Context, rawURL string, params url.Values, out interface{}) error {
	body, err := cp.Get(ctx, rawURL, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// Get fetches rawURL and returns the body of a 2xx response.
func (cp *ClientPool) Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	target := rawURL
	if len(params) > 0 {
		target = rawURL + "?" + params.Encode()
	}

	select {
	case cp.semaphore <- struct{}{}:
		defer func() { <-cp.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	start := cp.now()
	var lastErr error
	var wait time.Duration
	for attempt := 0; attempt <= cp.config.MaxRetries; attempt++ {
		if attempt > 0 {
			cp.record(func(s *ClientStats) { s.RetriedRequests++ })
			backoff := cp.calculateBackoff(attempt)
			if wait > backoff {
				backoff = wait
			}
			log.Debug().
				Dur("backoff", backoff).
				Int("attempt", attempt).
				Str("url", target).
				Msg("Retrying HTTP request")
			if err := cp.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		body, retryAfter, err := cp.once(ctx, target)
		if err == nil {
			cp.record(func(s *ClientStats) {
				s.TotalRequests++
				s.SuccessRequests++
				s.TotalLatency += cp.now().Sub(start)
			})
			return body, nil
		}
		lastErr = err
		wait = retryAfter
		if !retryable(err) {
			break
		}
	}

	cp.record(func(s *ClientStats) {
		s.TotalRequests++
		s.FailedRequests++
		s.TotalLatency += cp.now().Sub(start)
	})
	return nil, lastErr
}

func (cp *ClientPool) once(ctx context.Context, target string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if cp.config.UserAgent != "" {
		req.Header.Set("User-Agent", cp.config.UserAgent)
	}
	for k, v := range cp.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := cp.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > maxBodySnippet {
			snippet = snippet[:maxBodySnippet]
		}
		return nil, RetryAfter(resp.Header, cp.now()), &StatusError{Code: resp.StatusCode, URL: target, Body: snippet}
	}
	return body, 0, nil
}

func (cp *ClientPool) calculateBackoff(attempt int) time.Duration {
	backoff := cp.config.BackoffBase * time.Duration(1<<uint(attempt-1))
	if cp.config.BackoffMax > 0 && backoff > cp.config.BackoffMax {
		backoff = cp.config.BackoffMax
	}

	// Add up to 10% jitter to backoff
	jitter := time.Duration(rand.Float64() * 0.1 * float64(backoff))
	return backoff + jitter
}

func (cp *ClientPool) GetStats() ClientStats {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	return cp.stats
}

func (cp *ClientPool) record(update func(*ClientStats)) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	update(&cp.stats)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	// Transport errors are treated as transient.
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
