package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/mmcdole/crate/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "Crate/1.0"
)

// RetryConfig bounds how often a failed request is retried.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (r RetryConfig) withDefaults() RetryConfig {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 3
	}
	if r.InitialBackoff <= 0 {
		r.InitialBackoff = 500 * time.Millisecond
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = 10 * time.Second
	}
	return r
}

// statusError is a non-200 HTTP response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status: %d", e.code)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.code, e.body)
}

// retryable reports whether a request that failed with err may succeed later.
func retryable(err error) bool {
	if errors.Is(err, domain.ErrAuthFailed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

// transport performs rate-limited JSON GETs with retry and backoff.
type transport struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
	headers    http.Header
	logger     *slog.Logger
}

// newTransport creates a transport. perMinute <= 0 disables rate limiting.
func newTransport(timeout time.Duration, perMinute int, retry RetryConfig, headers http.Header, logger *slog.Logger) *transport {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	if headers == nil {
		headers = http.Header{}
	}
	headers.Set("Accept", "application/json")
	headers.Set("User-Agent", userAgent)
	return &transport{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		retry:      retry.withDefaults(),
		headers:    headers,
		logger:     logger,
	}
}

// getJSON fetches url into out, retrying transient failures.
func (t *transport) getJSON(ctx context.Context, url string, out any) error {
	var err error
	for attempt := 1; attempt <= t.retry.MaxAttempts; attempt++ {
		err = t.doRequest(ctx, url, out)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == t.retry.MaxAttempts {
			break
		}

		backoff := t.calculateBackoff(attempt)
		t.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		if err := sleepCtx(ctx, backoff); err != nil {
			return err
		}
	}
	return err
}

// sleepCtx waits for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (t *transport) doRequest(ctx context.Context, url string, out any) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range t.headers {
		req.Header[k] = v
	}

	t.logger.Debug("remote request", "url", url)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", domain.ErrServerOffline, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return domain.ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (t *transport) calculateBackoff(attempt int) time.Duration {
	backoff := t.retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > t.retry.MaxBackoff {
		backoff = t.retry.MaxBackoff
	}
	return backoff
}
