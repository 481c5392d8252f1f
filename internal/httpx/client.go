// Package httpx wraps outbound HTTP with the retry, backoff and
// circuit-breaker behavior every rate provider shares.
package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultAttempts = 3
	backoffFactor   = 0.5
	backoffMin      = 500 * time.Millisecond
	backoffMax      = 4 * time.Second
)

// Fetcher issues GET requests returning decoded JSON, retrying on
// transient failures with exponential backoff.
type Fetcher struct {
	client   *http.Client
	attempts int
	limiter  *rate.Limiter
	log      *logrus.Entry
}

func NewFetcher(log *logrus.Logger, limiter *rate.Limiter) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: defaultTimeout},
		attempts: defaultAttempts,
		limiter:  limiter,
		log:      log.WithField("component", "http_fetcher"),
	}
}

// GetJSON fetches rawURL with the given headers and query params and
// decodes the response body into dest. Network errors, 5xx and 429
// responses are retried; other statuses fail immediately.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, headers map[string]string, params map[string]string, dest interface{}) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url %s: %w", rawURL, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < f.attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoffDelay(attempt)); err != nil {
				return err
			}
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			f.log.WithError(err).WithField("url", u.Redacted()).Warn("request failed, will retry")
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("upstream status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("upstream status %d: %s", resp.StatusCode, truncate(body, 256))
		}

		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("request failed after %d attempts: %w", f.attempts, lastErr)
}

// backoffDelay returns factor*2^attempt seconds clamped to [min, max]
func backoffDelay(attempt int) time.Duration {
	d := time.Duration(backoffFactor * float64(int(1)<<attempt) * float64(time.Second))
	if d < backoffMin {
		d = backoffMin
	}
	if d > backoffMax {
		d = backoffMax
	}
	return d
}

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

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
