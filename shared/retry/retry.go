package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"mint-sentry/shared/logger"
)

// Options bounds one resilient fetch. MaxRetries is the total attempt count,
// not the count of re-tries after the first attempt.
type Options struct {
	MaxRetries int           // total attempts, minimum 1
	BaseDelay  time.Duration // wait before attempt 2
	Multiplier float64       // backoff growth factor per attempt
}

func (o Options) normalized() Options {
	if o.MaxRetries < 1 {
		o.MaxRetries = 1
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 500 * time.Millisecond
	}
	if o.Multiplier <= 1 {
		o.Multiplier = 1.5
	}
	return o
}

// delayBefore returns the wait preceding the given attempt (attempt >= 2):
// BaseDelay * Multiplier^(attempt-2), so the first wait is exactly BaseDelay.
func (o Options) delayBefore(attempt int) time.Duration {
	exp := float64(attempt - 2)
	return time.Duration(float64(o.BaseDelay) * math.Pow(o.Multiplier, exp))
}

// HTTPError is a non-2xx response surfaced as an error.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error: <nil>"
	}
	body := strings.TrimSpace(string(e.Body))
	if body == "" {
		return fmt.Sprintf("http error (%s)", e.Status)
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("http error (%s): %s", e.Status, body)
}

// Do runs fn up to opts.MaxRetries times, waiting between attempts with
// exponential backoff. The first nil error wins immediately; every failed
// attempt and every wait gets a log line; after the final attempt the last
// observed error is returned as-is. The wait honors ctx cancellation.
func Do(ctx context.Context, log *logger.Logger, opts Options, desc string, fn func() error) error {
	opts = opts.normalized()

	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn(fmt.Sprintf("%s: attempt %d/%d failed", desc, attempt, opts.MaxRetries), "error", err.Error())

		if attempt == opts.MaxRetries {
			break
		}

		wait := opts.delayBefore(attempt + 1)
		log.Debug(fmt.Sprintf("%s: waiting %s before attempt %d", desc, wait, attempt+1))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

// GetBytes performs a retried GET and returns the body of the first response
// with a 2xx status. Non-2xx responses become *HTTPError and are retried like
// transport failures.
func GetBytes(ctx context.Context, log *logger.Logger, client *http.Client, opts Options, desc, url string) ([]byte, error) {
	var body []byte
	err := Do(ctx, log, opts, desc, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: data}
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// GetJSON is GetBytes plus a JSON decode. Decode failures are not retried:
// by the time the body is in hand the fetch itself has succeeded, and a
// malformed payload will not get better on a second request.
func GetJSON(ctx context.Context, log *logger.Logger, client *http.Client, opts Options, desc, url string, out interface{}) error {
	body, err := GetBytes(ctx, log, client, opts, desc, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", desc, err)
	}
	return nil
}
