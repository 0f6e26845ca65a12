package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tabx-cli/tabx/internal/logging"
)

const (
	// defaultMaxRetries is the number of retry attempts for transient failures.
	defaultMaxRetries = 3

	// defaultBaseDelay is the initial delay between retries.
	defaultBaseDelay = 1 * time.Second

	// defaultMaxDelay caps the exponential backoff.
	defaultMaxDelay = 10 * time.Second
)

// isRetryableError reports whether an error or status is transient:
// network timeouts, connection errors, server errors (5xx), and rate
// limiting (429).
func isRetryableError(err error, statusCode int) bool {
	if statusCode >= 500 || statusCode == 429 {
		return true
	}

	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}

	// Fallback for wrapped errors that lose their type.
	errMsg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"tls handshake timeout",
		"connection reset",
		"connection refused",
		"broken pipe",
		"i/o timeout",
		"unexpected eof",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// calculateBackoff returns the delay for a retry attempt using
// exponential backoff with jitter.
func calculateBackoff(attempt int) time.Duration {
	delay := defaultBaseDelay * time.Duration(1<<attempt)
	if delay > defaultMaxDelay {
		delay = defaultMaxDelay
	}
	// ±25% jitter to avoid thundering herd against a recovering backend.
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	return delay - delay/4 + jitter
}

// doWithRetry executes an HTTP request with backoff retry for transient
// faults. reqFunc builds a fresh request per attempt so bodies can be
// re-read. The response body is fully read and returned.
func (c *Client) doWithRetry(ctx context.Context, reqFunc func() (*http.Request, error)) (*http.Response, []byte, error) {
	var lastErr error
	var lastStatusCode int

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		req, err := reqFunc()
		if err != nil {
			return nil, nil, fmt.Errorf("creating request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			lastStatusCode = 0
			if !isRetryableError(err, 0) {
				return nil, nil, fmt.Errorf("request failed: %w", err)
			}
			if attempt < c.maxRetries {
				delay := calculateBackoff(attempt)
				logging.Debug("request failed (attempt %d/%d): %v, retrying in %v",
					attempt+1, c.maxRetries+1, err, delay)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, nil, ctx.Err()
				}
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if !isRetryableError(readErr, 0) {
				return nil, nil, fmt.Errorf("reading response body: %w", readErr)
			}
			if attempt < c.maxRetries {
				delay := calculateBackoff(attempt)
				logging.Debug("response read failed (attempt %d/%d): %v, retrying in %v",
					attempt+1, c.maxRetries+1, readErr, delay)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, nil, ctx.Err()
				}
			}
			continue
		}

		lastStatusCode = resp.StatusCode
		if isRetryableError(nil, resp.StatusCode) {
			lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
			if attempt < c.maxRetries {
				delay := calculateBackoff(attempt)
				logging.Debug("status %d (attempt %d/%d), retrying in %v",
					resp.StatusCode, attempt+1, c.maxRetries+1, delay)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, nil, ctx.Err()
				}
			}
			continue
		}

		return resp, body, nil
	}

	if lastErr != nil {
		return nil, nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
	}
	return nil, nil, fmt.Errorf("request failed after %d attempts (status %d)", c.maxRetries+1, lastStatusCode)
}
