package ergo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/ergo-monitor/internal/config"
)

// Client wraps the Ergo explorer REST API with retry logic
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     config.ExplorerConfig
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// StatusError is returned for non-retryable HTTP responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("explorer returned status %d: %s", e.StatusCode, e.Body)
}

// NewClient creates a new explorer client
func NewClient(cfg config.ExplorerConfig, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		config:     cfg,
		logger:     logger,
		sleep:      sleepContext,
		now:        time.Now,
	}
}

// Close releases idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// HealthCheck checks that the explorer is reachable
func (c *Client) HealthCheck(ctx context.Context) error {
	var info json.RawMessage
	return c.getJSON(ctx, "/info", nil, &info)
}

// getJSON performs a GET request and decodes the JSON body into dest.
// Transient failures (network errors, 5xx) are retried with exponential backoff;
// rate limit responses wait for Retry-After without consuming the retry budget.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dest interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	rateLimitWaits := 0

	for attempt := 0; attempt <= c.config.MaxRetries; {
		body, status, header, err := c.do(ctx, endpoint)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err

		case status == http.StatusOK:
			if err := json.Unmarshal(body, dest); err != nil {
				return fmt.Errorf("failed to decode response from %s: %w", path, err)
			}
			return nil

		case status == http.StatusTooManyRequests:
			rateLimitWaits++
			if rateLimitWaits > c.config.MaxRateLimitWaits {
				return fmt.Errorf("rate limited on %s after %d waits", path, rateLimitWaits-1)
			}
			delay := retryAfter(header, c.config.RetryDelay)
			c.logger.Warn("Rate limited by explorer, waiting",
				zap.String("path", path),
				zap.Duration("retry_after", delay),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
			continue

		case status >= http.StatusInternalServerError:
			lastErr = &StatusError{StatusCode: status, Body: truncate(string(body), 200)}

		default:
			return &StatusError{StatusCode: status, Body: truncate(string(body), 200)}
		}

		c.logger.Warn("Explorer request failed, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)

		if attempt < c.config.MaxRetries {
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return err
			}
		}
		attempt++
	}

	return fmt.Errorf("failed to get %s after %d retries: %w", path, c.config.MaxRetries, lastErr)
}

func (c *Client) do(ctx context.Context, endpoint string) ([]byte, int, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, resp.Header, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.config.RetryDelay * time.Duration(1<<uint(attempt))
}

func retryAfter(header http.Header, fallback time.Duration) time.Duration {
	if header == nil {
		return fallback
	}
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return fallback
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
