// Package fetch wraps a retrying HTTP client for the small downloads the
// renderer needs: nickname lookups, avatars and web fonts.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrTooLarge is returned when a response body exceeds the caller's limit.
var ErrTooLarge = errors.New("response body too large")

// StatusError reports a non-200 response.
type StatusError struct {
	// URL is the requested address.
	URL string
	// Code is the HTTP status code.
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

// Options configures a [Client].
type Options struct {
	// Timeout bounds each attempt. Zero means 10 seconds.
	Timeout time.Duration
	// RetryMax is the number of retries after the first attempt.
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the backoff between attempts.
	// Zero keeps the library defaults.
	RetryWaitMin, RetryWaitMax time.Duration
	// UserAgent is sent with every request when set.
	UserAgent string
}

// Client performs GET requests with retries on connection errors and 5xx
// responses. It is safe for concurrent use.
type Client struct {
	rc        *retryablehttp.Client
	userAgent string
}

// New returns a client configured by opts.
func New(opts Options) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	rc.HTTPClient.Timeout = opts.Timeout
	if rc.HTTPClient.Timeout <= 0 {
		rc.HTTPClient.Timeout = 10 * time.Second
	}
	rc.Logger = nil // retry noise stays out of the log
	return &Client{rc: rc, userAgent: opts.UserAgent}
}

// Get downloads url and returns at most limit bytes of its body. Bodies
// longer than limit fail with [ErrTooLarge]; non-200 responses fail with a
// [*StatusError].
func (c *Client) Get(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.rc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%s: %w (limit %d bytes)", url, ErrTooLarge, limit)
	}
	return body, nil
}
