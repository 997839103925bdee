// internal/common/http/client.go
package http

import (
	"context"
	"io"
	"net/http"
	"time"
)

type Client struct {
	httpClient *http.Client

	// BackoffBase is the delay before the second attempt when the
	// upstream answers 429. It doubles per attempt. Tests shrink it.
	BackoffBase time.Duration
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		BackoffBase: time.Second,
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	return c.httpClient.Do(req)
}

// DoWithBackoff executes req and retries on HTTP 429, waiting
// BackoffBase, then 2*BackoffBase, and so on, for maxAttempts total
// attempts. Any other status is returned as-is; the caller owns status
// handling and the response body. The request must have no body.
func (c *Client) DoWithBackoff(ctx context.Context, req *http.Request, maxAttempts int) (*http.Response, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	delay := c.BackoffBase
	var resp *http.Response
	var err error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err = c.DoWithContext(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt == maxAttempts {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return resp, err
}
