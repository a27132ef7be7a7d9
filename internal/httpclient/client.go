// Package httpclient is the resty-based HTTP client the Worker Lifecycle
// Manager and Job Scheduler use to talk to a running worker process: poll
// its readiness endpoint, submit a job, and request an interrupt.
package httpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client wraps a resty client configured with the deadlines every call to a
// worker must respect; a worker that doesn't answer within the deadline is
// treated the same as one that answered with an error.
type Client struct {
	rc *resty.Client
}

// New builds a Client whose calls are bounded by timeout.
func New(timeout time.Duration) *Client {
	rc := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0)
	return &Client{rc: rc}
}

// readinessPaths are probed in order; a 2xx from any one of them counts as
// ready, since worker builds disagree on which endpoint comes up first.
var readinessPaths = []string{"/system_stats", "/prompt", "/"}

// Ready probes a worker's readiness endpoints and reports whether any of
// them answered with a successful status within the deadline.
func (c *Client) Ready(ctx context.Context, baseURL string) (bool, error) {
	var lastErr error
	for _, path := range readinessPaths {
		resp, err := c.rc.R().SetContext(ctx).Get(baseURL + path)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.IsSuccess() {
			return true, nil
		}
	}
	return false, lastErr
}

// Submit posts a job's workflow payload to a worker and returns its decoded
// JSON response.
func (c *Client) Submit(ctx context.Context, baseURL string, payload map[string]interface{}) (map[string]interface{}, error) {
	var result map[string]interface{}
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&result).
		Post(baseURL + "/prompt")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("worker rejected submission: %s: %s", resp.Status(), resp.String())
	}
	return result, nil
}

// Interrupt requests that a worker abandon whatever job it is currently
// running.
func (c *Client) Interrupt(ctx context.Context, baseURL string) error {
	resp, err := c.rc.R().SetContext(ctx).Post(baseURL + "/interrupt")
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("worker rejected interrupt: %s", resp.Status())
	}
	return nil
}
