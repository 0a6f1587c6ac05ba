package ingestsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"velib-cloud/internal/observability/metrics"
)

var (
	// ErrRateLimited is returned when a trigger arrives before the minimum interval.
	ErrRateLimited = errors.New("ingestsync: rate limited")
	// ErrUpstream wraps non-2xx responses from the ingestion job.
	ErrUpstream = errors.New("ingestsync: upstream error")
)

const (
	defaultPath        = "/functions/v1/sync-velib-data"
	defaultMinInterval = 30 * time.Second
)

// Client invokes the external ingestion job on demand.
type Client struct {
	baseURL string
	path    string
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithPath overrides the trigger path.
func WithPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.path = "/" + strings.TrimLeft(path, "/")
		}
	}
}

// WithMinInterval sets the minimum delay between two triggers. Zero disables
// limiting.
func WithMinInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// NewClient constructs a sync client.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("ingestsync: empty base url")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    defaultPath,
		token:   token,
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Every(defaultMinInterval), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type triggerResponse struct {
	Synced         *int   `json:"synced"`
	StationsSynced *int   `json:"stations_synced"`
	Count          *int   `json:"count"`
	Error          string `json:"error"`
}

// Trigger runs the ingestion job and returns the number of stations synced.
func (c *Client) Trigger(ctx context.Context) (int, error) {
	if c == nil {
		return 0, errors.New("ingestsync: nil client")
	}
	if !c.limiter.Allow() {
		metrics.IncSyncTrigger("rate_limited")
		return 0, ErrRateLimited
	}
	count, err := c.trigger(ctx)
	if err != nil {
		metrics.IncSyncTrigger(metrics.ResultError)
		return 0, err
	}
	metrics.IncSyncTrigger(metrics.ResultSuccess)
	return count, nil
}

func (c *Client) trigger(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader([]byte("{}")))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, err
	}
	var out triggerResponse
	_ = json.Unmarshal(body, &out)
	if resp.StatusCode >= 300 {
		if out.Error != "" {
			return 0, fmt.Errorf("%w: http %d: %s", ErrUpstream, resp.StatusCode, out.Error)
		}
		return 0, fmt.Errorf("%w: http %d", ErrUpstream, resp.StatusCode)
	}
	switch {
	case out.Synced != nil:
		return *out.Synced, nil
	case out.StationsSynced != nil:
		return *out.StationsSynced, nil
	case out.Count != nil:
		return *out.Count, nil
	}
	return 0, fmt.Errorf("%w: response missing station count", ErrUpstream)
}
