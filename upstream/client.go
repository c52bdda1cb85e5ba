// Package upstream is the HTTP client of the content API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ZaguanLabs/dramabox"
)

const (
	// DefaultBaseURL is the production content API.
	DefaultBaseURL = "https://api.megawe.net"

	// DefaultTimeout bounds a single API call.
	DefaultTimeout = 10 * time.Second

	apiPrefix   = "/api/dramabox/"
	maxBodySize = 8 << 20
)

// Config holds configuration for the upstream client.
type Config struct {
	BaseURL    string        // Content API root (default: DefaultBaseURL)
	Timeout    time.Duration // Per-call timeout (default: 10s)
	HTTPClient *http.Client  // Custom transport (optional)
	Logger     *slog.Logger

	// MaxFailures is the number of consecutive failures that opens the
	// circuit (default: 5). OpenTimeout is how long it stays open before a
	// probe request is let through (default: 30s).
	MaxFailures uint32
	OpenTimeout time.Duration

	// DownloadHosts restricts Download to these hosts and their subdomains.
	DownloadHosts []string
}

// Client calls the content API. It is safe for concurrent use.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
	breaker *gobreaker.CircuitBreaker

	downloadHosts []string
}

// NewClient creates a new upstream client.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	c := &Client{
		baseURL: baseURL,
		timeout: timeout,
		http:    httpClient,
		logger:  logger,
	}
	for _, host := range cfg.DownloadHosts {
		c.downloadHosts = append(c.downloadHosts, strings.ToLower(strings.TrimSpace(host)))
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// BaseURL returns the content API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// State returns the circuit breaker state: "closed", "half-open" or "open".
func (c *Client) State() string {
	return c.breaker.State().String()
}

// Get calls <base>/api/dramabox/<endpoint>?<params> and returns the raw
// response envelope. The envelope must be JSON with success=true.
//
// If ctx is cancelled the context error is returned as is; every other
// failure is an *dramabox.UpstreamError.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	target := c.baseURL + apiPrefix + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, endpoint, target)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &dramabox.UpstreamError{
				Endpoint: endpoint,
				Status:   http.StatusServiceUnavailable,
				Message:  "circuit open",
				Cause:    err,
			}
		}
		return nil, err
	}
	return res.(json.RawMessage), nil
}

// Producer returns a cache producer calling Get.
func (c *Client) Producer(endpoint string, params url.Values) dramabox.Producer {
	return func(ctx context.Context) (json.RawMessage, error) {
		return c.Get(ctx, endpoint, params)
	}
}

func (c *Client) get(ctx context.Context, endpoint, target string) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &dramabox.UpstreamError{Endpoint: endpoint, Message: "building request", Cause: err}
	}
	req.Header.Set("User-Agent", dramabox.UserAgent())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, c.transportError(ctx, endpoint, err)
	}

	c.logger.Debug("upstream call",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &dramabox.UpstreamError{
			Endpoint:  endpoint,
			Status:    resp.StatusCode,
			Message:   statusMessage(resp.StatusCode, body),
			Retryable: dramabox.IsRetryableStatus(resp.StatusCode),
		}
	}

	var env dramabox.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &dramabox.UpstreamError{
			Endpoint: endpoint,
			Status:   http.StatusBadGateway,
			Message:  "invalid JSON response",
			Cause:    err,
		}
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "invalid API response format"
		}
		return nil, &dramabox.UpstreamError{Endpoint: endpoint, Status: http.StatusBadGateway, Message: msg}
	}

	return json.RawMessage(body), nil
}

// transportError classifies a failure that produced no usable response.
func (c *Client) transportError(ctx context.Context, endpoint string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if isTimeout(err) {
		return &dramabox.UpstreamError{
			Endpoint:  endpoint,
			Message:   fmt.Sprintf("no response within %s", c.timeout),
			Cause:     err,
			Retryable: true,
			Timeout:   true,
		}
	}
	return &dramabox.UpstreamError{Endpoint: endpoint, Message: "request failed", Cause: err, Retryable: true}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isBreakerSuccess decides which errors count against the circuit. Client
// errors and caller cancellation are not upstream failures.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var upstreamErr *dramabox.UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Status >= 400 && upstreamErr.Status < 500
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func statusMessage(status int, body []byte) string {
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return string(bytes.TrimSpace(body))
}
