package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds every request issued by Client.
	DefaultTimeout = 30 * time.Second

	// DefaultCostPeriod is the trailing window requested from /cost-analysis.
	DefaultCostPeriod = "30d"
)

// StatusError reports a non-2xx response from the forecasting service.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.Endpoint, e.StatusCode)
}

// Client is a thin HTTP client for the forecasting service. Every call is a
// single request whose outcome is returned as-is: no retries, no caching,
// no circuit breaking.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient substitutes the underlying http.Client. The caller keeps
// ownership of its timeout and transport settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New returns a Client for the forecasting service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL reports the configured service root.
func (c *Client) BaseURL() string { return c.baseURL }

// Items lists the item ids known to the service.
func (c *Client) Items(ctx context.Context) ([]string, error) {
	var out ItemsResponse
	if err := c.getJSON(ctx, "/items", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Forecast fetches the forecast for one selection.
func (c *Client) Forecast(ctx context.Context, key SelectionKey) (*ForecastResult, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("days", strconv.Itoa(key.HorizonDays))
	q.Set("model", key.Model)
	var out ForecastResult
	if err := c.getJSON(ctx, "/forecast/"+url.PathEscape(key.ItemID), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AccuracyMetrics fetches backtest accuracy statistics for an item and model.
func (c *Client) AccuracyMetrics(ctx context.Context, itemID, model string) (*AccuracyMetrics, error) {
	q := url.Values{}
	q.Set("model", model)
	var out AccuracyMetrics
	if err := c.getJSON(ctx, "/metrics/"+url.PathEscape(itemID), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CostAnalysis fetches the cost summary for an item over a trailing period.
// An empty period defaults to DefaultCostPeriod.
func (c *Client) CostAnalysis(ctx context.Context, itemID, period string) (*CostAnalysis, error) {
	if period == "" {
		period = DefaultCostPeriod
	}
	q := url.Values{}
	q.Set("period", period)
	var out CostAnalysis
	if err := c.getJSON(ctx, "/cost-analysis/"+url.PathEscape(itemID), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health probes the service. Only the status code is inspected; the body is
// drained and discarded.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, "/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Endpoint: "/health", StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, path string, q url.Values) (*http.Request, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "forecastdash/1.0")
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	req, err := c.newRequest(ctx, path, q)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Endpoint: path, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", path, err)
	}
	return nil
}
