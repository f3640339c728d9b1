// Package client provides a typed HTTP client for the people API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/people-cache/pkg/api"
	"github.com/Sternrassler/people-cache/pkg/logging"
	"github.com/Sternrassler/people-cache/pkg/models"
)

// Prometheus metrics for client operations.
var (
	clientRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "people_client_requests_total",
		Help: "Total API requests by route and status",
	}, []string{"route", "status"})

	clientRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "people_client_request_duration_seconds",
		Help:    "API request duration in seconds by route",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"route"})

	clientErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "people_client_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of failed calls.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 500 and other non-gateway 5xx errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassUnavailable represents 502, 503 and 504.
	ErrorClassUnavailable ErrorClass = "unavailable"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Client talks to a people API server.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API (e.g., "http://localhost:8080")
	BaseURL string

	// UserAgent header sent with every request
	UserAgent string

	// Timeout per HTTP attempt
	Timeout time.Duration

	// Retry applies to GET requests only
	Retry RetryConfig

	// HTTPClient overrides the default client (Timeout is then ignored)
	HTTPClient *http.Client
}

// DefaultConfig returns a default configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "people-client/0.1.0",
		Timeout:   10 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", base.Scheme)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		config:     cfg,
		logger:     logging.NewLogger(logging.ComponentClient),
	}, nil
}

// Health calls GET /_health.
func (c *Client) Health(ctx context.Context) (api.GenericStatus, error) {
	var out api.GenericStatus
	err := c.do(ctx, http.MethodGet, "/_health", "/_health", nil, nil, &out)
	return out, err
}

// Ready calls GET /ready.
func (c *Client) Ready(ctx context.Context) (api.GenericStatus, error) {
	var out api.GenericStatus
	err := c.do(ctx, http.MethodGet, "/ready", "/ready", nil, nil, &out)
	return out, err
}

// ListPeople returns every person ordered by name.
func (c *Client) ListPeople(ctx context.Context) ([]models.Person, error) {
	var out api.PeopleResponse
	if err := c.do(ctx, http.MethodGet, "/people", "/people", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.People, nil
}

// SearchPeople returns people whose name contains fragment.
func (c *Client) SearchPeople(ctx context.Context, fragment string) ([]models.Person, error) {
	var out api.PeopleResponse
	query := url.Values{"name": {fragment}}
	if err := c.do(ctx, http.MethodGet, "/people/search", "/people/search", query, nil, &out); err != nil {
		return nil, err
	}
	return out.People, nil
}

// FindByEmail returns the person with email, or nil.
func (c *Client) FindByEmail(ctx context.Context, email string) (*models.Person, error) {
	resp, err := c.Lookup(ctx, "email", email, false)
	return resp.Person, err
}

// FindByPhone returns the person with phone, or nil.
func (c *Client) FindByPhone(ctx context.Context, phone string) (*models.Person, error) {
	resp, err := c.Lookup(ctx, "phone", phone, false)
	return resp.Person, err
}

// Lookup runs a cached lookup by "email" or "phone", optionally asking for
// cache stats alongside the result.
func (c *Client) Lookup(ctx context.Context, column, value string, withStats bool) (api.PersonResponse, error) {
	var out api.PersonResponse
	route := "/people/by-" + column
	query := url.Values{column: {value}}
	if withStats {
		query.Set("stats", "true")
	}
	err := c.do(ctx, http.MethodGet, route, route, query, nil, &out)
	return out, err
}

// GetPerson returns the person with id, or nil.
func (c *Client) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	var out api.PersonResponse
	if err := c.do(ctx, http.MethodGet, "/people/:id", "/people/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Person, nil
}

// CreatePerson creates a person.
func (c *Client) CreatePerson(ctx context.Context, in models.CreateInput) (*models.Person, error) {
	var out api.PersonResponse
	if err := c.do(ctx, http.MethodPost, "/people", "/people", nil, in, &out); err != nil {
		return nil, err
	}
	return out.Person, nil
}

// UpdatePerson applies a partial update.
func (c *Client) UpdatePerson(ctx context.Context, id string, in models.UpdateInput) (*models.Person, error) {
	var out api.PersonResponse
	if err := c.do(ctx, http.MethodPatch, "/people/:id", "/people/"+url.PathEscape(id), nil, in, &out); err != nil {
		return nil, err
	}
	return out.Person, nil
}

// DeletePerson removes a person.
func (c *Client) DeletePerson(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/people/:id", "/people/"+url.PathEscape(id), nil, nil, nil)
}

// CacheStats returns the server's cache statistics.
func (c *Client) CacheStats(ctx context.Context) (api.CacheStatsResponse, error) {
	var out api.CacheStatsResponse
	err := c.do(ctx, http.MethodGet, "/cache/stats", "/cache/stats", nil, nil, &out)
	return out, err
}

// InvalidateCache clears the server's cache.
func (c *Client) InvalidateCache(ctx context.Context) (int, error) {
	var out api.RemovedResponse
	err := c.do(ctx, http.MethodDelete, "/cache", "/cache", nil, nil, &out)
	return out.Removed, err
}

// EvictCacheKey removes one cached lookup by derived key.
func (c *Client) EvictCacheKey(ctx context.Context, key string) (bool, error) {
	var out api.EvictResponse
	err := c.do(ctx, http.MethodDelete, "/cache/:key", "/cache/"+url.PathEscape(key), nil, nil, &out)
	return out.Evicted, err
}

// SweepCache removes expired entries from the server's cache.
func (c *Client) SweepCache(ctx context.Context) (int, error) {
	var out api.RemovedResponse
	err := c.do(ctx, http.MethodPost, "/cache/sweep", "/cache/sweep", nil, nil, &out)
	return out.Removed, err
}

// do sends one API call. path must already be escaped; route is the path
// template used as a metric label.
func (c *Client) do(ctx context.Context, method, route, path string, query url.Values, body, out any) error {
	startTime := time.Now()
	defer func() {
		clientRequestDuration.WithLabelValues(route).Observe(time.Since(startTime).Seconds())
	}()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	target := c.baseURL.String() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	retry := c.config.Retry
	if method != http.MethodGet {
		retry = NoRetry()
	}

	return retryWithBackoff(ctx, retry, func() (ErrorClass, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.config.UserAgent != "" {
			req.Header.Set("User-Agent", c.config.UserAgent)
		}

		c.logger.Debug().Str("method", method).Str("route", route).Msg("Executing API request")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			clientErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			clientRequestsTotal.WithLabelValues(route, "network_error").Inc()
			return ErrorClassNetwork, &APIError{
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        err,
			}
		}
		defer resp.Body.Close()

		clientRequestsTotal.WithLabelValues(route, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode >= 400 {
			apiErr := c.decodeError(resp)
			clientErrorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()
			c.logger.Debug().
				Str("route", route).
				Int("status", resp.StatusCode).
				Str("error_class", string(apiErr.ErrorClass)).
				Msg("API request error")
			return apiErr.ErrorClass, apiErr
		}

		if out == nil || resp.StatusCode == http.StatusNoContent {
			return "", nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		return "", nil
	})
}

// decodeError builds an APIError from an error response.
func (c *Client) decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: classifyStatus(resp.StatusCode),
		Message:    resp.Status,
	}

	var body api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err == nil {
		apiErr.Kind = body.Error
		if body.Message != "" {
			apiErr.Message = body.Message
		}
		apiErr.Fields = body.Fields
	}
	return apiErr
}

// classifyStatus categorizes an HTTP error status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return ErrorClassUnavailable
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}
