// Package critterbase is an HTTP client for the Critterbase measurement
// definition endpoints.
package critterbase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/vench/obsanalytics"
)

const (
	serviceName = "critterbase"

	qualitativeMeasurementsPath  = "/xref/taxon-qualitative-measurements"
	quantitativeMeasurementsPath = "/xref/taxon-quantitative-measurements"

	// DefaultTimeout is the default timeout for a single request.
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 10 << 20
)

// Config configures a Client.
type Config struct {
	// URL is the base URL of the Critterbase API, e.g. https://critterbase.example/api.
	URL string
	// Timeout bounds every request. Zero means DefaultTimeout.
	Timeout time.Duration
	// BearerToken, when set, is sent as the Authorization header.
	BearerToken string
	// User, when set, is sent as the "user" header Critterbase uses for auditing.
	User string
}

// StatusError is returned when Critterbase answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client implements obsanalytics.MeasurementDefinitionClient.
type Client struct {
	baseURL     string
	bearerToken string
	user        string

	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *zap.Logger
}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New returns a Client for cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid critterbase url %q", cfg.URL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		bearerToken: cfg.BearerToken,
		user:        cfg.User,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: timeout,
			},
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = newBreaker(c.logger)

	return c, nil
}

func (c *Client) GetQualitativeMeasurementTypeDefinition(
	ctx context.Context, ids []string,
) ([]*obsanalytics.QualitativeMeasurementDefinition, error) {
	const operation = "get qualitative measurement definitions"

	body, err := c.post(ctx, operation, qualitativeMeasurementsPath, ids)
	if err != nil {
		return nil, err
	}

	definitions := make([]*obsanalytics.QualitativeMeasurementDefinition, 0, len(ids))
	if err := json.Unmarshal(body, &definitions); err != nil {
		return nil, upstreamError(operation, fmt.Errorf("failed to decode response: %w", err))
	}

	return definitions, nil
}

func (c *Client) GetQuantitativeMeasurementTypeDefinition(
	ctx context.Context, ids []string,
) ([]*obsanalytics.QuantitativeMeasurementDefinition, error) {
	const operation = "get quantitative measurement definitions"

	body, err := c.post(ctx, operation, quantitativeMeasurementsPath, ids)
	if err != nil {
		return nil, err
	}

	definitions := make([]*obsanalytics.QuantitativeMeasurementDefinition, 0, len(ids))
	if err := json.Unmarshal(body, &definitions); err != nil {
		return nil, upstreamError(operation, fmt.Errorf("failed to decode response: %w", err))
	}

	return definitions, nil
}

type measurementsRequest struct {
	TaxonMeasurementIDs []string `json:"taxon_measurement_ids"`
}

func (c *Client) post(ctx context.Context, operation, path string, ids []string) ([]byte, error) {
	start := time.Now()

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, path, ids)
	})
	if err != nil {
		c.logger.Warn("critterbase request failed",
			zap.String("path", path),
			zap.Int("ids", len(ids)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, upstreamError(operation, err)
	}

	c.logger.Debug("critterbase request",
		zap.String("path", path),
		zap.Int("ids", len(ids)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return body, nil
}

func (c *Client) do(ctx context.Context, path string, ids []string) ([]byte, error) {
	payload, err := json.Marshal(&measurementsRequest{TaxonMeasurementIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	if c.user != "" {
		req.Header.Set("user", c.user)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

func upstreamError(operation string, err error) error {
	return &obsanalytics.UpstreamServiceError{Service: serviceName, Operation: operation, Err: err}
}

// newBreaker opens after at least 5 requests in a minute with 60% failing,
// and probes again after 30 seconds.
func newBreaker(logger *zap.Logger) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        serviceName,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state transition",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// isBreakerSuccess counts cancellations and client-side (4xx) rejections as
// successes: Critterbase itself is healthy in both cases.
func isBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode < http.StatusInternalServerError
	}

	return false
}
