package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"
	"spacegate/internal/core/services"
	"spacegate/pkg/circuitbreaker"
	"spacegate/pkg/tracing"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	OutcomeOK          = "ok"
	OutcomeClientError = "client_error"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
	OutcomeRejected    = "rejected"

	maxErrorBody = 4 << 10
)

// APIError is a non-2xx answer from a provider API. It unwraps to
// domain.ErrProviderAPI.
type APIError struct {
	Provider   domain.Provider
	Operation  string
	StatusCode int
	Reason     string
	Message    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Provider, e.Operation, e.StatusCode)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return domain.ErrProviderAPI
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type ClientConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Breaker           circuitbreaker.Config
	HTTPClient        *http.Client
}

// apiClient is the shared transport for one provider: a per-call timeout,
// an outbound rate limit, a circuit breaker and metrics around every GET.
// Calls are never retried.
type apiClient struct {
	provider domain.Provider
	baseURL  string
	http     *http.Client
	timeout  time.Duration
	limiter  *rate.Limiter
	breaker  *circuitbreaker.CircuitBreaker
	metrics  ports.Metrics
	logger   *zap.SugaredLogger
}

func newAPIClient(provider domain.Provider, cfg ClientConfig, metrics ports.Metrics, logger *zap.SugaredLogger) (*apiClient, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid %s api base url: %w", provider, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if metrics == nil {
		metrics = services.NoopMetrics{}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// Backstop behind the per-call context deadline.
		httpClient = &http.Client{Timeout: 2 * cfg.Timeout}
	}
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	breakerCfg := cfg.Breaker
	if breakerCfg.Name == "" {
		breakerCfg.Name = string(provider) + "-api"
	}
	// A 4xx is the provider answering; only transport faults, 429 and 5xx trip.
	breakerCfg.IsSuccessful = func(err error) bool {
		if err == nil {
			return true
		}
		code := StatusCode(err)
		return code >= 400 && code < 500 && code != http.StatusTooManyRequests
	}
	// A caller abandoning the request says nothing about the provider. The
	// per-call deadline surfaces as DeadlineExceeded and still counts.
	breakerCfg.IsExcluded = func(err error) bool {
		return errors.Is(err, context.Canceled)
	}

	return &apiClient{
		provider: provider,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     httpClient,
		timeout:  cfg.Timeout,
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  circuitbreaker.New(breakerCfg),
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// getJSON performs GET baseURL+path?query and decodes a 2xx body into out.
func (c *apiClient) getJSON(ctx context.Context, operation, path string, query url.Values, header http.Header, out any) error {
	ctx, span := tracing.TraceProviderCall(ctx, string(c.provider), operation)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.limiter.Wait(ctx)
	if err == nil {
		err = c.breaker.Execute(ctx, func() error {
			return c.do(ctx, operation, path, query, header, out)
		})
	}

	outcome := classify(err)
	c.metrics.RecordProviderRequest(c.provider, outcome, time.Since(start))
	if err == nil {
		return nil
	}

	tracing.RecordError(ctx, err)
	c.logger.Debugw("provider call failed",
		"provider", c.provider,
		"operation", operation,
		"outcome", outcome,
		"error", err,
	)

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %v", domain.ErrProviderAPI, c.provider, operation, err)
}

func (c *apiClient) do(ctx context.Context, operation, path string, query url.Values, header http.Header, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			Provider:   c.provider,
			Operation:  operation,
			StatusCode: resp.StatusCode,
		}
		apiErr.Reason, apiErr.Message = parseErrorBody(body)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// parseErrorBody understands both Google ({"error":{"message","errors":[{"reason"}]}})
// and Twitch ({"error","status","message"}) error shapes.
func parseErrorBody(body []byte) (reason, message string) {
	var google struct {
		Error struct {
			Message string `json:"message"`
			Errors  []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &google) == nil && google.Error.Message != "" {
		if len(google.Error.Errors) > 0 {
			reason = google.Error.Errors[0].Reason
		}
		return reason, google.Error.Message
	}

	var twitch struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &twitch) == nil {
		return twitch.Error, twitch.Message
	}
	return "", ""
}

func classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case circuitbreaker.IsRejected(err):
		return OutcomeRejected
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	}
	if code := StatusCode(err); code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return OutcomeClientError
	}
	return OutcomeError
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
