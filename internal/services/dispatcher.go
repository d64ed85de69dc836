package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DispatcherConfig configures an HTTPDispatcher.
type DispatcherConfig struct {
	// Endpoints maps a service name to its base URL.
	Endpoints map[string]string
	// RateLimit is the per-service request rate in requests per second. Zero disables limiting.
	RateLimit float64
	Burst     int
	// BreakerFailures is the number of consecutive failures that opens a service's breaker.
	BreakerFailures uint32
	// BreakerTimeout is how long a breaker stays open before probing again.
	BreakerTimeout time.Duration
}

// HTTPDispatcher delivers workflow actions to platform services over HTTP.
type HTTPDispatcher struct {
	cfg    DispatcherConfig
	client HTTPDoer
	logger Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewHTTPDispatcher creates a new HTTPDispatcher. A nil client means http.DefaultClient.
func NewHTTPDispatcher(cfg DispatcherConfig, client HTTPDoer, logger Logger) *HTTPDispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	return &HTTPDispatcher{
		cfg:      cfg,
		client:   client,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Dispatch POSTs {operation, params} to <endpoint>/operations/<operation>
// and returns the decoded JSON response body.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, service, operation string, params map[string]any) (any, error) {
	base, ok := d.cfg.Endpoints[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	limiter, breaker := d.guards(service)

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", service, err)
	}

	result, err := breaker.Execute(func() (interface{}, error) {
		return d.post(ctx, base, operation, params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %w", ErrServiceUnavailable, service, err)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *HTTPDispatcher) guards(service string) (*rate.Limiter, *gobreaker.CircuitBreaker) {
	d.mu.Lock()
	defer d.mu.Unlock()

	limiter, ok := d.limiters[service]
	if !ok {
		limit := rate.Inf
		if d.cfg.RateLimit > 0 {
			limit = rate.Limit(d.cfg.RateLimit)
		}
		limiter = rate.NewLimiter(limit, d.cfg.Burst)
		d.limiters[service] = limiter
	}

	breaker, ok := d.breakers[service]
	if !ok {
		failures := d.cfg.BreakerFailures
		breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        service,
			MaxRequests: 1,
			Timeout:     d.cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				d.logger.Warn("service circuit breaker state changed", "service", name, "from", from.String(), "to", to.String())
			},
		})
		d.breakers[service] = breaker
	}
	return limiter, breaker
}

func (d *HTTPDispatcher) post(ctx context.Context, base, operation string, params map[string]any) (any, error) {
	requestBody, err := json.Marshal(map[string]any{"operation": operation, "params": params})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := strings.TrimRight(base, "/") + "/operations/" + url.PathEscape(operation)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s returned status code %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	d.logger.Debug("action dispatched", "endpoint", endpoint, "status", resp.StatusCode)

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var result any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return result, nil
}
