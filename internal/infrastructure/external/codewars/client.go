// Package codewars implements the Codewars API client.
// It reads completed challenges of a user, checks that a user exists and
// fetches challenge descriptions for the kata catalog.
package codewars

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/kata"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
	"github.com/alem-hub/kata-mentor-bot/pkg/circuitbreaker"
	"github.com/alem-hub/kata-mentor-bot/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultBaseURL is the public Codewars API root.
const DefaultBaseURL = "https://www.codewars.com/api/v1"

// ClientConfig contains configuration for the Codewars API client.
type ClientConfig struct {
	// BaseURL is the API root, without the /users suffix.
	BaseURL string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RequestsPerSecond is the sustained request rate.
	RequestsPerSecond float64

	// Burst is the token bucket size.
	Burst int

	// Retrier retries 429, 5xx and network errors. Defaults to retry.CodewarsPolicy().
	Retrier *retry.Retrier

	// Breaker fails fast while the API is down. Defaults to a breaker that
	// opens after 3 failures and ignores 4xx answers.
	Breaker *circuitbreaker.CircuitBreaker

	// OnCircuitChange is told about default breaker transitions.
	OnCircuitChange func(name string, from, to circuitbreaker.State)

	// HTTPClient overrides the transport, used in tests.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return ClientConfig{
		BaseURL:           baseURL,
		Timeout:           15 * time.Second,
		RequestsPerSecond: 2,
		Burst:             5,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Codewars API client. It implements kata.Source.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a new Codewars API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 2
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	logger := config.Logger.With("component", "codewars_client")

	if config.Retrier == nil {
		policy := retry.CodewarsPolicy()
		policy.OnRetry = func(attempt int, err error, wait time.Duration) {
			logger.Debug("retrying codewars request", "attempt", attempt, "wait", wait, "error", err)
		}
		config.Retrier = retry.New(policy)
	}

	if config.Breaker == nil {
		notify := config.OnCircuitChange
		config.Breaker = circuitbreaker.New(circuitbreaker.Config{
			Name:             "codewars",
			FailureThreshold: 3,
			SuccessThreshold: 2,
			OpenTimeout:      time.Minute,
			IsFailure:        countsAsFailure,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
				if notify != nil {
					notify(name, from, to)
				}
			},
		})
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: config.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		retrier:    config.Retrier,
		breaker:    config.Breaker,
		logger:     logger,
	}
}

var _ kata.Source = (*Client)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// kata.Source
// ══════════════════════════════════════════════════════════════════════════════

// FetchCompletedPage returns one page of the user's completed challenges.
func (c *Client) FetchCompletedPage(ctx context.Context, handle shared.CodewarsHandle, page int) (*kata.CompletedPage, error) {
	if page < 0 {
		page = 0
	}
	path := fmt.Sprintf("/users/%s/code-challenges/completed?page=%d", url.PathEscape(handle.String()), page)

	var dto CompletedPageDTO
	if err := c.get(ctx, path, &dto); err != nil {
		return nil, fmt.Errorf("fetch completed %s page %d: %w", handle, page, err)
	}

	return dto.toDomain(), nil
}

// UserExists reports whether the profile exists. Only a 404 means "no".
func (c *Client) UserExists(ctx context.Context, handle shared.CodewarsHandle) (bool, error) {
	path := "/users/" + url.PathEscape(handle.String())

	var dto UserDTO
	err := c.get(ctx, path, &dto)
	if err == nil {
		return true, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.NotFound() {
		return false, nil
	}
	return false, fmt.Errorf("check user %s: %w", handle, err)
}

// FetchKata returns the challenge description by id or slug.
func (c *Client) FetchKata(ctx context.Context, idOrSlug string) (*kata.Kata, error) {
	path := "/code-challenges/" + url.PathEscape(idOrSlug)

	var dto CodeChallengeDTO
	if err := c.get(ctx, path, &dto); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.NotFound() {
			return nil, shared.Wrap(shared.ErrKataNotFound, err)
		}
		return nil, fmt.Errorf("fetch kata %s: %w", idOrSlug, err)
	}

	return dto.toDomain()
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// get performs a GET with rate limiting, circuit breaking and retries.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
			return c.doSingleRequest(ctx, path, result)
		})
	})
}

// doSingleRequest performs one HTTP request and marks retryable failures.
func (c *Client) doSingleRequest(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isNetworkError(err) {
			return retry.Retryable(fmt.Errorf("http request: %w", err))
		}
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	c.logger.Debug("codewars api request", "path", path, "status", resp.StatusCode, "latency", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Path: req.URL.Path}
		var errBody errorBodyDTO
		if json.Unmarshal(body, &errBody) == nil {
			apiErr.Reason = errBody.Reason
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return retry.RetryableAfter(apiErr, retryAfter(resp.Header.Get("Retry-After")))
		}
		if apiErr.Temporary() {
			return retry.Retryable(apiErr)
		}
		return apiErr
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return 0
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// countsAsFailure keeps 4xx answers (unknown user, unknown kata) from opening the circuit.
func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH AND STATUS
// ══════════════════════════════════════════════════════════════════════════════

// ClientStatus is a snapshot of the client's protection state.
type ClientStatus struct {
	CircuitState    string
	Failures        int
	RetryAt         time.Time
	AvailableTokens float64
}

// Status returns the current status of the client.
func (c *Client) Status() ClientStatus {
	snap := c.breaker.Snapshot()
	return ClientStatus{
		CircuitState:    snap.State.String(),
		Failures:        snap.Counts.Failures,
		RetryAt:         snap.RetryAt,
		AvailableTokens: c.limiter.Tokens(),
	}
}
