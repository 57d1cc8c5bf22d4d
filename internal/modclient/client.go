// Package modclient is the outbound HTTP client that calls the moderation
// API for a scheduled action, wrapped in a circuit breaker so a moderation
// API outage degrades quickly instead of piling up goroutines against a
// dead endpoint.
//
// Grounded on the teacher's infra/client/di/module.go lifecycle-managed
// external clients, generalized from gRPC to plain net/http since spec §6's
// moderation API is HTTPS/JSON, not gRPC.
package modclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Client posts moderation actions to the upstream HTTP API.
type Client struct {
	http        *http.Client
	breaker     *gobreaker.CircuitBreaker
	bearerToken string
	logger      *slog.Logger
}

// New builds a Client. The breaker trips after 5 consecutive failures and
// stays open for 30s before probing again, the same "fail fast, recover
// automatically" shape sony/gobreaker's own default settings example uses.
func New(bearerToken string, logger *slog.Logger) *Client {
	st := gobreaker.Settings{
		Name:        "modclient",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("modclient: circuit breaker state change", "name", name, "from", from, "to", to)
		},
	}
	return &Client{
		http:        &http.Client{Timeout: 10 * time.Second},
		breaker:     gobreaker.NewCircuitBreaker(st),
		bearerToken: bearerToken,
		logger:      logger,
	}
}

// Post issues method (normally POST) against url through the circuit
// breaker, returning the response status code on success.
func (c *Client) Post(ctx context.Context, method, url string) (int, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("modclient: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("modclient: do request: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 500 {
			return resp.StatusCode, fmt.Errorf("modclient: server error %d", resp.StatusCode)
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		if status, ok := result.(int); ok {
			return status, err
		}
		return 0, err
	}
	return result.(int), nil
}
