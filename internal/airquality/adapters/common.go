// Package adapters holds the concrete source adapters behind the
// uniform SourceAdapter contract. All outbound calls share the same
// resilience path: per-adapter rate limit, bounded exponential backoff
// and a circuit breaker.
package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/aqwatch/air-quality-aggregation/internal/airquality"
	"github.com/aqwatch/air-quality-aggregation/internal/common"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

func defaultBackoff() BackoffConfig {
	return BackoffConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errAuthFailed    = errors.New("authentication failed")
	errBadRequest    = errors.New("rejected request")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// doRequestWithResilience executes the HTTP request with a rate
// limiter, retries with exponential backoff, and a circuit breaker.
// Auth failures and rejected requests are not retried.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	limiter *rate.Limiter,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				resp.Body.Close()
				return nil, errRateLimited
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d", errAuthFailed, resp.StatusCode)
			case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d", errBadRequest, resp.StatusCode)
			case resp.StatusCode >= 500:
				resp.Body.Close()
				return nil, errServerError
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}

			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		if errors.Is(err, errAuthFailed) || errors.Is(err, errBadRequest) {
			return nil, err
		}

		lastErr = err
		if attempt >= cfg.Backoff.MaxRetries {
			return nil, lastErr
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			// next attempt
		}

		attempt++
	}
}

// classify maps a transport-level failure into the error taxonomy:
// rejected requests become invalid_query, everything else that kept us
// from getting a payload becomes source_unavailable.
func classify(sourceKey string, err error) error {
	var aqErr *airquality.Error
	if errors.As(err, &aqErr) {
		return err
	}
	if errors.Is(err, errBadRequest) {
		return &airquality.Error{Kind: airquality.KindInvalidQuery, Source: sourceKey, Msg: "provider rejected the request", Err: err}
	}
	msg := "source unreachable"
	switch {
	case errors.Is(err, errAuthFailed) || common.HasAny(strings.ToLower(err.Error()), "api key", "unauthorized", "forbidden"):
		msg = "authentication failed"
	case errors.Is(err, context.DeadlineExceeded):
		msg = "request timed out"
	case errors.Is(err, errRateLimited):
		msg = "rate limited by provider"
	case errors.Is(err, errCircuitOpen):
		msg = "circuit breaker open"
	}
	return airquality.Unavailablef(sourceKey, err, "%s", msg)
}

// readAll drains and closes a response body.
func readAll(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// rawArray re-encodes decoded items as a JSON array payload.
func rawArray(items []json.RawMessage) json.RawMessage {
	if items == nil {
		items = []json.RawMessage{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return json.RawMessage("[]")
	}
	return b
}

func newPayload(sourceKey string, parameters []string, results json.RawMessage, count int) *airquality.Payload {
	return &airquality.Payload{
		SourceKey:   sourceKey,
		FetchedAt:   time.Now().UTC(),
		RecordCount: count,
		Parameters:  parameters,
		Results:     results,
	}
}
