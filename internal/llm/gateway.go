package llm

import (
	"context"
	"errors"
	"log"
	"time"

	"tailor-backend/internal/shared/metrics"
)

const defaultMaxAttempts = 3

// InvokeRequest carries one prompt plus the credentials the gateway may
// use for it. Keys are supplied by the caller at session start, never
// read from ambient state.
type InvokeRequest struct {
	Prompt      string
	PrimaryKey  string
	FallbackKey string
}

// Gateway is the single point of contact with the text provider. It
// wraps a Client with bounded retry, exponential backoff on overload,
// and at most one primary-to-fallback credential switch per invoke.
type Gateway struct {
	client      Client
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewGateway constructs a Gateway around a single-attempt client.
func NewGateway(client Client) *Gateway {
	return &Gateway{
		client:      client,
		maxAttempts: defaultMaxAttempts,
		sleep:       sleepCtx,
	}
}

// Invoke runs the prompt until success, a fatal failure, or attempts are
// exhausted. Switching to the fallback key retries immediately and does
// not consume an attempt.
func (g *Gateway) Invoke(ctx context.Context, req InvokeRequest) (string, error) {
	maxAttempts := g.maxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	started := time.Now()
	defer func() {
		metrics.ObserveGenerationDurationMs(float64(time.Since(started)) / float64(time.Millisecond))
	}()

	key := req.PrimaryKey
	switched := false
	attempt := 1
	var lastErr error

	for attempt <= maxAttempts {
		text, err := g.client.Generate(ctx, key, req.Prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		switch kind := Classify(err); kind {
		case KindFatal:
			metrics.IncProviderFailure()
			return "", providerError(err, KindFatal)

		case KindQuotaExceeded:
			if !switched && req.FallbackKey != "" {
				log.Printf("llm gateway: quota on attempt=%d, switching to fallback key", attempt)
				metrics.IncProviderFailover()
				key = req.FallbackKey
				switched = true
				continue
			}
			// A second quota signal will not clear within this call.
			metrics.IncProviderFailure()
			return "", providerError(err, kind)

		case KindOverloaded:
			if attempt >= 2 && !switched && req.FallbackKey != "" {
				log.Printf("llm gateway: overloaded on attempt=%d, switching to fallback key", attempt)
				metrics.IncProviderFailover()
				key = req.FallbackKey
				switched = true
				continue
			}
			if attempt == maxAttempts {
				metrics.IncProviderFailure()
				return "", providerError(err, kind)
			}
			delay := time.Duration(1<<attempt) * time.Second
			log.Printf("llm gateway: overloaded on attempt=%d, backing off %s", attempt, delay)
			if serr := g.sleep(ctx, delay); serr != nil {
				return "", serr
			}
			metrics.IncProviderRetry()
			attempt++
		}
	}

	metrics.IncProviderFailure()
	return "", providerError(lastErr, KindOverloaded)
}

func providerError(err error, kind ErrorKind) error {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	return &ProviderError{Kind: kind, Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
