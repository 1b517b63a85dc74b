package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/brandlens/visibility/internal/resilience"
)

// Chain wraps an Adapter with its model fallback sequence, bounded retries
// per model, and a shared rate limiter across all of the adapter's models.
type Chain struct {
	adapter Adapter
	retry   resilience.RetryConfig
	limiter *rate.Limiter
}

// ChainOptions tunes a Chain. Zero values fall back to the retry defaults
// and an unthrottled limiter.
type ChainOptions struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	RatePerSecond  float64
	RateBurst      int
}

// NewChain builds a Chain for the adapter.
func NewChain(adapter Adapter, opts ChainOptions) *Chain {
	retry := resilience.DefaultRetryConfig()
	if opts.MaxAttempts > 0 {
		retry.MaxAttempts = opts.MaxAttempts
	}
	if opts.InitialBackoff > 0 {
		retry.InitialBackoff = opts.InitialBackoff
	}
	retry.ShouldRetry = retryableProviderError
	retry.OnRetry = resilience.RetryLogger(adapter.Name(), "model call")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &Chain{adapter: adapter, retry: retry, limiter: limiter}
}

// Name returns the underlying provider's name.
func (c *Chain) Name() string { return c.adapter.Name() }

// Execute runs the prompt through the adapter's model sequence. Each model
// gets bounded retries on transient failures; an exhausted or empty model
// advances the chain; auth and bad-request failures abort it immediately.
func (c *Chain) Execute(ctx context.Context, prompt string) (*Answer, error) {
	models := c.adapter.Models()
	if len(models) == 0 {
		return nil, eris.Errorf("provider %s: no models configured", c.adapter.Name())
	}

	var lastErr error
	for _, model := range models {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "provider %s: rate limit wait", c.adapter.Name())
		}

		answer, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Answer, error) {
			return c.adapter.Call(ctx, model, prompt)
		})
		if err != nil {
			var provErr *Error
			if errors.As(err, &provErr) && provErr.Fatal() {
				return nil, eris.Wrapf(err, "provider %s: fatal error", c.adapter.Name())
			}
			if ctx.Err() != nil {
				return nil, eris.Wrapf(err, "provider %s: cancelled", c.adapter.Name())
			}
			zap.L().Warn("provider: model exhausted, trying next",
				zap.String("provider", c.adapter.Name()),
				zap.String("model", model),
				zap.Error(err))
			lastErr = err
			continue
		}

		if answer.Empty() {
			zap.L().Warn("provider: empty answer, trying next model",
				zap.String("provider", c.adapter.Name()),
				zap.String("model", model))
			lastErr = &Error{Provider: c.adapter.Name(), Model: model, Code: CodeEmpty}
			continue
		}

		answer.Model = model
		return answer, nil
	}

	return nil, eris.Wrapf(lastErr, "provider %s: all models failed", c.adapter.Name())
}

// retryableProviderError decides per-attempt retries: classified provider
// errors consult their own code, anything else falls back to the generic
// transient check.
func retryableProviderError(err error) bool {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.Retryable()
	}
	return resilience.IsTransient(err)
}
