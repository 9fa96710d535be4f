package llm

import (
	"context"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
)

// RetryingClient wraps a Client with exponential backoff on transient
// failures. Permanent failures (bad request, canceled context) surface
// immediately.
type RetryingClient struct {
	inner  Client
	cfg    RetryConfig
	logger *slog.Logger
}

// NewRetryingClient builds the retry wrapper used by all stages.
func NewRetryingClient(inner Client, cfg RetryConfig, logger *slog.Logger) *RetryingClient {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultRetryConfig().MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultRetryConfig().InitialBackoff
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRetryConfig().RequestTimeout
	}
	return &RetryingClient{inner: inner, cfg: cfg, logger: logger}
}

// Complete calls the inner client, retrying transient failures up to
// MaxRetries with exponential backoff. Each attempt gets its own timeout so
// one hung call cannot eat the whole retry budget.
func (c *RetryingClient) Complete(ctx context.Context, req Request) (Response, error) {
	var resp Response
	attempt := 0

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.MaxElapsedTime = 0 // bounded by MaxRetries, not wall clock

	operation := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()

		var err error
		resp, err = c.inner.Complete(attemptCtx, req)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			// The pipeline itself was canceled; do not retry.
			return backoff.Permanent(ctx.Err())
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		c.logger.WarnContext(ctx, "llm call failed, will retry",
			"attempt", attempt,
			"max_retries", c.cfg.MaxRetries,
			"error", err.Error(),
		)
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx))
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}
