// Package llm defines the completion collaborator consumed by the extraction
// and interrogation stages. The real backend lives outside this process;
// everything here treats it as prompt in, text out, possibly unavailable.
package llm

import (
	"context"
	"errors"
	"time"

	"velos/pkg/platform/sentinel"
)

// Request is a single completion call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Response carries the raw model output. Callers parse structure out of Text
// themselves; transport-level JSON wrapping differs per backend.
type Response struct {
	Text string
}

// Client is the completion collaborator. Implementations must return
// sentinel.ErrUnavailable (possibly wrapped) for transient failures so the
// retry layer can distinguish them from permanent ones.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// IsTransient reports whether an error should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, sentinel.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// RetryConfig bounds the retry loop around a Client.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	RequestTimeout time.Duration
}

// DefaultRetryConfig matches the production defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		RequestTimeout: 30 * time.Second,
	}
}
