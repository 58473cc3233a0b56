package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Prompt is a provider-agnostic chat prompt.
type Prompt struct {
	System string
	User   string
}

// Provider performs one structured-extraction call and returns the raw JSON text.
// Implementations return *ProviderError for HTTP-level failures so callers can
// decide on retries; any other error is treated as a network failure.
type Provider interface {
	Name() string
	Complete(ctx context.Context, p Prompt) (string, error)
}

// ErrMalformedResponse marks a 2xx provider answer whose envelope could not be decoded.
var ErrMalformedResponse = errors.New("malformed provider response")

// ProviderError is a non-2xx answer from an extraction provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.StatusCode, body)
}

// Retryable reports whether the status is worth retrying (429 and 5xx).
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
