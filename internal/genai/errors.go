package genai

import (
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// FailureKind classifies completion failures into the categories the
// conversation layer distinguishes for user-facing messages.
type FailureKind string

const (
	// FailureUnauthorized is an authentication failure (HTTP 401). Terminal.
	FailureUnauthorized FailureKind = "unauthorized"
	// FailureRateLimited is a rate-limit rejection (HTTP 429).
	FailureRateLimited FailureKind = "rate_limited"
	// FailureServer is a provider-side failure (HTTP 5xx).
	FailureServer FailureKind = "server_error"
	// FailureNetwork covers timeouts, connection errors, and decode errors.
	FailureNetwork FailureKind = "network_error"
	// FailureInvalidResponse marks an empty or under-length completion,
	// retried at the application layer rather than the transport layer.
	FailureInvalidResponse FailureKind = "invalid_response"
)

// ProviderError is a classified completion failure.
type ProviderError struct {
	Kind       FailureKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("completion %s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the transport-level retry layer may attempt the
// request again. Authentication failures are terminal immediately.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case FailureRateLimited, FailureServer, FailureNetwork, FailureInvalidResponse:
		return true
	default:
		return false
	}
}

// classify maps an SDK or transport error onto a ProviderError. Anything
// without an HTTP status (timeouts, connection resets, body decode errors)
// is treated as a retryable network failure.
func classify(err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		kind := FailureNetwork
		switch {
		case apiErr.HTTPStatusCode == 401:
			kind = FailureUnauthorized
		case apiErr.HTTPStatusCode == 429:
			kind = FailureRateLimited
		case apiErr.HTTPStatusCode >= 500:
			kind = FailureServer
		}
		return &ProviderError{
			Kind:       kind,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return &ProviderError{Kind: FailureNetwork, Message: err.Error(), Err: err}
}
