package ai

import (
	"errors"
	"fmt"
	"time"
)

// AuthError indicates authentication/authorization failures (401/403).
type AuthError struct{ *APIError }

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.APIError.Error())
}

// RateLimitError indicates 429 responses and may include a Retry-After.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: wait about %ds before retrying: %s", int(e.RetryAfter.Seconds()), e.APIError.Error())
	}
	return fmt.Sprintf("rate limited: %s", e.APIError.Error())
}

// ModelNotFoundError indicates the requested model is not available.
type ModelNotFoundError struct{ *APIError }

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model not found: %s", e.APIError.Error())
}

// BadRequestError indicates a 4xx request problem (e.g., 400 validation).
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.APIError.Error()) }

// QuotaExceededError indicates billing/quota problems.
type QuotaExceededError struct{ *APIError }

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s", e.APIError.Error())
}

// ServerError indicates 5xx errors from the provider.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return fmt.Sprintf("provider error: %s", e.APIError.Error()) }

// UnreachableError indicates the provider endpoint could not be reached.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e == nil {
		return "unreachable"
	}
	if e.Host != "" {
		return fmt.Sprintf("endpoint unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("endpoint unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// Hint returns a short remediation message for typed provider errors, or
// "" when err is not one of them.
func Hint(err error) string {
	var (
		auth     *AuthError
		rate     *RateLimitError
		notFound *ModelNotFoundError
		quota    *QuotaExceededError
		server   *ServerError
		down     *UnreachableError
		bad      *BadRequestError
	)
	switch {
	case errors.As(err, &auth):
		return "check the API key for the selected provider"
	case errors.As(err, &rate):
		if rate.RetryAfter > 0 {
			return fmt.Sprintf("rate limited; retry in about %ds", int(rate.RetryAfter.Seconds()))
		}
		return "rate limited; wait a moment and retry"
	case errors.As(err, &notFound):
		return "the model is not available; run 'vizloom models show' to list known models"
	case errors.As(err, &quota):
		return "quota or billing limit reached for this key"
	case errors.As(err, &server):
		return "the provider returned a server error; try again later"
	case errors.As(err, &down):
		return "the provider endpoint is unreachable; check your network"
	case errors.As(err, &bad):
		return "the provider rejected the request; try a smaller dataset preview or another model"
	}
	return ""
}
