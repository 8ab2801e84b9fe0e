package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"

	"github.com/daryltucker/agent-bench/internal/model"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindMissingCredential Kind = "missing_credential"
	KindNetwork           Kind = "network"
	KindHTTPStatus        Kind = "http_status"
	KindMalformed         Kind = "malformed"
)

// ErrEmptyHistory is returned when Send is called without any message.
var ErrEmptyHistory = errors.New("conversation history is empty")

// Error is the single error type returned by adapters.
type Error struct {
	Provider   model.ProviderID
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("%s: http status %d: %s", e.Provider, e.StatusCode, e.Message)
	case KindMissingCredential:
		return fmt.Sprintf("%s: missing API key", e.Provider)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %s: %v", e.Provider, e.Kind, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the same request may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork:
		return !errors.Is(e.Err, context.Canceled)
	case KindHTTPStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}

// KindOf extracts the Kind of a provider error, or "" for other errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsMissingCredential reports whether err means the provider has no API key.
func IsMissingCredential(err error) bool {
	return KindOf(err) == KindMissingCredential
}

func malformed(id model.ProviderID, format string, args ...any) *Error {
	return &Error{Provider: id, Kind: KindMalformed, Message: fmt.Sprintf(format, args...)}
}

func httpStatus(id model.ProviderID, code int, body string) *Error {
	return &Error{Provider: id, Kind: KindHTTPStatus, StatusCode: code, Message: clip(body, maxErrorBody)}
}

// classify maps SDK and transport errors onto the adapter error taxonomy.
func classify(id model.ProviderID, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return httpStatus(id, oaErr.StatusCode, oaErr.Error())
	}

	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		return httpStatus(id, anErr.StatusCode, anErr.Error())
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return &Error{Provider: id, Kind: KindNetwork, Message: "request failed", Err: err}
	}

	return &Error{Provider: id, Kind: KindMalformed, Message: "unexpected response", Err: err}
}

const maxErrorBody = 512

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
