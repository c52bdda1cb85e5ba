package dramabox

import (
	"errors"
	"fmt"
	"net/http"
)

// UpstreamError indicates a content API failure (network error, non-2xx
// status, malformed payload or success=false envelope).
type UpstreamError struct {
	Endpoint  string
	Status    int // HTTP status from upstream; 0 when no response was received
	Message   string
	Cause     error
	Retryable bool // Whether the operation can be retried
	Timeout   bool // The upstream did not answer in time
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("upstream error (%s)", e.Endpoint)
	if e.Status != 0 {
		msg += fmt.Sprintf(": %d", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// IsRetryableStatus reports whether an upstream HTTP status is worth retrying.
func IsRetryableStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}

// IsUpstreamTimeout reports whether err is an upstream timeout.
func IsUpstreamTimeout(err error) bool {
	var upstreamErr *UpstreamError
	return errors.As(err, &upstreamErr) && upstreamErr.Timeout
}

// CacheError indicates a cache operation failure.
type CacheError struct {
	Message string
	Cause   error
}

func (e *CacheError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cache error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("cache error: %s", e.Message)
}

func (e *CacheError) Unwrap() error {
	return e.Cause
}

// BundleError indicates a locale bundle could not be loaded or is invalid.
type BundleError struct {
	Lang    Language
	Message string
	Cause   error
}

func (e *BundleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("bundle error (%s): %s: %v", e.Lang, e.Message, e.Cause)
	}
	return fmt.Sprintf("bundle error (%s): %s", e.Lang, e.Message)
}

func (e *BundleError) Unwrap() error {
	return e.Cause
}

// CountMismatchError indicates the translator returned a different number of
// texts than requested.
type CountMismatchError struct {
	Expected int
	Got      int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("translation count mismatch: expected %d, got %d", e.Expected, e.Got)
}

// ProviderError indicates a machine translation backend failure.
type ProviderError struct {
	Message   string
	Cause     error
	Retryable bool // Whether the operation can be retried
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// ProcessorError indicates a content processing failure (parse error, etc.).
type ProcessorError struct {
	Message     string
	Cause       error
	ContentType string // The type of content that failed to process
}

func (e *ProcessorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("processor error (%s): %s: %v", e.ContentType, e.Message, e.Cause)
	}
	return fmt.Sprintf("processor error (%s): %s", e.ContentType, e.Message)
}

func (e *ProcessorError) Unwrap() error {
	return e.Cause
}
