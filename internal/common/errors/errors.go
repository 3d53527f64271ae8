// internal/common/errors/errors.go

// Package errors provides standardized error handling for the recommendation engine.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeStoreConnectionFailed ErrorCode = "STORE_CONNECTION_FAILED"
	ErrCodeStoreQueryFailed      ErrorCode = "STORE_QUERY_FAILED"

	ErrCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"

	ErrCodeGenerationTimeout         ErrorCode = "GENERATION_TIMEOUT"
	ErrCodeGenerationFailed          ErrorCode = "GENERATION_FAILED"
	ErrCodeGenerationInvalidResponse ErrorCode = "GENERATION_INVALID_RESPONSE"

	ErrCodeRecommendationFailed ErrorCode = "RECOMMENDATION_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewStoreConnectionFailedError creates a retryable store connection error.
func NewStoreConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreConnectionFailed,
		Message:   "Interaction store connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreQueryFailedError creates a retryable store query error.
func NewStoreQueryFailedError(queryType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreQueryFailed,
		Message:   "Interaction store query error",
		Details:   fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError creates a non-retryable cache tier error. The
// caller is expected to degrade to the local tier, not retry.
func NewCacheUnavailableError(tier string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Cache tier unavailable",
		Details:   fmt.Sprintf("tier: %s, error: %s", tier, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationTimeoutError creates a non-retryable text-generation timeout
// error. The rule-based fallback handles it, not a retry.
func NewGenerationTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeGenerationTimeout,
		Message:   "Text generation timeout",
		Details:   "generation call exceeded the request timeout",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationFailedError creates a non-retryable text-generation error.
func NewGenerationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeGenerationFailed,
		Message:   "Text generation API error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationInvalidResponseError creates a non-retryable error for a
// generator response that failed schema validation.
func NewGenerationInvalidResponseError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeGenerationInvalidResponse,
		Message:   "Text generation response failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecommendationFailedError creates a non-retryable blend failure. The
// hybrid engine converts it into the popularity fallback before it can reach
// a caller.
func NewRecommendationFailedError(stage string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecommendationFailed,
		Message:   "Recommendation blend failed",
		Details:   fmt.Sprintf("stage: %s, error: %s", stage, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeStoreConnectionFailed, ErrCodeStoreQueryFailed:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "STORE"):
		return "STORE"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "GENERATION"):
		return "AI"
	default:
		return "RECOMMENDATION"
	}
}
