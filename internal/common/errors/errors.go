// Package errors provides standardized error handling for the vendor
// catalog pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Upstream (Airbase) failures.
	ErrCodeUpstreamFetchFailed ErrorCode = "UPSTREAM_FETCH_FAILED"
	ErrCodeUpstreamRateLimited ErrorCode = "UPSTREAM_RATE_LIMITED"
	ErrCodeInvalidResponse     ErrorCode = "INVALID_RESPONSE"
	ErrCodeMissingCredentials  ErrorCode = "MISSING_CREDENTIALS"

	// Schema and record-level failures.
	ErrCodeSchemaMissingField ErrorCode = "SCHEMA_MISSING_FIELD"
	ErrCodeResolutionFailed   ErrorCode = "RESOLUTION_FAILED"
	ErrCodeVendorInvalid      ErrorCode = "VENDOR_VALIDATION_FAILED"

	// Storage failures.
	ErrCodeCacheReadFailed  ErrorCode = "CACHE_READ_FAILED"
	ErrCodeCacheWriteFailed ErrorCode = "CACHE_WRITE_FAILED"
	ErrCodeOptionReadFailed ErrorCode = "OPTION_READ_FAILED"
	ErrCodeOptionSaveFailed ErrorCode = "OPTION_SAVE_FAILED"

	// Search mirror failures.
	ErrCodeIndexWriteFailed ErrorCode = "INDEX_WRITE_FAILED"

	// Alerting failures.
	ErrCodeAlertSendFailed ErrorCode = "ALERT_SEND_FAILED"
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

// ==========================
// 2. Error Constructors
// ==========================

// NewUpstreamFetchFailedError creates a retryable upstream transport error.
func NewUpstreamFetchFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamFetchFailed,
		Message:   "Airbase request failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamRateLimitedError creates a retryable rate-limit error.
func NewUpstreamRateLimitedError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamRateLimited,
		Message:   "Airbase rate limit exceeded",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidResponseError creates a non-retryable malformed-payload error.
func NewInvalidResponseError(operation, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidResponse,
		Message:   "Airbase returned an unusable payload",
		Details:   fmt.Sprintf("operation: %s, %s", operation, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingCredentialsError creates a non-retryable configuration error.
func NewMissingCredentialsError(setting string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingCredentials,
		Message:   "Airbase credentials are not configured",
		Details:   fmt.Sprintf("setting: %s", setting),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSchemaMissingFieldError creates a non-retryable schema gate error.
// The missing map carries field label to expected identifier (empty when
// unknown) so the report can be persisted for operators.
func NewSchemaMissingFieldError(missing map[string]string) *StandardError {
	labels := make([]string, 0, len(missing))
	for label := range missing {
		labels = append(labels, label)
	}
	meta := make(map[string]interface{}, len(missing))
	for label, id := range missing {
		meta[label] = id
	}
	return &StandardError{
		Code:      ErrCodeSchemaMissingField,
		Message:   "Required fields are missing from the vendors table schema",
		Details:   fmt.Sprintf("fields: %s", strings.Join(labels, ", ")),
		Retryable: false,
		Metadata:  meta,
		Timestamp: time.Now().UTC(),
	}
}

// NewResolutionFailedError creates a retryable linked-record resolution error.
func NewResolutionFailedError(table string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeResolutionFailed,
		Message:   "Linked record resolution failed",
		Details:   fmt.Sprintf("table: %s, error: %s", table, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewVendorInvalidError creates a non-retryable vendor validation error.
func NewVendorInvalidError(vendorID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeVendorInvalid,
		Message:   "Normalized vendor failed validation",
		Details:   fmt.Sprintf("vendorId: %s, %s", vendorID, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheReadFailedError creates a retryable transient-cache read error.
func NewCacheReadFailedError(key string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheReadFailed,
		Message:   "Transient cache read failed",
		Details:   fmt.Sprintf("key: %s, error: %s", key, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheWriteFailedError creates a retryable transient-cache write error.
func NewCacheWriteFailedError(key string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheWriteFailed,
		Message:   "Transient cache write failed",
		Details:   fmt.Sprintf("key: %s, error: %s", key, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewOptionReadFailedError creates a retryable durable-option read error.
func NewOptionReadFailedError(name string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeOptionReadFailed,
		Message:   "Option store read failed",
		Details:   fmt.Sprintf("option: %s, error: %s", name, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewOptionSaveFailedError creates a retryable durable-option write error.
func NewOptionSaveFailedError(name string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeOptionSaveFailed,
		Message:   "Option store write failed",
		Details:   fmt.Sprintf("option: %s, error: %s", name, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewIndexWriteFailedError creates a retryable search mirror error.
func NewIndexWriteFailedError(index string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeIndexWriteFailed,
		Message:   "Elasticsearch mirror update failed",
		Details:   fmt.Sprintf("index: %s, error: %s", index, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAlertSendFailedError creates a retryable alert delivery error.
func NewAlertSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAlertSendFailed,
		Message:   "Operator alert delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsRetryable reports whether err is a StandardError marked retryable.
// Unknown error types are treated as retryable transport faults.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return err != nil
}

// CodeOf extracts the ErrorCode from err, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "UPSTREAM") || strings.Contains(codeStr, "RESPONSE"):
		return "UPSTREAM"
	case strings.Contains(codeStr, "SCHEMA") || strings.Contains(codeStr, "RESOLUTION"):
		return "RESOLUTION"
	case strings.Contains(codeStr, "CACHE") || strings.Contains(codeStr, "OPTION"):
		return "STORAGE"
	case strings.Contains(codeStr, "INDEX"):
		return "SEARCH"
	case strings.Contains(codeStr, "ALERT"):
		return "ALERTING"
	case strings.Contains(codeStr, "CREDENTIALS") || strings.Contains(codeStr, "VALIDATION"):
		return "CONFIGURATION"
	default:
		return "OTHER"
	}
}
