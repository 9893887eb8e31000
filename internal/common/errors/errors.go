// Package errors provides the standardized error type shared by the intake,
// review and evaluation services.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrCodeDuplicateApplication   ErrorCode = "DUPLICATE_APPLICATION"
	ErrCodeApplicationNotFound    ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeStoreOperationFailed   ErrorCode = "STORE_OPERATION_FAILED"
	ErrCodeEvaluationParseFailed  ErrorCode = "EVALUATION_PARSE_FAILED"
	ErrCodeExternalServiceError   ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeExternalServiceTimeout ErrorCode = "EXTERNAL_SERVICE_TIMEOUT"
	ErrCodeBatchInProgress        ErrorCode = "BATCH_IN_PROGRESS"
	ErrCodeUnauthorized           ErrorCode = "UNAUTHORIZED"
	ErrCodeRateLimited            ErrorCode = "RATE_LIMITED"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// FieldError describes a single rejected form field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Field error codes.
const (
	FieldMissingRequired = "MISSING_REQUIRED"
	FieldInvalidFormat   = "INVALID_FORMAT"
	FieldDuplicate       = "DUPLICATE"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Fields    []FieldError           `json:"fields,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches any StandardError carrying the same code, so sentinels like
// ErrNotFound work with errors.Is.
func (e *StandardError) Is(target error) bool {
	var other *StandardError
	if !stderrors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrValidation      = &StandardError{Code: ErrCodeValidationFailed}
	ErrDuplicate       = &StandardError{Code: ErrCodeDuplicateApplication}
	ErrNotFound        = &StandardError{Code: ErrCodeApplicationNotFound}
	ErrStore           = &StandardError{Code: ErrCodeStoreOperationFailed}
	ErrEvaluationParse = &StandardError{Code: ErrCodeEvaluationParseFailed}
	ErrExternalService = &StandardError{Code: ErrCodeExternalServiceError}
	ErrExternalTimeout = &StandardError{Code: ErrCodeExternalServiceTimeout}
	ErrBatchInProgress = &StandardError{Code: ErrCodeBatchInProgress}
	ErrUnauthorized    = &StandardError{Code: ErrCodeUnauthorized}
	ErrRateLimited     = &StandardError{Code: ErrCodeRateLimited}
)

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError creates a non-retryable validation error.
func NewValidationError(details string, fields ...FieldError) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Validation failed",
		Details:   details,
		Retryable: false,
		Fields:    fields,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateApplicationError reports an identifier that already has an application.
func NewDuplicateApplicationError(bitsID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateApplication,
		Message:   "An application with this BITS ID already exists",
		Details:   fmt.Sprintf("bitsId: %s", bitsID),
		Retryable: false,
		Fields: []FieldError{{
			Field:   "bits_id",
			Code:    FieldDuplicate,
			Message: "An application with this BITS ID already exists",
		}},
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError reports a lookup that matched no application.
func NewNotFoundError(field, value string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicationNotFound,
		Message:   "Application not found",
		Details:   fmt.Sprintf("%s: %s", field, value),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreError wraps a failure from the persistence backend.
func NewStoreError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreOperationFailed,
		Message:   "Store operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %v", operation, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewEvaluationParseError reports scoring model output that could not be used.
func NewEvaluationParseError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEvaluationParseFailed,
		Message:   "Could not parse evaluation response",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExternalServiceError,
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExternalServiceTimeout,
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewBatchInProgressError is returned when another batch run holds the lock.
func NewBatchInProgressError() *StandardError {
	return &StandardError{
		Code:      ErrCodeBatchInProgress,
		Message:   "A batch evaluation is already running",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewUnauthorizedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnauthorized,
		Message:   "Authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewRateLimitedError() *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   "Too many requests",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// AsStandard normalizes any error to a StandardError.
func AsStandard(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// IsCode reports whether err is a StandardError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Code == code
}

// HTTPStatus maps error codes to response statuses.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeDuplicateApplication, ErrCodeBatchInProgress:
		return http.StatusConflict
	case ErrCodeApplicationNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeEvaluationParseFailed, ErrCodeExternalServiceError:
		return http.StatusBadGateway
	case ErrCodeExternalServiceTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION"), strings.Contains(codeStr, "DUPLICATE"):
		return "VALIDATION"
	case strings.Contains(codeStr, "STORE"), strings.Contains(codeStr, "NOT_FOUND"):
		return "STORE"
	case strings.Contains(codeStr, "EVALUATION"), strings.Contains(codeStr, "EXTERNAL"), strings.Contains(codeStr, "BATCH"):
		return "EVALUATION"
	case strings.Contains(codeStr, "UNAUTHORIZED"), strings.Contains(codeStr, "RATE_LIMITED"):
		return "AUTH"
	default:
		return "UNKNOWN"
	}
}
