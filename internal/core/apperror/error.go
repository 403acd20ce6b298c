// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Validation errors (400)
	CodeValidation          = "VALIDATION_ERROR"
	CodePercentageMismatch  = "PERCENTAGE_MISMATCH"
	CodeInvalidTarget       = "INVALID_TARGET"
	CodeMissingRequiredLink = "MISSING_REQUIRED_LINK"

	// Business rule violations (422)
	CodeBusinessRule         = "BUSINESS_RULE_VIOLATION"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeInsufficientQuantity = "INSUFFICIENT_QUANTITY"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict          = "CONFLICT"
	CodeDuplicate         = "DUPLICATE_ENTRY"
	CodeIdempotency       = "IDEMPOTENCY_CONFLICT"
	CodeRecomputeConflict = "RECOMPUTE_CONFLICT"
	CodeStaleStatement    = "STALE_STATEMENT"
)

// AppError is the standard error type for the service.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (percentages, ids, quantities)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// IsTransient reports whether the caller may retry the same request.
func (e *AppError) IsTransient() bool {
	return e.Code == CodeRecomputeConflict || e.Code == CodeStaleStatement
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewPercentageMismatch is returned when allocation shares do not add up to 100%.
func NewPercentageMismatch(sum string) *AppError {
	return &AppError{
		Code:       CodePercentageMismatch,
		Message:    "allocation percentages must sum to 100",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"sum": sum},
	}
}

// NewInvalidTarget is returned when an allocation references an unknown entity.
func NewInvalidTarget(targetType string, targetID any) *AppError {
	return &AppError{
		Code:       CodeInvalidTarget,
		Message:    fmt.Sprintf("allocation target %s does not exist", targetType),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"target_type": targetType, "target_id": targetID},
	}
}

// NewMissingRequiredLink is returned when a category requires a lot link that is absent.
func NewMissingRequiredLink(category, link string) *AppError {
	return &AppError{
		Code:       CodeMissingRequiredLink,
		Message:    fmt.Sprintf("category %s requires a %s link", category, link),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"category": category, "link": link},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInvalidTransition creates a lifecycle violation error.
func NewInvalidTransition(entity, from, to string) *AppError {
	return &AppError{
		Code:       CodeInvalidTransition,
		Message:    fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"from": from, "to": to},
	}
}

// NewInsufficientQuantity creates a head count shortage error
func NewInsufficientQuantity(lotID string, requested, available int) *AppError {
	return &AppError{
		Code:       CodeInsufficientQuantity,
		Message:    "Insufficient head count",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"lot_id":    lotID,
			"requested": requested,
			"available": available,
		},
	}
}

// NewRecomputeConflict is returned when a concurrent recompute won the optimistic check.
func NewRecomputeConflict(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeRecomputeConflict,
		Message:    "A concurrent recompute is in progress. Please retry.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewStaleStatement signals that a statement's inputs changed after it was generated.
func NewStaleStatement(month, scope string) *AppError {
	return &AppError{
		Code:       CodeStaleStatement,
		Message:    "statement inputs changed after generation",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"month": month, "scope": scope},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused for
// a different request (different user/operation/body hash).
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key mismatch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409) for a unique constraint.
func NewDuplicate(entity, constraint string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s already exists", entity),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "constraint": constraint},
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode checks whether any AppError in the chain carries code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsRecomputeConflict checks if error is CodeRecomputeConflict
func IsRecomputeConflict(err error) bool {
	return HasCode(err, CodeRecomputeConflict)
}

// IsStaleStatement checks if error is CodeStaleStatement
func IsStaleStatement(err error) bool {
	return HasCode(err, CodeStaleStatement)
}
