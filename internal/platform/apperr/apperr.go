// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

/*
Package apperr defines the centralized error handling framework for Procura.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and high-level HTTP responses.

Architecture:

  - AppError: A struct containing machine-readable ErrorCode and user-friendly messages.
  - Codes: Stable identifiers the marketplace clients branch on (e.g. "ACCOUNT_LOCKED"
    renders a countdown, "COOLDOWN_ACTIVE" renders a reapply-in-N-days notice).
  - Mapping: Explicit mapping from AppError to standard HTTP Status Codes.

Every error that leaves the service layer should be wrapped as an [AppError] to ensure
consistent API responses.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// # Stable Error Codes

// Machine-readable codes shared between the identity core and API clients.
// These are part of the public contract: never rename, only add.
const (
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeUserNotVerified      = "USER_NOT_VERIFIED"
	CodeUserInactive         = "USER_INACTIVE"
	CodeUserAlreadyExists    = "USER_ALREADY_EXISTS"
	CodeAccountLocked        = "ACCOUNT_LOCKED"
	CodeSupplierNotVerified  = "SUPPLIER_NOT_VERIFIED"
	CodeAlreadyVerified      = "ALREADY_VERIFIED"
	CodeRequestPending       = "REQUEST_PENDING"
	CodeUnderReview          = "UNDER_REVIEW"
	CodeCooldownActive       = "COOLDOWN_ACTIVE"
	CodeRoleNotHeld          = "ROLE_NOT_HELD"
	CodeAdminExclusive       = "ADMIN_EXCLUSIVE"
	CodeLastRole             = "LAST_ROLE"
	CodeInvalidOTP           = "INVALID_OTP"
	CodeCredentialsExpired   = "CREDENTIALS_EXPIRED"
	CodePasswordChangeNeeded = "PASSWORD_CHANGE_REQUIRED"
	CodePasswordReuse        = "PASSWORD_REUSE"
	CodeRoleSelectionNeeded  = "ROLE_SELECTION_REQUIRED"
)

// AppError is the canonical error type for the Procura API.
//
// It carries an HTTP status code, a machine-readable code, a client-safe
// message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., SQL queries).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "NOT_FOUND", "CONFLICT").
	Code string `json:"code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCode overrides the machine-readable code while keeping status and message.
//
// Example:
//
//	apperr.Forbidden("Admins cannot switch roles").WithCode(apperr.CodeAdminExclusive)
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// # Client Errors (4xx)

// NotFound creates a 404 [AppError] for a named resource.
//
// Example:
//
//	apperr.NotFound("Verification") // Returns "Verification not found"
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

// Unauthorized creates a 401 [AppError].
func Unauthorized(msg string) *AppError {
	return &AppError{
		Code:       "UNAUTHORIZED",
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a 403 [AppError].
func Forbidden(msg string) *AppError {
	return &AppError{
		Code:       "FORBIDDEN",
		Message:    msg,
		HTTPStatus: http.StatusForbidden,
	}
}

// Conflict creates a 409 [AppError] for duplicate or unique-constraint violations.
func Conflict(msg string) *AppError {
	return &AppError{
		Code:       "CONFLICT",
		Message:    msg,
		HTTPStatus: http.StatusConflict,
	}
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// RateLimited creates a 429 [AppError].
func RateLimited(retryAfterSeconds int) *AppError {
	return &AppError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// # Identity & Access Errors

// InvalidCredentials creates the generic 401 used for unknown identifiers and
// wrong passwords alike, so responses never reveal whether the account exists.
func InvalidCredentials() *AppError {
	return &AppError{
		Code:       CodeInvalidCredentials,
		Message:    "Invalid login credentials",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// AccountLocked creates a 403 [AppError] with a remaining-time hint.
func AccountLocked(minutesRemaining int) *AppError {
	return &AppError{
		Code:       CodeAccountLocked,
		Message:    fmt.Sprintf("Account locked. Try again in %d minutes.", minutesRemaining),
		HTTPStatus: http.StatusForbidden,
	}
}

// # Server Errors (5xx)

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// ServiceUnavailable creates a 503 [AppError] for maintenance mode.
func ServiceUnavailable(msg string) *AppError {
	return &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    msg,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// HasCode reports whether err is an [*AppError] carrying the given code.
func HasCode(err error, code string) bool {
	ae := As(err)
	return ae != nil && ae.Code == code
}
