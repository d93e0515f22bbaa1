package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
// The prefix decides the HTTP status; see HTTPStatus.
type ErrorCode string

// Handlers and services MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField    ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidJSON     ErrorCode = "validation_invalid_json"
	ErrCodeValidationInvalidPlan     ErrorCode = "validation_invalid_plan"
	ErrCodeValidationInvalidCurrency ErrorCode = "validation_invalid_currency"
	ErrCodeValidationInvalidMetadata ErrorCode = "validation_invalid_metadata"
	ErrCodeValidationInvalidInput    ErrorCode = "validation_invalid_input"

	// Auth (401)
	ErrCodeAuthTokenMissing ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"
	ErrCodeAuthTokenExpired ErrorCode = "auth_token_expired"
	ErrCodeAuthSignature    ErrorCode = "auth_signature_invalid"

	// Permission (403)
	ErrCodePermissionSuspended    ErrorCode = "permission_account_suspended"
	ErrCodePermissionSubscription ErrorCode = "permission_subscription_required"
	ErrCodePermissionListingLimit ErrorCode = "permission_listing_limit"
	ErrCodePermissionRole         ErrorCode = "permission_role_insufficient"
	ErrCodePermissionAdmin        ErrorCode = "permission_admin_required"

	// Rate limiting (429)
	ErrCodeRateLimit ErrorCode = "rate_limit_exceeded"

	// Not Found (404)
	ErrCodeNotFoundAccount      ErrorCode = "not_found_account"
	ErrCodeNotFoundSubscription ErrorCode = "not_found_subscription"
	ErrCodeNotFoundListing      ErrorCode = "not_found_listing"
	ErrCodeNotFoundSession      ErrorCode = "not_found_checkout_session"
	ErrCodeNotFoundPushConfig   ErrorCode = "not_found_push_config"

	// Conflict (409)
	ErrCodeConflictReferralCode ErrorCode = "conflict_referral_code"
	ErrCodeConflictRole         ErrorCode = "conflict_role_immutable"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB            ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected    ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamPayment       ErrorCode = "upstream_payment_failed"
	ErrCodeUpstreamEmailProvider ErrorCode = "upstream_email_provider_unavailable"
	ErrCodeUpstreamPush          ErrorCode = "upstream_push_unavailable"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its HTTP status code.
// Unrecognized codes fall back to 500.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden
	case strings.HasPrefix(s, "rate_limit_"):
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the error type shared by handlers, services and repositories.
// It carries a machine-readable code, a message safe to show to clients,
// and the underlying cause for logs.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// IsCode reports whether err wraps an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Code == code
}
