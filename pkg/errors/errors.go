package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrRateLimited        = errors.New("rate limited")
	ErrInternal           = errors.New("internal error")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`

	// RetryAfter is set on rate-limit errors so clients can back off.
	RetryAfter *time.Time `json:"retry_after,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return &AppError{
		Code:    "ALREADY_EXISTS",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Status:  http.StatusConflict,
		Err:     ErrAlreadyExists,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// WeakPassword creates a 400 error for a password failing the complexity policy.
func WeakPassword(message string) *AppError {
	return &AppError{
		Code:    "WEAK_PASSWORD",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// InvalidCredentials creates a 401 error. The message is deliberately generic
// so callers cannot distinguish an unknown email from a wrong password.
func InvalidCredentials() *AppError {
	return &AppError{
		Code:    "INVALID_CREDENTIALS",
		Message: "invalid email or password",
		Status:  http.StatusUnauthorized,
		Err:     ErrInvalidCredentials,
	}
}

// Unauthorized creates a 401 error with an explicit message.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrInvalidCredentials,
	}
}

// WrongLoginType creates a 403 error for an account authenticating through the
// other domain's login endpoint.
func WrongLoginType() *AppError {
	return &AppError{
		Code:    "WRONG_LOGIN_TYPE",
		Message: "this account cannot sign in here",
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// InvalidUserType creates a 403 error for a live session of the wrong domain
// presented to a gated route.
func InvalidUserType() *AppError {
	return &AppError{
		Code:    "INVALID_USER_TYPE",
		Message: "session is not valid for this resource",
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// CsrfFailed creates a 403 error for a missing or mismatched CSRF token.
func CsrfFailed() *AppError {
	return &AppError{
		Code:    "CSRF_FAILED",
		Message: "missing or invalid CSRF token",
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// RateLimited creates a 429 error carrying the time after which the client
// may retry.
func RateLimited(retryAfter time.Time) *AppError {
	return &AppError{
		Code:       "RATE_LIMITED",
		Message:    "too many attempts, try again later",
		Status:     http.StatusTooManyRequests,
		Err:        ErrRateLimited,
		RetryAfter: &retryAfter,
	}
}

// PinNotFound creates a 401 error for a verify call with no outstanding PIN.
func PinNotFound() *AppError {
	return &AppError{
		Code:    "PIN_NOT_FOUND",
		Message: "no verification code found for this email",
		Status:  http.StatusUnauthorized,
		Err:     ErrInvalidCredentials,
	}
}

// PinExpired creates a 401 error for a verify call past the PIN expiry.
func PinExpired() *AppError {
	return &AppError{
		Code:    "PIN_EXPIRED",
		Message: "verification code has expired",
		Status:  http.StatusUnauthorized,
		Err:     ErrInvalidCredentials,
	}
}

// PinMismatch creates a 401 error for a verify call with the wrong code.
func PinMismatch() *AppError {
	return &AppError{
		Code:    "PIN_MISMATCH",
		Message: "incorrect verification code",
		Status:  http.StatusUnauthorized,
		Err:     ErrInvalidCredentials,
	}
}

// Internal creates a 500 error. The wrapped error is logged server-side and
// never surfaces in the response body.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
