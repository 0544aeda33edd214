package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error represents an application error carrying the HTTP status it maps to.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the same kind of application error.
// Two errors match when code and message agree, so a wrapped copy of a
// sentinel still satisfies errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrap returns a copy of sentinel that carries err as its cause.
func Wrap(sentinel *Error, err error) *Error {
	return New(sentinel.Code, sentinel.Message, err)
}

// From extracts the application error from err. Anything that is not an
// *Error becomes ErrInternalServer wrapping the original.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(ErrInternalServer, err)
}

// Common error types
var (
	ErrBadRequest         = New(http.StatusBadRequest, "Bad request", nil)
	ErrUnauthorized       = New(http.StatusUnauthorized, "Unauthorized", nil)
	ErrForbidden          = New(http.StatusForbidden, "Forbidden", nil)
	ErrNotFound           = New(http.StatusNotFound, "Not found", nil)
	ErrInternalServer     = New(http.StatusInternalServerError, "Internal server error", nil)
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "Service unavailable", nil)
)

// Validation error types
var (
	ErrInvalidInput       = New(http.StatusBadRequest, "Invalid input", nil)
	ErrInvalidQuantity    = New(http.StatusBadRequest, "Quantity must be a positive integer", nil)
	ErrInvalidCoordinates = New(http.StatusBadRequest, "Latitude must be within [-90, 90] and longitude within [-180, 180]", nil)
	ErrInvalidStatus      = New(http.StatusBadRequest, "Invalid order status", nil)
)

// Authentication error types
var (
	ErrInvalidToken = New(http.StatusUnauthorized, "Invalid token", nil)
	ErrTokenExpired = New(http.StatusUnauthorized, "Token expired", nil)
)

// Lookup error types
var (
	ErrProductNotFound  = New(http.StatusNotFound, "Product not found", nil)
	ErrCartNotFound     = New(http.StatusNotFound, "Cart not found", nil)
	ErrProductNotInCart = New(http.StatusNotFound, "Product not in cart", nil)
	ErrOrderNotFound    = New(http.StatusNotFound, "Order not found", nil)
)

// Business logic error types
var (
	ErrInsufficientStock = New(http.StatusBadRequest, "Insufficient stock", nil)
	ErrIllegalTransition = New(http.StatusConflict, "Illegal order status transition", nil)
)

// Payment error types
var (
	ErrPaymentGateway       = New(http.StatusBadGateway, "Payment gateway error", nil)
	ErrWebhookSignature     = New(http.StatusBadRequest, "Invalid webhook signature", nil)
	ErrWebhookSecretMissing = New(http.StatusInternalServerError, "Webhook secret not configured", nil)
)
