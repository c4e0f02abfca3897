package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into one of the domain's failure families
type Kind int

const (
	KindValidation Kind = iota
	KindAuthorization
	KindNotFound
	KindConflict
	KindRateLimited
	KindProvider
	KindInternal
)

// Error is the single error type crossing layer boundaries. Handlers map it
// to an HTTP status + code + message; the fan-out layer maps it to an
// `error` event with the same code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Status  int // HTTP status carried on the value, not derived per call site

	// Optional per-kind fields
	RetryAfter    int    // seconds, rate-limited only
	SeatID        string // conflict on a specific seat
	CurrentStatus string // conflict: the status that blocked the transition
	ProviderCode  int    // Payme/Click numeric catalog code

	Err error // wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on the machine code so call sites can compare against sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New builds an error of the given kind with an explicit HTTP status
func New(kind Kind, code, message string, status int) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Status: status}
}

// Validation constructs a validation error
func Validation(message string) *Error {
	return New(KindValidation, CodeValidationError, message, http.StatusBadRequest)
}

// Unauthorized constructs an authorization error
func Unauthorized(message string) *Error {
	return New(KindAuthorization, CodeUnauthorized, message, http.StatusUnauthorized)
}

// Forbidden constructs a role-insufficient error
func Forbidden(message string) *Error {
	return New(KindAuthorization, CodeForbidden, message, http.StatusForbidden)
}

// NotFound constructs a not-found error for the named entity code
func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message, http.StatusNotFound)
}

// Conflict constructs a conflict error for the named code
func Conflict(code, message string) *Error {
	return New(KindConflict, code, message, http.StatusConflict)
}

// RateLimited constructs a rate-limit error carrying retry-after seconds
func RateLimited(retryAfter int) *Error {
	e := New(KindRateLimited, CodeRateLimitExceeded, "too many requests", http.StatusTooManyRequests)
	e.RetryAfter = retryAfter
	return e
}

// Internal wraps an unexpected failure; the message stays generic in responses
func Internal(err error) *Error {
	return &Error{
		Kind:    KindInternal,
		Code:    CodeInternal,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// WithSeat annotates a conflict with the offending seat
func (e *Error) WithSeat(seatID string) *Error {
	e.SeatID = seatID
	return e
}

// WithCurrentStatus annotates a conflict with the blocking status
func (e *Error) WithCurrentStatus(status string) *Error {
	e.CurrentStatus = status
	return e
}

// WithCause attaches the underlying error
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// Machine codes
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeSeatNotFound        = "SEAT_NOT_FOUND"
	CodeBookingNotFound     = "BOOKING_NOT_FOUND"
	CodePaymentNotFound     = "PAYMENT_NOT_FOUND"
	CodeSessionNotActive    = "SESSION_NOT_ACTIVE"
	CodeSeatNotAvailable    = "SEAT_NOT_AVAILABLE"
	CodeSeatAlreadySelected = "SEAT_ALREADY_SELECTED"
	CodeBookingNotPending   = "BOOKING_NOT_PENDING"
	CodeAlreadyConfirmed    = "ALREADY_CONFIRMED"
	CodeAlreadyCancelled    = "ALREADY_CANCELLED"
	CodeAlreadyRefunded     = "ALREADY_REFUNDED"
	CodeMaxSeatsExceeded    = "MAX_SEATS_EXCEEDED"
	CodeConflict            = "CONFLICT"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeSignCheckFailed     = "SIGN_CHECK_FAILED"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeInternal            = "INTERNAL_ERROR"
)

// Common sentinels for errors.Is comparisons
var (
	ErrSessionNotFound     = NotFound(CodeSessionNotFound, "session not found")
	ErrSeatNotFound        = NotFound(CodeSeatNotFound, "seat not found")
	ErrBookingNotFound     = NotFound(CodeBookingNotFound, "booking not found")
	ErrPaymentNotFound     = NotFound(CodePaymentNotFound, "payment not found")
	ErrSessionNotActive    = Conflict(CodeSessionNotActive, "session is not active")
	ErrSeatNotAvailable    = Conflict(CodeSeatNotAvailable, "seat is not available")
	ErrSeatAlreadySelected = Conflict(CodeSeatAlreadySelected, "seat is already selected by another user")
	ErrBookingNotPending   = Conflict(CodeBookingNotPending, "booking is not pending")
	ErrMaxSeatsExceeded    = Conflict(CodeMaxSeatsExceeded, "too many seats requested")
)

// FromError normalizes any error into an *Error, defaulting to internal
func FromError(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
