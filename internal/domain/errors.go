package domain

import "errors"

// Kind is the stable classification of a saga failure.
type Kind string

const (
	KindInvalidRequest          Kind = "INVALID_REQUEST"
	KindInsufficientSeats       Kind = "INSUFFICIENT_SEATS"
	KindAmountMismatch          Kind = "AMOUNT_MISMATCH"
	KindUserMismatch            Kind = "USER_MISMATCH"
	KindBookingExpired          Kind = "BOOKING_EXPIRED"
	KindDuplicatePaymentAttempt Kind = "DUPLICATE_PAYMENT_ATTEMPT"
	KindBookingNotPayable       Kind = "BOOKING_NOT_PAYABLE"
	KindNotFound                Kind = "NOT_FOUND"
	KindUpstreamUnavailable     Kind = "UPSTREAM_UNAVAILABLE"
	KindInternal                Kind = "INTERNAL_ERROR"
)

// Class tells the boundary layer how to surface a Kind.
type Class int

const (
	ClassInternal Class = iota
	ClassClientFault
	ClassNotFound
	ClassUnavailable
)

func (k Kind) Class() Class {
	switch k {
	case KindInvalidRequest, KindInsufficientSeats, KindAmountMismatch, KindUserMismatch,
		KindBookingExpired, KindDuplicatePaymentAttempt, KindBookingNotPayable:
		return ClassClientFault
	case KindNotFound:
		return ClassNotFound
	case KindUpstreamUnavailable:
		return ClassUnavailable
	default:
		return ClassInternal
	}
}

// Error carries a Kind, a caller-safe message and an optional internal cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrBookingExpired)
// holds for wrapped and re-messaged variants.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Wrap returns a copy of e carrying cause for logging.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Err: cause}
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	ErrInvalidRequest          = NewError(KindInvalidRequest, "invalid request")
	ErrMissingIdempotencyKey   = NewError(KindInvalidRequest, "idempotency key missing")
	ErrInsufficientSeats       = NewError(KindInsufficientSeats, "not enough seats available")
	ErrAmountMismatch          = NewError(KindAmountMismatch, "the amount of payment doesn't match")
	ErrUserMismatch            = NewError(KindUserMismatch, "the user corresponding to this payment doesn't match")
	ErrBookingExpired          = NewError(KindBookingExpired, "the booking has expired")
	ErrDuplicatePaymentAttempt = NewError(KindDuplicatePaymentAttempt, "cannot retry a completed operation")
	ErrBookingNotPayable       = NewError(KindBookingNotPayable, "booking is not awaiting payment")
	ErrBookingNotFound         = NewError(KindNotFound, "booking not found")
	ErrFlightNotFound          = NewError(KindNotFound, "flight not found")
	ErrUpstreamUnavailable     = NewError(KindUpstreamUnavailable, "flight service unavailable")
	ErrInternal                = NewError(KindInternal, "something went wrong")
)

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Classify turns any error into the *Error a caller may see. Domain errors keep
// their kind and message; everything else becomes ErrInternal with the cause
// attached for logging only.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.Wrap(err)
}

func IsClientFault(err error) bool {
	return KindOf(err).Class() == ClassClientFault
}

func IsNotFound(err error) bool {
	return KindOf(err).Class() == ClassNotFound
}
