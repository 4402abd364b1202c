// Package services defines the business logic for bookings, availability,
// and abuse control. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"
	"fmt"

	"github.com/danovmusic/go-booking-backend/internal/domain"
)

// Booking-related errors.
var (
	// ErrBookingNotFound indicates that the requested booking does not exist.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrDateUnavailable is returned when the requested date is blocked,
	// a holiday, under maintenance, or outside the bookable window.
	ErrDateUnavailable = errors.New("date not available")

	// ErrSlotUnavailable is returned when the requested time cannot be
	// reserved: the cell is blocked, already booked, or was won by a
	// concurrent booking.
	ErrSlotUnavailable = errors.New("time slot not available")

	// ErrInvalidTransition is returned when a status change is not allowed
	// by the booking state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError reports a rejected submission field. Handlers surface the
// field name so the form can highlight it.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AbuseError reports a submission rejected by the anti-abuse gate. Kind
// matches the audit record written for the attempt.
type AbuseError struct {
	Kind   domain.AttemptKind
	Reason string
}

// Error implements the error interface.
func (e *AbuseError) Error() string {
	return fmt.Sprintf("submission rejected (%s): %s", e.Kind, e.Reason)
}

// AsValidation unwraps err into a *ValidationError if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// AsAbuse unwraps err into an *AbuseError if it is one.
func AsAbuse(err error) (*AbuseError, bool) {
	var ae *AbuseError
	ok := errors.As(err, &ae)
	return ae, ok
}
