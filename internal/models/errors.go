package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the seat map, hold manager and session layer.
var (
	ErrHoldExpired       = errors.New("hold expired")
	ErrHoldNotFound      = errors.New("hold not found")
	ErrPolicyNotFound    = errors.New("no effective fare policy for trip")
	ErrPaymentFailed     = errors.New("payment declined by gateway")
	ErrSessionNotFound   = errors.New("booking session not found")
	ErrTripNotFound      = errors.New("trip not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrInvalidTransition = errors.New("operation not allowed in current session state")
	ErrSeatUnknown       = errors.New("seat does not exist on this trip")
)

// SeatConflictError is returned when one or more requested seats are no
// longer FREE. The hold is all-or-nothing, so no seats were held.
type SeatConflictError struct {
	TripID      string
	Unavailable []string
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("seats not available on trip %s: %s", e.TripID, strings.Join(e.Unavailable, ", "))
}

// InvalidDiscountError fails the whole quote; unknown or expired codes
// are never silently ignored.
type InvalidDiscountError struct {
	Code   string
	Reason string // "unknown" or "expired"
}

func (e *InvalidDiscountError) Error() string {
	return fmt.Sprintf("invalid discount code %q: %s", e.Code, e.Reason)
}

// QuoteMismatchError is raised when the captured payment amount does not
// equal the frozen quote. The charge is automatically refunded.
type QuoteMismatchError struct {
	Quoted   float64
	Captured float64
}

func (e *QuoteMismatchError) Error() string {
	return fmt.Sprintf("captured amount %.2f does not match quoted amount %.2f", e.Captured, e.Quoted)
}
