package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionState is the current step of the checkout state machine.
// Transitions are forward-only; any state may move to abandoned or
// expired.
type SessionState string

const (
	StateSelectPoints   SessionState = "select_points"
	StateSelectSeats    SessionState = "select_seats"
	StatePassengerInfo  SessionState = "passenger_info"
	StatePaymentPending SessionState = "payment_pending"
	StateConfirmed      SessionState = "confirmed"
	StateAbandoned      SessionState = "abandoned"
	StateExpired        SessionState = "expired"
)

// Terminal reports whether the state machine has finished.
func (s SessionState) Terminal() bool {
	return s == StateConfirmed || s == StateAbandoned || s == StateExpired
}

// Passenger is one manifest entry; exactly one per held seat.
type Passenger struct {
	SeatNumber string `json:"seat_number" db:"seat_number" binding:"required"`
	Name       string `json:"name" db:"name" binding:"required"`
	Age        int    `json:"age" db:"age" binding:"required,min=1,max=120"`
	Gender     string `json:"gender" db:"gender" binding:"required,oneof=male female other"`
	Phone      string `json:"phone,omitempty" db:"phone"`
	Email      string `json:"email,omitempty" db:"email" binding:"omitempty,email"`
}

// BookingSession is the transient aggregate driving one checkout. It is
// created when a rider starts checkout and discarded on completion,
// expiry or abandonment; only the resulting Booking is durable.
type BookingSession struct {
	ID      uuid.UUID `json:"id"`
	RiderID uuid.UUID `json:"rider_id"`
	TripID  string    `json:"trip_id"`

	State         SessionState `json:"state"`
	BoardingPoint string       `json:"boarding_point,omitempty"`
	DroppingPoint string       `json:"dropping_point,omitempty"`

	HoldToken *uuid.UUID `json:"hold_token,omitempty"`
	HeldSeats []string   `json:"held_seats,omitempty"`

	Passengers    []Passenger `json:"passengers,omitempty"`
	DiscountCodes []string    `json:"discount_codes,omitempty"`

	// Quote is frozen on entering payment_pending; a payment retry
	// clears it and re-quotes, since prices may have changed.
	Quote *FareBreakdown `json:"quote,omitempty"`

	BookingID  *uuid.UUID `json:"booking_id,omitempty"`
	BookingPNR string     `json:"booking_pnr,omitempty"`

	IdempotencyKey *string   `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ============================================================================
// REQUEST / RESPONSE STRUCTS
// ============================================================================

// StartSessionRequest begins a checkout for one trip.
type StartSessionRequest struct {
	TripID         string  `json:"trip_id" binding:"required"`
	IdempotencyKey *string `json:"idempotency_key,omitempty"`
}

// SelectPointsRequest sets boarding and dropping points. Both must be
// present and distinct before seats can be selected.
type SelectPointsRequest struct {
	BoardingPoint string `json:"boarding_point" binding:"required"`
	DroppingPoint string `json:"dropping_point" binding:"required"`
}

// Validate rejects identical boarding and dropping points.
func (r *SelectPointsRequest) Validate() error {
	if r.BoardingPoint == r.DroppingPoint {
		return errors.New("boarding and dropping points must differ")
	}
	return nil
}

// SelectSeatsRequest asks for an all-or-nothing hold on the listed
// seats.
type SelectSeatsRequest struct {
	SeatNumbers []string `json:"seat_numbers" binding:"required,min=1"`
}

// SubmitPassengersRequest provides the manifest and any discount codes;
// a successful submit freezes the quote and enters payment_pending.
type SubmitPassengersRequest struct {
	Passengers    []Passenger `json:"passengers" binding:"required,min=1,dive"`
	DiscountCodes []string    `json:"discount_codes,omitempty"`
}

// SubmitPaymentRequest triggers authorize+capture against the frozen
// quote.
type SubmitPaymentRequest struct {
	Method         string  `json:"method" binding:"required"`
	IdempotencyKey *string `json:"idempotency_key,omitempty"`
}

// SessionResponse is the rider-facing view of a session.
type SessionResponse struct {
	SessionID     uuid.UUID      `json:"session_id"`
	TripID        string         `json:"trip_id"`
	State         SessionState   `json:"state"`
	BoardingPoint string         `json:"boarding_point,omitempty"`
	DroppingPoint string         `json:"dropping_point,omitempty"`
	HeldSeats     []string       `json:"held_seats,omitempty"`
	HoldExpiresAt *time.Time     `json:"hold_expires_at,omitempty"`
	Quote         *FareBreakdown `json:"quote,omitempty"`
	BookingPNR    string         `json:"booking_pnr,omitempty"`
}
