package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// BookingStatus is the durable lifecycle state of a booking.
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusNoShow    BookingStatus = "no_show"
	BookingStatusRefunded  BookingStatus = "refunded"
)

// PassengerList is the manifest stored as JSONB on the booking row.
type PassengerList []Passenger

func (p PassengerList) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *PassengerList) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed for PassengerList")
	}
	return json.Unmarshal(bytes, p)
}

// Booking is created only on successful payment capture. Its seat set
// and fare breakdown are immutable snapshots; once confirmed it is the
// source of truth for the seat map's BOOKED status.
type Booking struct {
	ID      uuid.UUID `json:"id" db:"id"`
	PNR     string    `json:"pnr" db:"pnr"`
	TripID  string    `json:"trip_id" db:"trip_id"`
	RiderID uuid.UUID `json:"rider_id" db:"rider_id"`

	BoardingPoint string `json:"boarding_point" db:"boarding_point"`
	DroppingPoint string `json:"dropping_point" db:"dropping_point"`

	SeatNumbers pq.StringArray `json:"seat_numbers" db:"seat_numbers"`
	Passengers  PassengerList  `json:"passengers" db:"passengers"`

	// Fare is the quote that was paid, persisted verbatim.
	Fare         FareBreakdown `json:"fare_breakdown" db:"fare_breakdown"`
	AmountPaid   float64       `json:"amount_paid" db:"amount_paid"`
	PaymentToken string        `json:"payment_token" db:"payment_token"`

	ContactPhone string `json:"contact_phone" db:"contact_phone"`
	ContactEmail string `json:"contact_email,omitempty" db:"contact_email"`

	Status    BookingStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// BookingEvent is one entry of the append-only lifecycle log kept per
// booking.
type BookingEvent struct {
	ID        int64         `json:"id" db:"id"`
	BookingID uuid.UUID     `json:"booking_id" db:"booking_id"`
	Status    BookingStatus `json:"status" db:"status"`
	Note      string        `json:"note,omitempty" db:"note"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// CancelBookingRequest cancels a confirmed booking before the
// policy-defined departure cutoff.
type CancelBookingRequest struct {
	Reason string `json:"reason,omitempty"`
}

// BookingResponse is the rider-facing view of a booking.
type BookingResponse struct {
	BookingID   uuid.UUID     `json:"booking_id"`
	PNR         string        `json:"pnr"`
	TripID      string        `json:"trip_id"`
	SeatNumbers []string      `json:"seat_numbers"`
	Passengers  []Passenger   `json:"passengers"`
	Fare        FareBreakdown `json:"fare_breakdown"`
	Status      BookingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}
