package models

import (
	"time"

	"github.com/google/uuid"
)

// Hold is a time-boxed exclusive claim on a set of seats for one
// booking session. It owns the seats' HELD status for its lifetime.
type Hold struct {
	Token       uuid.UUID `json:"token"`
	TripID      string    `json:"trip_id"`
	SessionID   uuid.UUID `json:"session_id"`
	SeatNumbers []string  `json:"seat_numbers"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExpiredAt reports whether the hold has lapsed at the given instant.
// Readers treat a lapsed hold as already released, even before the
// sweeper has run.
func (h *Hold) ExpiredAt(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}
