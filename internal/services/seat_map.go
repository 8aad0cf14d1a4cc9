package services

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yatrikerp/booking-engine/internal/models"
)

// tripSeatMap is the in-memory seat inventory for one trip. All status
// transitions for a trip happen under its mutex, which is what makes
// hold and commit operations on the same trip linearizable.
type tripSeatMap struct {
	mu     sync.Mutex
	tripID string
	seats  map[string]*models.Seat
	holds  map[uuid.UUID]*models.Hold
}

func newTripSeatMap(tripID string, seats []models.Seat) *tripSeatMap {
	m := &tripSeatMap{
		tripID: tripID,
		seats:  make(map[string]*models.Seat, len(seats)),
		holds:  make(map[uuid.UUID]*models.Hold),
	}
	for i := range seats {
		seat := seats[i]
		if seat.Status == "" {
			seat.Status = models.SeatStatusFree
		}
		m.seats[seat.SeatNumber] = &seat
	}
	return m
}

// expireLapsed releases every hold whose TTL has passed. Called under
// the trip lock before any read or transition, so a lapsed hold is
// never observable even if the sweeper has not run yet.
func (m *tripSeatMap) expireLapsed(now time.Time) []uuid.UUID {
	var lapsed []uuid.UUID
	for token, hold := range m.holds {
		if !hold.ExpiredAt(now) {
			continue
		}
		for _, sn := range hold.SeatNumbers {
			if seat, ok := m.seats[sn]; ok && seat.Status == models.SeatStatusHeld {
				seat.Status = models.SeatStatusFree
			}
		}
		delete(m.holds, token)
		lapsed = append(lapsed, token)
	}
	return lapsed
}

// tryHold transitions every requested seat FREE -> HELD, or none of
// them. Caller must hold the lock and have expired lapsed holds first.
func (m *tripSeatMap) tryHold(hold *models.Hold) error {
	var unavailable []string
	for _, sn := range hold.SeatNumbers {
		seat, ok := m.seats[sn]
		if !ok {
			return models.ErrSeatUnknown
		}
		if seat.Status != models.SeatStatusFree {
			unavailable = append(unavailable, sn)
		}
	}
	if len(unavailable) > 0 {
		return &models.SeatConflictError{TripID: m.tripID, Unavailable: unavailable}
	}
	for _, sn := range hold.SeatNumbers {
		m.seats[sn].Status = models.SeatStatusHeld
	}
	m.holds[hold.Token] = hold
	return nil
}

// release frees a hold's seats. A missing token is a no-op so release
// stays idempotent with lazy expiry and the sweeper.
func (m *tripSeatMap) release(token uuid.UUID) {
	hold, ok := m.holds[token]
	if !ok {
		return
	}
	for _, sn := range hold.SeatNumbers {
		if seat, ok := m.seats[sn]; ok && seat.Status == models.SeatStatusHeld {
			seat.Status = models.SeatStatusFree
		}
	}
	delete(m.holds, token)
}

// commit transitions a live hold's seats HELD -> BOOKED and consumes
// the hold.
func (m *tripSeatMap) commit(token uuid.UUID, now time.Time) ([]string, error) {
	hold, ok := m.holds[token]
	if !ok {
		return nil, models.ErrHoldNotFound
	}
	if hold.ExpiredAt(now) {
		m.release(token)
		return nil, models.ErrHoldExpired
	}
	for _, sn := range hold.SeatNumbers {
		m.seats[sn].Status = models.SeatStatusBooked
	}
	delete(m.holds, token)
	return hold.SeatNumbers, nil
}

// freeBooked releases booked seats back to FREE, used on cancellation.
func (m *tripSeatMap) freeBooked(seatNumbers []string) {
	for _, sn := range seatNumbers {
		if seat, ok := m.seats[sn]; ok && seat.Status == models.SeatStatusBooked {
			seat.Status = models.SeatStatusFree
		}
	}
}

// snapshot returns a stable copy of the seat map sorted by seat number.
func (m *tripSeatMap) snapshot() []models.Seat {
	out := make([]models.Seat, 0, len(m.seats))
	for _, seat := range m.seats {
		out = append(out, *seat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNumber < out[j].SeatNumber })
	return out
}
