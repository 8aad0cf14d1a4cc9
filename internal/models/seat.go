package models

import "time"

// SeatStatus is the authoritative state of a seat within its trip's
// seat map.
type SeatStatus string

const (
	SeatStatusFree   SeatStatus = "free"
	SeatStatusHeld   SeatStatus = "held"
	SeatStatusBooked SeatStatus = "booked"
)

// SeatClass distinguishes seat inventory types on a bus.
type SeatClass string

const (
	SeatClassSeater      SeatClass = "seater"
	SeatClassSemiSleeper SeatClass = "semi_sleeper"
	SeatClassSleeper     SeatClass = "sleeper"
)

// Seat belongs to exactly one trip. PriceFactor scales the route fare
// for this seat relative to its class (1.0 = standard seater).
type Seat struct {
	SeatNumber  string     `json:"seat_number" db:"seat_number"`
	Class       SeatClass  `json:"seat_class" db:"seat_class"`
	PriceFactor float64    `json:"price_factor" db:"price_factor"`
	Status      SeatStatus `json:"status" db:"status"`
}

// EffectivePriceFactor defaults a missing factor to 1.0 so legacy seat
// rows without an explicit factor price as standard seats.
func (s Seat) EffectivePriceFactor() float64 {
	if s.PriceFactor <= 0 {
		return 1.0
	}
	return s.PriceFactor
}

// Trip is the read-only master-data view the engine needs to price and
// book a departure. Provided by an external trip/route/bus service.
type Trip struct {
	ID          string    `json:"id" db:"id"`
	BusType     string    `json:"bus_type" db:"bus_type"`
	RouteType   string    `json:"route_type" db:"route_type"`
	DistanceKm  float64   `json:"distance_km" db:"distance_km"`
	DepartureAt time.Time `json:"departure_at" db:"departure_at"`
}
