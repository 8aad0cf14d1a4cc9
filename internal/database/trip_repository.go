package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/yatrikerp/booking-engine/internal/models"
)

// TripRepository reads trip master data and the durable seat inventory
type TripRepository struct {
	db *sqlx.DB
}

// NewTripRepository creates a new TripRepository
func NewTripRepository(db *sqlx.DB) *TripRepository {
	return &TripRepository{db: db}
}

// TripByID retrieves a trip by ID, or nil when it does not exist.
func (r *TripRepository) TripByID(tripID string) (*models.Trip, error) {
	var trip models.Trip
	query := `
		SELECT id, bus_type, route_type, distance_km, departure_at
		FROM trips
		WHERE id = $1`

	err := r.db.Get(&trip, query, tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return &trip, nil
}

// SeatsForTrip loads the trip's seat layout. Seats covered by a
// confirmed booking come back BOOKED; everything else is FREE. Holds
// are in-memory only and never appear here.
func (r *TripRepository) SeatsForTrip(tripID string) ([]models.Seat, error) {
	var seats []models.Seat
	query := `
		SELECT
			ts.seat_number,
			ts.seat_class,
			ts.price_factor,
			CASE WHEN b.id IS NOT NULL THEN 'booked' ELSE 'free' END AS status
		FROM trip_seats ts
		LEFT JOIN bookings b
			ON b.trip_id = ts.trip_id
			AND b.status = 'confirmed'
			AND ts.seat_number = ANY(b.seat_numbers)
		WHERE ts.trip_id = $1
		ORDER BY ts.seat_number`

	if err := r.db.Select(&seats, query, tripID); err != nil {
		return nil, fmt.Errorf("failed to load seats for trip: %w", err)
	}
	return seats, nil
}
