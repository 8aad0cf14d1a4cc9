package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/yatrikerp/booking-engine/internal/models"
)

// BookingRepository handles booking database operations
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `
	id, pnr, trip_id, rider_id, boarding_point, dropping_point,
	seat_numbers, passengers, fare_breakdown, amount_paid, payment_token,
	contact_phone, contact_email, status, created_at, updated_at`

// ============================================================================
// WRITES
// ============================================================================

// Create inserts a confirmed booking and its first lifecycle event in
// one transaction.
func (r *BookingRepository) Create(booking *models.Booking) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO bookings (
			id, pnr, trip_id, rider_id, boarding_point, dropping_point,
			seat_numbers, passengers, fare_breakdown, amount_paid, payment_token,
			contact_phone, contact_email, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)`

	_, err = tx.Exec(query,
		booking.ID, booking.PNR, booking.TripID, booking.RiderID,
		booking.BoardingPoint, booking.DroppingPoint,
		booking.SeatNumbers, booking.Passengers, booking.Fare,
		booking.AmountPaid, booking.PaymentToken,
		booking.ContactPhone, booking.ContactEmail,
		booking.Status, booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	if err := appendEvent(tx, booking.ID, booking.Status, "booking confirmed", booking.CreatedAt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}
	return nil
}

// UpdateStatus moves a booking to a new status and appends the change
// to the lifecycle log in one transaction. Rows are never deleted.
func (r *BookingRepository) UpdateStatus(id uuid.UUID, status models.BookingStatus, note string) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.Exec(`UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1`, id, status, now)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrBookingNotFound
	}

	if err := appendEvent(tx, id, status, note, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}
	return nil
}

func appendEvent(tx *sqlx.Tx, bookingID uuid.UUID, status models.BookingStatus, note string, at time.Time) error {
	_, err := tx.Exec(
		`INSERT INTO booking_events (booking_id, status, note, created_at) VALUES ($1, $2, $3, $4)`,
		bookingID, status, note, at,
	)
	if err != nil {
		return fmt.Errorf("failed to append booking event: %w", err)
	}
	return nil
}

// ============================================================================
// READS
// ============================================================================

// ByID retrieves a booking by ID, or nil when it does not exist.
func (r *BookingRepository) ByID(id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE id = $1`

	err := r.db.Get(&booking, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// ByPNR retrieves a booking by its PNR code.
func (r *BookingRepository) ByPNR(pnr string) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE pnr = $1`

	err := r.db.Get(&booking, query, pnr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by pnr: %w", err)
	}
	return &booking, nil
}

// ByRider lists a rider's bookings, newest first, with pagination.
func (r *BookingRepository) ByRider(riderID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `
		SELECT` + bookingColumns + `
		FROM bookings
		WHERE rider_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	if err := r.db.Select(&bookings, query, riderID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ByContactPhone finds bookings by the contact phone on the manifest.
func (r *BookingRepository) ByContactPhone(phone string, limit, offset int) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `
		SELECT` + bookingColumns + `
		FROM bookings
		WHERE contact_phone = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	if err := r.db.Select(&bookings, query, phone, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list bookings by phone: %w", err)
	}
	return bookings, nil
}

// ByContactEmail finds bookings by the contact email on the manifest.
func (r *BookingRepository) ByContactEmail(email string, limit, offset int) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `
		SELECT` + bookingColumns + `
		FROM bookings
		WHERE contact_email = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	if err := r.db.Select(&bookings, query, email, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list bookings by email: %w", err)
	}
	return bookings, nil
}

// Events returns the lifecycle log for a booking, oldest first.
func (r *BookingRepository) Events(bookingID uuid.UUID) ([]models.BookingEvent, error) {
	var events []models.BookingEvent
	query := `
		SELECT id, booking_id, status, note, created_at
		FROM booking_events
		WHERE booking_id = $1
		ORDER BY id ASC`

	if err := r.db.Select(&events, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list booking events: %w", err)
	}
	return events, nil
}
