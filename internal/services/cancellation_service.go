package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yatrikerp/booking-engine/internal/clock"
	"github.com/yatrikerp/booking-engine/internal/metrics"
	"github.com/yatrikerp/booking-engine/internal/models"
)

// CancellableBookingStore is the slice of the booking repository the
// cancellation flow needs.
type CancellableBookingStore interface {
	ByID(id uuid.UUID) (*models.Booking, error)
	UpdateStatus(id uuid.UUID, status models.BookingStatus, note string) error
}

// CancellationConfig holds configuration for booking cancellation
type CancellationConfig struct {
	Cutoff     time.Duration // minimum lead time before departure (default 2h)
	RefundRate float64       // fraction of the paid amount returned (default 1.0)
}

// DefaultCancellationConfig returns default configuration
func DefaultCancellationConfig() CancellationConfig {
	return CancellationConfig{
		Cutoff:     2 * time.Hour,
		RefundRate: 1.0,
	}
}

// CancellationService cancels confirmed bookings, refunds the payment
// and returns the seats to the free pool.
type CancellationService struct {
	bookings CancellableBookingStore
	trips    TripSource
	holds    *HoldManager
	gateway  PaymentGateway
	clock    clock.Clock
	config   CancellationConfig
	logger   *logrus.Logger
}

// NewCancellationService creates a new cancellation service
func NewCancellationService(
	bookings CancellableBookingStore,
	trips TripSource,
	holds *HoldManager,
	gateway PaymentGateway,
	clk clock.Clock,
	config CancellationConfig,
	logger *logrus.Logger,
) *CancellationService {
	return &CancellationService{
		bookings: bookings,
		trips:    trips,
		holds:    holds,
		gateway:  gateway,
		clock:    clk,
		config:   config,
		logger:   logger,
	}
}

// Cancel cancels a confirmed booking owned by the rider. The refund is
// issued before the status flips; if it fails the booking stays
// confirmed and the rider can retry.
func (s *CancellationService) Cancel(bookingID, riderID uuid.UUID, reason string) (*models.Booking, error) {
	booking, err := s.bookings.ByID(bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil || booking.RiderID != riderID {
		return nil, models.ErrBookingNotFound
	}
	if booking.Status != models.BookingStatusConfirmed {
		return nil, fmt.Errorf("booking %s cannot be cancelled in status %s", booking.PNR, booking.Status)
	}

	trip, err := s.trips.TripByID(booking.TripID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trip: %w", err)
	}
	if trip != nil {
		now := s.clock.Now()
		if now.After(trip.DepartureAt.Add(-s.config.Cutoff)) {
			return nil, fmt.Errorf("booking %s is within %s of departure and can no longer be cancelled", booking.PNR, s.config.Cutoff)
		}
	}

	refundAmount := roundHalfUp(booking.AmountPaid * s.config.RefundRate)
	if refundAmount > 0 {
		if err := s.gateway.Refund(booking.PaymentToken, refundAmount); err != nil {
			return nil, fmt.Errorf("refund failed, booking unchanged: %w", err)
		}
		metrics.RefundsIssued.Inc()
	}

	note := reason
	if note == "" {
		note = "cancelled by rider"
	}
	if err := s.bookings.UpdateStatus(booking.ID, models.BookingStatusCancelled, note); err != nil {
		// Money is already on its way back; the status update must be
		// retried by operations using the lifecycle log.
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"pnr":        booking.PNR,
		}).Error("Refund issued but status update failed")
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	// Seats return to the pool immediately; no-shows are handled by
	// the status, not the inventory.
	s.holds.FreeBookedSeats(booking.TripID, booking.SeatNumbers)

	booking.Status = models.BookingStatusCancelled
	booking.UpdatedAt = s.clock.Now()

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"pnr":        booking.PNR,
		"refund":     refundAmount,
		"reason":     note,
	}).Info("Booking cancelled")

	return booking, nil
}
