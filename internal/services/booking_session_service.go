package services

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yatrikerp/booking-engine/internal/clock"
	"github.com/yatrikerp/booking-engine/internal/metrics"
	"github.com/yatrikerp/booking-engine/internal/models"
	"github.com/yatrikerp/booking-engine/pkg/pnr"
)

// TripSource resolves trip master data. Backed by the trip repository
// in production.
type TripSource interface {
	TripByID(tripID string) (*models.Trip, error)
}

// BookingStore persists confirmed bookings.
type BookingStore interface {
	Create(booking *models.Booking) error
}

// BookingSessionConfig holds configuration for the checkout flow
type BookingSessionConfig struct {
	SessionTTL time.Duration // idle time before a session expires (default 30 min)
}

// DefaultBookingSessionConfig returns default configuration
func DefaultBookingSessionConfig() BookingSessionConfig {
	return BookingSessionConfig{
		SessionTTL: 30 * time.Minute,
	}
}

// sessionEntry pairs a session with the mutex that serializes every
// operation on it. Concurrent retries on the same session queue up here
// instead of interleaving their read-check-write spans.
type sessionEntry struct {
	mu      sync.Mutex
	session *models.BookingSession
}

// BookingSessionService drives the checkout state machine from point
// selection through payment to a confirmed booking. Sessions live in
// memory; only the resulting booking is durable.
type BookingSessionService struct {
	mu          sync.RWMutex // guards the maps below, never session fields
	sessions    map[uuid.UUID]*sessionEntry
	idempotency map[string]uuid.UUID

	trips    TripSource
	holds    *HoldManager
	fares    *FareService
	calendar Calendar
	gateway  PaymentGateway
	bookings BookingStore
	clock    clock.Clock
	config   BookingSessionConfig
	logger   *logrus.Logger
}

// NewBookingSessionService creates a new booking session service
func NewBookingSessionService(
	trips TripSource,
	holds *HoldManager,
	fares *FareService,
	calendar Calendar,
	gateway PaymentGateway,
	bookings BookingStore,
	clk clock.Clock,
	config BookingSessionConfig,
	logger *logrus.Logger,
) *BookingSessionService {
	return &BookingSessionService{
		sessions:    make(map[uuid.UUID]*sessionEntry),
		idempotency: make(map[string]uuid.UUID),
		trips:       trips,
		holds:       holds,
		fares:       fares,
		calendar:    calendar,
		gateway:     gateway,
		bookings:    bookings,
		clock:       clk,
		config:      config,
		logger:      logger,
	}
}

// ============================================================================
// START SESSION
// ============================================================================

// StartSession opens a checkout for one trip. With an idempotency key,
// a repeat call returns the session created the first time.
func (s *BookingSessionService) StartSession(riderID uuid.UUID, req *models.StartSessionRequest) (*models.SessionResponse, error) {
	trip, err := s.trips.TripByID(req.TripID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trip: %w", err)
	}
	if trip == nil {
		return nil, models.ErrTripNotFound
	}

	now := s.clock.Now()
	if !trip.DepartureAt.After(now) {
		return nil, fmt.Errorf("trip %s has already departed", trip.ID)
	}

	session := &models.BookingSession{
		ID:             uuid.New(),
		RiderID:        riderID,
		TripID:         trip.ID,
		State:          models.StateSelectPoints,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	keyed := req.IdempotencyKey != nil && *req.IdempotencyKey != ""

	// Check-and-register under one lock so two concurrent starts with
	// the same key cannot both create a session.
	s.mu.Lock()
	if keyed {
		if existingID, ok := s.idempotency[idempotencyScope(riderID, *req.IdempotencyKey)]; ok {
			s.mu.Unlock()
			return s.GetSession(existingID, riderID)
		}
		s.idempotency[idempotencyScope(riderID, *req.IdempotencyKey)] = session.ID
	}
	s.sessions[session.ID] = &sessionEntry{session: session}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"rider_id":   riderID,
		"trip_id":    trip.ID,
	}).Info("Booking session started")

	return s.buildResponse(session), nil
}

// GetSession returns the rider's view of a session.
func (s *BookingSessionService) GetSession(sessionID, riderID uuid.UUID) (*models.SessionResponse, error) {
	entry, err := s.lockOwned(sessionID, riderID)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()
	return s.buildResponse(entry.session), nil
}

// ============================================================================
// SELECT POINTS
// ============================================================================

// SelectPoints records boarding and dropping points and advances the
// session to seat selection.
func (s *BookingSessionService) SelectPoints(sessionID, riderID uuid.UUID, req *models.SelectPointsRequest) (*models.SessionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	entry, err := s.lockOwned(sessionID, riderID)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()

	session := entry.session
	if session.State != models.StateSelectPoints {
		return nil, fmt.Errorf("%w: points already selected (state %s)", models.ErrInvalidTransition, session.State)
	}
	session.BoardingPoint = req.BoardingPoint
	session.DroppingPoint = req.DroppingPoint
	session.State = models.StateSelectSeats
	session.UpdatedAt = s.clock.Now()
	return s.buildResponse(session), nil
}

// ============================================================================
// SELECT SEATS
// ============================================================================

// SelectSeats places an all-or-nothing hold on the requested seats. A
// repeat call replaces the previous hold.
func (s *BookingSessionService) SelectSeats(sessionID, riderID uuid.UUID, req *models.SelectSeatsRequest) (*models.SessionResponse, error) {
	entry, err := s.lockOwned(sessionID, riderID)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()

	session := entry.session
	if session.State != models.StateSelectSeats && session.State != models.StatePassengerInfo {
		return nil, fmt.Errorf("%w: cannot select seats in state %s", models.ErrInvalidTransition, session.State)
	}

	// Reselecting releases the old hold before taking the new one so
	// the rider never pins two seat sets at once.
	if session.HoldToken != nil {
		s.holds.Release(*session.HoldToken)
		session.HoldToken = nil
		session.HeldSeats = nil
	}

	hold, err := s.holds.Hold(session.TripID, session.ID, req.SeatNumbers)
	if err != nil {
		metrics.HoldsTotal.WithLabelValues("conflict").Inc()
		return nil, err
	}
	metrics.HoldsTotal.WithLabelValues("held").Inc()

	session.HoldToken = &hold.Token
	session.HeldSeats = hold.SeatNumbers
	session.Passengers = nil
	session.Quote = nil
	session.State = models.StatePassengerInfo
	session.UpdatedAt = s.clock.Now()
	return s.buildResponse(session), nil
}

// ExtendHold pushes the session's hold expiry out by a fresh TTL.
func (s *BookingSessionService) ExtendHold(sessionID, riderID uuid.UUID) (*models.SessionResponse, error) {
	entry, err := s.lockOwned(sessionID, riderID)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()

	session := entry.session
	if session.HoldToken == nil {
		return nil, models.ErrHoldNotFound
	}
	if _, err := s.holds.Extend(*session.HoldToken); err != nil {
		if errors.Is(err, models.ErrHoldExpired) {
			s.dropHoldLocked(session)
		}
		return nil, err
	}
	return s.buildResponse(session), nil
}

// ============================================================================
// SUBMIT PASSENGERS
// ============================================================================

// SubmitPassengers records the manifest, prices the held seats and
// freezes the quote. The session advances to payment_pending.
func (s *BookingSessionService) SubmitPassengers(sessionID, riderID uuid.UUID, req *models.SubmitPassengersRequest) (*models.SessionResponse, error) {
	entry, err := s.lockOwned(sessionID, riderID)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()

	session := entry.session
	if session.State != models.StatePassengerInfo {
		return nil, fmt.Errorf("%w: cannot submit passengers in state %s", models.ErrInvalidTransition, session.State)
	}
	if session.HoldToken == nil {
		return nil, models.ErrHoldNotFound
	}

	if _, err := s.holds.Get(*session.HoldToken); err != nil {
		if errors.Is(err, models.ErrHoldExpired) {
			s.dropHoldLocked(session)
		}
		return nil, err
	}

	if err := matchManifest(session.HeldSeats, req.Passengers); err != nil {
		return nil, err
	}

	trip, err := s.trips.TripByID(session.TripID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trip: %w", err)
	}
	if trip == nil {
		return nil, models.ErrTripNotFound
	}

	seats, err := s.heldSeatDetails(session)
	if err != nil {
		return nil, err
	}

	quote, err := s.fares.Quote(&QuoteRequest{
		Trip:          trip,
		Seats:         seats,
		DiscountCodes: req.DiscountCodes,
		PeakHour:      s.calendar.IsPeakHour(trip.DepartureAt),
		Holiday:       s.calendar.IsHoliday(trip.DepartureAt),
	})
	if err != nil {
		var invalid *models.InvalidDiscountError
		if errors.As(err, &invalid) {
			metrics.QuotesTotal.WithLabelValues("invalid_discount").Inc()
		} else {
			metrics.QuotesTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	metrics.QuotesTotal.WithLabelValues("ok").Inc()

	session.Passengers = req.Passengers
	session.DiscountCodes = req.DiscountCodes
	session.Quote = quote
	session.State = models.StatePaymentPending
	session.UpdatedAt = s.clock.Now()
	return s.buildResponse(session), nil
}

// ============================================================================
// SUBMIT PAYMENT
// ============================================================================

// SubmitPayment charges the frozen quote and, on success, writes the
// booking and commits the hold. A capture that cannot be turned into a
// confirmed booking is refunded before the error is returned. The
// session lock spans the gateway round trip, so a concurrent retry
// waits and then sees either the confirmed session or the failure
// state; it can never double charge.
func (s *BookingSessionService) SubmitPayment(sessionID, riderID uuid.UUID, req *models.SubmitPaymentRequest) (*models.SessionResponse, error) {
	entry, err := s.lockOwned(sessionID, riderID)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()

	session := entry.session
	if session.State == models.StateConfirmed {
		// Idempotent: payment already went through.
		return s.buildResponse(session), nil
	}
	if session.State != models.StatePaymentPending {
		return nil, fmt.Errorf("%w: cannot pay in state %s", models.ErrInvalidTransition, session.State)
	}
	if session.HoldToken == nil || session.Quote == nil {
		return nil, models.ErrHoldNotFound
	}

	// The hold must outlive the gateway round trip; checking first
	// avoids charging a rider whose seats are already gone.
	if _, err := s.holds.Get(*session.HoldToken); err != nil {
		if errors.Is(err, models.ErrHoldExpired) {
			s.dropHoldLocked(session)
			metrics.PaymentFailures.WithLabelValues("hold_expired").Inc()
		}
		return nil, err
	}

	quote := session.Quote
	contactName, contactPhone, _ := primaryContact(session.Passengers)
	result, err := s.gateway.Charge(&ChargeParams{
		Reference:      fmt.Sprintf("SES-%s", session.ID.String()[:8]),
		Amount:         quote.Total,
		Currency:       quote.Currency,
		Method:         req.Method,
		CustomerName:   contactName,
		CustomerPhone:  contactPhone,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		// Declined: the hold stays, the quote is discarded and the
		// rider re-enters from the manifest step to be re-quoted.
		metrics.PaymentFailures.WithLabelValues("declined").Inc()
		session.Quote = nil
		session.State = models.StatePassengerInfo
		session.UpdatedAt = s.clock.Now()
		return nil, err
	}

	if math.Abs(result.CapturedAmount-quote.Total) > 0.005 {
		s.refund(result, session, "captured amount mismatch")
		metrics.PaymentFailures.WithLabelValues("quote_mismatch").Inc()
		session.Quote = nil
		session.State = models.StatePassengerInfo
		session.UpdatedAt = s.clock.Now()
		return nil, &models.QuoteMismatchError{Quoted: quote.Total, Captured: result.CapturedAmount}
	}

	// Seats first, then the booking row. Any failure past this point
	// refunds the capture.
	seatNumbers, err := s.holds.Commit(*session.HoldToken)
	if err != nil {
		s.refund(result, session, "hold commit failed")
		metrics.PaymentFailures.WithLabelValues("commit_failed").Inc()
		s.dropHoldLocked(session)
		return nil, err
	}

	booking, err := s.persistBooking(session, seatNumbers, quote, result)
	if err != nil {
		s.refund(result, session, "booking persistence failed")
		metrics.PaymentFailures.WithLabelValues("commit_failed").Inc()
		s.holds.FreeBookedSeats(session.TripID, seatNumbers)
		s.dropHoldLocked(session)
		return nil, err
	}

	metrics.BookingsConfirmed.Inc()

	session.HoldToken = nil
	session.BookingID = &booking.ID
	session.BookingPNR = booking.PNR
	session.State = models.StateConfirmed
	session.UpdatedAt = s.clock.Now()

	s.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"booking_id": booking.ID,
		"pnr":        booking.PNR,
		"amount":     booking.AmountPaid,
	}).Info("Booking confirmed")

	return s.buildResponse(session), nil
}

func (s *BookingSessionService) persistBooking(
	session *models.BookingSession,
	seatNumbers []string,
	quote *models.FareBreakdown,
	result *ChargeResult,
) (*models.Booking, error) {
	code, err := pnr.Generate()
	if err != nil {
		return nil, err
	}
	_, contactPhone, contactEmail := primaryContact(session.Passengers)

	now := s.clock.Now()
	booking := &models.Booking{
		ID:            uuid.New(),
		PNR:           code,
		TripID:        session.TripID,
		RiderID:       session.RiderID,
		BoardingPoint: session.BoardingPoint,
		DroppingPoint: session.DroppingPoint,
		SeatNumbers:   seatNumbers,
		Passengers:    session.Passengers,
		Fare:          *quote,
		AmountPaid:    result.CapturedAmount,
		PaymentToken:  result.CaptureToken,
		ContactPhone:  contactPhone,
		ContactEmail:  contactEmail,
		Status:        models.BookingStatusConfirmed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.bookings.Create(booking); err != nil {
		return nil, fmt.Errorf("failed to persist booking: %w", err)
	}
	return booking, nil
}

func (s *BookingSessionService) refund(result *ChargeResult, session *models.BookingSession, reason string) {
	if err := s.gateway.Refund(result.CaptureToken, result.CapturedAmount); err != nil {
		// Refund failure is surfaced to operations via the log; the
		// capture token is retained for manual reconciliation.
		s.logger.WithError(err).WithFields(logrus.Fields{
			"session_id":    session.ID,
			"capture_token": result.CaptureToken,
			"amount":        result.CapturedAmount,
			"reason":        reason,
		}).Error("Automatic refund failed")
		return
	}
	metrics.RefundsIssued.Inc()
	s.logger.WithFields(logrus.Fields{
		"session_id":    session.ID,
		"capture_token": result.CaptureToken,
		"amount":        result.CapturedAmount,
		"reason":        reason,
	}).Warn("Captured payment refunded")
}

// ============================================================================
// ABANDON AND EXPIRY
// ============================================================================

// AbandonSession releases the session's hold and closes it.
func (s *BookingSessionService) AbandonSession(sessionID, riderID uuid.UUID) (*models.SessionResponse, error) {
	entry, err := s.lockOwned(sessionID, riderID)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()

	session := entry.session
	if session.State.Terminal() {
		return nil, fmt.Errorf("%w: session already %s", models.ErrInvalidTransition, session.State)
	}

	if session.HoldToken != nil {
		s.holds.Release(*session.HoldToken)
	}

	session.HoldToken = nil
	session.HeldSeats = nil
	session.Quote = nil
	session.State = models.StateAbandoned
	session.UpdatedAt = s.clock.Now()
	return s.buildResponse(session), nil
}

// ExpireStaleSessions closes sessions idle past the session TTL and
// releases their holds. Returns how many were expired.
func (s *BookingSessionService) ExpireStaleSessions() int {
	now := s.clock.Now()
	cutoff := now.Add(-s.config.SessionTTL)

	s.mu.RLock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, entry := range s.sessions {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	expired := 0
	for _, entry := range entries {
		entry.mu.Lock()
		session := entry.session
		if !session.State.Terminal() && session.UpdatedAt.Before(cutoff) {
			if session.HoldToken != nil {
				s.holds.Release(*session.HoldToken)
				session.HoldToken = nil
			}
			session.State = models.StateExpired
			session.UpdatedAt = now
			expired++
		}
		entry.mu.Unlock()
	}
	return expired
}

// ============================================================================
// HELPER METHODS
// ============================================================================

// lockOwned finds the rider's session and returns its entry with the
// entry lock held. The caller must unlock it.
func (s *BookingSessionService) lockOwned(sessionID, riderID uuid.UUID) (*sessionEntry, error) {
	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	entry.mu.Lock()
	if entry.session.RiderID != riderID {
		entry.mu.Unlock()
		return nil, models.ErrSessionNotFound
	}
	return entry, nil
}

// dropHoldLocked clears an expired hold and sends the session back to
// seat selection. Caller holds the entry lock.
func (s *BookingSessionService) dropHoldLocked(session *models.BookingSession) {
	session.HoldToken = nil
	session.HeldSeats = nil
	session.Quote = nil
	if !session.State.Terminal() {
		session.State = models.StateSelectSeats
	}
	session.UpdatedAt = s.clock.Now()
}

// heldSeatDetails resolves class and price factor for the held seats.
func (s *BookingSessionService) heldSeatDetails(session *models.BookingSession) ([]models.Seat, error) {
	all, err := s.holds.SeatMap(session.TripID)
	if err != nil {
		return nil, err
	}
	byNumber := make(map[string]models.Seat, len(all))
	for _, seat := range all {
		byNumber[seat.SeatNumber] = seat
	}
	seats := make([]models.Seat, 0, len(session.HeldSeats))
	for _, sn := range session.HeldSeats {
		seat, ok := byNumber[sn]
		if !ok {
			return nil, models.ErrSeatUnknown
		}
		seats = append(seats, seat)
	}
	return seats, nil
}

func (s *BookingSessionService) buildResponse(session *models.BookingSession) *models.SessionResponse {
	resp := &models.SessionResponse{
		SessionID:     session.ID,
		TripID:        session.TripID,
		State:         session.State,
		BoardingPoint: session.BoardingPoint,
		DroppingPoint: session.DroppingPoint,
		HeldSeats:     session.HeldSeats,
		Quote:         session.Quote,
		BookingPNR:    session.BookingPNR,
	}
	if session.HoldToken != nil {
		if hold, err := s.holds.Get(*session.HoldToken); err == nil {
			expiresAt := hold.ExpiresAt
			resp.HoldExpiresAt = &expiresAt
		}
	}
	return resp
}

// matchManifest checks there is exactly one passenger per held seat.
func matchManifest(heldSeats []string, passengers []models.Passenger) error {
	if len(passengers) != len(heldSeats) {
		return fmt.Errorf("manifest must cover exactly the held seats: %d passengers for %d seats", len(passengers), len(heldSeats))
	}
	held := make(map[string]bool, len(heldSeats))
	for _, sn := range heldSeats {
		held[sn] = true
	}
	seen := make(map[string]bool, len(passengers))
	for _, p := range passengers {
		if !held[p.SeatNumber] {
			return fmt.Errorf("passenger assigned to seat %s which is not held", p.SeatNumber)
		}
		if seen[p.SeatNumber] {
			return fmt.Errorf("seat %s has more than one passenger", p.SeatNumber)
		}
		seen[p.SeatNumber] = true
	}
	return nil
}

// primaryContact picks the payer details from the manifest.
func primaryContact(passengers []models.Passenger) (name, phone, email string) {
	for _, p := range passengers {
		if name == "" {
			name = p.Name
		}
		if phone == "" && p.Phone != "" {
			phone = p.Phone
		}
		if email == "" && p.Email != "" {
			email = p.Email
		}
	}
	return name, phone, email
}

func idempotencyScope(riderID uuid.UUID, key string) string {
	return riderID.String() + ":" + key
}
