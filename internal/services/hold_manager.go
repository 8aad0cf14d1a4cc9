package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yatrikerp/booking-engine/internal/clock"
	"github.com/yatrikerp/booking-engine/internal/metrics"
	"github.com/yatrikerp/booking-engine/internal/models"
)

// SeatSource loads the durable seat inventory for a trip. Seats that
// belong to confirmed bookings come back with BOOKED status.
type SeatSource interface {
	SeatsForTrip(tripID string) ([]models.Seat, error)
}

// HoldManagerConfig holds configuration for seat holds
type HoldManagerConfig struct {
	HoldTTL time.Duration // How long a hold pins its seats (default 5 min)
}

// DefaultHoldManagerConfig returns default configuration
func DefaultHoldManagerConfig() HoldManagerConfig {
	return HoldManagerConfig{
		HoldTTL: 5 * time.Minute,
	}
}

// HoldManager owns the in-memory seat maps and every hold on them.
// Holds are all-or-nothing and expire after the configured TTL; a
// lapsed hold is invisible to all operations even before the sweeper
// removes it.
type HoldManager struct {
	mu     sync.RWMutex
	trips  map[string]*tripSeatMap
	tokens map[uuid.UUID]string // hold token -> trip ID

	seats  SeatSource
	clock  clock.Clock
	config HoldManagerConfig
	logger *logrus.Logger
}

// NewHoldManager creates a new hold manager
func NewHoldManager(seats SeatSource, clk clock.Clock, config HoldManagerConfig, logger *logrus.Logger) *HoldManager {
	return &HoldManager{
		trips:  make(map[string]*tripSeatMap),
		tokens: make(map[uuid.UUID]string),
		seats:  seats,
		clock:  clk,
		config: config,
		logger: logger,
	}
}

// tripMap returns the seat map for a trip, loading it from the seat
// source on first access.
func (h *HoldManager) tripMap(tripID string) (*tripSeatMap, error) {
	h.mu.RLock()
	m, ok := h.trips[tripID]
	h.mu.RUnlock()
	if ok {
		return m, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.trips[tripID]; ok {
		return m, nil
	}

	seats, err := h.seats.SeatsForTrip(tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to load seats for trip %s: %w", tripID, err)
	}
	if len(seats) == 0 {
		return nil, models.ErrTripNotFound
	}
	m = newTripSeatMap(tripID, seats)
	h.trips[tripID] = m
	return m, nil
}

// ============================================================================
// HOLD LIFECYCLE
// ============================================================================

// Hold claims all requested seats for one session or none of them. On
// conflict the returned error lists every seat that was unavailable.
func (h *HoldManager) Hold(tripID string, sessionID uuid.UUID, seatNumbers []string) (*models.Hold, error) {
	if len(seatNumbers) == 0 {
		return nil, fmt.Errorf("at least one seat is required")
	}
	m, err := h.tripMap(tripID)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	hold := &models.Hold{
		Token:       uuid.New(),
		TripID:      tripID,
		SessionID:   sessionID,
		SeatNumbers: append([]string(nil), seatNumbers...),
		ExpiresAt:   now.Add(h.config.HoldTTL),
		CreatedAt:   now,
	}

	m.mu.Lock()
	lapsed := m.expireLapsed(now)
	err = m.tryHold(hold)
	m.mu.Unlock()

	h.forgetTokens(lapsed)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.tokens[hold.Token] = tripID
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"trip_id":    tripID,
		"session_id": sessionID,
		"seats":      seatNumbers,
		"hold_token": hold.Token,
		"expires_at": hold.ExpiresAt,
	}).Info("Seats held")

	return cloneHold(hold), nil
}

// cloneHold detaches a hold from the seat map's live copy so callers
// never observe later mutations such as an Extend.
func cloneHold(h *models.Hold) *models.Hold {
	copied := *h
	copied.SeatNumbers = append([]string(nil), h.SeatNumbers...)
	return &copied
}

// Get returns a live hold by token. A lapsed hold is released and
// reported as expired.
func (h *HoldManager) Get(token uuid.UUID) (*models.Hold, error) {
	m, ok := h.lookupTrip(token)
	if !ok {
		return nil, models.ErrHoldNotFound
	}

	now := h.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	hold, ok := m.holds[token]
	if !ok {
		return nil, models.ErrHoldNotFound
	}
	if hold.ExpiredAt(now) {
		m.release(token)
		h.forgetTokens([]uuid.UUID{token})
		return nil, models.ErrHoldExpired
	}
	return cloneHold(hold), nil
}

// Extend pushes a live hold's expiry out by a fresh TTL from now.
func (h *HoldManager) Extend(token uuid.UUID) (*models.Hold, error) {
	m, ok := h.lookupTrip(token)
	if !ok {
		return nil, models.ErrHoldNotFound
	}

	now := h.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	hold, ok := m.holds[token]
	if !ok {
		return nil, models.ErrHoldNotFound
	}
	if hold.ExpiredAt(now) {
		m.release(token)
		h.forgetTokens([]uuid.UUID{token})
		return nil, models.ErrHoldExpired
	}
	hold.ExpiresAt = now.Add(h.config.HoldTTL)
	return cloneHold(hold), nil
}

// Release frees a hold's seats. Releasing an unknown or already lapsed
// token is a no-op.
func (h *HoldManager) Release(token uuid.UUID) {
	m, ok := h.lookupTrip(token)
	if !ok {
		return
	}
	m.mu.Lock()
	m.release(token)
	m.mu.Unlock()
	h.forgetTokens([]uuid.UUID{token})
}

// Commit converts a live hold into BOOKED seats and consumes it. Called
// only after payment capture succeeds and the booking row is durable.
func (h *HoldManager) Commit(token uuid.UUID) ([]string, error) {
	m, ok := h.lookupTrip(token)
	if !ok {
		return nil, models.ErrHoldNotFound
	}

	now := h.clock.Now()
	m.mu.Lock()
	seatNumbers, err := m.commit(token, now)
	m.mu.Unlock()
	h.forgetTokens([]uuid.UUID{token})
	if err != nil {
		return nil, err
	}

	h.logger.WithFields(logrus.Fields{
		"trip_id":    m.tripID,
		"hold_token": token,
		"seats":      seatNumbers,
	}).Info("Hold committed to booking")

	return seatNumbers, nil
}

// FreeBookedSeats returns booked seats to FREE, used when a booking is
// cancelled.
func (h *HoldManager) FreeBookedSeats(tripID string, seatNumbers []string) {
	h.mu.RLock()
	m, ok := h.trips[tripID]
	h.mu.RUnlock()
	if !ok {
		// Trip was never loaded; the durable layer is authoritative
		// and the next load will see the seats as free.
		return
	}
	m.mu.Lock()
	m.freeBooked(seatNumbers)
	m.mu.Unlock()
}

// ============================================================================
// READS AND MAINTENANCE
// ============================================================================

// SeatMap returns the current seat statuses for a trip. Lapsed holds
// are released before the snapshot is taken.
func (h *HoldManager) SeatMap(tripID string) ([]models.Seat, error) {
	m, err := h.tripMap(tripID)
	if err != nil {
		return nil, err
	}
	now := h.clock.Now()
	m.mu.Lock()
	lapsed := m.expireLapsed(now)
	snapshot := m.snapshot()
	m.mu.Unlock()
	h.forgetTokens(lapsed)
	return snapshot, nil
}

// SweepExpired releases every lapsed hold across all trips and returns
// how many were released. Run periodically by the sweeper.
func (h *HoldManager) SweepExpired() int {
	h.mu.RLock()
	maps := make([]*tripSeatMap, 0, len(h.trips))
	for _, m := range h.trips {
		maps = append(maps, m)
	}
	h.mu.RUnlock()

	now := h.clock.Now()
	var released []uuid.UUID
	for _, m := range maps {
		m.mu.Lock()
		released = append(released, m.expireLapsed(now)...)
		m.mu.Unlock()
	}
	h.forgetTokens(released)

	if len(released) > 0 {
		metrics.HoldsExpired.Add(float64(len(released)))
		h.logger.WithField("count", len(released)).Info("Expired seat holds released")
	}
	return len(released)
}

func (h *HoldManager) lookupTrip(token uuid.UUID) (*tripSeatMap, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	tripID, ok := h.tokens[token]
	if !ok {
		return nil, false
	}
	m, ok := h.trips[tripID]
	return m, ok
}

func (h *HoldManager) forgetTokens(tokens []uuid.UUID) {
	if len(tokens) == 0 {
		return
	}
	h.mu.Lock()
	for _, t := range tokens {
		delete(h.tokens, t)
	}
	h.mu.Unlock()
}
