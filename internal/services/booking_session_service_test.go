package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yatrikerp/booking-engine/internal/models"
)

type fakeTrips struct {
	trips map[string]*models.Trip
}

func (f *fakeTrips) TripByID(tripID string) (*models.Trip, error) {
	return f.trips[tripID], nil
}

type fakeBookingStore struct {
	mu       sync.Mutex
	err      error
	bookings []*models.Booking
}

func (f *fakeBookingStore) Create(booking *models.Booking) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings = append(f.bookings, booking)
	return nil
}

type refundCall struct {
	token  string
	amount float64
}

type fakeGateway struct {
	mu           sync.Mutex
	chargeErr    error
	captureDelta float64 // added to the requested amount
	charges      []ChargeParams
	refunds      []refundCall
}

func (f *fakeGateway) Charge(params *ChargeParams) (*ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	f.charges = append(f.charges, *params)
	return &ChargeResult{
		CaptureToken:   fmt.Sprintf("cap-%d", len(f.charges)),
		CapturedAmount: params.Amount + f.captureDelta,
	}, nil
}

func (f *fakeGateway) Refund(captureToken string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, refundCall{token: captureToken, amount: amount})
	return nil
}

type sessionFixture struct {
	svc     *BookingSessionService
	holds   *HoldManager
	store   *fakeBookingStore
	gateway *fakeGateway
	clk     *stepClock
	rider   uuid.UUID
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	start := time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)
	clk := newStepClock(start)

	// Thursday afternoon departure: time band, weekend, peak and
	// holiday multipliers all stay at 1.0.
	trips := &fakeTrips{trips: map[string]*models.Trip{
		"trip-1": {
			ID:          "trip-1",
			BusType:     "ac_seater",
			RouteType:   "intercity",
			DistanceKm:  50,
			DepartureAt: time.Date(2026, 1, 8, 14, 0, 0, 0, time.UTC),
		},
	}}

	holds := NewHoldManager(fourSeatTrip(), clk, DefaultHoldManagerConfig(), testLogger())
	fares := NewFareService(&fakePolicies{policy: basePolicy()}, clk, DefaultFareServiceConfig(), testLogger())
	store := &fakeBookingStore{}
	gateway := &fakeGateway{}

	svc := NewBookingSessionService(
		trips,
		holds,
		fares,
		NewStaticCalendar(nil, nil),
		gateway,
		store,
		clk,
		DefaultBookingSessionConfig(),
		testLogger(),
	)

	return &sessionFixture{svc: svc, holds: holds, store: store, gateway: gateway, clk: clk, rider: uuid.New()}
}

func manifest(seatNumbers ...string) []models.Passenger {
	passengers := make([]models.Passenger, len(seatNumbers))
	for i, sn := range seatNumbers {
		passengers[i] = models.Passenger{
			SeatNumber: sn,
			Name:       fmt.Sprintf("Passenger %d", i+1),
			Age:        30,
			Gender:     "female",
			Phone:      "+919800000001",
			Email:      "rider@example.com",
		}
	}
	return passengers
}

// toPaymentPending drives a fresh session through points, seats and
// the manifest.
func (f *sessionFixture) toPaymentPending(t *testing.T, seatNumbers ...string) uuid.UUID {
	t.Helper()
	started, err := f.svc.StartSession(f.rider, &models.StartSessionRequest{TripID: "trip-1"})
	require.NoError(t, err)

	_, err = f.svc.SelectPoints(started.SessionID, f.rider, &models.SelectPointsRequest{
		BoardingPoint: "Central",
		DroppingPoint: "Airport",
	})
	require.NoError(t, err)

	_, err = f.svc.SelectSeats(started.SessionID, f.rider, &models.SelectSeatsRequest{SeatNumbers: seatNumbers})
	require.NoError(t, err)

	resp, err := f.svc.SubmitPassengers(started.SessionID, f.rider, &models.SubmitPassengersRequest{
		Passengers: manifest(seatNumbers...),
	})
	require.NoError(t, err)
	require.Equal(t, models.StatePaymentPending, resp.State)
	require.NotNil(t, resp.Quote)
	return started.SessionID
}

func TestCheckoutHappyPath(t *testing.T) {
	f := newSessionFixture(t)
	sessionID := f.toPaymentPending(t, "A1", "A2")

	resp, err := f.svc.SubmitPayment(sessionID, f.rider, &models.SubmitPaymentRequest{Method: "card"})
	require.NoError(t, err)

	assert.Equal(t, models.StateConfirmed, resp.State)
	assert.NotEmpty(t, resp.BookingPNR)

	require.Len(t, f.store.bookings, 1)
	booking := f.store.bookings[0]
	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
	assert.ElementsMatch(t, []string{"A1", "A2"}, []string(booking.SeatNumbers))
	// 50 km x 10/km per seat, two seats.
	assert.Equal(t, 1000.0, booking.AmountPaid)
	assert.Equal(t, booking.Fare.Total, booking.AmountPaid)
	assert.Equal(t, "+919800000001", booking.ContactPhone)
	assert.Equal(t, "rider@example.com", booking.ContactEmail)

	assert.Equal(t, models.SeatStatusBooked, seatStatus(t, f.holds, "trip-1", "A1"))
	assert.Empty(t, f.gateway.refunds)

	// Paying again on a confirmed session is a no-op.
	again, err := f.svc.SubmitPayment(sessionID, f.rider, &models.SubmitPaymentRequest{Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, resp.BookingPNR, again.BookingPNR)
	require.Len(t, f.store.bookings, 1)
}

func TestPaymentDeclinedKeepsHold(t *testing.T) {
	f := newSessionFixture(t)
	sessionID := f.toPaymentPending(t, "A1")

	f.gateway.chargeErr = fmt.Errorf("%w: insufficient funds", models.ErrPaymentFailed)

	_, err := f.svc.SubmitPayment(sessionID, f.rider, &models.SubmitPaymentRequest{Method: "card"})
	require.ErrorIs(t, err, models.ErrPaymentFailed)

	// The hold survives and the rider is re-quoted from the manifest
	// step.
	resp, err := f.svc.GetSession(sessionID, f.rider)
	require.NoError(t, err)
	assert.Equal(t, models.StatePassengerInfo, resp.State)
	assert.Nil(t, resp.Quote)
	assert.Equal(t, models.SeatStatusHeld, seatStatus(t, f.holds, "trip-1", "A1"))

	// Retry succeeds once the gateway recovers.
	f.gateway.chargeErr = nil
	_, err = f.svc.SubmitPassengers(sessionID, f.rider, &models.SubmitPassengersRequest{Passengers: manifest("A1")})
	require.NoError(t, err)
	confirmed, err := f.svc.SubmitPayment(sessionID, f.rider, &models.SubmitPaymentRequest{Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, models.StateConfirmed, confirmed.State)
}

func TestQuoteMismatchRefundsCapture(t *testing.T) {
	f := newSessionFixture(t)
	sessionID := f.toPaymentPending(t, "A1")

	f.gateway.captureDelta = 10

	_, err := f.svc.SubmitPayment(sessionID, f.rider, &models.SubmitPaymentRequest{Method: "card"})
	var mismatch *models.QuoteMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 500.0, mismatch.Quoted)
	assert.Equal(t, 510.0, mismatch.Captured)

	require.Len(t, f.gateway.refunds, 1)
	assert.Equal(t, 510.0, f.gateway.refunds[0].amount)
	assert.Empty(t, f.store.bookings)

	resp, err := f.svc.GetSession(sessionID, f.rider)
	require.NoError(t, err)
	assert.Equal(t, models.StatePassengerInfo, resp.State)
}

func TestPersistFailureRefundsAndFreesSeats(t *testing.T) {
	f := newSessionFixture(t)
	sessionID := f.toPaymentPending(t, "A1")

	f.store.err = fmt.Errorf("connection reset")

	_, err := f.svc.SubmitPayment(sessionID, f.rider, &models.SubmitPaymentRequest{Method: "card"})
	require.Error(t, err)

	require.Len(t, f.gateway.refunds, 1)
	assert.Equal(t, 500.0, f.gateway.refunds[0].amount)
	assert.Equal(t, models.SeatStatusFree, seatStatus(t, f.holds, "trip-1", "A1"))
}

func TestHoldExpiresBeforePayment(t *testing.T) {
	f := newSessionFixture(t)
	sessionID := f.toPaymentPending(t, "A1")

	// Rider takes six minutes against a five minute hold TTL.
	f.clk.Advance(6 * time.Minute)

	_, err := f.svc.SubmitPayment(sessionID, f.rider, &models.SubmitPaymentRequest{Method: "card"})
	require.ErrorIs(t, err, models.ErrHoldExpired)

	// Nothing was charged and the seat is free again.
	assert.Empty(t, f.gateway.charges)
	assert.Equal(t, models.SeatStatusFree, seatStatus(t, f.holds, "trip-1", "A1"))

	resp, err := f.svc.GetSession(sessionID, f.rider)
	require.NoError(t, err)
	assert.Equal(t, models.StateSelectSeats, resp.State)
}

func TestManifestMustMatchHeldSeats(t *testing.T) {
	f := newSessionFixture(t)
	started, err := f.svc.StartSession(f.rider, &models.StartSessionRequest{TripID: "trip-1"})
	require.NoError(t, err)
	_, err = f.svc.SelectPoints(started.SessionID, f.rider, &models.SelectPointsRequest{BoardingPoint: "Central", DroppingPoint: "Airport"})
	require.NoError(t, err)
	_, err = f.svc.SelectSeats(started.SessionID, f.rider, &models.SelectSeatsRequest{SeatNumbers: []string{"A1", "A2"}})
	require.NoError(t, err)

	t.Run("Wrong seat", func(t *testing.T) {
		_, err := f.svc.SubmitPassengers(started.SessionID, f.rider, &models.SubmitPassengersRequest{Passengers: manifest("A1", "B1")})
		assert.Error(t, err)
	})

	t.Run("Too few passengers", func(t *testing.T) {
		_, err := f.svc.SubmitPassengers(started.SessionID, f.rider, &models.SubmitPassengersRequest{Passengers: manifest("A1")})
		assert.Error(t, err)
	})

	t.Run("Duplicate seat", func(t *testing.T) {
		_, err := f.svc.SubmitPassengers(started.SessionID, f.rider, &models.SubmitPassengersRequest{Passengers: manifest("A1", "A1")})
		assert.Error(t, err)
	})
}

func TestStateMachineRejectsSkippedSteps(t *testing.T) {
	f := newSessionFixture(t)
	started, err := f.svc.StartSession(f.rider, &models.StartSessionRequest{TripID: "trip-1"})
	require.NoError(t, err)

	_, err = f.svc.SelectSeats(started.SessionID, f.rider, &models.SelectSeatsRequest{SeatNumbers: []string{"A1"}})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.svc.SubmitPayment(started.SessionID, f.rider, &models.SubmitPaymentRequest{Method: "card"})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestStartSessionIdempotency(t *testing.T) {
	f := newSessionFixture(t)
	key := "checkout-1"

	first, err := f.svc.StartSession(f.rider, &models.StartSessionRequest{TripID: "trip-1", IdempotencyKey: &key})
	require.NoError(t, err)
	second, err := f.svc.StartSession(f.rider, &models.StartSessionRequest{TripID: "trip-1", IdempotencyKey: &key})
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)

	// A different rider with the same key gets their own session.
	otherRider := uuid.New()
	third, err := f.svc.StartSession(otherRider, &models.StartSessionRequest{TripID: "trip-1", IdempotencyKey: &key})
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, third.SessionID)
}

func TestSessionOwnership(t *testing.T) {
	f := newSessionFixture(t)
	started, err := f.svc.StartSession(f.rider, &models.StartSessionRequest{TripID: "trip-1"})
	require.NoError(t, err)

	_, err = f.svc.GetSession(started.SessionID, uuid.New())
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestAbandonReleasesHold(t *testing.T) {
	f := newSessionFixture(t)
	sessionID := f.toPaymentPending(t, "A1")

	resp, err := f.svc.AbandonSession(sessionID, f.rider)
	require.NoError(t, err)
	assert.Equal(t, models.StateAbandoned, resp.State)
	assert.Equal(t, models.SeatStatusFree, seatStatus(t, f.holds, "trip-1", "A1"))

	// Terminal sessions stay terminal.
	_, err = f.svc.AbandonSession(sessionID, f.rider)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestExpireStaleSessions(t *testing.T) {
	f := newSessionFixture(t)
	sessionID := f.toPaymentPending(t, "A1")

	f.clk.Advance(31 * time.Minute)
	assert.Equal(t, 1, f.svc.ExpireStaleSessions())

	resp, err := f.svc.GetSession(sessionID, f.rider)
	require.NoError(t, err)
	assert.Equal(t, models.StateExpired, resp.State)
	assert.Equal(t, models.SeatStatusFree, seatStatus(t, f.holds, "trip-1", "A1"))

	// Already expired sessions are not counted twice.
	assert.Equal(t, 0, f.svc.ExpireStaleSessions())
}

func TestConcurrentReadsAndWritesOnOneSession(t *testing.T) {
	f := newSessionFixture(t)
	started, err := f.svc.StartSession(f.rider, &models.StartSessionRequest{TripID: "trip-1"})
	require.NoError(t, err)

	// Readers and writers hammer the same session; exactly one
	// SelectPoints wins, the rest fail the state check cleanly.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.svc.SelectPoints(started.SessionID, f.rider, &models.SelectPointsRequest{
				BoardingPoint: "Central",
				DroppingPoint: "Airport",
			})
		}()
		go func() {
			defer wg.Done()
			_, _ = f.svc.GetSession(started.SessionID, f.rider)
		}()
	}
	wg.Wait()

	resp, err := f.svc.GetSession(started.SessionID, f.rider)
	require.NoError(t, err)
	assert.Equal(t, models.StateSelectSeats, resp.State)
	assert.Equal(t, "Central", resp.BoardingPoint)
}

func TestConcurrentReselectionNeverLeaksHolds(t *testing.T) {
	f := newSessionFixture(t)
	started, err := f.svc.StartSession(f.rider, &models.StartSessionRequest{TripID: "trip-1"})
	require.NoError(t, err)
	_, err = f.svc.SelectPoints(started.SessionID, f.rider, &models.SelectPointsRequest{BoardingPoint: "Central", DroppingPoint: "Airport"})
	require.NoError(t, err)

	// Racing reselections must serialize: the loser's hold is always
	// released before the winner's is taken, so exactly one hold
	// survives and no seat stays HELD without an owning session.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		seat := "A1"
		if i%2 == 1 {
			seat = "A2"
		}
		wg.Add(1)
		go func(sn string) {
			defer wg.Done()
			_, err := f.svc.SelectSeats(started.SessionID, f.rider, &models.SelectSeatsRequest{SeatNumbers: []string{sn}})
			assert.NoError(t, err)
		}(seat)
	}
	wg.Wait()

	resp, err := f.svc.GetSession(started.SessionID, f.rider)
	require.NoError(t, err)
	require.Len(t, resp.HeldSeats, 1)

	winner := resp.HeldSeats[0]
	loser := "A2"
	if winner == "A2" {
		loser = "A1"
	}
	assert.Equal(t, models.SeatStatusHeld, seatStatus(t, f.holds, "trip-1", winner))
	assert.Equal(t, models.SeatStatusFree, seatStatus(t, f.holds, "trip-1", loser))
}

func TestReselectingSeatsReplacesHold(t *testing.T) {
	f := newSessionFixture(t)
	started, err := f.svc.StartSession(f.rider, &models.StartSessionRequest{TripID: "trip-1"})
	require.NoError(t, err)
	_, err = f.svc.SelectPoints(started.SessionID, f.rider, &models.SelectPointsRequest{BoardingPoint: "Central", DroppingPoint: "Airport"})
	require.NoError(t, err)

	_, err = f.svc.SelectSeats(started.SessionID, f.rider, &models.SelectSeatsRequest{SeatNumbers: []string{"A1"}})
	require.NoError(t, err)
	_, err = f.svc.SelectSeats(started.SessionID, f.rider, &models.SelectSeatsRequest{SeatNumbers: []string{"A2"}})
	require.NoError(t, err)

	assert.Equal(t, models.SeatStatusFree, seatStatus(t, f.holds, "trip-1", "A1"))
	assert.Equal(t, models.SeatStatusHeld, seatStatus(t, f.holds, "trip-1", "A2"))
}
