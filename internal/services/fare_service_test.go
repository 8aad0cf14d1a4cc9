package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yatrikerp/booking-engine/internal/clock"
	"github.com/yatrikerp/booking-engine/internal/models"
)

type fakePolicies struct {
	policy *models.FarePolicy
	err    error
}

func (f *fakePolicies) EffectivePolicy(busType, routeType string, travelDate time.Time) (*models.FarePolicy, error) {
	return f.policy, f.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func basePolicy() *models.FarePolicy {
	return &models.FarePolicy{
		ID:                 uuid.New(),
		BusType:            "ac_seater",
		RouteType:          "intercity",
		IsActive:           true,
		RatePerKm:          10,
		MinimumFare:        0,
		PeakHourMultiplier: 1.2,
		WeekendMultiplier:  1.5,
		HolidayMultiplier:  1.25,
		Discounts: models.DiscountClasses{
			"student": {Rate: 0.10},
			"promo5":  {Rate: 0.05},
		},
	}
}

func newTestFareService(policy *models.FarePolicy, at time.Time) *FareService {
	return NewFareService(&fakePolicies{policy: policy}, clock.NewFixed(at), DefaultFareServiceConfig(), testLogger())
}

func seats(numbers ...string) []models.Seat {
	out := make([]models.Seat, len(numbers))
	for i, n := range numbers {
		out[i] = models.Seat{SeatNumber: n, Class: models.SeatClassSeater, PriceFactor: 1.0}
	}
	return out
}

// Wednesday afternoon, off-peak band multiplier defaults to 1.0.
var weekdayAfternoon = time.Date(2026, 1, 7, 14, 0, 0, 0, time.UTC)

func TestQuotePeakMultiplier(t *testing.T) {
	svc := newTestFareService(basePolicy(), weekdayAfternoon)
	trip := &models.Trip{ID: "trip-1", BusType: "ac_seater", RouteType: "intercity", DistanceKm: 50, DepartureAt: weekdayAfternoon}

	quote, err := svc.Quote(&QuoteRequest{Trip: trip, Seats: seats("A1"), PeakHour: true})
	require.NoError(t, err)

	// 50 km x 10/km = 500, x1.2 peak = 600
	assert.Equal(t, 500.0, quote.BaseAmount)
	assert.Equal(t, 1.2, quote.Multipliers.Peak)
	assert.Equal(t, 1.0, quote.Multipliers.TimeBand)
	assert.Equal(t, 1.0, quote.Multipliers.Weekend)
	assert.Equal(t, 600.0, quote.RouteFare)
	assert.Equal(t, 600.0, quote.Total)
	assert.Equal(t, models.TimeBandAfternoon, quote.TimeBand)
}

func TestQuoteWeekendMultiplierDerivedFromTravelDate(t *testing.T) {
	saturday := time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)
	svc := newTestFareService(basePolicy(), saturday)
	trip := &models.Trip{ID: "trip-1", BusType: "ac_seater", RouteType: "intercity", DistanceKm: 10, DepartureAt: saturday}

	quote, err := svc.Quote(&QuoteRequest{Trip: trip, Seats: seats("A1")})
	require.NoError(t, err)

	assert.Equal(t, 1.5, quote.Multipliers.Weekend)
	assert.Equal(t, 150.0, quote.Total)
}

func TestQuoteDistanceBracketOverridesFlatRate(t *testing.T) {
	policy := basePolicy()
	policy.DistanceBrackets = models.DistanceBrackets{
		{FromKm: 0, ToKm: 100, RatePerKm: 12},
		{FromKm: 100, ToKm: 500, RatePerKm: 8},
	}
	svc := newTestFareService(policy, weekdayAfternoon)
	trip := &models.Trip{ID: "trip-1", BusType: "ac_seater", RouteType: "intercity", DistanceKm: 200, DepartureAt: weekdayAfternoon}

	quote, err := svc.Quote(&QuoteRequest{Trip: trip, Seats: seats("A1")})
	require.NoError(t, err)

	assert.Equal(t, 8.0, quote.RatePerKm)
	assert.Equal(t, 1600.0, quote.Total)
}

func TestQuoteBracketFallbackToFlatRate(t *testing.T) {
	policy := basePolicy()
	policy.DistanceBrackets = models.DistanceBrackets{{FromKm: 0, ToKm: 50, RatePerKm: 12}}
	svc := newTestFareService(policy, weekdayAfternoon)
	trip := &models.Trip{ID: "trip-1", BusType: "ac_seater", RouteType: "intercity", DistanceKm: 80, DepartureAt: weekdayAfternoon}

	quote, err := svc.Quote(&QuoteRequest{Trip: trip, Seats: seats("A1")})
	require.NoError(t, err)

	assert.Equal(t, 10.0, quote.RatePerKm)
	assert.Equal(t, 800.0, quote.Total)
}

func TestQuoteClamping(t *testing.T) {
	t.Run("Minimum", func(t *testing.T) {
		policy := basePolicy()
		policy.MinimumFare = 100
		svc := newTestFareService(policy, weekdayAfternoon)
		trip := &models.Trip{ID: "trip-1", BusType: "ac_seater", RouteType: "intercity", DistanceKm: 3, DepartureAt: weekdayAfternoon}

		quote, err := svc.Quote(&QuoteRequest{Trip: trip, Seats: seats("A1")})
		require.NoError(t, err)

		assert.True(t, quote.ClampedToMinimum)
		assert.Equal(t, 100.0, quote.RouteFare)
		assert.Equal(t, 100.0, quote.Total)
	})

	t.Run("Maximum", func(t *testing.T) {
		policy := basePolicy()
		max := 1000.0
		policy.MaximumFare = &max
		svc := newTestFareService(policy, weekdayAfternoon)
		trip := &models.Trip{ID: "trip-1", BusType: "ac_seater", RouteType: "intercity", DistanceKm: 500, DepartureAt: weekdayAfternoon}

		quote, err := svc.Quote(&QuoteRequest{Trip: trip, Seats: seats("A1")})
		require.NoError(t, err)

		assert.True(t, quote.ClampedToMaximum)
		assert.Equal(t, 1000.0, quote.Total)
	})

	t.Run("Seat factor scales the clamped route fare", func(t *testing.T) {
		policy := basePolicy()
		max := 1000.0
		policy.MaximumFare = &max
		svc := newTestFareService(policy, weekdayAfternoon)
		trip := &models.Trip{ID: "trip-1", BusType: "ac_seater", RouteType: "intercity", DistanceKm: 500, DepartureAt: weekdayAfternoon}

		seatList := []models.Seat{{SeatNumber: "S1", Class: models.SeatClassSleeper, PriceFactor: 1.5}}
		quote, err := svc.Quote(&QuoteRequest{Trip: trip, Seats: seatList})
		require.NoError(t, err)

		// The cap bounds the route fare, not the per-seat amount; a
		// premium seat prices above it by its factor.
		assert.True(t, quote.ClampedToMaximum)
		assert.Equal(t, 1000.0, quote.RouteFare)
		assert.Equal(t, 1500.0, quote.Total)
	})

	t.Run("Discount applies after clamp", func(t *testing.T) {
		policy := basePolicy()
		policy.MinimumFare = 100
		svc := newTestFareService(policy, weekdayAfternoon)
		trip := &models.Trip{ID: "trip-1", BusType: "ac_seater", RouteType: "intercity", DistanceKm: 3, DepartureAt: weekdayAfternoon}

		quote, err := svc.Quote(&QuoteRequest{Trip: trip, Seats: seats("A1"), DiscountCodes: []string{"student"}})
		require.NoError(t, err)

		assert.True(t, quote.ClampedToMinimum)
		assert.Equal(t, 90.0, quote.Total)
	})
}

func TestQuoteSequentialDiscounts(t *testing.T) {
	svc := newTestFareService(basePolicy(), weekdayAfternoon)
	trip := &models.Trip{ID: "trip-1", BusType: "ac_seater", RouteType: "intercity", DistanceKm: 100, DepartureAt: weekdayAfternoon}

	quote, err := svc.Quote(&QuoteRequest{Trip: trip, Seats: seats("A1"), DiscountCodes: []string{"student", "promo5"}})
	require.NoError(t, err)

	// 1000 x 0.90 = 900, x 0.95 = 855. Sequential, not additive.
	assert.Equal(t, 855.0, quote.Total)
	require.Len(t, quote.Discounts, 2)
	assert.Equal(t, "student", quote.Discounts[0].Code)
	assert.Equal(t, 100.0, quote.Discounts[0].Amount)
	assert.Equal(t, "promo5", quote.Discounts[1].Code)
	assert.Equal(t, 45.0, quote.Discounts[1].Amount)
}

func TestQuoteInvalidDiscount(t *testing.T) {
	t.Run("Unknown code fails the whole quote", func(t *testing.T) {
		svc := newTestFareService(basePolicy(), weekdayAfternoon)
		trip := &models.Trip{ID: "trip-1", BusType: "ac_seater", RouteType: "intercity", DistanceKm: 100, DepartureAt: weekdayAfternoon}

		_, err := svc.Quote(&QuoteRequest{Trip: trip, Seats: seats("A1"), DiscountCodes: []string{"student", "nope"}})
		var invalid *models.InvalidDiscountError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "nope", invalid.Code)
		assert.Equal(t, "unknown", invalid.Reason)
	})

	t.Run("Expired code", func(t *testing.T) {
		policy := basePolicy()
		past := weekdayAfternoon.Add(-24 * time.Hour)
		policy.Discounts["flash"] = models.DiscountClass{Rate: 0.2, ValidTo: &past}
		svc := newTestFareService(policy, weekdayAfternoon)
		trip := &models.Trip{ID: "trip-1", BusType: "ac_seater", RouteType: "intercity", DistanceKm: 100, DepartureAt: weekdayAfternoon}

		_, err := svc.Quote(&QuoteRequest{Trip: trip, Seats: seats("A1"), DiscountCodes: []string{"flash"}})
		var invalid *models.InvalidDiscountError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "expired", invalid.Reason)
	})
}

func TestQuoteSeatPriceFactor(t *testing.T) {
	svc := newTestFareService(basePolicy(), weekdayAfternoon)
	trip := &models.Trip{ID: "trip-1", BusType: "ac_seater", RouteType: "intercity", DistanceKm: 100, DepartureAt: weekdayAfternoon}

	seatList := []models.Seat{
		{SeatNumber: "A1", Class: models.SeatClassSeater, PriceFactor: 1.0},
		{SeatNumber: "S1", Class: models.SeatClassSleeper, PriceFactor: 1.5},
	}
	quote, err := svc.Quote(&QuoteRequest{Trip: trip, Seats: seatList})
	require.NoError(t, err)

	require.Len(t, quote.Seats, 2)
	assert.Equal(t, 1000.0, quote.Seats[0].Amount)
	assert.Equal(t, 1500.0, quote.Seats[1].Amount)
	assert.Equal(t, 2500.0, quote.Total)
}

func TestQuoteDeterministic(t *testing.T) {
	svc := newTestFareService(basePolicy(), weekdayAfternoon)
	trip := &models.Trip{ID: "trip-1", BusType: "ac_seater", RouteType: "intercity", DistanceKm: 123.4, DepartureAt: weekdayAfternoon}
	req := &QuoteRequest{Trip: trip, Seats: seats("A1", "A2"), DiscountCodes: []string{"student"}, PeakHour: true}

	first, err := svc.Quote(req)
	require.NoError(t, err)
	second, err := svc.Quote(req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestQuoteNoEffectivePolicy(t *testing.T) {
	svc := newTestFareService(nil, weekdayAfternoon)
	trip := &models.Trip{ID: "trip-1", BusType: "ac_seater", RouteType: "intercity", DistanceKm: 10, DepartureAt: weekdayAfternoon}

	_, err := svc.Quote(&QuoteRequest{Trip: trip, Seats: seats("A1")})
	assert.ErrorIs(t, err, models.ErrPolicyNotFound)
}

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, 103.33, roundHalfUp(103.333))
	assert.Equal(t, 103.34, roundHalfUp(103.336))
	assert.Equal(t, 0.13, roundHalfUp(0.125))
	assert.Equal(t, 100.0, roundHalfUp(100.0))
}
