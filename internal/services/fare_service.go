package services

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yatrikerp/booking-engine/internal/clock"
	"github.com/yatrikerp/booking-engine/internal/models"
)

// PolicySource resolves the fare policy effective for a trip's travel
// date. Backed by the fare policy repository in production.
type PolicySource interface {
	EffectivePolicy(busType, routeType string, travelDate time.Time) (*models.FarePolicy, error)
}

// FareServiceConfig holds configuration for quoting
type FareServiceConfig struct {
	Currency string // ISO currency code stamped on every quote (default INR)
}

// DefaultFareServiceConfig returns default configuration
func DefaultFareServiceConfig() FareServiceConfig {
	return FareServiceConfig{
		Currency: "INR",
	}
}

// QuoteRequest carries everything needed to price one seat selection.
// PeakHour and Holiday are resolved by the caller against the network
// calendar; the engine does not own that data.
type QuoteRequest struct {
	Trip          *models.Trip
	Seats         []models.Seat
	DiscountCodes []string
	PeakHour      bool
	Holiday       bool
}

// FareService computes deterministic, itemized fare quotes
type FareService struct {
	policies PolicySource
	clock    clock.Clock
	config   FareServiceConfig
	logger   *logrus.Logger
}

// NewFareService creates a new fare service
func NewFareService(policies PolicySource, clk clock.Clock, config FareServiceConfig, logger *logrus.Logger) *FareService {
	return &FareService{
		policies: policies,
		clock:    clk,
		config:   config,
		logger:   logger,
	}
}

// ============================================================================
// QUOTE
// ============================================================================

// Quote prices the requested seats. Given the same policy version and
// the same request, the result is identical down to the timestamp
// source; nothing is recomputed after this snapshot is taken.
func (s *FareService) Quote(req *QuoteRequest) (*models.FareBreakdown, error) {
	if req.Trip == nil {
		return nil, models.ErrTripNotFound
	}
	if len(req.Seats) == 0 {
		return nil, fmt.Errorf("at least one seat is required to quote")
	}

	policy, err := s.policies.EffectivePolicy(req.Trip.BusType, req.Trip.RouteType, req.Trip.DepartureAt)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve fare policy: %w", err)
	}
	if policy == nil {
		return nil, models.ErrPolicyNotFound
	}

	now := s.clock.Now()

	// 1. Validate discount codes up front; an invalid code fails the
	// whole quote rather than being dropped.
	discounts, err := s.resolveDiscounts(policy, req.DiscountCodes, now)
	if err != nil {
		return nil, err
	}

	// 2. Base amount from distance and the bracket rate.
	rate := policy.BracketRate(req.Trip.DistanceKm)
	base := req.Trip.DistanceKm * rate

	// 3. Multipliers in fixed order: time band, peak, weekend, holiday.
	band := models.TimeBandFor(req.Trip.DepartureAt)
	multipliers := models.AppliedMultipliers{
		TimeBand: policy.TimeBands.For(band),
		Peak:     1.0,
		Weekend:  1.0,
		Holiday:  1.0,
	}
	if req.PeakHour && policy.PeakHourMultiplier > 0 {
		multipliers.Peak = policy.PeakHourMultiplier
	}
	if isWeekend(req.Trip.DepartureAt) && policy.WeekendMultiplier > 0 {
		multipliers.Weekend = policy.WeekendMultiplier
	}
	if req.Holiday && policy.HolidayMultiplier > 0 {
		multipliers.Holiday = policy.HolidayMultiplier
	}

	routeFare := base * multipliers.TimeBand * multipliers.Peak * multipliers.Weekend * multipliers.Holiday

	// 4. Clamp before any discount is applied. The bounds hold for the
	// route fare; per-seat price factors scale the clamped value, so a
	// premium seat can price above MaximumFare by its factor.
	clampedMin, clampedMax := false, false
	if routeFare < policy.MinimumFare {
		routeFare = policy.MinimumFare
		clampedMin = true
	}
	if policy.MaximumFare != nil && routeFare > *policy.MaximumFare {
		routeFare = *policy.MaximumFare
		clampedMax = true
	}

	// 5. Per-seat pricing: route fare scaled by the seat's price
	// factor, then each discount applied sequentially to the running
	// amount. Rounding happens once, on the final per-seat amount.
	seatFares := make([]models.SeatFare, len(req.Seats))
	appliedDiscounts := make([]models.AppliedDiscount, len(discounts))
	for i, d := range discounts {
		appliedDiscounts[i] = models.AppliedDiscount{Code: d.code, Rate: d.rate}
	}

	var total float64
	for i, seat := range req.Seats {
		gross := routeFare * seat.EffectivePriceFactor()
		net := gross
		for j, d := range discounts {
			reduction := net * d.rate
			appliedDiscounts[j].Amount = roundHalfUp(appliedDiscounts[j].Amount + reduction)
			net -= reduction
		}
		amount := roundHalfUp(net)
		seatFares[i] = models.SeatFare{
			SeatNumber:  seat.SeatNumber,
			Class:       seat.Class,
			PriceFactor: seat.EffectivePriceFactor(),
			GrossAmount: roundHalfUp(gross),
			Amount:      amount,
		}
		total += amount
	}
	total = roundHalfUp(total)

	breakdown := &models.FareBreakdown{
		PolicyID:         policy.ID,
		Currency:         s.config.Currency,
		DistanceKm:       req.Trip.DistanceKm,
		RatePerKm:        rate,
		BaseAmount:       roundHalfUp(base),
		TimeBand:         band,
		Multipliers:      multipliers,
		RouteFare:        roundHalfUp(routeFare),
		ClampedToMinimum: clampedMin,
		ClampedToMaximum: clampedMax,
		Seats:            seatFares,
		Discounts:        appliedDiscounts,
		Total:            total,
		QuotedAt:         now,
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":   req.Trip.ID,
		"policy_id": policy.ID,
		"seats":     len(req.Seats),
		"time_band": band,
		"total":     total,
	}).Info("Fare quoted")

	return breakdown, nil
}

// resolvedDiscount pairs a code with its active rate.
type resolvedDiscount struct {
	code string
	rate float64
}

func (s *FareService) resolveDiscounts(policy *models.FarePolicy, codes []string, now time.Time) ([]resolvedDiscount, error) {
	resolved := make([]resolvedDiscount, 0, len(codes))
	for _, code := range codes {
		class, ok := policy.Discounts[code]
		if !ok {
			return nil, &models.InvalidDiscountError{Code: code, Reason: "unknown"}
		}
		if !class.ActiveAt(now) {
			return nil, &models.InvalidDiscountError{Code: code, Reason: "expired"}
		}
		resolved = append(resolved, resolvedDiscount{code: code, rate: class.Rate})
	}
	return resolved, nil
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// roundHalfUp rounds to two decimal places with ties going up, so a
// half-cent always favours the higher amount.
func roundHalfUp(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
