package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimeBand identifies the clock segment a departure falls into.
// Boundaries are 06:00, 12:00, 18:00 and 22:00 local time.
type TimeBand string

const (
	TimeBandMorning   TimeBand = "morning"   // [06:00, 12:00)
	TimeBandAfternoon TimeBand = "afternoon" // [12:00, 18:00)
	TimeBandEvening   TimeBand = "evening"   // [18:00, 22:00)
	TimeBandNight     TimeBand = "night"     // [22:00, 06:00)
)

// TimeBandFor returns the band containing t's local clock time.
func TimeBandFor(t time.Time) TimeBand {
	switch hour := t.Hour(); {
	case hour >= 6 && hour < 12:
		return TimeBandMorning
	case hour >= 12 && hour < 18:
		return TimeBandAfternoon
	case hour >= 18 && hour < 22:
		return TimeBandEvening
	default:
		return TimeBandNight
	}
}

// DistanceBracket overrides the flat per-km rate for a contiguous
// [FromKm, ToKm) range.
type DistanceBracket struct {
	FromKm    float64 `json:"from_km"`
	ToKm      float64 `json:"to_km"`
	RatePerKm float64 `json:"rate_per_km"`
}

// Contains reports whether km falls inside the half-open bracket range.
func (b DistanceBracket) Contains(km float64) bool {
	return km >= b.FromKm && km < b.ToKm
}

// DistanceBrackets is an ordered, non-overlapping list stored as JSONB.
type DistanceBrackets []DistanceBracket

func (b DistanceBrackets) Value() (driver.Value, error) {
	return json.Marshal(b)
}

func (b *DistanceBrackets) Scan(value interface{}) error {
	if value == nil {
		*b = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed for DistanceBrackets")
	}
	return json.Unmarshal(bytes, b)
}

// TimeBandMultipliers holds the multiplier applied per time band.
// A zero value for a band means 1.0 (no adjustment).
type TimeBandMultipliers struct {
	Morning   float64 `json:"morning"`
	Afternoon float64 `json:"afternoon"`
	Evening   float64 `json:"evening"`
	Night     float64 `json:"night"`
}

// For returns the multiplier for the given band, defaulting to 1.0.
func (m TimeBandMultipliers) For(band TimeBand) float64 {
	var v float64
	switch band {
	case TimeBandMorning:
		v = m.Morning
	case TimeBandAfternoon:
		v = m.Afternoon
	case TimeBandEvening:
		v = m.Evening
	case TimeBandNight:
		v = m.Night
	}
	if v <= 0 {
		return 1.0
	}
	return v
}

func (m TimeBandMultipliers) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *TimeBandMultipliers) Scan(value interface{}) error {
	if value == nil {
		*m = TimeBandMultipliers{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed for TimeBandMultipliers")
	}
	return json.Unmarshal(bytes, m)
}

// DiscountClass is a fractional reduction (0.10 = 10% off) with an
// optional validity window.
type DiscountClass struct {
	Rate      float64    `json:"rate"`
	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
}

// ActiveAt reports whether the discount is usable at the given instant.
func (d DiscountClass) ActiveAt(t time.Time) bool {
	if d.ValidFrom != nil && t.Before(*d.ValidFrom) {
		return false
	}
	if d.ValidTo != nil && t.After(*d.ValidTo) {
		return false
	}
	return true
}

// DiscountClasses maps a discount code (student, senior, group, promo
// codes) to its class definition. Stored as JSONB.
type DiscountClasses map[string]DiscountClass

func (d DiscountClasses) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *DiscountClasses) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed for DiscountClasses")
	}
	return json.Unmarshal(bytes, d)
}

// FarePolicy is a versioned pricing rule set for a (busType, routeType)
// pair. Policies are written by policy administration; the engine only
// reads the version effective for a given travel date.
type FarePolicy struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	BusType       string     `json:"bus_type" db:"bus_type"`
	RouteType     string     `json:"route_type" db:"route_type"`
	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`
	IsActive      bool       `json:"is_active" db:"is_active"`

	RatePerKm   float64  `json:"rate_per_km" db:"rate_per_km"`
	MinimumFare float64  `json:"minimum_fare" db:"minimum_fare"`
	MaximumFare *float64 `json:"maximum_fare,omitempty" db:"maximum_fare"`

	DistanceBrackets   DistanceBrackets    `json:"distance_brackets" db:"distance_brackets"`
	TimeBands          TimeBandMultipliers `json:"time_band_multipliers" db:"time_band_multipliers"`
	PeakHourMultiplier float64             `json:"peak_hour_multiplier" db:"peak_hour_multiplier"`
	WeekendMultiplier  float64             `json:"weekend_multiplier" db:"weekend_multiplier"`
	HolidayMultiplier  float64             `json:"holiday_multiplier" db:"holiday_multiplier"`

	Discounts DiscountClasses `json:"discount_classes" db:"discount_classes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BracketRate returns the per-km rate for the given distance, falling
// back to the flat RatePerKm when no bracket matches.
func (p *FarePolicy) BracketRate(distanceKm float64) float64 {
	for _, b := range p.DistanceBrackets {
		if b.Contains(distanceKm) {
			return b.RatePerKm
		}
	}
	return p.RatePerKm
}

// Validate enforces the policy invariants: brackets contiguous and
// non-overlapping, and minimumFare <= maximumFare when both set.
func (p *FarePolicy) Validate() error {
	if p.BusType == "" || p.RouteType == "" {
		return errors.New("bus_type and route_type are required")
	}
	if p.RatePerKm <= 0 {
		return errors.New("rate_per_km must be positive")
	}
	if p.MinimumFare < 0 {
		return errors.New("minimum_fare must not be negative")
	}
	if p.MaximumFare != nil && *p.MaximumFare < p.MinimumFare {
		return fmt.Errorf("maximum_fare %.2f is below minimum_fare %.2f", *p.MaximumFare, p.MinimumFare)
	}
	for i, b := range p.DistanceBrackets {
		if b.ToKm <= b.FromKm {
			return fmt.Errorf("bracket %d: to_km must be greater than from_km", i)
		}
		if b.RatePerKm <= 0 {
			return fmt.Errorf("bracket %d: rate_per_km must be positive", i)
		}
		if i > 0 && b.FromKm != p.DistanceBrackets[i-1].ToKm {
			return fmt.Errorf("bracket %d: brackets must be contiguous and non-overlapping", i)
		}
	}
	for code, d := range p.Discounts {
		if d.Rate < 0 || d.Rate >= 1 {
			return fmt.Errorf("discount %q: rate must be in [0, 1)", code)
		}
	}
	return nil
}
