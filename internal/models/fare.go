package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AppliedMultipliers records every multiplier that contributed to the
// route fare, in the order they were applied.
type AppliedMultipliers struct {
	TimeBand float64 `json:"time_band"`
	Peak     float64 `json:"peak"`
	Weekend  float64 `json:"weekend"`
	Holiday  float64 `json:"holiday"`
}

// SeatFare is the per-seat line item of a quote.
type SeatFare struct {
	SeatNumber  string    `json:"seat_number"`
	Class       SeatClass `json:"seat_class"`
	PriceFactor float64   `json:"price_factor"`
	GrossAmount float64   `json:"gross_amount"` // route fare x price factor, before discounts
	Amount      float64   `json:"amount"`       // after discounts, rounded half-up
}

// AppliedDiscount records a discount class applied to the quote and the
// total amount it removed across all seats.
type AppliedDiscount struct {
	Code   string  `json:"code"`
	Rate   float64 `json:"rate"`
	Amount float64 `json:"amount"`
}

// FareBreakdown is the itemized, frozen result of a quote. It is
// persisted verbatim into the booking that pays it; the engine never
// recomputes a price after quoting.
type FareBreakdown struct {
	PolicyID   uuid.UUID `json:"policy_id"`
	Currency   string    `json:"currency"`
	DistanceKm float64   `json:"distance_km"`
	RatePerKm  float64   `json:"rate_per_km"`
	BaseAmount float64   `json:"base_amount"`

	TimeBand    TimeBand           `json:"time_band"`
	Multipliers AppliedMultipliers `json:"multipliers"`

	// RouteFare is the fare after multipliers and min/max clamping,
	// before the per-seat price factor and discounts.
	RouteFare        float64 `json:"route_fare"`
	ClampedToMinimum bool    `json:"clamped_to_minimum"`
	ClampedToMaximum bool    `json:"clamped_to_maximum"`

	Seats     []SeatFare        `json:"seats"`
	Discounts []AppliedDiscount `json:"discounts,omitempty"`

	Total    float64   `json:"total"`
	QuotedAt time.Time `json:"quoted_at"`
}

func (f FareBreakdown) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *FareBreakdown) Scan(value interface{}) error {
	if value == nil {
		*f = FareBreakdown{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed for FareBreakdown")
	}
	return json.Unmarshal(bytes, f)
}
