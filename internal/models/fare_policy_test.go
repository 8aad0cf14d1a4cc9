package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeBandFor(t *testing.T) {
	day := func(hour int) time.Time {
		return time.Date(2026, 1, 7, hour, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		hour int
		want TimeBand
	}{
		{5, TimeBandNight},
		{6, TimeBandMorning},
		{11, TimeBandMorning},
		{12, TimeBandAfternoon},
		{17, TimeBandAfternoon},
		{18, TimeBandEvening},
		{21, TimeBandEvening},
		{22, TimeBandNight},
		{0, TimeBandNight},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, TimeBandFor(day(tc.hour)), "hour %d", tc.hour)
	}
}

func TestDistanceBracketContains(t *testing.T) {
	b := DistanceBracket{FromKm: 100, ToKm: 500, RatePerKm: 8}

	assert.True(t, b.Contains(100))
	assert.True(t, b.Contains(499.9))
	assert.False(t, b.Contains(500)) // upper bound is exclusive
	assert.False(t, b.Contains(99.9))
}

func TestTimeBandMultipliersDefault(t *testing.T) {
	m := TimeBandMultipliers{Evening: 1.1}

	assert.Equal(t, 1.1, m.For(TimeBandEvening))
	assert.Equal(t, 1.0, m.For(TimeBandMorning))
}

func TestDiscountClassActiveAt(t *testing.T) {
	now := time.Date(2026, 1, 7, 14, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	assert.True(t, DiscountClass{Rate: 0.1}.ActiveAt(now))
	assert.True(t, DiscountClass{Rate: 0.1, ValidFrom: &past, ValidTo: &future}.ActiveAt(now))
	assert.False(t, DiscountClass{Rate: 0.1, ValidFrom: &future}.ActiveAt(now))
	assert.False(t, DiscountClass{Rate: 0.1, ValidTo: &past}.ActiveAt(now))
}

func TestFarePolicyValidate(t *testing.T) {
	valid := func() *FarePolicy {
		return &FarePolicy{
			BusType:   "ac_seater",
			RouteType: "intercity",
			RatePerKm: 10,
			DistanceBrackets: DistanceBrackets{
				{FromKm: 0, ToKm: 100, RatePerKm: 12},
				{FromKm: 100, ToKm: 500, RatePerKm: 8},
			},
			Discounts: DiscountClasses{"student": {Rate: 0.10}},
		}
	}

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("Gap between brackets", func(t *testing.T) {
		p := valid()
		p.DistanceBrackets[1].FromKm = 150
		assert.Error(t, p.Validate())
	})

	t.Run("Overlapping brackets", func(t *testing.T) {
		p := valid()
		p.DistanceBrackets[1].FromKm = 50
		assert.Error(t, p.Validate())
	})

	t.Run("Maximum below minimum", func(t *testing.T) {
		p := valid()
		p.MinimumFare = 200
		max := 100.0
		p.MaximumFare = &max
		assert.Error(t, p.Validate())
	})

	t.Run("Discount rate out of range", func(t *testing.T) {
		p := valid()
		p.Discounts["full"] = DiscountClass{Rate: 1.0}
		assert.Error(t, p.Validate())
	})
}

func TestBracketRateFallback(t *testing.T) {
	p := &FarePolicy{
		RatePerKm:        10,
		DistanceBrackets: DistanceBrackets{{FromKm: 0, ToKm: 100, RatePerKm: 12}},
	}

	assert.Equal(t, 12.0, p.BracketRate(50))
	assert.Equal(t, 10.0, p.BracketRate(250))
}
