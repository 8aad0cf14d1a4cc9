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

// FarePolicyRepository handles fare policy database operations
type FarePolicyRepository struct {
	db *sqlx.DB
}

// NewFarePolicyRepository creates a new FarePolicyRepository
func NewFarePolicyRepository(db *sqlx.DB) *FarePolicyRepository {
	return &FarePolicyRepository{db: db}
}

const farePolicyColumns = `
	id, bus_type, route_type, effective_from, effective_to, is_active,
	rate_per_km, minimum_fare, maximum_fare,
	distance_brackets, time_band_multipliers,
	peak_hour_multiplier, weekend_multiplier, holiday_multiplier,
	discount_classes, created_at, updated_at`

// EffectivePolicy returns the newest active policy version covering the
// travel date for a (busType, routeType) pair, or nil when none exists.
func (r *FarePolicyRepository) EffectivePolicy(busType, routeType string, travelDate time.Time) (*models.FarePolicy, error) {
	var policy models.FarePolicy
	query := `
		SELECT` + farePolicyColumns + `
		FROM fare_policies
		WHERE bus_type = $1
		  AND route_type = $2
		  AND is_active = true
		  AND effective_from <= $3
		  AND (effective_to IS NULL OR effective_to > $3)
		ORDER BY effective_from DESC
		LIMIT 1`

	err := r.db.Get(&policy, query, busType, routeType, travelDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get effective fare policy: %w", err)
	}
	return &policy, nil
}

// GetByID retrieves a policy version by ID
func (r *FarePolicyRepository) GetByID(id uuid.UUID) (*models.FarePolicy, error) {
	var policy models.FarePolicy
	query := `SELECT` + farePolicyColumns + ` FROM fare_policies WHERE id = $1`

	err := r.db.Get(&policy, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fare policy: %w", err)
	}
	return &policy, nil
}

// Create inserts a new policy version. The caller validates the policy
// first; existing versions are never mutated.
func (r *FarePolicyRepository) Create(policy *models.FarePolicy) error {
	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}
	policy.CreatedAt = time.Now()
	policy.UpdatedAt = policy.CreatedAt

	query := `
		INSERT INTO fare_policies (
			id, bus_type, route_type, effective_from, effective_to, is_active,
			rate_per_km, minimum_fare, maximum_fare,
			distance_brackets, time_band_multipliers,
			peak_hour_multiplier, weekend_multiplier, holiday_multiplier,
			discount_classes, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)`

	_, err := r.db.Exec(query,
		policy.ID, policy.BusType, policy.RouteType, policy.EffectiveFrom, policy.EffectiveTo, policy.IsActive,
		policy.RatePerKm, policy.MinimumFare, policy.MaximumFare,
		policy.DistanceBrackets, policy.TimeBands,
		policy.PeakHourMultiplier, policy.WeekendMultiplier, policy.HolidayMultiplier,
		policy.Discounts, policy.CreatedAt, policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create fare policy: %w", err)
	}
	return nil
}

// List returns policy versions for a (busType, routeType) pair, newest
// effective date first.
func (r *FarePolicyRepository) List(busType, routeType string) ([]models.FarePolicy, error) {
	var policies []models.FarePolicy
	query := `
		SELECT` + farePolicyColumns + `
		FROM fare_policies
		WHERE bus_type = $1 AND route_type = $2
		ORDER BY effective_from DESC`

	if err := r.db.Select(&policies, query, busType, routeType); err != nil {
		return nil, fmt.Errorf("failed to list fare policies: %w", err)
	}
	return policies, nil
}

// Deactivate retires a policy version without deleting it.
func (r *FarePolicyRepository) Deactivate(id uuid.UUID) error {
	result, err := r.db.Exec(`UPDATE fare_policies SET is_active = false, updated_at = $2 WHERE id = $1`, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to deactivate fare policy: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrPolicyNotFound
	}
	return nil
}
