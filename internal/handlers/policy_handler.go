package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yatrikerp/booking-engine/internal/database"
	"github.com/yatrikerp/booking-engine/internal/models"
	"github.com/yatrikerp/booking-engine/internal/services"
)

// PolicyHandler handles fare policy administration and quote previews
type PolicyHandler struct {
	policyRepo  *database.FarePolicyRepository
	fareService *services.FareService
	trips       services.TripSource
	holdManager *services.HoldManager
	calendar    services.Calendar
	logger      *logrus.Logger
}

// NewPolicyHandler creates a new PolicyHandler
func NewPolicyHandler(
	policyRepo *database.FarePolicyRepository,
	fareService *services.FareService,
	trips services.TripSource,
	holdManager *services.HoldManager,
	calendar services.Calendar,
	logger *logrus.Logger,
) *PolicyHandler {
	return &PolicyHandler{
		policyRepo:  policyRepo,
		fareService: fareService,
		trips:       trips,
		holdManager: holdManager,
		calendar:    calendar,
		logger:      logger,
	}
}

// ============================================================================
// POLICY ADMINISTRATION
// ============================================================================

// CreatePolicy adds a new policy version - POST /api/v1/policies
func (h *PolicyHandler) CreatePolicy(c *gin.Context) {
	var policy models.FarePolicy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := policy.Validate(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if err := h.policyRepo.Create(&policy); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"policy_id":  policy.ID,
		"bus_type":   policy.BusType,
		"route_type": policy.RouteType,
	}).Info("Fare policy created")

	c.JSON(http.StatusCreated, policy)
}

// ListPolicies lists policy versions - GET /api/v1/policies
func (h *PolicyHandler) ListPolicies(c *gin.Context) {
	busType := c.Query("bus_type")
	routeType := c.Query("route_type")
	if busType == "" || routeType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bus_type and route_type are required"})
		return
	}

	policies, err := h.policyRepo.List(busType, routeType)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"policies": policies})
}

// GetPolicy returns one policy version - GET /api/v1/policies/:id
func (h *PolicyHandler) GetPolicy(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid policy id"})
		return
	}

	policy, err := h.policyRepo.GetByID(id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if policy == nil {
		respondError(c, h.logger, models.ErrPolicyNotFound)
		return
	}
	c.JSON(http.StatusOK, policy)
}

// DeactivatePolicy retires a policy version - DELETE /api/v1/policies/:id
func (h *PolicyHandler) DeactivatePolicy(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid policy id"})
		return
	}

	if err := h.policyRepo.Deactivate(id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "policy deactivated"})
}

// ============================================================================
// QUOTE PREVIEW - POST /api/v1/quotes/preview
// ============================================================================

// QuotePreviewRequest prices a seat selection without holding anything
type QuotePreviewRequest struct {
	TripID        string   `json:"trip_id" binding:"required"`
	SeatNumbers   []string `json:"seat_numbers" binding:"required,min=1"`
	DiscountCodes []string `json:"discount_codes,omitempty"`
}

// QuotePreview computes a non-binding quote for the requested seats
func (h *PolicyHandler) QuotePreview(c *gin.Context) {
	var req QuotePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	trip, err := h.trips.TripByID(req.TripID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if trip == nil {
		respondError(c, h.logger, models.ErrTripNotFound)
		return
	}

	all, err := h.holdManager.SeatMap(req.TripID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	byNumber := make(map[string]models.Seat, len(all))
	for _, seat := range all {
		byNumber[seat.SeatNumber] = seat
	}
	seats := make([]models.Seat, 0, len(req.SeatNumbers))
	for _, sn := range req.SeatNumbers {
		seat, ok := byNumber[sn]
		if !ok {
			respondError(c, h.logger, models.ErrSeatUnknown)
			return
		}
		seats = append(seats, seat)
	}

	quote, err := h.fareService.Quote(&services.QuoteRequest{
		Trip:          trip,
		Seats:         seats,
		DiscountCodes: req.DiscountCodes,
		PeakHour:      h.calendar.IsPeakHour(trip.DepartureAt),
		Holiday:       h.calendar.IsHoliday(trip.DepartureAt),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}
