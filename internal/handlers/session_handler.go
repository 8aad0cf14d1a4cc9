package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yatrikerp/booking-engine/internal/middleware"
	"github.com/yatrikerp/booking-engine/internal/models"
	"github.com/yatrikerp/booking-engine/internal/services"
)

// SessionHandler handles the checkout flow endpoints
type SessionHandler struct {
	sessionService *services.BookingSessionService
	holdManager    *services.HoldManager
	logger         *logrus.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessionService *services.BookingSessionService, holdManager *services.HoldManager, logger *logrus.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		holdManager:    holdManager,
		logger:         logger,
	}
}

// ============================================================================
// START SESSION - POST /api/v1/sessions
// ============================================================================

// StartSession opens a checkout session for a trip
func (h *SessionHandler) StartSession(c *gin.Context) {
	rider, exists := middleware.GetRiderContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "rider not authenticated"})
		return
	}

	var req models.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	response, err := h.sessionService.StartSession(rider.RiderID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// GetSession returns the current session state - GET /api/v1/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	rider, sessionID, ok := h.riderAndSession(c)
	if !ok {
		return
	}

	response, err := h.sessionService.GetSession(sessionID, rider.RiderID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ============================================================================
// SELECT POINTS - PUT /api/v1/sessions/:id/points
// ============================================================================

// SelectPoints records boarding and dropping points
func (h *SessionHandler) SelectPoints(c *gin.Context) {
	rider, sessionID, ok := h.riderAndSession(c)
	if !ok {
		return
	}

	var req models.SelectPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.sessionService.SelectPoints(sessionID, rider.RiderID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ============================================================================
// SELECT SEATS - PUT /api/v1/sessions/:id/seats
// ============================================================================

// SelectSeats holds the requested seats for the session
func (h *SessionHandler) SelectSeats(c *gin.Context) {
	rider, sessionID, ok := h.riderAndSession(c)
	if !ok {
		return
	}

	var req models.SelectSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	response, err := h.sessionService.SelectSeats(sessionID, rider.RiderID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ExtendHold refreshes the hold TTL - POST /api/v1/sessions/:id/extend-hold
func (h *SessionHandler) ExtendHold(c *gin.Context) {
	rider, sessionID, ok := h.riderAndSession(c)
	if !ok {
		return
	}

	response, err := h.sessionService.ExtendHold(sessionID, rider.RiderID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ============================================================================
// SUBMIT PASSENGERS - PUT /api/v1/sessions/:id/passengers
// ============================================================================

// SubmitPassengers records the manifest and freezes the quote
func (h *SessionHandler) SubmitPassengers(c *gin.Context) {
	rider, sessionID, ok := h.riderAndSession(c)
	if !ok {
		return
	}

	var req models.SubmitPassengersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	response, err := h.sessionService.SubmitPassengers(sessionID, rider.RiderID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ============================================================================
// SUBMIT PAYMENT - POST /api/v1/sessions/:id/payment
// ============================================================================

// SubmitPayment charges the frozen quote and confirms the booking
func (h *SessionHandler) SubmitPayment(c *gin.Context) {
	rider, sessionID, ok := h.riderAndSession(c)
	if !ok {
		return
	}

	var req models.SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	response, err := h.sessionService.SubmitPayment(sessionID, rider.RiderID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ============================================================================
// ABANDON - DELETE /api/v1/sessions/:id
// ============================================================================

// AbandonSession closes the session and releases its hold
func (h *SessionHandler) AbandonSession(c *gin.Context) {
	rider, sessionID, ok := h.riderAndSession(c)
	if !ok {
		return
	}

	response, err := h.sessionService.AbandonSession(sessionID, rider.RiderID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ============================================================================
// SEAT MAP - GET /api/v1/trips/:trip_id/seats
// ============================================================================

// TripSeatMap returns current seat statuses for a trip
func (h *SessionHandler) TripSeatMap(c *gin.Context) {
	tripID := c.Param("trip_id")
	if tripID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trip_id is required"})
		return
	}

	seats, err := h.holdManager.SeatMap(tripID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trip_id": tripID,
		"seats":   seats,
	})
}

func (h *SessionHandler) riderAndSession(c *gin.Context) (middleware.RiderContext, uuid.UUID, bool) {
	rider, exists := middleware.GetRiderContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "rider not authenticated"})
		return middleware.RiderContext{}, uuid.Nil, false
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return middleware.RiderContext{}, uuid.Nil, false
	}
	return rider, sessionID, true
}
