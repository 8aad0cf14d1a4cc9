package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yatrikerp/booking-engine/internal/database"
	"github.com/yatrikerp/booking-engine/internal/middleware"
	"github.com/yatrikerp/booking-engine/internal/models"
	"github.com/yatrikerp/booking-engine/internal/services"
)

// BookingHandler handles booking lookup and cancellation endpoints
type BookingHandler struct {
	bookingRepo         *database.BookingRepository
	cancellationService *services.CancellationService
	logger              *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookingRepo *database.BookingRepository, cancellationService *services.CancellationService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookingRepo:         bookingRepo,
		cancellationService: cancellationService,
		logger:              logger,
	}
}

// ============================================================================
// LIST BOOKINGS - GET /api/v1/bookings
// ============================================================================

// ListBookings returns the rider's bookings, newest first
func (h *BookingHandler) ListBookings(c *gin.Context) {
	rider, exists := middleware.GetRiderContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "rider not authenticated"})
		return
	}

	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	bookings, err := h.bookingRepo.ByRider(rider.RiderID, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	responses := make([]models.BookingResponse, len(bookings))
	for i := range bookings {
		responses[i] = buildBookingResponse(&bookings[i])
	}
	c.JSON(http.StatusOK, gin.H{"bookings": responses, "limit": limit, "offset": offset})
}

// GetBooking returns one booking by ID - GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	rider, bookingID, ok := h.riderAndBooking(c)
	if !ok {
		return
	}

	booking, err := h.bookingRepo.ByID(bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if booking == nil || booking.RiderID != rider.RiderID {
		respondError(c, h.logger, models.ErrBookingNotFound)
		return
	}

	c.JSON(http.StatusOK, buildBookingResponse(booking))
}

// GetBookingByPNR looks a booking up by PNR - GET /api/v1/bookings/pnr/:pnr
func (h *BookingHandler) GetBookingByPNR(c *gin.Context) {
	rider, exists := middleware.GetRiderContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "rider not authenticated"})
		return
	}

	booking, err := h.bookingRepo.ByPNR(c.Param("pnr"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if booking == nil || booking.RiderID != rider.RiderID {
		respondError(c, h.logger, models.ErrBookingNotFound)
		return
	}

	c.JSON(http.StatusOK, buildBookingResponse(booking))
}

// GetBookingEvents returns the lifecycle log - GET /api/v1/bookings/:id/events
func (h *BookingHandler) GetBookingEvents(c *gin.Context) {
	rider, bookingID, ok := h.riderAndBooking(c)
	if !ok {
		return
	}

	booking, err := h.bookingRepo.ByID(bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if booking == nil || booking.RiderID != rider.RiderID {
		respondError(c, h.logger, models.ErrBookingNotFound)
		return
	}

	events, err := h.bookingRepo.Events(bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking_id": bookingID, "events": events})
}

// ============================================================================
// CONTACT LOOKUP - GET /api/v1/bookings/lookup
// ============================================================================

// LookupBookings finds bookings by contact email or phone. Support
// staff use this when a rider calls in without their PNR.
func (h *BookingHandler) LookupBookings(c *gin.Context) {
	email := c.Query("email")
	phone := c.Query("phone")
	if email == "" && phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email or phone is required"})
		return
	}

	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	var (
		bookings []models.Booking
		err      error
	)
	if email != "" {
		bookings, err = h.bookingRepo.ByContactEmail(email, limit, offset)
	} else {
		bookings, err = h.bookingRepo.ByContactPhone(phone, limit, offset)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	responses := make([]models.BookingResponse, len(bookings))
	for i := range bookings {
		responses[i] = buildBookingResponse(&bookings[i])
	}
	c.JSON(http.StatusOK, gin.H{"bookings": responses, "limit": limit, "offset": offset})
}

// ============================================================================
// CANCEL BOOKING - POST /api/v1/bookings/:id/cancel
// ============================================================================

// CancelBooking refunds and cancels a confirmed booking
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	rider, bookingID, ok := h.riderAndBooking(c)
	if !ok {
		return
	}

	var req models.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	booking, err := h.cancellationService.Cancel(bookingID, rider.RiderID, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, buildBookingResponse(booking))
}

// ============================================================================
// HELPER METHODS
// ============================================================================

func (h *BookingHandler) riderAndBooking(c *gin.Context) (middleware.RiderContext, uuid.UUID, bool) {
	rider, exists := middleware.GetRiderContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "rider not authenticated"})
		return middleware.RiderContext{}, uuid.Nil, false
	}
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return middleware.RiderContext{}, uuid.Nil, false
	}
	return rider, bookingID, true
}

func buildBookingResponse(booking *models.Booking) models.BookingResponse {
	return models.BookingResponse{
		BookingID:   booking.ID,
		PNR:         booking.PNR,
		TripID:      booking.TripID,
		SeatNumbers: booking.SeatNumbers,
		Passengers:  booking.Passengers,
		Fare:        booking.Fare,
		Status:      booking.Status,
		CreatedAt:   booking.CreatedAt,
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	value, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(fallback)))
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
