package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yatrikerp/booking-engine/internal/models"
)

// respondError maps domain errors onto HTTP responses. Anything not
// recognized is a 500 and gets logged with its cause.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var conflict *models.SeatConflictError
	if errors.As(err, &conflict) {
		c.JSON(http.StatusConflict, gin.H{
			"error":             "seat_conflict",
			"message":           conflict.Error(),
			"unavailable_seats": conflict.Unavailable,
		})
		return
	}

	var invalidDiscount *models.InvalidDiscountError
	if errors.As(err, &invalidDiscount) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "invalid_discount",
			"message": invalidDiscount.Error(),
			"code":    invalidDiscount.Code,
			"reason":  invalidDiscount.Reason,
		})
		return
	}

	var mismatch *models.QuoteMismatchError
	if errors.As(err, &mismatch) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "quote_mismatch",
			"message":  mismatch.Error() + "; the charge was refunded",
			"quoted":   mismatch.Quoted,
			"captured": mismatch.Captured,
		})
		return
	}

	switch {
	case errors.Is(err, models.ErrHoldExpired):
		c.JSON(http.StatusGone, gin.H{"error": "hold_expired", "message": err.Error()})
	case errors.Is(err, models.ErrHoldNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "hold_not_found", "message": err.Error()})
	case errors.Is(err, models.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found", "message": err.Error()})
	case errors.Is(err, models.ErrTripNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "trip_not_found", "message": err.Error()})
	case errors.Is(err, models.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "booking_not_found", "message": err.Error()})
	case errors.Is(err, models.ErrPolicyNotFound):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "policy_not_found", "message": err.Error()})
	case errors.Is(err, models.ErrPaymentFailed):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "payment_failed", "message": err.Error()})
	case errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_state", "message": err.Error()})
	case errors.Is(err, models.ErrSeatUnknown):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_seat", "message": err.Error()})
	default:
		logger.WithError(err).Error("Unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "something went wrong"})
	}
}
