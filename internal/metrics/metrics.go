// Package metrics exposes Prometheus collectors for the booking engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QuotesTotal counts fare quotes by outcome.
	QuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_engine_quotes_total",
		Help: "Fare quotes computed, by outcome.",
	}, []string{"outcome"})

	// HoldsTotal counts seat hold attempts by outcome.
	HoldsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_engine_holds_total",
		Help: "Seat hold attempts, by outcome.",
	}, []string{"outcome"})

	// HoldsExpired counts holds released by TTL expiry.
	HoldsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_engine_holds_expired_total",
		Help: "Seat holds released because their TTL lapsed.",
	})

	// BookingsConfirmed counts bookings confirmed after capture.
	BookingsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_engine_bookings_confirmed_total",
		Help: "Bookings confirmed after successful payment capture.",
	})

	// PaymentFailures counts payment attempts that did not confirm a
	// booking, by reason (declined, quote_mismatch, commit_failed).
	PaymentFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_engine_payment_failures_total",
		Help: "Payment attempts that did not produce a booking, by reason.",
	}, []string{"reason"})

	// RefundsIssued counts automatic refunds after capture.
	RefundsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_engine_refunds_issued_total",
		Help: "Automatic refunds issued for captured payments.",
	})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_engine_http_requests_total",
		Help: "HTTP requests, by method, route and status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "booking_engine_http_request_duration_seconds",
		Help:    "HTTP request latency, by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
