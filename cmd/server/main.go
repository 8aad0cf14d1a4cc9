package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yatrikerp/booking-engine/internal/clock"
	"github.com/yatrikerp/booking-engine/internal/config"
	"github.com/yatrikerp/booking-engine/internal/database"
	"github.com/yatrikerp/booking-engine/internal/handlers"
	"github.com/yatrikerp/booking-engine/internal/metrics"
	"github.com/yatrikerp/booking-engine/internal/middleware"
	"github.com/yatrikerp/booking-engine/internal/services"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting YatrikERP Booking Engine")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Initialize repositories
	policyRepo := database.NewFarePolicyRepository(db.DB)
	tripRepo := database.NewTripRepository(db.DB)
	bookingRepo := database.NewBookingRepository(db.DB)

	// Initialize services
	logger.Info("Initializing services...")
	systemClock := clock.NewSystem()
	calendar := services.NewStaticCalendar(cfg.Calendar.PeakHours, cfg.Calendar.Holidays)
	gateway := services.NewHTTPPaymentGateway(&cfg.Payment, logger)

	fareService := services.NewFareService(policyRepo, systemClock, services.FareServiceConfig{
		Currency: cfg.Booking.Currency,
	}, logger)

	holdManager := services.NewHoldManager(tripRepo, systemClock, services.HoldManagerConfig{
		HoldTTL: cfg.Booking.HoldTTL,
	}, logger)

	sessionService := services.NewBookingSessionService(
		tripRepo,
		holdManager,
		fareService,
		calendar,
		gateway,
		bookingRepo,
		systemClock,
		services.BookingSessionConfig{SessionTTL: cfg.Booking.SessionTTL},
		logger,
	)

	cancellationService := services.NewCancellationService(
		bookingRepo,
		tripRepo,
		holdManager,
		gateway,
		systemClock,
		services.CancellationConfig{
			Cutoff:     cfg.Booking.CancellationCutoff,
			RefundRate: cfg.Booking.RefundRate,
		},
		logger,
	)

	sweeper := services.NewHoldSweeper(holdManager, sessionService, cfg.Booking.SweepInterval, logger)
	sweeper.Start()

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(sessionService, holdManager, logger)
	bookingHandler := handlers.NewBookingHandler(bookingRepo, cancellationService, logger)
	policyHandler := handlers.NewPolicyHandler(policyRepo, fareService, tripRepo, holdManager, calendar, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(metrics.Middleware())

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check and metrics endpoints
	router.GET("/health", healthCheckHandler(db))
	router.GET("/metrics", metrics.Handler())

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Seat maps (public)
		v1.GET("/trips/:trip_id/seats", sessionHandler.TripSeatMap)

		// Quote preview (public)
		v1.POST("/quotes/preview", policyHandler.QuotePreview)

		// Checkout sessions (protected)
		sessions := v1.Group("/sessions")
		sessions.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
		{
			sessions.POST("", sessionHandler.StartSession)
			sessions.GET("/:id", sessionHandler.GetSession)
			sessions.PUT("/:id/points", sessionHandler.SelectPoints)
			sessions.PUT("/:id/seats", sessionHandler.SelectSeats)
			sessions.POST("/:id/extend-hold", sessionHandler.ExtendHold)
			sessions.PUT("/:id/passengers", sessionHandler.SubmitPassengers)
			sessions.POST("/:id/payment", sessionHandler.SubmitPayment)
			sessions.DELETE("/:id", sessionHandler.AbandonSession)
		}

		// Bookings (protected)
		bookings := v1.Group("/bookings")
		bookings.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
		{
			bookings.GET("", bookingHandler.ListBookings)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.GET("/:id/events", bookingHandler.GetBookingEvents)
			bookings.GET("/pnr/:pnr", bookingHandler.GetBookingByPNR)
			bookings.GET("/lookup", middleware.RequireRole("support"), bookingHandler.LookupBookings)
			bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
		}

		// Fare policy administration (protected, admin only)
		policies := v1.Group("/policies")
		policies.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
		policies.Use(middleware.RequireRole("policy_admin"))
		{
			policies.POST("", policyHandler.CreatePolicy)
			policies.GET("", policyHandler.ListPolicies)
			policies.GET("/:id", policyHandler.GetPolicy)
			policies.DELETE("/:id", policyHandler.DeactivatePolicy)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	sweeper.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
		}

		entry := logger.WithFields(fields)
		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db *database.PostgresDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
