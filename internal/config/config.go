package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Booking engine configuration
	Booking BookingConfig

	// Fare calendar configuration
	Calendar CalendarConfig

	// Payment gateway configuration
	Payment PaymentConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret string
}

// BookingConfig holds the booking engine's timing and money knobs
type BookingConfig struct {
	HoldTTL            time.Duration // seat hold lifetime
	SessionTTL         time.Duration // idle session lifetime
	SweepInterval      time.Duration // background sweep cadence
	CancellationCutoff time.Duration // minimum lead time before departure
	RefundRate         float64       // fraction refunded on cancellation
	Currency           string
}

// CalendarConfig holds peak hour and holiday data for fare multipliers
type CalendarConfig struct {
	PeakHours []int    // clock hours (0-23) counted as peak
	Holidays  []string // dates in yyyy-mm-dd form
}

// PaymentConfig holds payment gateway configuration
type PaymentConfig struct {
	Environment   string // "sandbox" or "production"
	BaseURL       string
	MerchantKey   string
	MerchantToken string // SECRET - never expose to client
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Booking: BookingConfig{
			HoldTTL:            time.Duration(getEnvAsInt("HOLD_TTL_SECONDS", 300)) * time.Second,
			SessionTTL:         time.Duration(getEnvAsInt("SESSION_TTL_SECONDS", 1800)) * time.Second,
			SweepInterval:      time.Duration(getEnvAsInt("SWEEP_INTERVAL_SECONDS", 30)) * time.Second,
			CancellationCutoff: time.Duration(getEnvAsInt("CANCELLATION_CUTOFF_MINUTES", 120)) * time.Minute,
			RefundRate:         getEnvAsFloat("CANCELLATION_REFUND_RATE", 1.0),
			Currency:           getEnv("FARE_CURRENCY", "INR"),
		},
		Calendar: CalendarConfig{
			PeakHours: getEnvAsIntSlice("FARE_PEAK_HOURS", []int{7, 8, 9, 17, 18, 19}),
			Holidays:  getEnvAsSlice("FARE_HOLIDAYS", nil),
		},
		Payment: PaymentConfig{
			Environment:   getEnv("PAYMENT_ENVIRONMENT", "sandbox"),
			BaseURL:       getEnv("PAYMENT_BASE_URL", "https://sandbox.gateway.example.com/v1"),
			MerchantKey:   getEnv("PAYMENT_MERCHANT_KEY", ""),
			MerchantToken: getEnv("PAYMENT_MERCHANT_TOKEN", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.HoldTTL <= 0 {
		return fmt.Errorf("HOLD_TTL_SECONDS must be positive")
	}

	if c.Booking.RefundRate < 0 || c.Booking.RefundRate > 1 {
		return fmt.Errorf("CANCELLATION_REFUND_RATE must be between 0 and 1")
	}

	if c.Server.Environment == "production" {
		if c.Payment.MerchantKey == "" {
			return fmt.Errorf("PAYMENT_MERCHANT_KEY is required in production")
		}
		if c.Payment.MerchantToken == "" {
			return fmt.Errorf("PAYMENT_MERCHANT_TOKEN is required in production")
		}
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid float value for %s, using default: %f", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func getEnvAsIntSlice(key string, defaultValue []int) []int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			log.Printf("Invalid integer list value for %s, using default", key)
			return defaultValue
		}
		values = append(values, v)
	}
	return values
}
