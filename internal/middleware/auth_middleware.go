package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RiderContextKey is the key used to store rider information in Gin context
const RiderContextKey = "rider"

// RiderContext represents the authenticated rider's information. Tokens
// are issued by the platform's auth service; this engine only validates
// them.
type RiderContext struct {
	RiderID uuid.UUID `json:"rider_id"`
	Roles   []string  `json:"roles"`
}

type accessClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// AuthMiddleware creates a middleware that validates JWT tokens
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header is required",
				"code":    "MISSING_AUTH_HEADER",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid authorization header format. Expected: Bearer <token>",
				"code":    "INVALID_AUTH_FORMAT",
			})
			c.Abort()
			return
		}

		claims := &accessClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimSpace(parts[1]), claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			if errors.Is(err, jwt.ErrTokenExpired) {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error":   "token_expired",
					"message": "Access token has expired",
					"code":    "TOKEN_EXPIRED",
				})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error":   "invalid_token",
					"message": "Invalid access token",
					"code":    "INVALID_TOKEN",
				})
			}
			c.Abort()
			return
		}

		riderID, err := uuid.Parse(claims.Subject)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "Token subject is not a valid rider ID",
				"code":    "INVALID_TOKEN",
			})
			c.Abort()
			return
		}

		c.Set(RiderContextKey, RiderContext{
			RiderID: riderID,
			Roles:   claims.Roles,
		})
		c.Next()
	}
}

// GetRiderContext retrieves the rider context set by AuthMiddleware
func GetRiderContext(c *gin.Context) (RiderContext, bool) {
	value, exists := c.Get(RiderContextKey)
	if !exists {
		return RiderContext{}, false
	}
	rider, ok := value.(RiderContext)
	return rider, ok
}

// RequireRole creates a middleware that checks if the rider has one of
// the required roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rider, exists := GetRiderContext(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Rider context not found. Auth middleware may not be applied.",
				"code":    "MISSING_RIDER_CONTEXT",
			})
			c.Abort()
			return
		}

		for _, required := range roles {
			for _, role := range rider.Roles {
				if role == required {
					c.Next()
					return
				}
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Insufficient permissions",
			"code":    "INSUFFICIENT_ROLE",
		})
		c.Abort()
	}
}
