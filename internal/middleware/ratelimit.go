package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"gcli2api-go/internal/keystore"
)

// RateLimiter creates a simple fixed rate limiting middleware, keyed by
// client IP. cmd/server applies it globally, in front of every route.
func RateLimiter(rps int, burst int) gin.HandlerFunc {
	limiters := &sync.Map{}

	return func(c *gin.Context) {
		key := c.ClientIP()

		limiterI, _ := limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(rps), burst))
		limiter := limiterI.(*rate.Limiter)

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"message": "Rate limit exceeded",
					"type":    "rate_limit_error",
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// KeyedRateLimiter layers a coarse global token-bucket guard (golang.org/x/time/rate,
// shared across every caller) in front of a precise per-API-key sliding window
// enforced by keystore. The global guard protects the process from a thundering
// herd cheaply; the per-key window is what actually enforces each key's
// configured quota and is the one that reports an accurate Retry-After.
func KeyedRateLimiter(store *keystore.Keystore, globalRPS, globalBurst int) gin.HandlerFunc {
	if globalRPS <= 0 {
		globalRPS = 50
	}
	if globalBurst <= 0 {
		globalBurst = 100
	}
	global := rate.NewLimiter(rate.Limit(globalRPS), globalBurst)

	return func(c *gin.Context) {
		if !global.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": gin.H{"message": "Global rate limit exceeded", "type": "rate_limit_error"}})
			c.Abort()
			return
		}

		key := extractAPIKey(c)
		if key == "" {
			c.Next()
			return
		}

		allowed, resetInSec, err := store.CheckRateLimit(c.Request.Context(), key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "rate limit check failed", "type": "internal_error"}})
			c.Abort()
			return
		}
		if !allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", resetInSec))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": gin.H{"message": "Rate limit exceeded", "type": "rate_limit_error", "reset_in_s": resetInSec}})
			c.Abort()
			return
		}

		store.UpdateRateLimit(key)
		c.Next()
	}
}

func extractAPIKey(c *gin.Context) string {
	if v, ok := c.Get("api_key"); ok {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	auth := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if v := strings.TrimSpace(c.GetHeader("x-api-key")); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.GetHeader("x-goog-api-key")); v != "" {
		return v
	}
	return ""
}
