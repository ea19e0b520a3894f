package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tk0miya/roadside-station-maps/internal/ratelimit"
)

// RateLimit returns a Gin middleware that enforces per-client rate limiting
func RateLimit(rl *ratelimit.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if !rl.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please try again later.",
				"stats":   rl.GetStats(key),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
