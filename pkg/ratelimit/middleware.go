package ratelimit

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// Middleware applies rate limiting to HTTP requests. Payment webhooks are
// exempt: the providers retry on 429 and their retry budget is not ours to
// spend.
func Middleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.Contains(c.Request.URL.Path, "/callback") ||
			strings.Contains(c.Request.URL.Path, "/prepare") ||
			strings.Contains(c.Request.URL.Path, "/complete") {
			c.Next()
			return
		}

		limitType := classify(c.Request.URL.Path)

		result, err := limiter.IsAllowed(c.Request.Context(), c.ClientIP(), limitType)
		if err != nil {
			// Limiter outage must not take the API down
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime, 10))

		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(result.RetryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"code":        "RATE_LIMIT_EXCEEDED",
				"retry_after": result.RetryAfter,
			})
			return
		}

		c.Next()
	}
}

func classify(path string) RateLimitType {
	switch {
	case strings.Contains(path, "/payments"):
		return RateLimitTypePayment
	case strings.Contains(path, "/bookings"):
		return RateLimitTypeBooking
	default:
		return RateLimitTypeDefault
	}
}
