package middleware

import (
	"github.com/gin-gonic/gin"
)

// SecurityHeaders adds security headers to all API responses. The
// consultation front end needs camera and microphone, so Permissions-Policy
// restricts them to same-origin rather than disabling them.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(self), microphone=(self), display-capture=(self), geolocation=()")
		c.Next()
	}
}
