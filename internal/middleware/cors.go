package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mediconnect-backend/pkg/response"
)

// DefaultAllowedOrigins are the local front-end origins
var DefaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

// OriginSet builds a lookup set from explicit origins
func OriginSet(origins []string) map[string]bool {
	set := make(map[string]bool, len(origins))
	for _, origin := range origins {
		if origin = strings.TrimSpace(origin); origin != "" {
			set[origin] = true
		}
	}
	return set
}

// CORSMiddleware allows credentialed requests from the given origins and
// rejects any other cross-origin caller.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	allowedOrigins := OriginSet(origins)

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if allowedOrigins[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		} else if origin != "" {
			response.Forbidden(c, "Origin not allowed")
			c.Abort()
			return
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
