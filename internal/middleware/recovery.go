package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mediconnect-backend/pkg/logger"
	"mediconnect-backend/pkg/response"
)

// Recovery recovers from panics and returns 500 error
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.FromContext(c.Request.Context()).Error("Panic recovered",
					zap.Any("panic", err),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"))

				response.InternalError(c, "Internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// NoRoute answers unknown paths with the standard error envelope
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.NotFound(c, "Route not found")
	}
}
