package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"mediconnect-backend/pkg/jwt"
	"mediconnect-backend/pkg/response"
)

// AuthMiddleware validates the bearer token and sets user_id and role in
// the Gin context. Browsers cannot set headers on a WebSocket upgrade, so
// a GET request may pass the token as the access_token query parameter.
func AuthMiddleware(jwtManager *jwt.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if c.Request.Method == "GET" {
			if token := c.Query("access_token"); token != "" {
				return token, true
			}
		}
		return "", false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
