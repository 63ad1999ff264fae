package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mediconnect-backend/internal/database"
	apperrors "mediconnect-backend/pkg/errors"
	"mediconnect-backend/pkg/logger"
	"mediconnect-backend/pkg/response"
)

// WindowCounter counts hits on key inside a fixed window and reports the
// count including this hit and when the window resets.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, reset time.Time, err error)
}

// RedisWindowCounter counts with INCR and a window-long expiry
type RedisWindowCounter struct {
	client *database.RedisClient
}

// NewRedisWindowCounter creates a counter on the shared Redis client
func NewRedisWindowCounter(client *database.RedisClient) *RedisWindowCounter {
	return &RedisWindowCounter{client: client}
}

func (r *RedisWindowCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	if r.client == nil || r.client.IsDegraded() {
		return 0, time.Time{}, database.ErrDegraded
	}

	count, err := r.client.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to count request: %w", err)
	}
	if count == 1 {
		if err := r.client.Client.Expire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("failed to set rate limit window: %w", err)
		}
		return count, time.Now().Add(window), nil
	}

	remaining, err := r.client.Client.PTTL(ctx, key).Result()
	if err != nil || remaining <= 0 {
		remaining = window
	}
	return count, time.Now().Add(remaining), nil
}

// RateLimiter limits requests per authenticated user, or per client IP
type RateLimiter struct {
	counter  WindowCounter
	prefix   string
	requests int
	window   time.Duration
}

// NewRateLimiter allows requests hits per window under prefix
func NewRateLimiter(counter WindowCounter, prefix string, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counter:  counter,
		prefix:   prefix,
		requests: requests,
		window:   window,
	}
}

// Middleware returns a Gin middleware for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if userID := c.GetString("user_id"); userID != "" {
			identifier = "user:" + userID
		}
		key := fmt.Sprintf("ratelimit:%s:%s", rl.prefix, identifier)

		count, reset, err := rl.counter.Hit(c.Request.Context(), key, rl.window)
		if err != nil {
			// Fail open: the limiter protects upstream quota, not correctness
			logger.FromContext(c.Request.Context()).Debug("Rate limit check skipped",
				zap.String("key", key),
				zap.Error(err))
			c.Next()
			return
		}

		remaining := rl.requests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if int(count) > rl.requests {
			response.Error(c, http.StatusTooManyRequests, string(apperrors.ErrCodeRateLimited), "Rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}
