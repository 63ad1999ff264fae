package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mediconnect-backend/pkg/config"
	"mediconnect-backend/pkg/logger"
)

// ErrDegraded is returned by Safe* operations while Redis is unreachable
var ErrDegraded = fmt.Errorf("redis is in degraded mode")

// RedisClient wraps Redis client with degraded mode support
type RedisClient struct {
	Client         *redis.Client
	degradedMode   bool
	degradedModeMu sync.RWMutex
	healthCheckMu  sync.Mutex

	degradedGauge prometheus.Gauge
	healthChecks  prometheus.Counter
}

// NewRedisDB creates a new Redis client from config with degraded mode support.
// reg may be nil to skip metric registration.
func NewRedisDB(cfg config.RedisConfig, reg prometheus.Registerer) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		DialTimeout:  cfg.Timeout,
	})

	r := &RedisClient{
		Client: client,
		degradedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redis_degraded_mode",
			Help: "Indicates if Redis is in degraded mode (1 = degraded, 0 = healthy)",
		}),
		healthChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redis_health_check_total",
			Help: "Total number of successful Redis health checks",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.degradedGauge, r.healthChecks)
	}
	return r
}

// Close closes the Redis client connection
func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// StartHealthCheck starts a background goroutine that periodically checks Redis health
func (r *RedisClient) StartHealthCheck(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.HealthCheck(ctx); err != nil {
					logger.Warn("Redis health check failed", zap.Error(err))
				}
			}
		}
	}()
}

// IsDegraded returns true if Redis is in degraded mode
func (r *RedisClient) IsDegraded() bool {
	r.degradedModeMu.RLock()
	defer r.degradedModeMu.RUnlock()
	return r.degradedMode
}

func (r *RedisClient) setDegradedState(degraded bool) {
	r.degradedModeMu.Lock()
	defer r.degradedModeMu.Unlock()

	if r.degradedMode == degraded {
		return
	}
	r.degradedMode = degraded
	if degraded {
		r.degradedGauge.Set(1)
		logger.Warn("Redis entered degraded mode")
	} else {
		r.degradedGauge.Set(0)
		logger.Info("Redis recovered from degraded mode")
	}
}

// HealthCheck pings Redis and updates degraded mode.
// Concurrent checks are serialised.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	r.healthCheckMu.Lock()
	defer r.healthCheckMu.Unlock()

	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.Client.Ping(healthCtx).Err(); err != nil {
		r.setDegradedState(true)
		return fmt.Errorf("redis health check failed: %w", err)
	}

	r.setDegradedState(false)
	r.healthChecks.Inc()
	return nil
}

// SafePublish performs a PUBLISH operation with degraded mode handling
func (r *RedisClient) SafePublish(ctx context.Context, channel string, message any) error {
	if r.IsDegraded() {
		return ErrDegraded
	}
	return r.Client.Publish(ctx, channel, message).Err()
}

// SafeSubscribe performs a SUBSCRIBE operation with degraded mode handling
func (r *RedisClient) SafeSubscribe(ctx context.Context, channels ...string) (*redis.PubSub, error) {
	if r.IsDegraded() {
		return nil, ErrDegraded
	}
	return r.Client.Subscribe(ctx, channels...), nil
}
