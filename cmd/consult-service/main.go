package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mediconnect-backend/internal/database"
	appointmentHandler "mediconnect-backend/internal/handler/http/appointment"
	assistHandler "mediconnect-backend/internal/handler/http/assist"
	wsHandler "mediconnect-backend/internal/handler/ws"
	"mediconnect-backend/internal/middleware"
	"mediconnect-backend/internal/repository/cockroach"
	"mediconnect-backend/internal/repository/memory"
	redisRepo "mediconnect-backend/internal/repository/redis"
	"mediconnect-backend/internal/service/appointment"
	"mediconnect-backend/internal/service/assist"
	"mediconnect-backend/pkg/audit"
	"mediconnect-backend/pkg/config"
	"mediconnect-backend/pkg/constants"
	pkgDatabase "mediconnect-backend/pkg/database"
	"mediconnect-backend/pkg/jwt"
	"mediconnect-backend/pkg/logger"
	"mediconnect-backend/pkg/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		logger.InitDefault()
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		logger.InitDefault()
		logger.Warn("Falling back to default logger", zap.Error(err))
	}
	defer logger.Sync()

	if cfg.JWT.Secret == "" {
		logger.Fatal("JWT_SECRET environment variable is required")
	}
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName, prometheus.DefaultRegisterer)

	// 2. Appointment store: CockroachDB, or memory when it cannot be reached
	var repo appointment.Repository
	db, err := pkgDatabase.ConnectWithRetry(ctx, cfg.Database, constants.DBConnectRetries, time.Second)
	if err == nil {
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
		repo = cockroach.NewAppointmentRepository(db.Pool, appMetrics)
		logger.Info("Connected to CockroachDB", zap.String("host", cfg.Database.Host))
	} else {
		if cfg.Server.IsProduction() {
			logger.Fatal("CockroachDB unreachable", zap.Error(err))
		}
		logger.Warn("CockroachDB unreachable, appointments are kept in memory", zap.Error(err))
		repo = memory.NewAppointmentRepository()
	}

	// 3. Mailbox change feed: Redis pub/sub, or in-process when Redis is down
	redisDB := database.NewRedisDB(cfg.Redis, prometheus.DefaultRegisterer)
	defer redisDB.Close()

	var feed appointment.ChangeFeed
	auditLog := audit.NewLogger(nil)
	if err := redisDB.HealthCheck(ctx); err == nil {
		feed = redisRepo.NewChangeFeed(redisDB)
		auditLog = audit.NewLogger(redisDB.Client)
		redisDB.StartHealthCheck(ctx, 10*time.Second)
		logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
	} else {
		logger.Warn("Redis unavailable, mailbox snapshots stay in this process", zap.Error(err))
		feed = memory.NewChangeFeed()
	}

	// 4. Services
	appointmentSvc := appointment.NewService(repo, feed, appMetrics, appointment.WithAuditor(auditLog))

	var llm assist.ChatClient
	if client := assist.NewOpenAIClient(cfg.LLM); client != nil {
		llm = client
	} else {
		logger.Info("LLM_API_KEY not set, assistance uses canned answers")
	}
	assistSvc := assist.NewService(llm, appMetrics, cfg.LLM.Timeout)

	// 5. Handlers
	appointmentHdlr := appointmentHandler.NewHandler(appointmentSvc)
	assistHdlr := assistHandler.NewHandler(assistSvc)
	mailboxHub := wsHandler.NewMailboxHub(appointmentSvc, appMetrics, cfg.Server.AllowedOrigins, cfg.Server.WSMaxConnections)
	assistLimiter := middleware.NewRateLimiter(middleware.NewRedisWindowCounter(redisDB), "assist", cfg.Server.AssistRateLimit, time.Minute)

	// 6. Router
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	router.GET("/health", func(c *gin.Context) {
		status := gin.H{
			"status":  "healthy",
			"service": cfg.Server.ServiceName,
			"time":    time.Now().UTC(),
			"redis":   "ok",
			"storage": "cockroachdb",
		}
		if redisDB.IsDegraded() {
			status["redis"] = "degraded"
		}
		if db == nil {
			status["storage"] = "memory"
		}
		c.JSON(http.StatusOK, status)
	})
	router.GET("/metrics", middleware.MetricsHandler(prometheus.DefaultGatherer))
	router.NoRoute(middleware.NoRoute())

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		appointmentHdlr.RegisterRoutes(v1)
		v1.GET("/appointments/:id/mailbox/ws", mailboxHub.ServeWS)
		v1.POST("/assist/:category", assistLimiter.Middleware(), assistHdlr.Ask)
	}

	// 7. Serve until signalled
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Consult service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down consult service")

	mailboxHub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}
