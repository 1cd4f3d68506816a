// Package main API Gateway 服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"llm-sentinel-api/internal/application/constraint"
	"llm-sentinel-api/internal/application/incident"
	"llm-sentinel-api/internal/application/telemetry"
	"llm-sentinel-api/internal/config"
	"llm-sentinel-api/internal/infrastructure/messaging"
	"llm-sentinel-api/internal/infrastructure/persistence/postgres"
	"llm-sentinel-api/internal/infrastructure/persistence/redis"
	"llm-sentinel-api/internal/interfaces/http/handler"
	"llm-sentinel-api/internal/interfaces/http/router"
	"llm-sentinel-api/pkg/logger"
	"llm-sentinel-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting api-gateway",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// 基础设施
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to connect postgres", err)
	}
	defer pgClient.Close()

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to connect redis", err)
	}
	defer redisClient.Close()

	// 仓储与事务
	txManager := postgres.NewTxManager(pgClient)
	projectRepo := postgres.NewProjectRepository(pgClient)
	requestRepo := postgres.NewRequestRepository(pgClient)
	incidentRepo := postgres.NewIncidentRepository(pgClient)
	remediationRepo := postgres.NewRemediationRepository(pgClient)
	settingsRepo := postgres.NewSettingsRepository(pgClient)

	constraintCache := redis.NewConstraintCache(redisClient, cfg.Cache.ConstraintTTL)
	rateLimiter := redis.NewRateLimiter(redisClient)
	producer := messaging.NewProducer(redisClient.Redis(), cfg.Messaging.RedisStream.MaxLen)

	// 应用服务
	recorder := telemetry.NewRecorder(projectRepo, requestRepo)
	incidentSvc := incident.NewService(incidentRepo, producer)
	remediationSvc := incident.NewRemediationService(incidentRepo, remediationRepo, settingsRepo, txManager, constraintCache)
	constraintSvc := constraint.NewService(settingsRepo, constraintCache)

	r := router.New(cfg, router.Deps{
		Health:      handler.NewHealthHandler(pgClient, redisClient),
		Telemetry:   handler.NewTelemetryHandler(recorder),
		Incident:    handler.NewIncidentHandler(incidentSvc),
		Remediation: handler.NewRemediationHandler(remediationSvc),
		Constraint:  handler.NewConstraintHandler(constraintSvc),
		Admin:       handler.NewAdminHandler(producer),
		Constraints: constraintSvc,
		RateLimiter: rateLimiter,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
