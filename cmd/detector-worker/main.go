// Package main 检测 Worker 服务入口
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"llm-sentinel-api/internal/application/constraint"
	"llm-sentinel-api/internal/application/detection"
	"llm-sentinel-api/internal/config"
	"llm-sentinel-api/internal/infrastructure/messaging"
	"llm-sentinel-api/internal/infrastructure/persistence/postgres"
	"llm-sentinel-api/internal/infrastructure/persistence/redis"
	"llm-sentinel-api/pkg/logger"
	"llm-sentinel-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// sweepInterval 过期约束清理周期
const sweepInterval = 10 * time.Minute

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logger.FromContext(ctx)
	log.Info("starting detector-worker",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name + "-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
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

	txManager := postgres.NewTxManager(pgClient)
	projectRepo := postgres.NewProjectRepository(pgClient)
	requestRepo := postgres.NewRequestRepository(pgClient)
	incidentRepo := postgres.NewIncidentRepository(pgClient)
	settingsRepo := postgres.NewSettingsRepository(pgClient)

	producer := messaging.NewProducer(redisClient.Redis(), cfg.Messaging.RedisStream.MaxLen)

	// 检测任务与调度
	detectors := detection.NewDetectors(requestRepo, cfg.Detection)
	job := detection.NewJob(projectRepo, incidentRepo, txManager, detectors, producer)
	scheduler := detection.NewScheduler(job, cfg.Detection.Interval)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// 手动触发消费
	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamDetectionRuns,
		Group:         messaging.ConsumerGroupDetector,
		ConsumerName:  fmt.Sprintf("detector-%d", os.Getpid()),
		BlockTimeout:  cfg.Messaging.RedisStream.BlockTimeout,
		ClaimInterval: cfg.Messaging.RedisStream.ClaimInterval,
		RetryLimit:    cfg.Messaging.RedisStream.RetryLimit,
	})
	consumer.RegisterHandler(messaging.MsgTypeDetectionRun, func(ctx context.Context, msg *messaging.Message) error {
		var run messaging.DetectionRunMessage
		if err := msg.UnmarshalPayload(&run); err != nil {
			return err
		}

		if run.ProjectID != "" {
			job.RunProject(ctx, run.ProjectID)
		} else {
			job.Run(ctx)
		}
		return nil
	})
	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start detection consumer", err)
	}
	defer consumer.Stop()

	// 过期约束清理
	constraintSvc := constraint.NewService(settingsRepo, nil)
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				constraintSvc.Sweep(ctx)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	log.Info("worker exited")
}
