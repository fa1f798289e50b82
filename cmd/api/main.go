package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/procuredesk/tender-evaluation-backend/internal/api/rest"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/event"
	"github.com/procuredesk/tender-evaluation-backend/internal/infrastructure/cache"
	"github.com/procuredesk/tender-evaluation-backend/internal/infrastructure/config"
	"github.com/procuredesk/tender-evaluation-backend/internal/infrastructure/database"
	"github.com/procuredesk/tender-evaluation-backend/internal/infrastructure/notification"
	"github.com/procuredesk/tender-evaluation-backend/internal/infrastructure/repository"
	"github.com/procuredesk/tender-evaluation-backend/internal/infrastructure/storage"
	"github.com/procuredesk/tender-evaluation-backend/internal/infrastructure/telemetry"
	approvalsvc "github.com/procuredesk/tender-evaluation-backend/internal/service/approval"
	evaluationsvc "github.com/procuredesk/tender-evaluation-backend/internal/service/evaluation"
	tenderflowsvc "github.com/procuredesk/tender-evaluation-backend/internal/service/tenderflow"
)

const eventStream = "tender-events"

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		metricsAddr = flag.String("metrics-addr", ":9090", "Prometheus metrics listen address")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create infrastructure logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.InitializeOpenTelemetry(ctx, &telemetry.Config{
		ServiceName:    "tender-evaluation-api",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		ExportTimeout:  30 * time.Second,
		BatchTimeout:   5 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			zapLogger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	pool, err := database.NewConnectionPool(ctx, &cfg.Database, zapLogger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	reportCache := cache.NewRedisCacheFromClient(redisClient, zapLogger)

	documents, err := storage.NewFilesystemStore(cfg.Documents.Root)
	if err != nil {
		log.Fatalf("Failed to open document store: %v", err)
	}

	notifier := notification.NewPublisher(redisClient, eventStream, zapLogger)
	defer notifier.Close()
	var publisher event.Publisher = newMetricsPublisher(notifier)

	tenderRepo := repository.NewTenderRepository(pool.Pool())
	bidRepo := repository.NewBidRepository(pool.Pool())
	scoreRepo := repository.NewScoreRepository(pool.Pool())
	projectionRepo := repository.NewProjectionRepository(pool.Pool())
	workflowRepo := repository.NewWorkflowRepository(pool.Pool())

	approvalService := approvalsvc.NewService(
		workflowRepo, tenderRepo, projectionRepo, publisher, nil, logger)
	evaluationService := evaluationsvc.NewService(
		tenderRepo, bidRepo, scoreRepo, projectionRepo, reportCache, publisher, nil, logger,
		evaluationsvc.WithSensitivityStep(cfg.Evaluation.SensitivityStep),
		evaluationsvc.WithReportTTL(cfg.Evaluation.ReportCacheTTL),
	)
	tenderService := tenderflowsvc.NewService(
		tenderRepo, bidRepo, documents, approvalService, publisher, nil, logger,
		cfg.Evaluation.MinClarificationGap)

	handler := rest.NewHandler(rest.Services{
		Tenders:    tenderService,
		Evaluation: evaluationService,
		Approval:   approvalService,
	}, logger)

	health := rest.NewHealthHandler(cfg.Version, map[string]rest.HealthChecker{
		"database": pool,
		"redis":    reportCache,
	})

	auth := rest.NewAuthMiddleware(&rest.AuthConfig{
		JWTSecret:   []byte(cfg.Security.JWTSecret),
		TokenExpiry: cfg.Security.TokenExpiry,
		Issuer:      cfg.Security.Issuer,
	})

	metricsServer := startMetricsServer(*metricsAddr)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Shutdown(shutdownCtx)
	}()

	server := rest.NewServer(cfg, handler, health, auth, logger)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func newRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
