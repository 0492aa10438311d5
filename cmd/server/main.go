package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retail-service/config"
	"retail-service/internal/api"
	"retail-service/internal/broker"
	"retail-service/internal/redisclient"
	"retail-service/internal/service"
	"retail-service/internal/store"
	"retail-service/internal/util"
	"retail-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting retail service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port))

	decimal.MarshalJSONWithoutQuotes = true

	tp, err := util.InitTracer("retail-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.Migrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(migrateCtx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	orderService := service.NewOrderService(db, eventPublisher, redisClient, service.OrderConfig{
		StrictTransitions: cfg.Business.StrictStatusTransitions,
		IdempotencyTTL:    cfg.Redis.IdempotencyTTL,
		PageSize:          cfg.Business.PageSize,
		AdminRoleID:       cfg.Auth.AdminRoleID,
		Location:          cfg.Business.Location(),
	})
	productService := service.NewProductService(db, cfg.Auth.AdminRoleID, cfg.Business.PageSize)
	clientService := service.NewClientService(db, cfg.Auth.AdminRoleID, cfg.Business.PageSize)
	authService := service.NewAuthService(db, service.AuthConfig{
		AdminRoleID: cfg.Auth.AdminRoleID,
		TokenTTL:    cfg.Auth.TokenTTL,
	})
	projector := service.NewTimelineProjector(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	timelineConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	timelineWorker := worker.NewTimelineWorker(timelineConsumer, projector)
	go func() {
		if err := timelineWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Timeline worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, productService, clientService, authService, map[string]api.Pinger{
		"database": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := timelineWorker.Stop(); err != nil {
		logger.Error("Error stopping timeline worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
