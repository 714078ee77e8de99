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

	"enrollment-service/config"
	"enrollment-service/internal/api"
	"enrollment-service/internal/broker"
	"enrollment-service/internal/catalog"
	"enrollment-service/internal/provider"
	"enrollment-service/internal/redisclient"
	"enrollment-service/internal/service"
	"enrollment-service/internal/store"
	"enrollment-service/internal/util"
	"enrollment-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting enrollment service")

	tp, err := util.InitTracer("enrollment-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	userStore, closeStore, err := newUserStore(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to initialize record store: %v", err)
	}
	defer closeStore()
	log.Println("Record store initialized")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	enrollmentProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEnrollment)
	defer enrollmentProducer.Close()

	retryProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRetry)
	defer retryProducer.Close()
	log.Println("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(enrollmentProducer, retryProducer)

	paymentProvider, err := provider.NewClient(
		cfg.Provider.BaseURL, cfg.Provider.LiveSecretKey, cfg.Provider.TestSecretKey, 10*time.Second)
	if err != nil {
		log.Fatalf("Failed to initialize provider client: %v", err)
	}

	courseCatalog := catalog.Default()
	if len(cfg.Catalog) > 0 {
		courseCatalog = catalog.New(cfg.Catalog)
	}

	reconciler := service.NewReconciler(userStore, redisClient, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	retryConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicRetry, cfg.Kafka.ConsumerGroup)
	retryWorker := worker.NewRetryWorker(retryConsumer, reconciler)
	go func() {
		if err := retryWorker.Start(workerCtx); err != nil {
			log.Printf("Retry worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(reconciler, paymentProvider, courseCatalog)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	retryWorker.Stop()

	log.Println("Server exited")
}

// newUserStore builds the configured store backend.
func newUserStore(cfg config.StoreConfig) (store.UserStore, func(), error) {
	switch cfg.Backend {
	case "postgres":
		pg, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	default:
		ts, err := store.NewTableStore(cfg.TableSASURL, 5*time.Second)
		if err != nil {
			return nil, nil, err
		}
		return ts, func() {}, nil
	}
}
