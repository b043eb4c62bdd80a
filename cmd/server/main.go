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

	"merchstore/config"
	"merchstore/internal/api"
	"merchstore/internal/broker"
	"merchstore/internal/lifecycle"
	"merchstore/internal/redisclient"
	"merchstore/internal/service"
	"merchstore/internal/store"
	"merchstore/internal/util"
	"merchstore/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting merchstore service")

	tp, err := util.InitTracer("merchstore", cfg.Observ.JaegerEndpoint)
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

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	engine := lifecycle.NewEngine(db, time.Duration(cfg.Business.RefundWindowHours)*time.Hour)

	gateway := service.NewHTTPPaymentGateway(cfg.External.PaymentGatewayURL, cfg.External.PaymentAPIKey)
	notifier := service.NewHTTPNotifier(cfg.External.NotifierURL, cfg.External.NotifierAPIKey)
	geocoder := service.NewHTTPGeocoder(cfg.External.GeocoderURL, cfg.External.GeocoderAPIKey)
	fileStore := service.NewHTTPFileStore(cfg.External.FileStoreURL, cfg.External.FileStoreAPIKey)

	stockClient := service.NewStockClient(db, redisClient)
	orderService := service.NewOrderService(db, engine, eventPublisher)
	paymentService := service.NewPaymentService(db, engine, eventPublisher)
	cartService := service.NewCartService(db, redisClient)
	trackingService := service.NewTrackingService(engine, redisClient)
	checkoutService := service.NewCheckoutService(
		db, redisClient, stockClient, engine, gateway, geocoder, eventPublisher, cfg.Business.ShippingFee)

	ctx := context.Background()
	if err := stockClient.SyncToRedis(ctx); err != nil {
		log.Printf("Failed to sync stock to Redis: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(consumer, notifier)
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil {
			log.Printf("Notification worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(db, orderService, checkoutService, cartService, trackingService, paymentService, fileStore)
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
	notificationWorker.Stop()

	log.Println("Server exited")
}
