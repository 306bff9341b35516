package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/example/orders-ms/internal/api"
	"github.com/example/orders-ms/internal/auth"
	"github.com/example/orders-ms/internal/busrpc"
	"github.com/example/orders-ms/internal/catalog"
	"github.com/example/orders-ms/internal/config"
	"github.com/example/orders-ms/internal/contracts"
	"github.com/example/orders-ms/internal/infrastructure/kafka"
	"github.com/example/orders-ms/internal/infrastructure/store"
	"github.com/example/orders-ms/internal/orders"
	"github.com/example/orders-ms/internal/payments"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		log.Fatal("[Orders] JWT_SECRET environment variable is required")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("[Orders] JWT_SECRET must be at least 32 characters long")
	}

	log.Println("[Orders] ========================================")
	log.Println("[Orders] Orders Service")
	log.Println("[Orders] ========================================")
	log.Printf("[Orders] Kafka: %v", cfg.KafkaBrokers)
	log.Printf("[Orders] Store: %s", cfg.OrderStore)

	// Order storage
	orderStore, closeStore := buildOrderStore(ctx, cfg)
	defer closeStore()

	// Outbound requests to the product and payment services
	requester := kafka.NewRequester(cfg.KafkaBrokers, cfg.ServiceName)
	defer requester.Close()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := requester.Start(ctx); err != nil {
			if ctx.Err() == nil {
				log.Printf("[Orders] Requester error: %v", err)
			}
		}
	}()

	catalogClient := catalog.NewClient(requester)
	paymentsClient := payments.NewClient(requester, cfg.Currency)

	// Event publishing
	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()
	paidPublisher := busrpc.NewPaidEventPublisher(producer)

	// Orchestration
	service := orders.NewService(orderStore, catalogClient, paymentsClient, paidPublisher)

	// Bus server: request patterns plus the payment confirmation event
	server := busrpc.NewServer(service, producer, cfg.RequestTimeout)

	requestConsumer := kafka.NewConsumer(cfg.KafkaBrokers, contracts.TopicOrdersRequests, cfg.ServiceName)
	defer requestConsumer.Close()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("[Orders] Consuming requests from %s", contracts.TopicOrdersRequests)
		if err := requestConsumer.Consume(ctx, server.HandleRequest); err != nil {
			if ctx.Err() == nil {
				log.Printf("[Orders] Request consumer error: %v", err)
			}
		}
	}()

	paymentConsumer := kafka.NewConsumer(cfg.KafkaBrokers, contracts.TopicPaymentSucceeded, cfg.ServiceName)
	defer paymentConsumer.Close()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("[Orders] Consuming payment confirmations from %s", contracts.TopicPaymentSucceeded)
		if err := paymentConsumer.Consume(ctx, server.HandlePaymentSucceeded); err != nil {
			if ctx.Err() == nil {
				log.Printf("[Orders] Payment consumer error: %v", err)
			}
		}
	}()

	// Read-only HTTP surface
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)
	handlers := api.NewHandlers(service, cfg.RequestTimeout)
	router := api.NewRouter(handlers, jwtService)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		log.Printf("[Orders] HTTP server started on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[Orders] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Orders] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	wg.Wait()
}

// buildOrderStore wires the configured storage backend. The returned func
// releases the backend's resources.
func buildOrderStore(ctx context.Context, cfg config.Config) (store.OrderStore, func()) {
	switch cfg.OrderStore {
	case "dynamo":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Fatalf("[Orders] Failed to load AWS config: %v", err)
		}
		client := dynamodb.NewFromConfig(awsCfg)
		log.Printf("[Orders] Using DynamoDB table %s", cfg.DynamoTable)
		return store.NewDynamoOrderStore(client, cfg.DynamoTable), func() {}

	case "postgres":
		db, err := store.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("[Orders] Failed to connect to PostgreSQL: %v", err)
		}
		if err := store.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("[Orders] Failed to ensure schema: %v", err)
		}
		log.Println("[Orders] Connected to PostgreSQL")
		return store.NewPostgresOrderStore(db), func() { db.Close() }

	default:
		log.Fatalf("[Orders] Unknown ORDER_STORE %q (want postgres or dynamo)", cfg.OrderStore)
		return nil, nil
	}
}
