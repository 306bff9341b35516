package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/orders-ms/internal/config"
	"github.com/example/orders-ms/internal/contracts"
	"github.com/example/orders-ms/internal/email"
	"github.com/example/orders-ms/internal/infrastructure/kafka"
	"github.com/example/orders-ms/internal/notification"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()

	if cfg.ReceiptEmail == "" {
		log.Fatal("[Notifier] RECEIPT_EMAIL environment variable is required")
	}

	consumerGroup := "receipt-notifier"

	log.Println("[Notifier] ========================================")
	log.Println("[Notifier] Payment Receipt Notification Service")
	log.Println("[Notifier] ========================================")
	log.Printf("[Notifier] Kafka: %v", cfg.KafkaBrokers)
	log.Printf("[Notifier] Topic: %s", contracts.TopicOrderPaid)
	log.Printf("[Notifier] Group: %s", consumerGroup)
	log.Printf("[Notifier] SMTP: %s:%s", cfg.SMTPHost, cfg.SMTPPort)
	log.Printf("[Notifier] From: %s", cfg.EmailFrom)

	emailSvc := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailFrom)
	handler := notification.NewHandler(emailSvc, cfg.ReceiptEmail)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, contracts.TopicOrderPaid, consumerGroup)
	defer consumer.Close()

	go func() {
		log.Println("[Notifier] Starting event consumer...")
		if err := consumer.Consume(ctx, handler.HandleOrderPaid); err != nil {
			if ctx.Err() == nil {
				log.Printf("[Notifier] Consumer error: %v", err)
			}
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Notifier] Shutting down...")
	cancel()
}
