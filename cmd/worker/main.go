// The worker process runs the background actors: the change delivery
// processor draining the outbox and the expiration sweeper.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"cardvault/infrastructure/config"
	"cardvault/infrastructure/di"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	container.Logger.Info("Starting worker",
		zap.String("environment", cfg.Environment),
		zap.String("table", cfg.TableName),
		zap.String("eventBus", cfg.EventBusName),
	)

	container.Processor.Start(ctx)
	container.Sweeper.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	container.Logger.Info("Shutting down worker...")
	container.Processor.Stop()
	container.Sweeper.Stop()

	_ = container.Logger.Sync()
	log.Println("Worker stopped")
}
