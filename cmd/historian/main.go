// cmd/historian/main.go runs the asynchronous historian service: it pops
// command records from the Redis queue the game server pushes onto and
// persists them to PostgreSQL in batches.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/openarcade/hall/internal/historian"
	"github.com/openarcade/hall/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := store.ConnectPostgres(ctx)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pg.Close()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	svc := historian.NewService(client, pg.Pool(),
		os.Getenv("HISTORIAN_QUEUE_NAME"), logger)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	if err := svc.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("historian exited: %v", err)
	}
	logger.Info("historian shutdown complete")
}
