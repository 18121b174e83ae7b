// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/openarcade/hall/internal/extensions/cards"
	"github.com/openarcade/hall/internal/extensions/scoreboard"
	"github.com/openarcade/hall/internal/handlers"
	"github.com/openarcade/hall/internal/historian"
	"github.com/openarcade/hall/internal/middleware"
	"github.com/openarcade/hall/internal/modules/androids"
	"github.com/openarcade/hall/internal/modules/bullscows"
	"github.com/openarcade/hall/internal/modules/voting"
	"github.com/openarcade/hall/internal/server"
	"github.com/openarcade/hall/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	var st store.Store
	if os.Getenv("PG_HOST") != "" {
		pg, err := store.ConnectPostgres(context.Background())
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		st = pg
		logger.Info("using postgres store")
	} else {
		st = store.NewMemory()
		logger.Info("PG_HOST not set, using in-memory store")
	}

	registry := server.NewRegistry(logger)
	registry.RegisterAll(scoreboard.Commands())
	registry.RegisterAll(cards.Commands())
	registry.RegisterAll(androids.Commands())
	registry.RegisterAll(bullscows.Commands())
	registry.RegisterAll(voting.Commands())

	hist := historian.NewFromEnv(logger)
	defer hist.Close()

	srv := server.New(st, registry, hist, logger)
	gs := handlers.NewGameServer(srv, logger)

	mux := http.NewServeMux()
	gs.RegisterRoutes(mux)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, middleware.LogMiddleware(logger)(mux)); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
