package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"telecare/internal/config"
	"telecare/internal/db"
	"telecare/internal/logger"
	"telecare/internal/signal"

	_ "github.com/lib/pq"
)

func main() {
	log := logger.For("cmd.relay")

	cfg, err := config.New()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	dbConn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dbConn.PingContext(ctx); err != nil {
		log.WithError(err).Fatal("failed to ping database")
	}

	hub := signal.NewHub(db.NewRepository(dbConn))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	port := os.Getenv("RELAY_PORT")
	if port == "" {
		port = "9090"
	}
	server := &http.Server{Addr: ":" + port, Handler: mux}

	quit := make(chan os.Signal, 1)
	ossignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.WithField("addr", server.Addr).Info("starting signaling relay")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("relay failed")
		}
	}()

	<-quit
	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
