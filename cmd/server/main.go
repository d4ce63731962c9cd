package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telecare/internal/api"
	"telecare/internal/config"
	"telecare/internal/core"
	"telecare/internal/db"
	"telecare/internal/events"
	"telecare/internal/llm"
	"telecare/internal/logger"
	"telecare/internal/search"

	_ "github.com/lib/pq"
)

const notifyChannel = "telecare_changes"

func main() {
	log := logger.For("cmd.server")

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
	if err := db.Migrate(context.Background(), dbConn); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	repo := db.NewRepository(dbConn)
	notifier := db.NewNotifier(dbConn, cfg.DatabaseURL, notifyChannel)

	listenCtx, stopListening := context.WithCancel(context.Background())
	defer stopListening()
	if changes, err := notifier.Listen(listenCtx); err != nil {
		log.WithError(err).Warn("change-feed listener unavailable")
	} else {
		go func() {
			for payload := range changes {
				log.WithField("change", payload).Debug("row change")
			}
		}()
	}

	var publisher events.Publisher
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to broker")
		}
		defer amqpPub.Close()
		publisher = amqpPub
	}

	assistant := &core.Assistant{
		LLM:          llm.NewOpenRouterClient(cfg.OpenRouterAPIKey, ""),
		Search:       search.NewSerpAPIClient(cfg.SerpAPIKey, ""),
		Prober:       search.NewYouTubeProber(""),
		Memory:       core.NewMemoryStore(repo),
		Referral:     core.NewReferralEngine(repo),
		Counter:      repo,
		ChatModel:    cfg.ChatModel,
		SummaryModel: cfg.SummaryModel,
	}

	router := api.NewRouter(&api.Server{
		Repo:      repo,
		Assistant: assistant,
		Notifier:  notifier,
		Emitter:   events.NewEmitter(publisher),
	})

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.WithField("addr", server.Addr).Info("starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-quit
	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("forced shutdown")
		return
	}
	log.Info("server exited gracefully")
}
