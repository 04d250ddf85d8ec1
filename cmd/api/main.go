package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/punchamoorthee/joyledger/internal/api"
	"github.com/punchamoorthee/joyledger/internal/config"
	"github.com/punchamoorthee/joyledger/internal/events"
	"github.com/punchamoorthee/joyledger/internal/logging"
	"github.com/punchamoorthee/joyledger/internal/paypal"
	"github.com/punchamoorthee/joyledger/internal/service"
	"github.com/punchamoorthee/joyledger/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Ignoring .env: %v", err)
	}

	v := config.New()
	cfg, err := config.Load(v)
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.GetLogger(cfg.LokiURL)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.RunMigrations(cfg.DBSource); err != nil {
		log.Fatalf("Unable to migrate database: %v", err)
	}

	ledgerStore, err := store.NewStore(ctx, cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer ledgerStore.Close()

	// Initialize Layers
	var tokenCache paypal.TokenCache
	if cfg.RedisURL != "" {
		cache, err := paypal.NewRedisTokenCacheFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("Token cache disabled", "error", err)
		} else {
			defer cache.Close()
			tokenCache = cache
		}
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		writer := events.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer writer.Close()
		publisher = events.NewKafkaPublisher(writer, logger)
	}

	creds := config.NewCredentialProvider(v)
	client := paypal.NewClient(cfg.PayPal, tokenCache, logger)

	checkout := service.NewCheckoutService(creds, client, cfg.Checkout, logger)
	dispatcher := service.NewDispatcher(service.NewLedgerMutator(ledgerStore), publisher, logger)
	webhooks := service.NewWebhookService(creds, paypal.NewVerifier(client), dispatcher, ledgerStore, logger)
	accounts := service.NewAccountService(ledgerStore, logger)

	router := api.NewRouter(api.NewHandler(checkout, webhooks, accounts, logger))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Server starting", "port", cfg.Port, "env", cfg.Env)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
