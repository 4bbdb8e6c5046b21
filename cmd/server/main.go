package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hongminglow/barrio-seguro-be/internal/assistant"
	"github.com/hongminglow/barrio-seguro-be/internal/cache"
	"github.com/hongminglow/barrio-seguro-be/internal/clients/identity"
	"github.com/hongminglow/barrio-seguro-be/internal/clients/ipinfo"
	"github.com/hongminglow/barrio-seguro-be/internal/config"
	"github.com/hongminglow/barrio-seguro-be/internal/server"
	"github.com/hongminglow/barrio-seguro-be/internal/storage"
	"github.com/hongminglow/barrio-seguro-be/internal/storage/memory"
	"github.com/hongminglow/barrio-seguro-be/internal/storage/mongodb"
	"github.com/hongminglow/barrio-seguro-be/internal/storage/postgres"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("no .env file found; relying on existing environment")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init %s store: %w", cfg.StoreBackend, err)
	}
	defer store.Close()

	var ledger storage.MessageLedger = store
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		defer rdb.Close()
		ledger = cache.NewRecentLedger(store, rdb, logger)
		logger.Info("recent message cache enabled")
	}

	var verifier identity.Verifier = identity.Skip{}
	if cfg.IdentityAPIURL != "" {
		verifier = identity.NewClient(cfg.IdentityAPIURL, cfg.IdentityAPIToken, cfg.OutboundTimeout)
	} else {
		logger.Warn("IDENTITY_API_URL not set; DNI verification disabled")
	}

	var generator assistant.Generator = assistant.Unavailable{}
	if cfg.GeneratorURL != "" {
		generator = assistant.NewHTTPGenerator(cfg.GeneratorURL, cfg.GeneratorAPIKey, cfg.OutboundTimeout)
	}

	srv := server.New(cfg, server.Deps{
		Users:     store,
		Ledger:    ledger,
		Identity:  verifier,
		IP:        ipinfo.NewClient(cfg.IPLookupURL, cfg.OutboundTimeout),
		Generator: generator,
		Logger:    logger,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("barrio seguro backend listening", "addr", cfg.HTTPAddress(), "backend", cfg.StoreBackend)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctxShutdown)
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		return postgres.NewStore(ctx, cfg.DatabaseURL)
	case config.BackendMongo:
		return mongodb.NewStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return memory.NewStore(), nil
	}
}
