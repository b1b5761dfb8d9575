package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pesahub/gateway/internal/config"
	"github.com/pesahub/gateway/internal/handler"
	"github.com/pesahub/gateway/internal/ledger"
	"github.com/pesahub/gateway/internal/logging"
	"github.com/pesahub/gateway/internal/middleware"
	"github.com/pesahub/gateway/internal/repository"
	"github.com/pesahub/gateway/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("pesahub-gateway", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := connectDB(ctx, cfg)
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	accounts := repository.NewAccountRepository(db)
	entries := repository.NewLedgerRepository(db)
	ledgerSvc := ledger.NewService(accounts, entries, db, time.Duration(cfg.StoreTimeoutS)*time.Second)

	provider := service.NewDarajaClient(service.DarajaConfig{
		BaseURL:            cfg.ProviderBaseURL,
		Shortcode:          cfg.ProviderShortcode,
		Passkey:            cfg.ProviderPasskey,
		ConsumerKey:        cfg.ProviderConsumerKey,
		ConsumerSecret:     cfg.ProviderConsumerSecret,
		InitiatorName:      cfg.ProviderInitiatorName,
		SecurityCredential: cfg.ProviderSecurityCredential,
		CallbackURL:        cfg.CallbackURL,
	})
	notifier := service.NewNotifier(cfg.BotWebhookURL, cfg.APISecret)

	router := newRouter(cfg, ledgerSvc, provider, notifier)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func newRouter(cfg *config.Config, ledgerSvc *ledger.Service, provider *service.DarajaClient, notifier *service.Notifier) http.Handler {
	depositHandler := handler.NewDepositHandler(provider)
	withdrawHandler := handler.NewWithdrawHandler(ledgerSvc, provider)
	transferHandler := handler.NewTransferHandler(ledgerSvc)
	callbackHandler := handler.NewCallbackHandler(ledgerSvc, notifier)
	statusHandler := handler.NewStatusHandler(ledgerSvc)

	r := chi.NewRouter()
	r.Use(middleware.Tracing)
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)

	r.Get("/health", handler.Health)

	// Provider-facing: no handshake, callbacks are always acknowledged.
	r.Post("/api/callback", callbackHandler.Receive)

	// Bot-facing.
	r.Group(func(r chi.Router) {
		r.Use(middleware.SharedSecret(cfg.APISecret))
		r.Post("/api/deposit/prompt", depositHandler.Prompt)
		r.Post("/api/withdraw/disburse", withdrawHandler.Disburse)
		r.Post("/api/transfer/internal", transferHandler.Internal)
		r.Get("/api/check-status", statusHandler.Check)
	})

	return r
}

func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	var lastErr error
	for attempt := 1; attempt <= 30; attempt++ {
		db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
			MaxOpenConns:     cfg.DBMaxOpenConns,
			MaxIdleConns:     cfg.DBMaxIdleConns,
			ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
			ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
		})
		if err == nil {
			return db, nil
		}
		lastErr = err
		slog.Info("waiting for database", "attempt", attempt)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connectDB: %w", ctx.Err())
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("connectDB: gave up: %w", lastErr)
}
