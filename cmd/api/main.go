package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shoppulse/internal/audit"
	"shoppulse/internal/events"
	"shoppulse/internal/httpapi"
	"shoppulse/internal/metrics"
	"shoppulse/internal/session"
	"shoppulse/internal/shop"
	"shoppulse/internal/webhook"
	"shoppulse/pkg/config"
	"shoppulse/pkg/db"
	"shoppulse/pkg/logging"
	"shoppulse/pkg/shopify"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := httpapi.Dependencies{
		Cfg:     cfg,
		Log:     logger,
		Metrics: metrics.New(),
	}

	if cfg.HasDatabase() {
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("db open")
		}
		defer conn.Close()

		if cfg.MigrationsPath != "" {
			if err := db.MigrateConfig(cfg.MigrationsPath, cfg); err != nil {
				logger.Fatal().Err(err).Msg("migrate")
			}
		}
		deps.Shops = shop.NewRepository(conn)
		deps.Audit = audit.NewRepository(conn)
		deps.Ledger = events.NewRepository(conn)
	} else {
		logger.Warn().Msg("no database configured; shop registry and audit log are in memory")
		deps.Shops = shop.NewMemoryRepository()
		deps.Audit = audit.NewMemoryRecorder()
		deps.Ledger = events.NewMemoryLedger()
	}

	var store session.Store
	switch cfg.Session.Store {
	case "redis":
		client, err := session.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer client.Close()
		store = session.NewRedisStore(client)
	default:
		store = session.NewMemoryStore()
	}
	deps.Sessions = &session.Manager{
		Store:      store,
		CookieName: cfg.Session.CookieName,
		Secret:     []byte(cfg.Session.Secret),
		TTL:        cfg.Session.TTL,
		Secure:     cfg.Session.Secure,
	}

	deps.Exchanger = shopify.OAuthExchanger{
		HTTPClient: shopify.NewTokenClient(),
		APIKey:     cfg.Shopify.APIKey,
		APISecret:  cfg.Shopify.APISecret,
		Timeout:    cfg.Shopify.TokenExchangeTimeout,
	}
	deps.Tokens = shopify.SessionTokenValidator{
		ClientID:         cfg.Shopify.APIKey,
		Secret:           cfg.Shopify.APISecret,
		VerifySignature:  cfg.Shopify.VerifySessionTokenSignature,
		ShopDomainSuffix: cfg.Shopify.ShopDomainSuffix,
		AdminHost:        cfg.Shopify.AdminHost,
	}
	deps.Registrar = &webhook.Registrar{
		Creator: shopify.NewAdminWebhookCreator(cfg.Shopify.APIKey, cfg.Shopify.APISecret, cfg.Shopify.APIVersion),
		BaseURL: cfg.PublicBaseURL,
		Timeout: cfg.Shopify.WebhookRegisterTimeout,
		Metrics: deps.Metrics,
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.New(logger.With().Str("component", "http").Logger(), "", 0),
	}

	go func() {
		logger.Info().
			Str("addr", cfg.HTTPAddr).
			Str("session_store", cfg.Session.Store).
			Bool("strict_oauth_state", cfg.Shopify.StrictOAuthState).
			Bool("verify_token_signature", cfg.Shopify.VerifySessionTokenSignature).
			Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http serve")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
