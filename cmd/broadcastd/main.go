package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kidconnect/broadcast/internal/api"
	"github.com/kidconnect/broadcast/internal/auth"
	"github.com/kidconnect/broadcast/internal/config"
	"github.com/kidconnect/broadcast/internal/directory"
	"github.com/kidconnect/broadcast/internal/engine"
	"github.com/kidconnect/broadcast/internal/gateway"
	"github.com/kidconnect/broadcast/internal/ledger"
	"github.com/kidconnect/broadcast/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewFromConfig(logger.Config{
		Level:     cfg.Logging.Level,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	log.Info().Msg("starting broadcast server")

	ctx := context.Background()

	// Select delivery ledger backend
	var (
		led    ledger.Ledger
		pinger api.Pinger
	)
	switch cfg.Ledger.Kind {
	case "postgres":
		db, err := ledger.NewDB(
			ctx,
			cfg.Database.URL,
			cfg.Database.PoolMin,
			cfg.Database.PoolMax,
			cfg.Database.ConnectTimeout,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		pg := ledger.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure delivery log schema")
		}
		led = pg
		pinger = db
		log.Info().Msg("database connection established")
	case "file":
		fl, err := ledger.NewFile(cfg.Ledger.FilePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Ledger.FilePath).Msg("failed to open delivery log file")
		}
		led = fl
		log.Info().Str("path", cfg.Ledger.FilePath).Msg("file ledger opened")
	}

	// Select messaging gateway
	var gw gateway.Gateway
	switch cfg.Gateway.Kind {
	case "vonage":
		gw = gateway.NewVonage(gateway.VonageConfig{
			Endpoint:  cfg.Gateway.Endpoint,
			APIKey:    cfg.Gateway.APIKey,
			APISecret: cfg.Gateway.APISecret,
			Sender:    cfg.Gateway.Sender,
		}, gateway.NewHTTPClient(cfg.Gateway.Timeout))
	case "stdout":
		gw = gateway.NewStdout()
	}
	log.Info().Str("gateway", gw.Name()).Msg("messaging gateway configured")

	// Optional Redis-backed monthly send quota
	var quota *engine.SendQuota
	if cfg.Quota.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Quota.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid quota redis URL")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to quota redis")
		}
		defer client.Close()
		quota = engine.NewSendQuota(client, cfg.Quota.MonthlyLimit)
		log.Info().Int("monthly_limit", cfg.Quota.MonthlyLimit).Msg("send quota enabled")
	}

	// Operator credentials
	creds := make([]auth.Credential, 0, len(cfg.Auth.Credentials))
	for _, c := range cfg.Auth.Credentials {
		creds = append(creds, auth.Credential{
			Username:     c.Username,
			PasswordHash: c.PasswordHash,
			Role:         auth.Role(c.Role),
		})
	}
	authorizer, err := auth.NewStaticAuthorizer(creds)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid operator credentials")
	}

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey:  cfg.Auth.SigningKey,
		TokenExpiry: cfg.Auth.TokenExpiry,
		Issuer:      cfg.Auth.Issuer,
	})
	if cfg.Auth.SigningKey == "" || cfg.Auth.SigningKey == "change-me-in-production-use-a-strong-secret" {
		log.Warn().Msg("JWT signing key is not set or using default value; set KIDCONNECT_AUTH_SIGNING_KEY in production")
	}

	// Broadcast engine
	dir := directory.New()
	eng := engine.New(engine.Config{
		MaxAttempts:       cfg.Engine.MaxAttempts,
		RetryBackoff:      cfg.Engine.RetryBackoff,
		RecipientInterval: cfg.Engine.RecipientInterval,
	}, dir, gw, led, quota, log)

	router := api.NewRouter(api.Deps{
		Engine:     eng,
		Directory:  dir,
		Ledger:     led,
		Pinger:     pinger,
		Authorizer: authorizer,
		JWT:        jwtService,
		Log:        log,
	})

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("broadcast server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down server")

	// Graceful shutdown with 30-second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
