package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/dvloznov/expense-assistant/internal/api"
	"github.com/dvloznov/expense-assistant/internal/app"
	"github.com/dvloznov/expense-assistant/internal/config"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	// Parse command-line flags
	var (
		envFile = flag.String("env", "", "Path to a .env file (default ./.env when present)")
		port    = flag.String("port", "", "HTTP server port (overrides PORT)")
		jsonLog = flag.Bool("json-log", false, "Emit JSON logs instead of console output")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.API.Port = *port
	}

	log := logger.NewWithLevel(cfg.LogLevel, *jsonLog)

	if err := checkConfig(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	handler := api.NewRouter(api.Deps{
		Processor:    application.Pipeline,
		Balances:     application.Balances,
		APIKey:       cfg.API.APIKey,
		DashboardURL: cfg.API.AppURL,
		Log:          log,
	})

	// Extraction retries and posting can take a while; keep the write timeout above them.
	server := &http.Server{
		Addr:         ":" + cfg.API.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.API.Port).Str("store", cfg.Store.Backend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// checkConfig fails on settings the server cannot run without and warns
// about optional ones it runs degraded without.
func checkConfig(cfg *config.Config, log zerolog.Logger) error {
	if err := cfg.Validate("api.apiKey"); err != nil {
		return err
	}
	if cfg.Gemini.APIKey == "" {
		log.Warn().Msg("No Gemini API key configured - balances are served but messages are answered with 503")
	}
	if cfg.Archive.Bucket == "" {
		log.Warn().Msg("No archive bucket configured - raw messages will not be archived")
	}
	return nil
}
