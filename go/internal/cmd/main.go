package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	settings, err := loadSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogging(settings.LogLevel, settings.LogFormat)

	log.Info().
		Str("base_url", settings.BaseURL).
		Dur("tick_interval", settings.TickInterval).
		Dur("detail_interval", settings.DetailInterval).
		Dur("sweep_interval", settings.SweepInterval).
		Int("watched", len(settings.Watch)).
		Msg("starting maccheese auction client")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := setupServices(ctx, settings)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		services.Clock.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := services.Monitor.Run(ctx); err != nil {
			log.Error().Err(err).Msg("auction winner monitor failed")
		}
	}()
	go func() {
		defer wg.Done()
		services.Gateway.Start(ctx)
	}()

	server := setupServer(services, settings.Port)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("gateway server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("gateway server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway server shutdown failed")
	}

	cancel()
	wg.Wait()
	services.Close()

	log.Info().Msg("shutdown complete")
}

func setupLogging(level, format string) {
	if strings.EqualFold(format, "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
