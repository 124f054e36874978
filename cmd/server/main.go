package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/carrierdesk/backend/internal/carrier"
	"github.com/carrierdesk/backend/internal/config"
	"github.com/carrierdesk/backend/internal/db"
	httpapi "github.com/carrierdesk/backend/internal/http"
	"github.com/carrierdesk/backend/internal/http/handlers"
	"github.com/carrierdesk/backend/internal/models"
	"github.com/carrierdesk/backend/internal/service"
)

type store interface {
	handlers.Store
	InsertCallLog(ctx context.Context, cl models.CallLog) error
	Close()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "carrierdesk-backend").Logger()

	ctx := context.Background()

	var st store
	if cfg.DatabaseURL == "" {
		st = db.NewSeededMemStore()
		logger.Info().Msg("using in-memory load store with seed data")
	} else {
		pg, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		st = pg
	}
	defer st.Close()

	var gateway carrier.Gateway
	if cfg.FMCSAWebKey == "" {
		gateway = carrier.MockGateway{}
		logger.Info().Msg("using mock carrier gateway")
	} else {
		gateway = carrier.FMCSAGateway{
			BaseURL: cfg.FMCSABaseURL,
			WebKey:  cfg.FMCSAWebKey,
			Timeout: cfg.VerifyTimeout,
		}
	}

	var loads service.LoadRepository = st
	var callLogs service.CallLogStore = st
	router := httpapi.Router(cfg, st, loads, callLogs, gateway, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
