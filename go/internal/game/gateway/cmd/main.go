package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/escaperoom/go/internal/config"
	"github.com/mcdev12/escaperoom/go/internal/game/gateway"
	"github.com/mcdev12/escaperoom/go/internal/game/history"
	"github.com/mcdev12/escaperoom/go/internal/game/journal"
	"github.com/mcdev12/escaperoom/go/internal/game/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/time/rate"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := session.NewStore(session.Options{
		Clock:                  clockwork.NewRealClock(),
		TickInterval:           cfg.Game.TickInterval,
		DefaultDurationSeconds: cfg.Game.DefaultDurationSeconds,
		PreserveDisplayOnReset: cfg.Game.PreserveDisplayOnReset,
	})

	// Game history
	var lister gateway.HistoryLister
	recorder, closeHistory, err := setupHistory(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.History.Driver).Msg("failed to open game history")
	}
	if recorder != nil {
		store.AddPublisher(recorder)
		lister = recorder
		recorder.Start(ctx)
	}

	// Journal
	var (
		jsPublisher   *journal.JetStreamPublisher
		journalHealth *journal.HealthChecker
		j             *journal.Journal
	)
	if cfg.Journal.Enabled() {
		jsCfg := journal.DefaultJetStreamConfig()
		jsCfg.URL = cfg.Journal.URL
		jsCfg.StreamName = cfg.Journal.Stream
		jsCfg.SubjectPrefix = cfg.Journal.SubjectPrefix

		jsPublisher, err = journal.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			// The room keeps running without a journal
			log.Error().Err(err).Str("nats_url", cfg.Journal.URL).Msg("journal disabled, could not connect to NATS")
		} else {
			j = journal.New(jsPublisher, journal.Config{
				QueueSize:    1024,
				IncludeTicks: cfg.Journal.IncludeTicks,
			})
			store.AddPublisher(j)
			journalHealth = journal.NewHealthChecker(j, jsPublisher)
			j.Start(ctx)
		}
	}

	// Gateway
	gatewayConfig := gateway.DefaultConfig()
	connCfg := &gatewayConfig.ConnectionConfig
	connCfg.WriteTimeout = cfg.WebSocket.WriteTimeout
	connCfg.ReadTimeout = cfg.WebSocket.ReadTimeout
	connCfg.PingInterval = cfg.WebSocket.PingInterval
	connCfg.MaxMessageSize = cfg.WebSocket.MaxMessageSize
	connCfg.SendBufferSize = cfg.WebSocket.SendBuffer
	connCfg.CommandRate = rate.Limit(cfg.WebSocket.CommandRate)
	connCfg.CommandBurst = cfg.WebSocket.CommandBurst
	connCfg.CheckOrigin = gateway.OriginChecker(cfg.CORS.AllowedOrigins)

	gatewayService := gateway.NewService(gatewayConfig, store, lister)

	mux := http.NewServeMux()
	gatewayService.RegisterRoutes(mux)
	if journalHealth != nil {
		mux.Handle("GET /health/journal", journalHealth)
		mux.HandleFunc("GET /metrics", journalHealth.ServeMetrics)
	}

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     h2c.NewHandler(gateway.CORSMiddleware(cfg.CORS.AllowedOrigins, mux), &http2.Server{}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	log.Info().
		Str("port", cfg.Port).
		Int("default_duration_sec", cfg.Game.DefaultDurationSeconds).
		Bool("journal", jsPublisher != nil).
		Str("history", cfg.History.Driver).
		Msg("starting game gateway")

	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
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
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	store.Close()
	cancel()

	if j != nil {
		j.Wait()
	}
	if jsPublisher != nil {
		jsPublisher.Close()
	}
	if recorder != nil {
		recorder.Wait()
	}
	if closeHistory != nil {
		if err := closeHistory(); err != nil {
			log.Error().Err(err).Msg("failed to close game history")
		}
	}

	log.Info().Msg("game gateway shutdown complete")
}

func setupHistory(ctx context.Context, cfg config.Config) (*history.Recorder, func() error, error) {
	var (
		repo history.Repository
		err  error
	)

	switch cfg.History.Driver {
	case config.HistorySQLite:
		repo, err = history.NewSQLiteRepository(cfg.History.SQLitePath)
	case config.HistoryPostgres:
		repo, err = history.NewPostgresRepository(ctx, cfg.Database.DSN())
	default:
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	log.Info().Str("driver", cfg.History.Driver).Msg("game history enabled")
	return history.NewRecorder(repo, 64), repo.Close, nil
}
