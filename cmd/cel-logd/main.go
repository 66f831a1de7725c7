package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/cel-logd/internal/api"
	"github.com/snarg/cel-logd/internal/config"
	"github.com/snarg/cel-logd/internal/confd"
	"github.com/snarg/cel-logd/internal/database"
	"github.com/snarg/cel-logd/internal/generator"
	"github.com/snarg/cel-logd/internal/ingest"
	"github.com/snarg/cel-logd/internal/mqttclient"
)

var version = "dev"

func main() {
	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "http-addr", "", "http listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "postgres connection url")
	flag.StringVar(&overrides.MQTTBrokerURL, "mqtt-broker-url", "", "mqtt broker url")
	flag.StringVar(&overrides.ConfdURL, "confd-url", "", "confd base url")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("cel-logd starting")

	if _, err := uuid.Parse(cfg.ServiceTenantUUID); err != nil {
		log.Fatal().Err(err).Str("value", cfg.ServiceTenantUUID).Msg("invalid SERVICE_TENANT_UUID")
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Directory
	directory := confd.NewClient(cfg.ConfdURL, cfg.ConfdToken, cfg.ConfdTimeout, log)

	gen := generator.New(directory, generator.DefaultInterpretors(), cfg.ServiceTenantUUID, log)

	// MQTT
	mqttLog := log.With().Str("component", "mqtt").Logger()
	mqtt, err := mqttclient.Connect(mqttclient.Options{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID,
		Topics:    cfg.MQTTTopics,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
		Log:       mqttLog,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
	}
	defer mqtt.Close()

	publisher := ingest.NewEventPublisher(mqtt, uuid.NewString(), log)

	pipeline := ingest.NewPipeline(ingest.PipelineOptions{
		Store:     db,
		Generator: gen,
		Publisher: publisher,
		Log:       log,
	})
	mqtt.SetMessageHandler(pipeline.HandleMessage)
	pipeline.Start()
	defer pipeline.Stop()

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, db, mqtt, version, httpLog)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("cel-logd stopped")
}
