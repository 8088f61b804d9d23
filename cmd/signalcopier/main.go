// Signal copier relays parsed trading signals from Telegram channels into
// broker orders, one isolated pipeline per tenant: ingest -> parse -> validate
// -> execute, with a connection supervisor reconciling broker state in the
// background.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/relaycopier/signalcopier/internal/broker"
	"github.com/relaycopier/signalcopier/internal/bus"
	"github.com/relaycopier/signalcopier/internal/config"
	"github.com/relaycopier/signalcopier/internal/connmanager"
	"github.com/relaycopier/signalcopier/internal/ingress"
	"github.com/relaycopier/signalcopier/internal/llmparser"
	"github.com/relaycopier/signalcopier/internal/router"
	"github.com/relaycopier/signalcopier/internal/store"
	"github.com/relaycopier/signalcopier/internal/supervisor"
)

const version = "1.0.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("version", version).Msg("🚀 signal copier starting...")

	st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}

	eventBus := bus.New()
	dialer := broker.NewDialer(cfg.Broker.BridgeBaseURL, cfg.Broker.BridgeAPIKey, cfg.Broker.DeployPollEvery, cfg.Broker.DeployMaxPolls)
	sup := supervisor.New(dialer, log.Logger)

	parser := llmparser.New(llmparser.Config{
		APIKey:         cfg.LLM.AnthropicAPIKey,
		Model:          cfg.LLM.Model,
		MaxTokens:      cfg.LLM.MaxTokens,
		MaxRetries:     cfg.LLM.MaxRetries,
		RequestTimeout: cfg.LLM.RequestTimeout,
	})

	r := router.New(st, eventBus, parser, sup, log.Logger)

	mgr := connmanager.New(st, sup, eventBus, log.Logger, cfg.WatchdogInterval, cfg.ReconcileInterval)

	ingressSvc, err := ingress.New(cfg.Telegram.BotToken, st, r, sup, eventBus, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telegram ingress")
	}
	mgr.SetTelegramTransport(ingressSvc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start connection manager")
	}
	ingressSvc.Start(ctx)

	log.Info().Msg("✅ all services started")
	log.Info().Msg("📊 pipeline: ingest -> parse -> validate -> execute")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 shutting down...")

	cancel()
	ingressSvc.Stop()
	mgr.Stop()

	log.Info().Msg("👋 goodbye")
}
