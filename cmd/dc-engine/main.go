package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/snarg/dc-engine/internal/api"
	"github.com/snarg/dc-engine/internal/audiostore"
	"github.com/snarg/dc-engine/internal/carrier"
	"github.com/snarg/dc-engine/internal/config"
	"github.com/snarg/dc-engine/internal/database"
	"github.com/snarg/dc-engine/internal/dialog"
	"github.com/snarg/dc-engine/internal/eventfeed"
	"github.com/snarg/dc-engine/internal/jobqueue"
	"github.com/snarg/dc-engine/internal/orchestrator"
	"github.com/snarg/dc-engine/internal/phrasecache"
	"github.com/snarg/dc-engine/internal/stt"
	"github.com/snarg/dc-engine/internal/tts"
)

var version = "dev"

func main() {
	startTime := time.Now()

	cfg, err := config.Load()
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("dc-engine starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to init schema")
	}

	// Audio store and pruner
	store, err := audiostore.New(cfg.AudioDir, cfg.ServerURL, log.With().Str("component", "audiostore").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init audio store")
	}
	pruner := audiostore.NewPruner(store, cfg.TempAudioRetention, cfg.PruneInterval, log)
	pruner.Start()
	defer pruner.Stop()

	// TTS: phrase cache in front of the vendor, carrier voice as the
	// last resort.
	cache := phrasecache.New(store, cfg.PhraseCacheSize, log)
	var vendor tts.Vendor
	if cfg.ElevenLabsAPIKey != "" {
		vendor = tts.NewElevenLabsClient(cfg.ElevenLabsAPIKey, cfg.TTSModel, cfg.TTSTimeout)
	}
	engine := tts.NewEngine(vendor, cache, tts.EngineConfig{
		Voice:          cfg.TTSVoiceID,
		FallbackVoice:  cfg.TTSFallbackVoice,
		MaxAttempts:    cfg.TTSMaxAttempts,
		Timeout:        cfg.TTSTimeout,
		DisablePrimary: cfg.TTSDisablePrimary,
	}, log)

	// STT and dialog models
	openaiClient := openai.NewClient(cfg.OpenAIAPIKey)
	whisper := stt.NewWhisperClient(openaiClient, cfg.WhisperModel, cfg.Language, cfg.ResponseTimeout)
	classifier := dialog.NewClassifier(openaiClient, cfg.OpenAIModel, cfg.ResponseTimeout, log)

	// Dialog script with hot reload
	script, err := dialog.LoadScript(cfg.ScriptPath, log)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ScriptPath).Msg("failed to load dialog script")
	}
	if err := script.Watch(); err != nil {
		log.Warn().Err(err).Msg("script hot reload unavailable")
	}
	defer script.Close()

	responder := dialog.NewResponder(openaiClient, script, cfg.OpenAIModel,
		cfg.GPTMaxResponseTokens, cfg.ResponseTimeout, log)

	// Carrier
	twilio := carrier.NewTwilio(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, log)

	// Optional MQTT event feed
	var feed *eventfeed.Feed
	if cfg.MQTTBrokerURL != "" {
		feed, err = eventfeed.Connect(eventfeed.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       log,
		})
		if err != nil {
			log.Warn().Err(err).Msg("event feed unavailable, continuing without it")
			feed = nil
		} else {
			defer feed.Close()
		}
	}

	// Orchestrator with the three worker pools
	orc := orchestrator.New(orchestrator.Config{
		ServerURL:         cfg.ServerURL,
		Language:          languageTag(cfg.Language),
		ResponseTimeout:   cfg.ResponseTimeout,
		RecordingTimeout:  cfg.RecordingTimeout,
		TeardownGrace:     cfg.TeardownGrace,
		TeardownExtension: cfg.TeardownExtension,
		RingTimeoutSecs:   30,
	}, orchestrator.Deps{
		DB:         db,
		Store:      store,
		TTS:        engine,
		STT:        whisper,
		Classifier: classifier,
		Responder:  responder,
		Script:     script,
		Carrier:    twilio,
		Feed:       feed,
	}, orchestrator.QueueConfigs{
		STT: jobqueue.Config{Workers: cfg.STTWorkers, DefaultAttempts: 3, BackoffBase: time.Second, WarnDepth: 50},
		LLM: jobqueue.Config{Workers: cfg.LLMWorkers, DefaultAttempts: 3, BackoffBase: time.Second, WarnDepth: 50},
		TTS: jobqueue.Config{Workers: cfg.TTSWorkers, DefaultAttempts: 3, BackoffBase: time.Second, WarnDepth: 50},
	}, log)

	// HTTP server
	srv := api.NewServer(cfg, api.Deps{
		Dialer:    orc,
		Calls:     db,
		DB:        db,
		Feed:      feed,
		Store:     store,
		Version:   version,
		StartTime: startTime,
	}, log.With().Str("component", "http").Logger())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Stop taking new work, then end active calls and drain the pools.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	orc.Shutdown(shutdownCtx)

	log.Info().Msg("dc-engine stopped")
}

// languageTag maps the short config language to the carrier's speech
// tag.
func languageTag(lang string) string {
	switch lang {
	case "ru":
		return "ru-RU"
	case "en":
		return "en-US"
	}
	return lang
}
