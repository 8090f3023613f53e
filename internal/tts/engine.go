// Package tts synthesizes reply audio, with a phrase cache in front of
// the primary vendor and a carrier-side voice as the last resort.
package tts

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/dc-engine/internal/metrics"
	"github.com/snarg/dc-engine/internal/phrasecache"
)

// Source tags where the synthesized audio came from.
type Source string

const (
	SourceCache    Source = "cache"    // previously synthesized, URL ready
	SourcePrimary  Source = "primary"  // fresh vendor audio blob
	SourceFallback Source = "fallback" // no audio, carrier speaks the text
)

// Result is what Synthesize produced. Exactly one shape is populated,
// keyed by Source: cache carries URL, primary carries Audio and Voice,
// fallback carries Text and Voice (a carrier voice id).
type Result struct {
	Source Source
	URL    string
	Audio  []byte
	Text   string
	Voice  string
}

// Vendor is a synthesis backend.
type Vendor interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
	Name() string
}

// Options overrides per-call synthesis parameters.
type Options struct {
	Voice      string // vendor voice id, defaults to the engine voice
	AllowCache bool   // consult the phrase cache and admit the result
}

// Engine drives synthesis: cache first, then the primary vendor with
// retries, then the fallback voice. Synthesize never returns an error;
// the worst case is a fallback Result.
type Engine struct {
	vendor         Vendor
	cache          *phrasecache.Cache
	voice          string
	fallbackVoice  string
	maxAttempts    int
	timeout        time.Duration
	disablePrimary bool
	log            zerolog.Logger

	// test seam
	sleep func(ctx context.Context, d time.Duration) bool
}

type EngineConfig struct {
	Voice          string
	FallbackVoice  string
	MaxAttempts    int
	Timeout        time.Duration
	DisablePrimary bool
}

func NewEngine(vendor Vendor, cache *phrasecache.Cache, cfg EngineConfig, log zerolog.Logger) *Engine {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Engine{
		vendor:         vendor,
		cache:          cache,
		voice:          cfg.Voice,
		fallbackVoice:  cfg.FallbackVoice,
		maxAttempts:    cfg.MaxAttempts,
		timeout:        cfg.Timeout,
		disablePrimary: cfg.DisablePrimary,
		log:            log.With().Str("component", "tts").Logger(),
		sleep:          sleepCtx,
	}
}

// Synthesize produces audio for the text. Cache is consulted first; a
// fresh vendor result is admitted to the cache when the phrase
// qualifies.
func (e *Engine) Synthesize(ctx context.Context, text string, opts Options) Result {
	voice := opts.Voice
	if voice == "" {
		voice = e.voice
	}

	if opts.AllowCache {
		if url := e.cache.Lookup(text, voice); url != "" {
			metrics.TTSCacheHitsTotal.Inc()
			return Result{Source: SourceCache, URL: url}
		}
		metrics.TTSCacheMissesTotal.Inc()
	}

	if e.disablePrimary || e.vendor == nil {
		return e.fallback(text)
	}

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		metrics.TTSRequestsTotal.Inc()

		attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
		audio, err := e.vendor.Synthesize(attemptCtx, text, voice)
		cancel()
		if err == nil {
			if opts.AllowCache {
				if url, ok := e.cache.Store(text, audio, voice); ok {
					e.log.Debug().Str("url", url).Msg("phrase admitted to cache")
				}
			}
			return Result{Source: SourcePrimary, Audio: audio, Voice: voice}
		}

		metrics.TTSErrorsTotal.Inc()
		e.log.Warn().Err(err).Int("attempt", attempt).Msg("tts synthesis failed")

		if attempt == e.maxAttempts || ctx.Err() != nil {
			break
		}
		// 2s, 4s, 8s between attempts.
		if !e.sleep(ctx, time.Duration(1<<attempt)*time.Second) {
			break
		}
	}
	return e.fallback(text)
}

func (e *Engine) fallback(text string) Result {
	metrics.TTSFallbacksTotal.Inc()
	return Result{Source: SourceFallback, Text: text, Voice: e.fallbackVoice}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
