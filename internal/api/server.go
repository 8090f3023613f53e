// Package api is the HTTP surface: call management endpoints for
// operators, webhook endpoints for the carrier, the realtime media
// stream, and static audio serving.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/dc-engine/internal/audiostore"
	"github.com/snarg/dc-engine/internal/config"
	"github.com/snarg/dc-engine/internal/database"
	"github.com/snarg/dc-engine/internal/eventfeed"
	"github.com/snarg/dc-engine/internal/metrics"
	"github.com/snarg/dc-engine/internal/orchestrator"
	"github.com/snarg/dc-engine/internal/vad"
)

// Dialer is the call-control surface the handlers need. Satisfied by
// *orchestrator.Orchestrator.
type Dialer interface {
	Initiate(ctx context.Context, clientID string) (*orchestrator.InitiateResult, error)
	Markup(callID string) string
	HandleStatus(ctx context.Context, callID string, u orchestrator.StatusUpdate)
	HandleRecording(callID string, u orchestrator.RecordingUpdate)
	HandleRecordingStatus(ctx context.Context, callID, status, sid, url string)
	DeliverUtterance(callID string, utt *vad.Utterance)
	End(ctx context.Context, callID, reason string) error
	QueueDepths() map[string]int
	ActiveSessions() int
}

// CallReader loads persisted call records. Satisfied by *database.DB.
type CallReader interface {
	GetCall(ctx context.Context, callID string) (*database.Call, error)
}

// Pinger is the database liveness probe.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

type Deps struct {
	Dialer    Dialer
	Calls     CallReader
	DB        Pinger
	Feed      *eventfeed.Feed
	Store     *audiostore.Store
	Version   string
	StartTime time.Time
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, deps Deps, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)

	health := NewHealthHandler(deps.DB, deps.Feed, deps.Dialer, deps.Store, deps.Version, deps.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	// Synthesized audio the carrier fetches by URL.
	r.Handle("/audio/*", http.StripPrefix("/audio/",
		http.FileServer(http.Dir(deps.Store.Dir()))))

	wh := &WebhooksHandler{dialer: deps.Dialer, serverURL: cfg.ServerURL, log: log}
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/twiml", wh.TwiML)
		r.Post("/twiml/{callID}", wh.TwiML)
		r.Post("/continue/{callID}", wh.TwiML)
		r.Post("/status/{callID}", wh.Status)
		r.Post("/recording/{callID}", wh.Recording)
		r.Post("/recording-status/{callID}", wh.RecordingStatus)
	})

	if cfg.MediaStreamEnabled {
		ms := NewMediaStreamHandler(deps.Dialer, vad.Config{
			Threshold:      cfg.VADThreshold,
			SilenceTimeout: cfg.SilenceTimeout,
			MinPhrase:      cfg.MinPhraseDuration,
		}, log)
		r.Get("/media-stream", ms.ServeHTTP)
	}

	ch := &CallsHandler{dialer: deps.Dialer, calls: deps.Calls, log: log}
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Post("/calls/client/{clientID}", ch.InitiateCall)
		r.Post("/calls/bulk", ch.BulkInitiate)
		r.Get("/calls/{callID}", ch.GetCall)
		r.Post("/calls/{callID}/end", ch.EndCall)
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
