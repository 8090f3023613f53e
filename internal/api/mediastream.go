package api

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/snarg/dc-engine/internal/vad"
)

// MediaStreamHandler accepts the carrier's realtime media websocket:
// base64 μ-law frames arrive as JSON events, pass through a
// per-connection voice activity detector, and completed utterances feed
// the dialog pipeline directly, without the record-and-fetch round
// trip.
type MediaStreamHandler struct {
	dialer   Dialer
	vadCfg   vad.Config
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewMediaStreamHandler(dialer Dialer, vadCfg vad.Config, log zerolog.Logger) *MediaStreamHandler {
	return &MediaStreamHandler{
		dialer: dialer,
		vadCfg: vadCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			// The carrier connects server-to-server; there is no browser
			// origin to validate.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log.With().Str("component", "mediastream").Logger(),
	}
}

// streamMessage is the carrier's media-stream event envelope. The
// sequence number counts every message on the stream, starting at 1.
type streamMessage struct {
	Event          string `json:"event"`
	SequenceNumber string `json:"sequenceNumber"`
	Start          *struct {
		StreamSID        string            `json:"streamSid"`
		CallSID          string            `json:"callSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start,omitempty"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
}

func (h *MediaStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// The call id normally arrives in the start event's custom
	// parameters; the query parameter is the fallback for streams
	// configured by URL.
	callID := r.URL.Query().Get("callId")
	detector := vad.NewDetector(h.vadCfg, h.log)
	started := time.Now()
	frames := 0
	lastSeq := 0

	flush := func() {
		if callID == "" {
			return
		}
		if utt := detector.Flush(); utt != nil {
			h.dialer.DeliverUtterance(callID, utt)
		}
	}

	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug().Err(err).Str("call_id", callID).Msg("media stream read ended")
			}
			flush()
			return
		}

		switch msg.Event {
		case "start":
			if msg.Start != nil {
				if id := msg.Start.CustomParameters["callId"]; id != "" {
					callID = id
				}
				h.log.Info().Str("call_id", callID).
					Str("stream_sid", msg.Start.StreamSID).Msg("media stream started")
			}

		case "media":
			if msg.Media == nil || callID == "" {
				continue
			}
			// Websocket delivery is ordered, but the carrier may resend
			// frames after a reconnect. Stale frames would replay audio
			// into the detector, so they are dropped; gaps are only worth
			// a warning.
			if n, err := strconv.Atoi(msg.SequenceNumber); err == nil && n > 0 {
				if n <= lastSeq {
					h.log.Debug().Str("call_id", callID).Int("seq", n).Msg("stale media frame dropped")
					continue
				}
				if lastSeq > 0 && n != lastSeq+1 {
					h.log.Warn().Str("call_id", callID).
						Int("seq", n).Int("last_seq", lastSeq).Msg("media frames lost")
				}
				lastSeq = n
			}
			frame, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				h.log.Warn().Err(err).Str("call_id", callID).Msg("bad media payload")
				continue
			}
			frames++
			if utt := detector.Push(frame); utt != nil {
				h.dialer.DeliverUtterance(callID, utt)
			}

		case "stop":
			flush()
			h.log.Info().Str("call_id", callID).Int("frames", frames).
				Dur("duration", time.Since(started)).Msg("media stream stopped")
			return
		}
	}
}
