package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/dc-engine/internal/orchestrator"
)

// WebhooksHandler answers the carrier's callbacks. Every markup
// endpoint responds with valid markup no matter what; a malformed or
// error response would drop the live call.
type WebhooksHandler struct {
	dialer    Dialer
	serverURL string
	log       zerolog.Logger
}

// TwiML is the carrier's "what should the call do now?" poll.
// POST /webhooks/twiml/{callID}
func (h *WebhooksHandler) TwiML(w http.ResponseWriter, r *http.Request) {
	callID := callIDFrom(r)
	if callID == "" {
		h.log.Warn().Msg("markup request without call id")
		WriteMarkup(w, orchestrator.Hangup())
		return
	}
	WriteMarkup(w, h.dialer.Markup(callID))
}

// Status receives call lifecycle transitions.
// POST /webhooks/status/{callID}
func (h *WebhooksHandler) Status(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if err := r.ParseForm(); err != nil {
		h.log.Warn().Err(err).Str("call_id", callID).Msg("status form parse failed")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	duration, _ := strconv.Atoi(r.FormValue("CallDuration"))
	h.dialer.HandleStatus(r.Context(), callID, orchestrator.StatusUpdate{
		CallStatus:  r.FormValue("CallStatus"),
		CallSID:     r.FormValue("CallSid"),
		DurationSec: duration,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Recording receives a finished callee recording. Processing is
// asynchronous; the response immediately loops the carrier back to the
// markup endpoint so the line stays open while inference runs.
// POST /webhooks/recording/{callID}
func (h *WebhooksHandler) Recording(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if err := r.ParseForm(); err != nil {
		h.log.Warn().Err(err).Str("call_id", callID).Msg("recording form parse failed")
		WriteMarkup(w, orchestrator.Hangup())
		return
	}

	duration, _ := strconv.ParseFloat(r.FormValue("RecordingDuration"), 64)
	h.dialer.HandleRecording(callID, orchestrator.RecordingUpdate{
		RecordingURL: r.FormValue("RecordingUrl"),
		DurationSec:  duration,
		Digits:       r.FormValue("Digits"),
	})

	WriteMarkup(w, orchestrator.WaitRedirect(h.serverURL+"/webhooks/twiml/"+callID, 2))
}

// RecordingStatus appends to the recording audit trail.
// POST /webhooks/recording-status/{callID}
func (h *WebhooksHandler) RecordingStatus(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.dialer.HandleRecordingStatus(r.Context(), callID,
		r.FormValue("RecordingStatus"),
		r.FormValue("RecordingSid"),
		r.FormValue("RecordingUrl"))
	w.WriteHeader(http.StatusNoContent)
}

// callIDFrom accepts the call id as a path segment or a query
// parameter; both webhook URL shapes are registered with the carrier.
func callIDFrom(r *http.Request) string {
	if id := chi.URLParam(r, "callID"); id != "" {
		return id
	}
	return r.URL.Query().Get("callId")
}
