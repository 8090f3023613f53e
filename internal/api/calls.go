package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/dc-engine/internal/database"
	"github.com/snarg/dc-engine/internal/orchestrator"
)

// CallsHandler serves the operator-facing call management endpoints.
type CallsHandler struct {
	dialer Dialer
	calls  CallReader
	log    zerolog.Logger
}

type initiateResponse struct {
	Success bool                         `json:"success"`
	Call    *orchestrator.InitiateResult `json:"call,omitempty"`
	Error   string                       `json:"error,omitempty"`
}

// InitiateCall places one outbound call to a client.
// POST /calls/client/{clientID}
func (h *CallsHandler) InitiateCall(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if clientID == "" {
		WriteJSON(w, http.StatusBadRequest, initiateResponse{Error: "client id required"})
		return
	}

	res, err := h.dialer.Initiate(r.Context(), clientID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrClientNotFound) {
			WriteJSON(w, http.StatusNotFound, initiateResponse{Error: "client not found"})
			return
		}
		h.log.Error().Err(err).Str("client_id", clientID).Msg("call initiation failed")
		WriteJSON(w, http.StatusBadGateway, initiateResponse{Error: "call initiation failed"})
		return
	}

	WriteJSON(w, http.StatusOK, initiateResponse{Success: true, Call: res})
}

type bulkRequest struct {
	ClientIDs []string `json:"client_ids"`
	DelayMS   int      `json:"delay_ms"`
}

type bulkResponse struct {
	Success   bool   `json:"success"`
	Scheduled int    `json:"scheduled"`
	Error     string `json:"error,omitempty"`
}

// BulkInitiate dials a list of clients sequentially with a delay
// between calls. The dialing runs in the background; the response only
// confirms the schedule.
// POST /calls/bulk
func (h *CallsHandler) BulkInitiate(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteJSON(w, http.StatusBadRequest, bulkResponse{Error: "invalid request body"})
		return
	}
	if len(req.ClientIDs) == 0 {
		WriteJSON(w, http.StatusBadRequest, bulkResponse{Error: "client_ids required"})
		return
	}
	delay := time.Duration(req.DelayMS) * time.Millisecond
	if delay <= 0 {
		delay = time.Second
	}

	go func() {
		for i, clientID := range req.ClientIDs {
			if i > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_, err := h.dialer.Initiate(ctx, clientID)
			cancel()
			if err != nil {
				h.log.Warn().Err(err).Str("client_id", clientID).Msg("bulk call failed")
			}
		}
	}()

	WriteJSON(w, http.StatusAccepted, bulkResponse{Success: true, Scheduled: len(req.ClientIDs)})
}

// GetCall returns the persisted record of one call.
// GET /calls/{callID}
func (h *CallsHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	call, err := h.calls.GetCall(r.Context(), callID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "call not found")
			return
		}
		h.log.Error().Err(err).Str("call_id", callID).Msg("call lookup failed")
		WriteError(w, http.StatusInternalServerError, "call lookup failed")
		return
	}
	WriteJSON(w, http.StatusOK, call)
}

// EndCall terminates a live call on operator request.
// POST /calls/{callID}/end
func (h *CallsHandler) EndCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if err := h.dialer.End(r.Context(), callID, "operator"); err != nil {
		h.log.Error().Err(err).Str("call_id", callID).Msg("call end failed")
		WriteError(w, http.StatusInternalServerError, "call end failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
