package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/snarg/dc-engine/internal/audiostore"
	"github.com/snarg/dc-engine/internal/eventfeed"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	ActiveCalls   int               `json:"active_calls"`
	QueueDepths   map[string]int    `json:"queue_depths"`
	Audio         audiostore.Stats  `json:"audio"`
}

type HealthHandler struct {
	db        Pinger
	feed      *eventfeed.Feed
	dialer    Dialer
	store     *audiostore.Store
	version   string
	startTime time.Time
}

func NewHealthHandler(db Pinger, feed *eventfeed.Feed, dialer Dialer, store *audiostore.Store, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		feed:      feed,
		dialer:    dialer,
		store:     store,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	// The event feed is optional; a down broker degrades but does not
	// fail the service.
	if h.feed == nil {
		checks["event_feed"] = "not_configured"
	} else if h.feed.Connected() {
		checks["event_feed"] = "ok"
	} else {
		checks["event_feed"] = "disconnected"
		if status == "healthy" {
			status = "degraded"
		}
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
		ActiveCalls:   h.dialer.ActiveSessions(),
		QueueDepths:   h.dialer.QueueDepths(),
		Audio:         h.store.Stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp)
}
