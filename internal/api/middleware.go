package api

import (
	"crypto/subtle"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// RequestID tags every request, honoring an inbound X-Request-ID so an
// id assigned by a proxy survives into our logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// Logger attaches the base logger to the request context and emits one
// access line per request. Requests that address a specific call carry
// its id, so a call's webhook traffic can be grepped as one thread.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		attach := hlog.NewHandler(log)
		access := hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			ev := hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", size).
				Dur("elapsed", dur)
			if callID := chi.URLParamFromCtx(r.Context(), "callID"); callID != "" {
				ev = ev.Str("call_id", callID)
			}
			ev.Msg("http request")
		})
		return attach(access(next))
	}
}

// Recoverer converts handler panics into plain 500s. A panic on a
// webhook route must not take down the other live calls.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rv := recover(); rv != nil {
				hlog.FromRequest(r).Error().
					Interface("panic", rv).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				WriteError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// BearerAuth guards the call-management endpoints. An empty token
// disables the check; webhook routes are never behind it because the
// carrier cannot send our header.
func BearerAuth(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
				WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
