// Package stt transcribes detected utterances.
package stt

import (
	"context"
	"errors"
)

// ErrServiceUnavailable marks vendor-side failures (timeouts, 5xx) that
// are worth a retry, as opposed to audio that simply has no speech.
var ErrServiceUnavailable = errors.New("stt service unavailable")

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, wav []byte) (*Response, error)
	Name() string
}

// Response is the common transcription result from any provider.
type Response struct {
	Text       string
	Language   string
	Duration   float64 // audio duration in seconds, 0 if unknown
	Confidence float64 // 0..1 vendor confidence, 0 if unknown
}
