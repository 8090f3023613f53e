package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// WhisperClient transcribes via the OpenAI audio API. Implements the
// Provider interface.
type WhisperClient struct {
	client   *openai.Client
	model    string
	language string
	timeout  time.Duration
}

func NewWhisperClient(client *openai.Client, model, language string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		client:   client,
		model:    model,
		language: language,
		timeout:  timeout,
	}
}

func (w *WhisperClient) Name() string { return "whisper" }

// Transcribe sends one WAV utterance to the vendor. Vendor outages map
// to ErrServiceUnavailable so the caller can retry.
func (w *WhisperClient) Transcribe(ctx context.Context, wav []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(wav),
		Language: w.language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		if isRetryable(err) {
			return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		return nil, fmt.Errorf("whisper transcription: %w", err)
	}

	avgLogprobs := make([]float64, 0, len(resp.Segments))
	noSpeechProbs := make([]float64, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		avgLogprobs = append(avgLogprobs, seg.AvgLogprob)
		noSpeechProbs = append(noSpeechProbs, seg.NoSpeechProb)
	}

	return &Response{
		Text:       strings.TrimSpace(resp.Text),
		Language:   resp.Language,
		Duration:   resp.Duration,
		Confidence: confidenceFrom(avgLogprobs, noSpeechProbs),
	}, nil
}

// confidenceFrom folds the verbose-JSON segment stats into one 0..1
// score: the mean token probability discounted by the mean no-speech
// probability.
func confidenceFrom(avgLogprobs, noSpeechProbs []float64) float64 {
	if len(avgLogprobs) == 0 {
		return 0
	}
	var logprob, noSpeech float64
	for _, v := range avgLogprobs {
		logprob += v
	}
	for _, v := range noSpeechProbs {
		noSpeech += v
	}
	n := float64(len(avgLogprobs))
	c := math.Exp(logprob/n) * (1 - noSpeech/n)
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= http.StatusInternalServerError ||
			apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
