package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const elevenLabsTTSEndpoint = "https://api.elevenlabs.io/v1/text-to-speech"

// ElevenLabsClient calls the ElevenLabs text-to-speech API. Implements
// the Vendor interface.
type ElevenLabsClient struct {
	apiKey string
	model  string
	client *http.Client
}

type elevenLabsRequest struct {
	Text          string             `json:"text"`
	ModelID       string             `json:"model_id"`
	VoiceSettings elevenLabsSettings `json:"voice_settings"`
}

type elevenLabsSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func NewElevenLabsClient(apiKey, model string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (el *ElevenLabsClient) Name() string { return "elevenlabs" }

// Synthesize returns MP3 audio for the text in the given voice.
func (el *ElevenLabsClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	payload, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: el.model,
		VoiceSettings: elevenLabsSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", elevenLabsTTSEndpoint, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", el.apiKey)

	resp, err := el.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("elevenlabs status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("elevenlabs returned empty audio")
	}
	return audio, nil
}
