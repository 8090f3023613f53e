// Package carrier places and controls telephone calls through the
// telephony provider's REST API.
package carrier

import "context"

// PlaceParams describes one outbound call.
type PlaceParams struct {
	To          string
	WebhookURL  string // answers with dialog markup
	StatusURL   string // receives lifecycle callbacks
	TimeoutSecs int    // ring timeout
}

// Carrier is the telephony control surface the orchestrator needs.
type Carrier interface {
	// PlaceCall starts an outbound call and returns the carrier's call
	// sid.
	PlaceCall(ctx context.Context, p PlaceParams) (string, error)
	// Hangup terminates a live call by sid.
	Hangup(ctx context.Context, callSID string) error
	// DownloadRecording fetches a completed recording's audio.
	DownloadRecording(ctx context.Context, recordingURL string) ([]byte, error)
}
