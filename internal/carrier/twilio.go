package carrier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Twilio implements Carrier over the Twilio REST API.
type Twilio struct {
	client     *twilio.RestClient
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewTwilio(accountSID, authToken, from string, log zerolog.Logger) *Twilio {
	return &Twilio{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("component", "carrier").Logger(),
	}
}

func (t *Twilio) PlaceCall(ctx context.Context, p PlaceParams) (string, error) {
	params := &twilioapi.CreateCallParams{}
	params.SetTo(p.To)
	params.SetFrom(t.from)
	params.SetUrl(p.WebhookURL)
	params.SetMethod(http.MethodPost)
	params.SetStatusCallback(p.StatusURL)
	params.SetStatusCallbackMethod(http.MethodPost)
	params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	if p.TimeoutSecs > 0 {
		params.SetTimeout(p.TimeoutSecs)
	}

	resp, err := t.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("create call: %w", err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("create call: carrier returned no sid")
	}
	t.log.Info().Str("call_sid", *resp.Sid).Str("to", p.To).Msg("call placed")
	return *resp.Sid, nil
}

func (t *Twilio) Hangup(ctx context.Context, callSID string) error {
	params := &twilioapi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := t.client.Api.UpdateCall(callSID, params); err != nil {
		return fmt.Errorf("hangup %s: %w", callSID, err)
	}
	return nil
}

// DownloadRecording fetches recording audio as WAV. Twilio serves the
// media at the recording URL plus an extension, behind basic auth.
func (t *Twilio) DownloadRecording(ctx context.Context, recordingURL string) ([]byte, error) {
	url := recordingURL
	if !strings.HasSuffix(url, ".wav") && !strings.HasSuffix(url, ".mp3") {
		url += ".wav"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch recording: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	return data, nil
}
