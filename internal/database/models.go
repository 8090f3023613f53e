package database

import "time"

// Call lifecycle statuses. Terminal statuses freeze the record.
const (
	StatusInitiated  = "initiated"
	StatusRinging    = "ringing"
	StatusAnswered   = "answered"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusBusy       = "busy"
	StatusNoAnswer   = "no-answer"
	StatusCanceled   = "canceled"
)

// IsTerminalStatus reports whether a call status admits no further
// lifecycle transitions.
func IsTerminalStatus(s string) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer, StatusCanceled:
		return true
	}
	return false
}

// Client is a debtor record the dialer calls.
type Client struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	Company        string    `json:"company"`
	DebtAmount     float64   `json:"debt_amount"`
	ContractNumber string    `json:"contract_number"`
	CreatedAt      time.Time `json:"created_at"`
}

// Turn is one contiguous utterance by one speaker.
type Turn struct {
	Timestamp time.Time `json:"timestamp"`
	Speaker   string    `json:"speaker"` // "agent" or "callee"
	Text      string    `json:"text"`
	Intent    string    `json:"intent,omitempty"`
}

// Recording is one callee recording processed during the call.
type Recording struct {
	URL           string  `json:"url"`
	Duration      float64 `json:"duration_sec"`
	Transcription string  `json:"transcription"`
	Intent        string  `json:"intent"`
}

// RecordingEvent is an audit-trail entry from the carrier's
// recording-status callbacks.
type RecordingEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	SID       string    `json:"sid,omitempty"`
	URL       string    `json:"url,omitempty"`
}

// Result is the outcome summary of a finished call.
type Result struct {
	Agreement       bool    `json:"agreement"`
	PromisedPayment float64 `json:"promised_payment,omitempty"`
	NextContactDate string  `json:"next_contact_date,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

// Call is the persisted record of one outbound voice session.
type Call struct {
	ID              string           `json:"id"`
	ClientID        string           `json:"client_id"`
	CallSID         string           `json:"call_sid"`
	Status          string           `json:"status"`
	StartedAt       time.Time        `json:"started_at"`
	AnsweredAt      *time.Time       `json:"answered_at,omitempty"`
	EndedAt         *time.Time       `json:"ended_at,omitempty"`
	DurationSec     int              `json:"duration_sec"`
	EndReason       string           `json:"end_reason,omitempty"`
	History         []Turn           `json:"history"`
	Result          Result           `json:"result"`
	Recordings      []Recording      `json:"recordings"`
	RecordingEvents []RecordingEvent `json:"recording_events"`
}
