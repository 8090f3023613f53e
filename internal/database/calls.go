package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("not found")

// InsertCall creates the call record at initiation time.
func (db *DB) InsertCall(ctx context.Context, callID, clientID string) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO calls (id, client_id) VALUES ($1, $2)`,
		callID, clientID)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

// SetCallSID stores the carrier-assigned SID once the call is placed.
func (db *DB) SetCallSID(ctx context.Context, callID, sid string) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE calls SET call_sid = $2 WHERE id = $1`, callID, sid)
	return err
}

// UpdateCallStatus records a lifecycle transition. Terminal records are
// frozen: a call already in a terminal status is never mutated again.
// Timestamps are kept non-decreasing (started <= answered <= ended).
func (db *DB) UpdateCallStatus(ctx context.Context, callID, status string, durationSec int) error {
	now := time.Now().UTC()

	q := `UPDATE calls SET status = $2`
	args := []any{callID, status}

	switch {
	case status == StatusAnswered || status == StatusInProgress:
		q += `, answered_at = COALESCE(answered_at, GREATEST(started_at, $3))`
		args = append(args, now)
	case IsTerminalStatus(status):
		q += `, ended_at = GREATEST(started_at, COALESCE(answered_at, started_at), $3), duration_sec = $4`
		args = append(args, now, durationSec)
	}

	q += ` WHERE id = $1 AND status NOT IN ('completed','failed','busy','no-answer','canceled')`

	_, err := db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update call status: %w", err)
	}
	return nil
}

// AppendTurn appends one conversation turn to the call history.
func (db *DB) AppendTurn(ctx context.Context, callID string, t Turn) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(ctx,
		`UPDATE calls SET history = history || $2::jsonb WHERE id = $1`,
		callID, string(b))
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// AppendRecording appends a processed recording to the call record.
func (db *DB) AppendRecording(ctx context.Context, callID string, r Recording) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(ctx,
		`UPDATE calls SET recordings = recordings || $2::jsonb WHERE id = $1`,
		callID, string(b))
	if err != nil {
		return fmt.Errorf("append recording: %w", err)
	}
	return nil
}

// AppendRecordingEvent appends a carrier recording-status event to the
// audit trail.
func (db *DB) AppendRecordingEvent(ctx context.Context, callID string, e RecordingEvent) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(ctx,
		`UPDATE calls SET recording_events = recording_events || $2::jsonb WHERE id = $1`,
		callID, string(b))
	if err != nil {
		return fmt.Errorf("append recording event: %w", err)
	}
	return nil
}

// FinalizeCall persists the end reason and result summary and forces a
// terminal status if the carrier never delivered one.
func (db *DB) FinalizeCall(ctx context.Context, callID, reason string, res Result) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(ctx,
		`UPDATE calls SET
		    end_reason = $2,
		    result = $3::jsonb,
		    status = CASE WHEN status IN ('completed','failed','busy','no-answer','canceled')
		                  THEN status ELSE 'completed' END,
		    ended_at = COALESCE(ended_at, GREATEST(started_at, COALESCE(answered_at, started_at), now()))
		 WHERE id = $1`,
		callID, reason, string(b))
	if err != nil {
		return fmt.Errorf("finalize call: %w", err)
	}
	return nil
}

// GetCall loads a full call record.
func (db *DB) GetCall(ctx context.Context, callID string) (*Call, error) {
	var c Call
	var history, result, recordings, events []byte

	err := db.Pool.QueryRow(ctx,
		`SELECT id, client_id, call_sid, status, started_at, answered_at, ended_at,
		        duration_sec, end_reason, history, result, recordings, recording_events
		 FROM calls WHERE id = $1`, callID).
		Scan(&c.ID, &c.ClientID, &c.CallSID, &c.Status, &c.StartedAt, &c.AnsweredAt,
			&c.EndedAt, &c.DurationSec, &c.EndReason, &history, &result, &recordings, &events)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get call: %w", err)
	}

	if err := json.Unmarshal(history, &c.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if err := json.Unmarshal(result, &c.Result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if err := json.Unmarshal(recordings, &c.Recordings); err != nil {
		return nil, fmt.Errorf("decode recordings: %w", err)
	}
	if err := json.Unmarshal(events, &c.RecordingEvents); err != nil {
		return nil, fmt.Errorf("decode recording events: %w", err)
	}
	return &c, nil
}
