package orchestrator

import (
	"sync"
	"time"

	"github.com/snarg/dc-engine/internal/database"
	"github.com/snarg/dc-engine/internal/dialog"
	"github.com/snarg/dc-engine/internal/guard"
	"github.com/snarg/dc-engine/internal/metrics"
)

// PendingAudio is a one-shot handoff of ready-to-play audio from the
// synthesis pipeline to the markup responder. Consumed exactly once, in
// insertion order.
type PendingAudio struct {
	URL       string // set for cache/primary sources
	Text      string // set for fallback source
	Voice     string // fallback carrier voice
	Fallback  bool
	Kind      string // greeting, response, silence_response, farewell
	Terminal  bool   // hang up after playing
	CreatedAt time.Time
}

// Session is the volatile per-call dialog state. It lives from initiate
// to terminal status and is owned by the orchestrator.
type Session struct {
	CallID string
	Client database.Client

	mu                  sync.Mutex
	callSID             string
	stage               dialog.Stage
	history             []database.Turn
	repeats             map[string]int
	silence             guard.Tracker
	pending             []*PendingAudio
	isProcessing        bool
	processingRecording bool
	teardownExtended    bool
	teardownScheduled   bool
	lastActivity        time.Time
	result              database.Result
	ended               bool
}

func NewSession(callID string, client database.Client) *Session {
	return &Session{
		CallID:       callID,
		Client:       client,
		stage:        dialog.StageStart,
		repeats:      make(map[string]int),
		lastActivity: time.Now(),
	}
}

func (s *Session) SetCallSID(sid string) {
	s.mu.Lock()
	s.callSID = sid
	s.mu.Unlock()
}

func (s *Session) CallSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callSID
}

func (s *Session) Stage() dialog.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *Session) SetStage(st dialog.Stage) {
	s.mu.Lock()
	s.stage = st
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Repeat returns how many times this (stage, intent) pair has already
// occurred, then increments the counter.
func (s *Session) Repeat(stage dialog.Stage, intent dialog.Intent) int {
	key := string(stage) + "|" + string(intent)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.repeats[key]
	s.repeats[key] = n + 1
	return n
}

// AppendTurn records one conversation turn and returns it with the
// timestamp filled in.
func (s *Session) AppendTurn(speaker, text string, intent dialog.Intent) database.Turn {
	turn := database.Turn{
		Timestamp: time.Now().UTC(),
		Speaker:   speaker,
		Text:      text,
		Intent:    string(intent),
	}
	s.mu.Lock()
	// Timestamps must be strictly increasing within a call.
	if n := len(s.history); n > 0 && !turn.Timestamp.After(s.history[n-1].Timestamp) {
		turn.Timestamp = s.history[n-1].Timestamp.Add(time.Microsecond)
	}
	s.history = append(s.history, turn)
	s.lastActivity = time.Now()
	s.mu.Unlock()
	return turn
}

// HistoryTexts renders recent turns as "speaker: text" lines for model
// prompts.
func (s *Session) HistoryTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.history))
	for i, t := range s.history {
		out[i] = t.Speaker + ": " + t.Text
	}
	return out
}

// Silence exposes the per-call silence tracker. Callers must hold the
// processing guard while using it.
func (s *Session) Silence() *guard.Tracker { return &s.silence }

// TryBeginProcessing claims the single inference pipeline slot. A false
// return means a previous turn is still in flight and the new input
// must be dropped.
func (s *Session) TryBeginProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isProcessing || s.ended {
		return false
	}
	s.isProcessing = true
	return true
}

func (s *Session) EndProcessing() {
	s.mu.Lock()
	s.isProcessing = false
	s.mu.Unlock()
}

// BeginRecording additionally raises the recording guard that defers
// teardown.
func (s *Session) BeginRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isProcessing || s.ended {
		return false
	}
	s.isProcessing = true
	s.processingRecording = true
	return true
}

func (s *Session) EndRecording() {
	s.mu.Lock()
	s.isProcessing = false
	s.processingRecording = false
	s.mu.Unlock()
}

func (s *Session) ProcessingRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processingRecording
}

// ExtendTeardownOnce reports whether the teardown deadline may be
// extended; it flips to false after the first grant.
func (s *Session) ExtendTeardownOnce() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.teardownExtended {
		return false
	}
	s.teardownExtended = true
	return true
}

// ScheduleTeardownOnce reports whether this caller is the one to start
// the teardown timer.
func (s *Session) ScheduleTeardownOnce() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.teardownScheduled {
		return false
	}
	s.teardownScheduled = true
	return true
}

// PushAudio queues audio for the markup responder.
func (s *Session) PushAudio(pa *PendingAudio) {
	pa.CreatedAt = time.Now()
	s.mu.Lock()
	s.pending = append(s.pending, pa)
	s.mu.Unlock()
}

// PopAudio consumes the oldest pending audio, or nil when none is
// ready. An entry is never returned twice.
func (s *Session) PopAudio() *PendingAudio {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	pa := s.pending[0]
	s.pending = s.pending[1:]
	return pa
}

// MarkAgreement records the debtor's consent in the result summary.
func (s *Session) MarkAgreement() {
	s.mu.Lock()
	s.result.Agreement = true
	s.mu.Unlock()
}

func (s *Session) SetResultNotes(notes string) {
	s.mu.Lock()
	s.result.Notes = notes
	s.mu.Unlock()
}

func (s *Session) Result() database.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// MarkEnded flips the session to ended exactly once; the first caller
// gets true and performs finalization.
func (s *Session) MarkEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	s.ended = true
	return true
}

// SessionMap tracks live sessions by call id.
type SessionMap struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionMap() *SessionMap {
	return &SessionMap{sessions: make(map[string]*Session)}
}

func (m *SessionMap) Add(s *Session) {
	m.mu.Lock()
	m.sessions[s.CallID] = s
	m.mu.Unlock()
	metrics.ActiveCalls.Inc()
}

func (m *SessionMap) Get(callID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[callID]
}

// Remove deletes and returns the session, or nil when already gone.
func (m *SessionMap) Remove(callID string) *Session {
	m.mu.Lock()
	s, ok := m.sessions[callID]
	if ok {
		delete(m.sessions, callID)
	}
	m.mu.Unlock()
	if ok {
		metrics.ActiveCalls.Dec()
		return s
	}
	return nil
}

func (m *SessionMap) All() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

func (m *SessionMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
