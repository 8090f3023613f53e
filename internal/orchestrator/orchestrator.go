// Package orchestrator is the per-call controller: it initiates calls,
// answers the carrier's webhooks, and sequences the STT, dialog, and
// TTS subsystems for each callee turn.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/dc-engine/internal/audiostore"
	"github.com/snarg/dc-engine/internal/carrier"
	"github.com/snarg/dc-engine/internal/database"
	"github.com/snarg/dc-engine/internal/dialog"
	"github.com/snarg/dc-engine/internal/eventfeed"
	"github.com/snarg/dc-engine/internal/guard"
	"github.com/snarg/dc-engine/internal/jobqueue"
	"github.com/snarg/dc-engine/internal/metrics"
	"github.com/snarg/dc-engine/internal/stt"
	"github.com/snarg/dc-engine/internal/tts"
	"github.com/snarg/dc-engine/internal/vad"
)

// CallStore is the persistence surface the orchestrator uses. Satisfied
// by *database.DB.
type CallStore interface {
	GetClient(ctx context.Context, clientID string) (*database.Client, error)
	InsertCall(ctx context.Context, callID, clientID string) error
	SetCallSID(ctx context.Context, callID, sid string) error
	UpdateCallStatus(ctx context.Context, callID, status string, durationSec int) error
	AppendTurn(ctx context.Context, callID string, t database.Turn) error
	AppendRecording(ctx context.Context, callID string, r database.Recording) error
	AppendRecordingEvent(ctx context.Context, callID string, e database.RecordingEvent) error
	FinalizeCall(ctx context.Context, callID, reason string, res database.Result) error
}

// AudioPutter stores reply audio and returns carrier-fetchable URLs.
// Satisfied by *audiostore.Store.
type AudioPutter interface {
	Put(callID string, data []byte, kind string) (audiostore.PutResult, error)
}

// Config tunes the orchestrator.
type Config struct {
	ServerURL         string
	Language          string
	RecordMaxLength   int
	RecordTimeout     int
	ResponseTimeout   time.Duration
	RecordingTimeout  time.Duration
	// RecordingRetryBackoff is the base delay between recording
	// processing attempts; attempt n waits base * 2^n. Zero means one
	// second.
	RecordingRetryBackoff time.Duration
	TeardownGrace         time.Duration
	TeardownExtension     time.Duration
	RingTimeoutSecs       int
}

// Orchestrator coordinates all live calls.
type Orchestrator struct {
	cfg Config

	db      CallStore
	store   AudioPutter
	tts     *tts.Engine
	sttProv stt.Provider
	cls     *dialog.Classifier
	resp    *dialog.Responder
	script  *dialog.Script
	carrier carrier.Carrier
	feed    *eventfeed.Feed
	log     zerolog.Logger

	sessions *SessionMap
	sttQueue *jobqueue.Queue
	llmQueue *jobqueue.Queue
	ttsQueue *jobqueue.Queue
}

// QueueConfigs size the three shared worker pools.
type QueueConfigs struct {
	STT jobqueue.Config
	LLM jobqueue.Config
	TTS jobqueue.Config
}

type Deps struct {
	DB         CallStore
	Store      AudioPutter
	TTS        *tts.Engine
	STT        stt.Provider
	Classifier *dialog.Classifier
	Responder  *dialog.Responder
	Script     *dialog.Script
	Carrier    carrier.Carrier
	Feed       *eventfeed.Feed
}

func New(cfg Config, deps Deps, qc QueueConfigs, log zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		db:       deps.DB,
		store:    deps.Store,
		tts:      deps.TTS,
		sttProv:  deps.STT,
		cls:      deps.Classifier,
		resp:     deps.Responder,
		script:   deps.Script,
		carrier:  deps.Carrier,
		feed:     deps.Feed,
		log:      log.With().Str("component", "orchestrator").Logger(),
		sessions: NewSessionMap(),
	}
	o.sttQueue = jobqueue.New("stt", qc.STT, o.HandleSTTJob, log)
	o.llmQueue = jobqueue.New("llm", qc.LLM, o.HandleLLMJob, log)
	o.ttsQueue = jobqueue.New("tts", qc.TTS, o.HandleTTSJob, log)
	return o
}

// QueueDepths reports waiting jobs per queue, for the health endpoint.
func (o *Orchestrator) QueueDepths() map[string]int {
	return map[string]int{
		"stt": o.sttQueue.Depth(),
		"llm": o.llmQueue.Depth(),
		"tts": o.ttsQueue.Depth(),
	}
}

// ActiveSessions reports live call count.
func (o *Orchestrator) ActiveSessions() int { return o.sessions.Len() }

// InitiateResult is returned to the initiator API.
type InitiateResult struct {
	CallID     string `json:"call_id"`
	CallSID    string `json:"call_sid"`
	ClientName string `json:"client_name"`
	Phone      string `json:"phone"`
	Status     string `json:"status"`
}

// ErrClientNotFound maps to a 404 at the API layer.
var ErrClientNotFound = errors.New("client not found")

// Initiate places an outbound call to the client: session and Call
// record first, greeting synthesis at top priority, then the carrier
// dial so audio is usually ready before the callee picks up.
func (o *Orchestrator) Initiate(ctx context.Context, clientID string) (*InitiateResult, error) {
	client, err := o.db.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("load client: %w", err)
	}

	callID := uuid.NewString()
	sess := NewSession(callID, *client)
	o.sessions.Add(sess)

	if err := o.db.InsertCall(ctx, callID, clientID); err != nil {
		o.sessions.Remove(callID)
		return nil, fmt.Errorf("record call: %w", err)
	}

	greeting := o.script.Reply("greeting", clientInfo(*client))
	o.enqueueSynthesis(sess, greeting, "greeting", jobqueue.PriorityUrgent, false)

	sid, err := o.carrier.PlaceCall(ctx, carrier.PlaceParams{
		To:          client.Phone,
		WebhookURL:  o.twimlURL(callID),
		StatusURL:   o.cfg.ServerURL + "/webhooks/status/" + callID,
		TimeoutSecs: o.cfg.RingTimeoutSecs,
	})
	if err != nil {
		o.log.Error().Err(err).Str("call_id", callID).Msg("carrier dial failed")
		o.db.FinalizeCall(ctx, callID, "carrier_error", sess.Result())
		o.sessions.Remove(callID)
		return nil, fmt.Errorf("place call: %w", err)
	}

	sess.SetCallSID(sid)
	if err := o.db.SetCallSID(ctx, callID, sid); err != nil {
		o.log.Error().Err(err).Str("call_id", callID).Msg("persist call sid failed")
	}

	o.feed.Publish(eventfeed.Event{
		CallID: callID, CallSID: sid, ClientID: clientID, Kind: "initiated",
	})
	o.log.Info().Str("call_id", callID).Str("call_sid", sid).
		Str("client", client.Name).Msg("call initiated")

	return &InitiateResult{
		CallID:     callID,
		CallSID:    sid,
		ClientName: client.Name,
		Phone:      client.Phone,
		Status:     database.StatusInitiated,
	}, nil
}

// Markup answers the carrier's "what now?" poll. Always returns valid
// markup; unknown call ids get a safe hangup.
func (o *Orchestrator) Markup(callID string) string {
	sess := o.sessions.Get(callID)
	if sess == nil {
		o.log.Warn().Str("call_id", callID).Msg("markup request for unknown call")
		return Hangup()
	}

	pa := sess.PopAudio()
	if pa == nil {
		return WaitRedirect(o.twimlURL(callID), 2)
	}

	// Once the greeting goes out the dialog is live.
	if pa.Kind == "greeting" && sess.Stage() == dialog.StageStart {
		sess.SetStage(dialog.StageListening)
	}

	if pa.Terminal {
		if pa.Fallback {
			return SayHangup(pa.Text, pa.Voice, o.cfg.Language)
		}
		return PlayHangup(pa.URL)
	}

	rec := RecordOpts{
		Action:         o.cfg.ServerURL + "/webhooks/recording/" + callID,
		StatusCallback: o.cfg.ServerURL + "/webhooks/recording-status/" + callID,
		MaxLength:      o.cfg.RecordMaxLength,
		Timeout:        o.cfg.RecordTimeout,
	}
	if pa.Fallback {
		return SayRecord(pa.Text, pa.Voice, o.cfg.Language, rec)
	}
	return PlayRecord(pa.URL, rec)
}

// StatusUpdate is the carrier's lifecycle callback payload.
type StatusUpdate struct {
	CallStatus  string
	CallSID     string
	DurationSec int
}

// HandleStatus persists lifecycle transitions; terminal statuses start
// the delayed teardown.
func (o *Orchestrator) HandleStatus(ctx context.Context, callID string, u StatusUpdate) {
	status := normalizeCarrierStatus(u.CallStatus)
	if status == "" {
		o.log.Warn().Str("call_id", callID).Str("status", u.CallStatus).Msg("unknown carrier status")
		return
	}

	if err := o.db.UpdateCallStatus(ctx, callID, status, u.DurationSec); err != nil {
		o.log.Error().Err(err).Str("call_id", callID).Msg("status update failed")
	}
	if status == database.StatusInProgress {
		o.feed.Publish(eventfeed.Event{CallID: callID, CallSID: u.CallSID, Kind: "answered"})
	}

	if !database.IsTerminalStatus(status) {
		return
	}
	sess := o.sessions.Get(callID)
	if sess == nil || !sess.ScheduleTeardownOnce() {
		return
	}

	reason := statusEndReason(status)
	o.log.Info().Str("call_id", callID).Str("status", status).
		Dur("grace", o.cfg.TeardownGrace).Msg("terminal status, teardown scheduled")
	time.AfterFunc(o.cfg.TeardownGrace, func() { o.teardown(callID, reason) })
}

// teardown runs at the grace deadline. If recording processing is
// still in flight the deadline is pushed back exactly once.
func (o *Orchestrator) teardown(callID, reason string) {
	sess := o.sessions.Get(callID)
	if sess == nil {
		return
	}
	if sess.ProcessingRecording() && sess.ExtendTeardownOnce() {
		o.log.Info().Str("call_id", callID).
			Dur("extension", o.cfg.TeardownExtension).Msg("teardown deferred for recording processing")
		time.AfterFunc(o.cfg.TeardownExtension, func() { o.teardown(callID, reason) })
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.End(ctx, callID, reason); err != nil {
		o.log.Error().Err(err).Str("call_id", callID).Msg("teardown failed")
	}
}

// RecordingUpdate is the carrier's recording callback payload.
type RecordingUpdate struct {
	RecordingURL string
	DurationSec  float64
	Digits       string
}

// HandleRecording starts asynchronous processing of a finished
// recording. Returns immediately; the webhook response must not wait
// for inference. Re-entry while a previous recording is processing is
// a no-op.
func (o *Orchestrator) HandleRecording(callID string, u RecordingUpdate) {
	sess := o.sessions.Get(callID)
	if sess == nil {
		return
	}
	if u.RecordingURL == "" {
		return
	}
	if !sess.BeginRecording() {
		o.log.Debug().Str("call_id", callID).Msg("recording dropped, pipeline busy")
		return
	}

	backoff := o.cfg.RecordingRetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	go func() {
		defer sess.EndRecording()
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.RecordingTimeout)
		defer cancel()

		var lastErr error
		for attempt := 1; attempt <= 3; attempt++ {
			if lastErr = o.processRecording(ctx, sess, u); lastErr == nil {
				return
			}
			if ctx.Err() != nil {
				break
			}
			o.log.Warn().Err(lastErr).Str("call_id", callID).
				Int("attempt", attempt).Msg("recording processing failed")
			select {
			case <-time.After(backoff * (1 << attempt)):
			case <-ctx.Done():
			}
		}
		o.log.Error().Err(lastErr).Str("call_id", callID).Msg("recording processing abandoned")

		// The dialog cannot advance without the turn; end the call
		// rather than leave the callee on a dead line.
		sess.SetStage(dialog.StageError)
		if sess.ScheduleTeardownOnce() {
			time.AfterFunc(o.cfg.TeardownGrace, func() { o.teardown(callID, dialog.EndReasonError) })
		}
	}()
}

func (o *Orchestrator) processRecording(ctx context.Context, sess *Session, u RecordingUpdate) error {
	blob, err := o.carrier.DownloadRecording(ctx, u.RecordingURL)
	if err != nil {
		return fmt.Errorf("download recording: %w", err)
	}

	intent, text, err := o.runTurn(ctx, sess, blob, u.DurationSec)
	if err != nil {
		return err
	}

	dbCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.db.AppendRecording(dbCtx, sess.CallID, database.Recording{
		URL:           u.RecordingURL,
		Duration:      u.DurationSec,
		Transcription: text,
		Intent:        string(intent),
	}); err != nil {
		o.log.Error().Err(err).Str("call_id", sess.CallID).Msg("append recording failed")
	}
	return nil
}

// DeliverUtterance is the sink for VAD output on the realtime media
// path. Input arriving while a previous turn is in flight is dropped.
func (o *Orchestrator) DeliverUtterance(callID string, utt *vad.Utterance) {
	sess := o.sessions.Get(callID)
	if sess == nil {
		return
	}
	if !sess.TryBeginProcessing() {
		o.log.Debug().Str("call_id", callID).Msg("utterance dropped, pipeline busy")
		return
	}
	go func() {
		defer sess.EndProcessing()
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.RecordingTimeout)
		defer cancel()
		if _, _, err := o.runTurn(ctx, sess, utt.WAV, utt.Duration.Seconds()); err != nil {
			o.log.Error().Err(err).Str("call_id", callID).Msg("utterance processing failed")
		}
	}()
}

// runTurn is the STT → guard → classify → respond → TTS pipeline for
// one callee turn.
func (o *Orchestrator) runTurn(ctx context.Context, sess *Session, wav []byte, durationSec float64) (dialog.Intent, string, error) {
	stage := sess.Stage()
	if stage.IsTerminal() {
		return "", "", nil
	}

	metrics.STTRequestsTotal.Inc()
	sttJob, err := o.sttQueue.Enqueue(sess.CallID, wav, jobqueue.Options{Priority: jobqueue.PriorityNormal})
	if err != nil {
		return "", "", fmt.Errorf("enqueue stt: %w", err)
	}
	res, err := o.sttQueue.Await(ctx, sttJob)
	if err != nil {
		metrics.STTErrorsTotal.Inc()
		return "", "", fmt.Errorf("transcribe: %w", err)
	}
	tr := res.(*stt.Response)

	cls := guard.ClassifyUtterance(tr.Text, len(wav), durationSec, tr.Confidence)
	metrics.UtterancesTotal.WithLabelValues(string(cls.Verdict)).Inc()
	if !cls.IsReal() {
		o.handleNonSpeech(ctx, sess, cls, durationSec)
		return dialog.IntentSilence, tr.Text, nil
	}

	sess.Silence().Reset()
	calleeTurn := sess.AppendTurn("callee", tr.Text, "")
	o.persistTurn(sess.CallID, calleeTurn)

	// Classification and reply selection run on the LLM pool; the
	// session sits in waiting_response until the reply lands.
	sess.SetStage(dialog.StageWaitingResponse)
	llmJob, err := o.llmQueue.Enqueue(sess.CallID, &turnRequest{sess: sess, stage: stage, utterance: tr.Text}, jobqueue.Options{Priority: jobqueue.PriorityNormal})
	if err != nil {
		return "", "", fmt.Errorf("enqueue llm: %w", err)
	}
	out, err := o.llmQueue.Await(ctx, llmJob)
	if err != nil {
		return "", "", fmt.Errorf("classify and respond: %w", err)
	}
	turn := out.(*turnResult)

	agentTurn := sess.AppendTurn("agent", turn.reply.Text, turn.intent)
	o.persistTurn(sess.CallID, agentTurn)
	sess.SetStage(turn.reply.NextStage)

	if turn.reply.EndReason == dialog.EndReasonAgreement {
		sess.MarkAgreement()
	} else if turn.intent == dialog.IntentPositive && turn.reply.NextStage == dialog.StagePaymentDiscussion {
		sess.MarkAgreement()
	}

	o.feed.Publish(eventfeed.Event{
		CallID: sess.CallID, Kind: "turn",
		Stage:  string(turn.reply.NextStage),
		Intent: string(turn.intent),
		Text:   tr.Text,
	})

	terminal := turn.reply.NextStage.IsTerminal()
	if turn.reply.Text != "" {
		o.enqueueSynthesis(sess, turn.reply.Text, "response", toQueuePriority(turn.reply.Priority), terminal)
	}
	if terminal {
		// The farewell markup hangs up; finalize after the audio had a
		// chance to play.
		reason := turn.reply.EndReason
		time.AfterFunc(o.cfg.TeardownGrace, func() { o.teardown(sess.CallID, reason) })
	}
	return turn.intent, tr.Text, nil
}

// handleNonSpeech routes hallucinations and silences through the
// silence policy.
func (o *Orchestrator) handleNonSpeech(ctx context.Context, sess *Session, cls guard.Classification, durationSec float64) {
	tracker := sess.Silence()
	tracker.RecordSilence(time.Duration(durationSec * float64(time.Second)))

	p := guard.Decide(tracker, cls, sess.Stage() == dialog.StageNegotiation)
	o.log.Debug().Str("call_id", sess.CallID).Str("verdict", string(cls.Verdict)).
		Str("action", string(p.Action)).Str("reason", cls.Reason).Msg("non-speech input")

	switch {
	case p.Action == guard.ActionIgnore:
		return
	case !p.ShouldContinue:
		if p.Reply != "" {
			o.enqueueSynthesis(sess, p.Reply, "farewell", jobqueue.PriorityUrgent, true)
		}
		time.AfterFunc(o.cfg.TeardownGrace, func() { o.teardown(sess.CallID, dialog.EndReasonAbandoned) })
	case p.Reply != "":
		o.enqueueSynthesis(sess, p.Reply, "silence_response", jobqueue.PriorityNormal, false)
	}
}

// turnRequest/turnResult are the LLM queue payloads. The stage is
// captured when the callee turn arrives, before the session moves to
// waiting_response.
type turnRequest struct {
	sess      *Session
	stage     dialog.Stage
	utterance string
}

type turnResult struct {
	intent dialog.Intent
	reply  dialog.Reply
}

// HandleLLMJob is the LLM queue handler.
func (o *Orchestrator) HandleLLMJob(ctx context.Context, job *jobqueue.Job) (any, error) {
	req := job.Payload.(*turnRequest)
	sess := req.sess

	stage := req.stage
	history := sess.HistoryTexts()
	intent := o.cls.Classify(ctx, req.utterance, stage, history)
	repeat := sess.Repeat(stage, intent)

	reply := o.resp.Select(ctx, dialog.TurnContext{
		Stage:     stage,
		Utterance: req.utterance,
		Repeat:    repeat,
		History:   history,
		Client:    clientInfo(sess.Client),
	}, intent)
	return &turnResult{intent: intent, reply: reply}, nil
}

// HandleSTTJob is the STT queue handler.
func (o *Orchestrator) HandleSTTJob(ctx context.Context, job *jobqueue.Job) (any, error) {
	return o.sttProv.Transcribe(ctx, job.Payload.([]byte))
}

// synthRequest is the TTS queue payload.
type synthRequest struct {
	sess     *Session
	text     string
	kind     string
	terminal bool
}

// HandleTTSJob is the TTS queue handler: synthesize, store, and hand
// the pending audio to the session.
func (o *Orchestrator) HandleTTSJob(ctx context.Context, job *jobqueue.Job) (any, error) {
	req := job.Payload.(*synthRequest)
	res := o.tts.Synthesize(ctx, req.text, tts.Options{AllowCache: true})

	pa := &PendingAudio{Kind: req.kind, Terminal: req.terminal}
	switch res.Source {
	case tts.SourceCache:
		pa.URL = res.URL
	case tts.SourcePrimary:
		put, err := o.store.Put(req.sess.CallID, res.Audio, req.kind)
		if err != nil {
			return nil, fmt.Errorf("store audio: %w", err)
		}
		pa.URL = put.URL
	default:
		pa.Fallback = true
		pa.Text = res.Text
		pa.Voice = res.Voice
	}

	req.sess.PushAudio(pa)
	return pa, nil
}

func (o *Orchestrator) enqueueSynthesis(sess *Session, text, kind string, prio jobqueue.Priority, terminal bool) {
	// Turn replies are recorded by runTurn together with their intent.
	// Everything else the agent says (greeting, silence prompts,
	// farewells) is recorded here, so the history always opens with the
	// agent and alternates speaker by speaker.
	if kind != "response" {
		o.persistTurn(sess.CallID, sess.AppendTurn("agent", text, ""))
	}
	_, err := o.ttsQueue.Enqueue(sess.CallID, &synthRequest{
		sess:     sess,
		text:     text,
		kind:     kind,
		terminal: terminal,
	}, jobqueue.Options{Priority: prio})
	if err != nil {
		o.log.Error().Err(err).Str("call_id", sess.CallID).Msg("enqueue synthesis failed")
	}
}

// HandleRecordingStatus appends to the recording audit trail.
func (o *Orchestrator) HandleRecordingStatus(ctx context.Context, callID, status, sid, url string) {
	err := o.db.AppendRecordingEvent(ctx, callID, database.RecordingEvent{
		Timestamp: time.Now().UTC(),
		Status:    status,
		SID:       sid,
		URL:       url,
	})
	if err != nil {
		o.log.Error().Err(err).Str("call_id", callID).Msg("append recording event failed")
	}
}

// End finalizes a call: persists terminal state, notifies the feed,
// and destroys the session. Idempotent; a second call is a no-op.
func (o *Orchestrator) End(ctx context.Context, callID, reason string) error {
	sess := o.sessions.Remove(callID)
	if sess == nil || !sess.MarkEnded() {
		return nil
	}

	if sid := sess.CallSID(); sid != "" {
		if err := o.carrier.Hangup(ctx, sid); err != nil {
			// The carrier may have already closed the call.
			o.log.Debug().Err(err).Str("call_id", callID).Msg("carrier hangup")
		}
	}

	if err := o.db.FinalizeCall(ctx, callID, reason, sess.Result()); err != nil {
		return fmt.Errorf("finalize call: %w", err)
	}

	o.feed.Publish(eventfeed.Event{
		CallID:    callID,
		CallSID:   sess.CallSID(),
		ClientID:  sess.Client.ID,
		Kind:      "completed",
		Stage:     string(sess.Stage()),
		EndReason: reason,
	})
	o.log.Info().Str("call_id", callID).Str("reason", reason).Msg("call ended")
	return nil
}

// Shutdown ends every active call with reason server_shutdown, then
// drains the worker pools.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	for _, sess := range o.sessions.All() {
		if err := o.End(ctx, sess.CallID, "server_shutdown"); err != nil {
			o.log.Error().Err(err).Str("call_id", sess.CallID).Msg("shutdown end failed")
		}
	}
	o.sttQueue.Stop()
	o.llmQueue.Stop()
	o.ttsQueue.Stop()
}

func (o *Orchestrator) persistTurn(callID string, t database.Turn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.db.AppendTurn(ctx, callID, t); err != nil {
		o.log.Error().Err(err).Str("call_id", callID).Msg("persist turn failed")
	}
}

func (o *Orchestrator) twimlURL(callID string) string {
	return o.cfg.ServerURL + "/webhooks/twiml/" + callID
}

func clientInfo(c database.Client) dialog.ClientInfo {
	return dialog.ClientInfo{
		Name:       c.Name,
		Company:    c.Company,
		Contract:   c.ContractNumber,
		DebtAmount: c.DebtAmount,
	}
}

// normalizeCarrierStatus maps carrier status strings to persisted
// statuses. Unknown strings map to "".
func normalizeCarrierStatus(s string) string {
	switch s {
	case "queued", "initiated":
		return database.StatusInitiated
	case "ringing":
		return database.StatusRinging
	case "answered":
		return database.StatusAnswered
	case "in-progress":
		return database.StatusInProgress
	case "completed":
		return database.StatusCompleted
	case "busy":
		return database.StatusBusy
	case "no-answer":
		return database.StatusNoAnswer
	case "failed":
		return database.StatusFailed
	case "canceled":
		return database.StatusCanceled
	}
	return ""
}

func statusEndReason(status string) string {
	switch status {
	case database.StatusCompleted:
		return "completed"
	default:
		return status
	}
}

func toQueuePriority(p dialog.Priority) jobqueue.Priority {
	switch p {
	case dialog.PriorityUrgent:
		return jobqueue.PriorityUrgent
	case dialog.PriorityLow:
		return jobqueue.PriorityLow
	default:
		return jobqueue.PriorityNormal
	}
}
