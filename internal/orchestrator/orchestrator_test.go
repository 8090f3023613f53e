package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/dc-engine/internal/audiostore"
	"github.com/snarg/dc-engine/internal/carrier"
	"github.com/snarg/dc-engine/internal/database"
	"github.com/snarg/dc-engine/internal/dialog"
	"github.com/snarg/dc-engine/internal/jobqueue"
	"github.com/snarg/dc-engine/internal/phrasecache"
	"github.com/snarg/dc-engine/internal/stt"
	"github.com/snarg/dc-engine/internal/tts"
)

// ── fakes ──

type fakeDB struct {
	mu        sync.Mutex
	clients   map[string]*database.Client
	turns     map[string][]database.Turn
	statuses  map[string][]string
	finalized map[string]finalized
	records   map[string][]database.Recording
	events    map[string][]database.RecordingEvent
}

type finalized struct {
	reason string
	result database.Result
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		clients:   map[string]*database.Client{},
		turns:     map[string][]database.Turn{},
		statuses:  map[string][]string{},
		finalized: map[string]finalized{},
		records:   map[string][]database.Recording{},
		events:    map[string][]database.RecordingEvent{},
	}
}

func (f *fakeDB) GetClient(_ context.Context, id string) (*database.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return c, nil
}

func (f *fakeDB) InsertCall(_ context.Context, callID, clientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[callID] = append(f.statuses[callID], database.StatusInitiated)
	return nil
}

func (f *fakeDB) SetCallSID(_ context.Context, callID, sid string) error { return nil }

func (f *fakeDB) UpdateCallStatus(_ context.Context, callID, status string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[callID] = append(f.statuses[callID], status)
	return nil
}

func (f *fakeDB) AppendTurn(_ context.Context, callID string, t database.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns[callID] = append(f.turns[callID], t)
	return nil
}

func (f *fakeDB) AppendRecording(_ context.Context, callID string, r database.Recording) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[callID] = append(f.records[callID], r)
	return nil
}

func (f *fakeDB) AppendRecordingEvent(_ context.Context, callID string, e database.RecordingEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[callID] = append(f.events[callID], e)
	return nil
}

func (f *fakeDB) FinalizeCall(_ context.Context, callID, reason string, res database.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, done := f.finalized[callID]; done {
		return fmt.Errorf("finalized twice")
	}
	f.finalized[callID] = finalized{reason: reason, result: res}
	return nil
}

func (f *fakeDB) turnsFor(callID string) []database.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]database.Turn, len(f.turns[callID]))
	copy(out, f.turns[callID])
	return out
}

func (f *fakeDB) finalizedFor(callID string) (finalized, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fin, ok := f.finalized[callID]
	return fin, ok
}

type fakeCarrier struct {
	mu        sync.Mutex
	placed    int
	hangups   []string
	recording []byte
	dialErr   error
	dlErr     error
}

func (f *fakeCarrier) PlaceCall(_ context.Context, _ carrier.PlaceParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dialErr != nil {
		return "", f.dialErr
	}
	f.placed++
	return fmt.Sprintf("CA%04d", f.placed), nil
}

func (f *fakeCarrier) Hangup(_ context.Context, sid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hangups = append(f.hangups, sid)
	return nil
}

func (f *fakeCarrier) DownloadRecording(_ context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dlErr != nil {
		return nil, f.dlErr
	}
	return f.recording, nil
}

type fakeAudio struct {
	mu   sync.Mutex
	puts int
}

func (f *fakeAudio) Put(callID string, _ []byte, kind string) (audiostore.PutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	return audiostore.PutResult{
		URL: fmt.Sprintf("http://host/audio/temp/%s-%s-%d.mp3", kind, callID, f.puts),
		ID:  fmt.Sprintf("%d", f.puts),
	}, nil
}

type fakeSTT struct {
	mu   sync.Mutex
	text string
}

func (f *fakeSTT) Name() string { return "fake" }

func (f *fakeSTT) Transcribe(_ context.Context, wav []byte) (*stt.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &stt.Response{Text: f.text, Duration: 3}, nil
}

func (f *fakeSTT) setText(s string) {
	f.mu.Lock()
	f.text = s
	f.mu.Unlock()
}

type fakeTTSVendor struct{ fail bool }

func (f *fakeTTSVendor) Name() string { return "fake" }

func (f *fakeTTSVendor) Synthesize(_ context.Context, _, _ string) ([]byte, error) {
	if f.fail {
		return nil, errors.New("vendor down")
	}
	return []byte("mp3"), nil
}

type memCacheStore struct {
	mu    sync.Mutex
	files map[string]bool
}

func (m *memCacheStore) PutCached(key string, _ []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = map[string]bool{}
	}
	m.files[key] = true
	return "http://host/audio/cache/" + key + ".mp3", nil
}

func (m *memCacheStore) CachedURL(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[key] {
		return "http://host/audio/cache/" + key + ".mp3"
	}
	return ""
}

// ── harness ──

func writeTestScript(t *testing.T) string {
	t.Helper()
	data := map[string]any{
		"replies": map[string]string{
			"greeting":           "Здравствуйте, {clientName}! Вас беспокоит {company} по долгу {amount} рублей.",
			"identification":     "Скажите, я говорю с {clientName}?",
			"clarify":            "Уточните, пожалуйста, ваш ответ по задолженности.",
			"payment_discussion": "Отлично! Давайте обсудим детали погашения долга на {amount} рублей.",
			"agreement_close":    "Спасибо, ваша готовность оплатить долг зафиксирована.",
			"negotiation":        "Возможно, вам удобнее оплатить часть долга, {partialAmount} рублей?",
			"negotiation_offer":  "Какая сумма платежа была бы посильной?",
			"de_escalation":      "Моя задача помочь вам решить вопрос с задолженностью.",
			"escalation":         "Долг {amount} рублей остаётся непогашенным.",
			"final_warning":      "Это последнее предупреждение по оплате долга.",
			"hangup_farewell":    "Спасибо за разговор. До свидания.",
			"refused_close":      "Ваш отказ от оплаты долга зафиксирован.",
			"abandoned_close":    "Я вас не слышу, мы свяжемся позже.",
		},
		"critical_keywords": []string{"суд"},
		"forbidden_words":   []string{"идиот"},
		"fallback":          "Извините, повторите, пожалуйста. Речь о вашей задолженности.",
		"max_reply_length":  200,
	}
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "script.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type harness struct {
	orc     *Orchestrator
	db      *fakeDB
	carrier *fakeCarrier
	sttProv *fakeSTT
	vendor  *fakeTTSVendor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zerolog.Nop()

	db := newFakeDB()
	db.clients["client-1"] = &database.Client{
		ID: "client-1", Name: "Иван Петров", Phone: "+79001234567",
		Company: "Финанс Групп", DebtAmount: 50000,
	}

	script, err := dialog.LoadScript(writeTestScript(t), log)
	if err != nil {
		t.Fatal(err)
	}

	vendor := &fakeTTSVendor{}
	cache := phrasecache.New(&memCacheStore{}, 16, log)
	engine := tts.NewEngine(vendor, cache, tts.EngineConfig{
		Voice:         "voice-1",
		FallbackVoice: "Polly.Tatyana",
		MaxAttempts:   1,
		Timeout:       time.Second,
	}, log)

	sttProv := &fakeSTT{text: "Да, согласен заплатить"}
	car := &fakeCarrier{recording: make([]byte, 48000)}

	cfg := Config{
		ServerURL:             "http://host",
		Language:              "ru-RU",
		ResponseTimeout:       time.Second,
		RecordingTimeout:      10 * time.Second,
		RecordingRetryBackoff: time.Millisecond,
		TeardownGrace:         200 * time.Millisecond,
		TeardownExtension:     200 * time.Millisecond,
	}
	qc := jobqueue.Config{Workers: 2, DefaultAttempts: 1, BackoffBase: time.Millisecond, WarnDepth: 100}

	orc := New(cfg, Deps{
		DB:         db,
		Store:      &fakeAudio{},
		TTS:        engine,
		STT:        sttProv,
		Classifier: dialog.NewClassifier(nil, "", time.Second, log),
		Responder:  dialog.NewResponder(nil, script, "", 150, time.Second, log),
		Script:     script,
		Carrier:    car,
	}, QueueConfigs{STT: qc, LLM: qc, TTS: qc}, log)
	t.Cleanup(func() { orc.Shutdown(context.Background()) })

	return &harness{orc: orc, db: db, carrier: car, sttProv: sttProv, vendor: vendor}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// markupAfterAudio polls the markup endpoint until reply audio is
// ready, skipping wait/redirect answers.
func (h *harness) markupAfterAudio(t *testing.T, callID string) string {
	t.Helper()
	var m string
	waitFor(t, "pending audio", func() bool {
		m = h.orc.Markup(callID)
		return !strings.Contains(m, "<Redirect")
	})
	return m
}

// ── tests ──

func TestInitiatePlaysGreetingThenRecords(t *testing.T) {
	h := newHarness(t)

	res, err := h.orc.Initiate(context.Background(), "client-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.CallSID != "CA0001" || res.ClientName != "Иван Петров" {
		t.Fatalf("result = %+v", res)
	}

	m := h.markupAfterAudio(t, res.CallID)
	if !strings.Contains(m, "<Play>") {
		t.Fatalf("greeting markup = %s", m)
	}
	if !strings.Contains(m, "/webhooks/recording/"+res.CallID) {
		t.Fatalf("record action missing: %s", m)
	}
	if got := h.orc.sessions.Get(res.CallID).Stage(); got != dialog.StageListening {
		t.Errorf("stage after greeting = %s, want listening", got)
	}
}

func TestInitiateUnknownClient(t *testing.T) {
	h := newHarness(t)
	if _, err := h.orc.Initiate(context.Background(), "nope"); !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestMarkupUnknownCallHangsUp(t *testing.T) {
	h := newHarness(t)
	if m := h.orc.Markup("ghost"); m != Hangup() {
		t.Errorf("markup = %s", m)
	}
}

func TestPositiveFlow(t *testing.T) {
	h := newHarness(t)
	res, _ := h.orc.Initiate(context.Background(), "client-1")
	h.markupAfterAudio(t, res.CallID) // greeting consumed, stage listening

	h.orc.HandleRecording(res.CallID, RecordingUpdate{
		RecordingURL: "https://api.example.com/rec/RE1",
		DurationSec:  3,
	})

	waitFor(t, "agent reply turn", func() bool { return len(h.db.turnsFor(res.CallID)) >= 3 })
	turns := h.db.turnsFor(res.CallID)
	if turns[0].Speaker != "agent" || !strings.Contains(turns[0].Text, "Здравствуйте, Иван Петров") {
		t.Fatalf("greeting turn = %+v", turns[0])
	}
	if turns[1].Speaker != "callee" || turns[1].Text != "Да, согласен заплатить" {
		t.Fatalf("callee turn = %+v", turns[1])
	}
	want := "Отлично! Давайте обсудим детали погашения долга на 50000 рублей."
	if turns[2].Speaker != "agent" || turns[2].Text != want {
		t.Fatalf("agent turn = %+v", turns[2])
	}
	if turns[2].Intent != string(dialog.IntentPositive) {
		t.Errorf("intent = %s", turns[2].Intent)
	}

	sess := h.orc.sessions.Get(res.CallID)
	waitFor(t, "stage update", func() bool { return sess.Stage() == dialog.StagePaymentDiscussion })

	if err := h.orc.End(context.Background(), res.CallID, "completed"); err != nil {
		t.Fatal(err)
	}
	fin, ok := h.db.finalizedFor(res.CallID)
	if !ok {
		t.Fatal("call not finalized")
	}
	if !fin.result.Agreement {
		t.Error("agreement not recorded")
	}
}

func TestHangUpFlow(t *testing.T) {
	h := newHarness(t)
	h.sttProv.setText("До свидания")

	res, _ := h.orc.Initiate(context.Background(), "client-1")
	h.markupAfterAudio(t, res.CallID)

	h.orc.HandleRecording(res.CallID, RecordingUpdate{RecordingURL: "https://api.example.com/rec/RE1", DurationSec: 3})

	m := h.markupAfterAudio(t, res.CallID)
	if !strings.Contains(m, "<Hangup/>") {
		t.Fatalf("farewell markup should hang up: %s", m)
	}
	if !strings.Contains(m, "<Play>") && !strings.Contains(m, "Спасибо за разговор") {
		t.Fatalf("farewell audio missing: %s", m)
	}

	waitFor(t, "finalized", func() bool {
		fin, ok := h.db.finalizedFor(res.CallID)
		return ok && fin.reason == dialog.EndReasonHangUp
	})
	if h.orc.sessions.Get(res.CallID) != nil {
		t.Error("session not destroyed")
	}
}

func TestHallucinationSuppressed(t *testing.T) {
	h := newHarness(t)
	h.sttProv.setText("Продолжение следует...")

	res, _ := h.orc.Initiate(context.Background(), "client-1")
	h.markupAfterAudio(t, res.CallID)
	sess := h.orc.sessions.Get(res.CallID)

	h.orc.HandleRecording(res.CallID, RecordingUpdate{RecordingURL: "https://api.example.com/rec/RE1", DurationSec: 5})
	waitFor(t, "recording processed", func() bool { return !sess.ProcessingRecording() })

	// Give the pipeline a moment, then confirm nothing was said beyond
	// the greeting.
	time.Sleep(50 * time.Millisecond)
	if turns := h.db.turnsFor(res.CallID); len(turns) != 1 || turns[0].Speaker != "agent" {
		t.Errorf("turns = %+v, want only the greeting", turns)
	}
	if pa := sess.PopAudio(); pa != nil {
		t.Errorf("pending audio = %+v, want none", pa)
	}
	if sess.Silence().Count() != 1 {
		t.Errorf("silence count = %d, want 1", sess.Silence().Count())
	}
}

func TestTTSFallbackEmitsSay(t *testing.T) {
	h := newHarness(t)
	h.vendor.fail = true

	res, _ := h.orc.Initiate(context.Background(), "client-1")
	m := h.markupAfterAudio(t, res.CallID)

	if !strings.Contains(m, `<Say voice="Polly.Tatyana" language="ru-RU">`) {
		t.Fatalf("markup = %s", m)
	}
	if !strings.Contains(m, "<Record ") {
		t.Fatalf("record directive missing: %s", m)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	res, _ := h.orc.Initiate(context.Background(), "client-1")

	if err := h.orc.End(context.Background(), res.CallID, "completed"); err != nil {
		t.Fatal(err)
	}
	// fakeDB errors on double finalize, so a second End must not reach it.
	if err := h.orc.End(context.Background(), res.CallID, "completed"); err != nil {
		t.Fatalf("second end: %v", err)
	}
}

func TestTeardownWaitsForRecordingOnce(t *testing.T) {
	h := newHarness(t)
	res, _ := h.orc.Initiate(context.Background(), "client-1")
	sess := h.orc.sessions.Get(res.CallID)

	if !sess.BeginRecording() {
		t.Fatal("could not raise recording guard")
	}
	h.orc.HandleStatus(context.Background(), res.CallID, StatusUpdate{CallStatus: "completed"})

	// The first deadline finds the guard up and defers once; the call
	// must still end at the extended deadline even though the guard
	// stays up.
	time.Sleep(300 * time.Millisecond)
	if _, ok := h.db.finalizedFor(res.CallID); ok {
		t.Fatal("ended at first deadline despite recording guard")
	}
	waitFor(t, "extended teardown", func() bool {
		_, ok := h.db.finalizedFor(res.CallID)
		return ok
	})
}

func TestShutdownEndsActiveCalls(t *testing.T) {
	h := newHarness(t)
	h.db.clients["client-2"] = &database.Client{ID: "client-2", Name: "Анна", Phone: "+79000000002", DebtAmount: 7000}

	a, _ := h.orc.Initiate(context.Background(), "client-1")
	b, _ := h.orc.Initiate(context.Background(), "client-2")

	h.orc.Shutdown(context.Background())

	for _, id := range []string{a.CallID, b.CallID} {
		fin, ok := h.db.finalizedFor(id)
		if !ok {
			t.Fatalf("call %s not finalized", id)
		}
		if fin.reason != "server_shutdown" {
			t.Errorf("reason = %s", fin.reason)
		}
	}
	if h.orc.ActiveSessions() != 0 {
		t.Errorf("active sessions = %d", h.orc.ActiveSessions())
	}
}

func TestRecordingReentryIsNoOp(t *testing.T) {
	h := newHarness(t)
	res, _ := h.orc.Initiate(context.Background(), "client-1")
	sess := h.orc.sessions.Get(res.CallID)

	if !sess.BeginRecording() {
		t.Fatal("guard claim failed")
	}
	// Second recording while the first is processing must be dropped.
	h.orc.HandleRecording(res.CallID, RecordingUpdate{RecordingURL: "https://api.example.com/rec/RE2", DurationSec: 3})

	time.Sleep(50 * time.Millisecond)
	if got := len(h.db.turnsFor(res.CallID)); got != 1 {
		t.Errorf("turns = %d, re-entry should have left only the greeting", got)
	}
}

func TestHistoryOpensWithAgent(t *testing.T) {
	h := newHarness(t)
	res, _ := h.orc.Initiate(context.Background(), "client-1")
	h.markupAfterAudio(t, res.CallID)

	h.orc.HandleRecording(res.CallID, RecordingUpdate{RecordingURL: "https://api.example.com/rec/RE1", DurationSec: 3})
	waitFor(t, "full exchange", func() bool { return len(h.db.turnsFor(res.CallID)) >= 3 })

	turns := h.db.turnsFor(res.CallID)
	if turns[0].Speaker != "agent" {
		t.Fatalf("history opens with %s, want agent", turns[0].Speaker)
	}
	for i := 1; i < len(turns); i++ {
		if turns[i].Speaker == turns[i-1].Speaker {
			t.Errorf("turns %d and %d both spoken by %s", i-1, i, turns[i].Speaker)
		}
	}
}

func TestRecordingFailureEndsCallWithError(t *testing.T) {
	h := newHarness(t)
	h.carrier.dlErr = errors.New("recording fetch failed")

	res, _ := h.orc.Initiate(context.Background(), "client-1")
	h.markupAfterAudio(t, res.CallID)

	h.orc.HandleRecording(res.CallID, RecordingUpdate{RecordingURL: "https://api.example.com/rec/RE1", DurationSec: 3})

	waitFor(t, "error teardown", func() bool {
		fin, ok := h.db.finalizedFor(res.CallID)
		return ok && fin.reason == dialog.EndReasonError
	})
	if h.orc.sessions.Get(res.CallID) != nil {
		t.Error("session not destroyed")
	}
}
