package dialog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ClientInfo is the debtor data substituted into reply templates.
type ClientInfo struct {
	Name          string
	Company       string
	Contract      string
	DebtAmount    float64
	PartialAmount float64
}

// requiredReplyKeys are the keys the stage machine can emit. A script
// file missing any of them is rejected at load.
var requiredReplyKeys = []string{
	"greeting",
	"identification",
	"clarify",
	"payment_discussion",
	"agreement_close",
	"negotiation",
	"negotiation_offer",
	"de_escalation",
	"escalation",
	"final_warning",
	"hangup_farewell",
	"refused_close",
	"abandoned_close",
}

// onTopicVocabulary is what a long reply must mention to count as
// on-topic for a debt conversation.
var onTopicVocabulary = []string{
	"долг", "задолж", "плат", "оплат", "кредит", "договор",
	"рубл", "сумм", "деньг", "погашен",
}

type scriptFile struct {
	Replies          map[string]string `json:"replies"`
	CriticalKeywords []string          `json:"critical_keywords"`
	ForbiddenWords   []string          `json:"forbidden_words"`
	Fallback         string            `json:"fallback"`
	MaxReplyLength   int               `json:"max_reply_length"`
}

// Script is the reply template table. It reloads itself when the
// backing JSON file changes; a broken edit keeps the previous table.
type Script struct {
	path string
	log  zerolog.Logger

	mu   sync.RWMutex
	data scriptFile

	watcher  *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once
}

func LoadScript(path string, log zerolog.Logger) (*Script, error) {
	s := &Script{
		path: path,
		log:  log.With().Str("component", "script").Logger(),
		stop: make(chan struct{}),
	}
	data, err := readScriptFile(path)
	if err != nil {
		return nil, err
	}
	s.data = data
	return s, nil
}

func readScriptFile(path string) (scriptFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return scriptFile{}, fmt.Errorf("read script: %w", err)
	}
	var data scriptFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return scriptFile{}, fmt.Errorf("parse script: %w", err)
	}
	for _, key := range requiredReplyKeys {
		if strings.TrimSpace(data.Replies[key]) == "" {
			return scriptFile{}, fmt.Errorf("script missing reply %q", key)
		}
	}
	if data.Fallback == "" {
		return scriptFile{}, fmt.Errorf("script missing fallback phrase")
	}
	if data.MaxReplyLength <= 0 {
		data.MaxReplyLength = 200
	}
	return data, nil
}

// Watch starts hot reload of the script file. Editors replace files by
// rename, so the parent directory is watched rather than the file.
func (s *Script) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}
	s.watcher = w
	go s.watchLoop()
	return nil
}

func (s *Script) watchLoop() {
	base := filepath.Base(s.path)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			s.reload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Msg("script watcher error")
		case <-s.stop:
			return
		}
	}
}

func (s *Script) reload() {
	data, err := readScriptFile(s.path)
	if err != nil {
		s.log.Error().Err(err).Msg("script reload failed, keeping previous table")
		return
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	s.log.Info().Int("replies", len(data.Replies)).Msg("script reloaded")
}

func (s *Script) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.watcher != nil {
			s.watcher.Close()
		}
	})
}

// Reply renders the template for a key with the client's data. Unknown
// keys render the fallback phrase.
func (s *Script) Reply(key string, c ClientInfo) string {
	s.mu.RLock()
	text := s.data.Replies[key]
	fallback := s.data.Fallback
	s.mu.RUnlock()

	if text == "" {
		s.log.Warn().Str("key", key).Msg("unknown reply key")
		text = fallback
	}
	return Personalize(text, c)
}

// Fallback renders the universal clarifying phrase.
func (s *Script) Fallback(c ClientInfo) string {
	s.mu.RLock()
	text := s.data.Fallback
	s.mu.RUnlock()
	return Personalize(text, c)
}

// MaxReplyLength is the validator's length cap.
func (s *Script) MaxReplyLength() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.MaxReplyLength
}

// HasCriticalKeyword reports whether the utterance touches legal or
// threat vocabulary that must be answered from the script verbatim.
func (s *Script) HasCriticalKeyword(text string) bool {
	t := strings.ToLower(text)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, kw := range s.data.CriticalKeywords {
		if strings.Contains(t, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Validate checks a candidate reply: length cap, deny-list, and the
// on-topic requirement for long replies.
func (s *Script) Validate(text string) bool {
	s.mu.RLock()
	maxLen := s.data.MaxReplyLength
	forbidden := s.data.ForbiddenWords
	s.mu.RUnlock()

	runes := []rune(text)
	if len(runes) == 0 || len(runes) > maxLen {
		return false
	}
	t := strings.ToLower(text)
	for _, w := range forbidden {
		if strings.Contains(t, strings.ToLower(w)) {
			return false
		}
	}
	if len(runes) > 50 && !onTopic(t) {
		return false
	}
	return true
}

func onTopic(lower string) bool {
	for _, v := range onTopicVocabulary {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}

// Personalize substitutes template placeholders with client data, with
// neutral defaults when a field is unset.
func Personalize(tmpl string, c ClientInfo) string {
	name := c.Name
	if name == "" {
		name = "уважаемый клиент"
	}
	company := c.Company
	if company == "" {
		company = "нашей компании"
	}
	contract := c.Contract
	if contract == "" {
		contract = "вашему договору"
	}
	amount := formatAmount(c.DebtAmount)
	partial := c.PartialAmount
	if partial == 0 {
		partial = c.DebtAmount / 2
	}

	return strings.NewReplacer(
		"{clientName}", name,
		"{company}", company,
		"{contract}", contract,
		"{amount}", amount,
		"{partialAmount}", formatAmount(partial),
	).Replace(tmpl)
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
