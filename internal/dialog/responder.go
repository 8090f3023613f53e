package dialog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/snarg/dc-engine/internal/phrasecache"
)

// Method records how a reply text was produced.
type Method string

const (
	MethodScript    Method = "script"
	MethodCache     Method = "cache"
	MethodGenerated Method = "generated"
)

// Reply is the responder's full verdict for one callee turn.
type Reply struct {
	Text      string
	NextStage Stage
	Priority  Priority
	Method    Method
	EndReason string // set when NextStage is terminal
}

// TurnContext is everything the responder needs about the current
// turn. The orchestrator assembles it from the live session.
type TurnContext struct {
	Stage     Stage
	Utterance string
	Repeat    int // per-(stage,intent) repeats before this turn
	History   []string
	Client    ClientInfo
}

const responderSystemPrompt = `Ты вежливый оператор отдела взыскания задолженности.
Отвечай коротко (одно-два предложения), по-русски, строго по теме долга и его оплаты.
Не угрожай, не груби, не обсуждай посторонние темы.`

// Responder picks a reply for a classified utterance: scripted text by
// default, generated text when the script has visibly stopped working
// for this callee.
type Responder struct {
	llm       ChatCompleter
	script    *Script
	model     string
	maxTokens int
	timeout   time.Duration
	log       zerolog.Logger
}

func NewResponder(llm ChatCompleter, script *Script, model string, maxTokens int, timeout time.Duration, log zerolog.Logger) *Responder {
	return &Responder{
		llm:       llm,
		script:    script,
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
		log:       log.With().Str("component", "responder").Logger(),
	}
}

// Select resolves the stage transition and produces the reply text.
// It never errors; the worst case is the scripted fallback phrase.
func (r *Responder) Select(ctx context.Context, tc TurnContext, intent Intent) Reply {
	tr := Next(tc.Stage, intent, tc.Repeat)

	// Silence handling and terminal absorption carry no script text.
	if tr.ReplyKey == "" {
		return Reply{
			NextStage: tr.NextStage,
			Priority:  tr.Priority,
			Method:    MethodScript,
			EndReason: tr.EndReason,
		}
	}

	scripted := r.script.Reply(tr.ReplyKey, tc.Client)
	method := r.chooseMethod(tc, scripted)

	text := scripted
	if method == MethodGenerated {
		if gen, ok := r.generate(ctx, tc, intent); ok {
			text = gen
		} else {
			method = MethodScript
		}
	}

	if !r.script.Validate(text) {
		r.log.Warn().Str("stage", string(tc.Stage)).Str("method", string(method)).
			Msg("reply failed validation, substituting fallback")
		text = r.script.Fallback(tc.Client)
		method = MethodScript
	}

	return Reply{
		Text:      text,
		NextStage: tr.NextStage,
		Priority:  tr.Priority,
		Method:    method,
		EndReason: tr.EndReason,
	}
}

func (r *Responder) chooseMethod(tc TurnContext, scripted string) Method {
	// Legal and threat vocabulary is always answered verbatim from the
	// script; improvisation there is a compliance risk.
	if r.script.HasCriticalKeyword(tc.Utterance) {
		return MethodScript
	}
	if r.llm != nil && (tc.Repeat >= 2 || r.offTopic(tc.Utterance) || unusual(tc.Utterance, tc.History)) {
		return MethodGenerated
	}
	if phrasecache.ShouldCache(scripted) != "" {
		return MethodCache
	}
	return MethodScript
}

func (r *Responder) offTopic(utterance string) bool {
	t := strings.ToLower(utterance)
	return len([]rune(t)) > 40 && !onTopic(t)
}

// unusual flags utterances the script cannot sensibly answer: very
// short, very long, or echoing what was already said.
func unusual(utterance string, history []string) bool {
	n := len([]rune(strings.TrimSpace(utterance)))
	if n < 4 || n > 300 {
		return true
	}
	u := strings.ToLower(strings.TrimSpace(utterance))
	for _, h := range history {
		if strings.ToLower(strings.TrimSpace(h)) == u {
			return true
		}
	}
	return false
}

func (r *Responder) generate(ctx context.Context, tc TurnContext, intent Intent) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Клиент: %s, компания: %s, долг: %s рублей, договор: %s.\n",
		tc.Client.Name, tc.Client.Company, formatAmount(tc.Client.DebtAmount), tc.Client.Contract)
	fmt.Fprintf(&sb, "Этап разговора: %s. Намерение клиента: %s.\n", tc.Stage, intent)
	if len(tc.History) > 0 {
		sb.WriteString("Последние реплики:\n")
		start := len(tc.History) - 6
		if start < 0 {
			start = 0
		}
		for _, h := range tc.History[start:] {
			sb.WriteString(h)
			sb.WriteString("\n")
		}
	}
	fmt.Fprintf(&sb, "Клиент сказал: %q. Ответь ему.", tc.Utterance)

	resp, err := r.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: 0.7,
		MaxTokens:   r.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: responderSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("reply generation failed, using script")
		return "", false
	}
	if len(resp.Choices) == 0 {
		return "", false
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", false
	}
	return text, true
}
