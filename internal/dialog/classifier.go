package dialog

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// ChatCompleter is the slice of the OpenAI client the dialog layer
// needs, kept narrow so tests can substitute a fake.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const classifierSystemPrompt = `Ты классификатор реплик должника в разговоре о взыскании задолженности.
Ответь ровно одним словом из списка: positive, negative, neutral, aggressive, hang_up, silence.
positive - согласие платить или сотрудничать. negative - отказ или невозможность платить.
aggressive - грубость, раздражение. hang_up - прощание или требование не звонить.
silence - пустая или бессодержательная реплика. Иначе neutral.`

// Classifier labels callee utterances. The model is primary; the
// keyword rules take over on any failure, so Classify never errors.
type Classifier struct {
	llm     ChatCompleter
	model   string
	timeout time.Duration
	log     zerolog.Logger
}

func NewClassifier(llm ChatCompleter, model string, timeout time.Duration, log zerolog.Logger) *Classifier {
	return &Classifier{
		llm:     llm,
		model:   model,
		timeout: timeout,
		log:     log.With().Str("component", "classifier").Logger(),
	}
}

// Classify returns the intent of an utterance given the dialog stage
// and recent history.
func (c *Classifier) Classify(ctx context.Context, utterance string, stage Stage, history []string) Intent {
	if strings.TrimSpace(utterance) == "" {
		return IntentSilence
	}
	if c.llm == nil {
		return KeywordIntent(utterance)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("Этап разговора: ")
	sb.WriteString(string(stage))
	sb.WriteString("\n")
	if n := len(history); n > 0 {
		sb.WriteString("Последние реплики:\n")
		start := n - 4
		if start < 0 {
			start = 0
		}
		for _, h := range history[start:] {
			sb.WriteString(h)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("Реплика должника: ")
	sb.WriteString(utterance)

	resp, err := c.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		MaxTokens:   5,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("model classification failed, using keyword rules")
		return KeywordIntent(utterance)
	}
	if len(resp.Choices) == 0 {
		return KeywordIntent(utterance)
	}

	label := strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content))
	if !ValidIntent(label) {
		c.log.Warn().Str("label", label).Msg("model returned unknown intent, using keyword rules")
		return KeywordIntent(utterance)
	}

	return Intent(label)
}
