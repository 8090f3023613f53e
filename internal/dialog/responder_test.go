package dialog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.reply}},
		},
	}, nil
}

func newResponder(t *testing.T, llm ChatCompleter) *Responder {
	t.Helper()
	return NewResponder(llm, loadTestScript(t), "gpt-4o-mini", 150, time.Second, zerolog.Nop())
}

func testClient() ClientInfo {
	return ClientInfo{Name: "Иван Петров", Company: "Финанс Групп", DebtAmount: 50000}
}

func TestSelectScriptedPositive(t *testing.T) {
	llm := &fakeLLM{reply: "не должен вызываться"}
	r := newResponder(t, llm)

	reply := r.Select(context.Background(), TurnContext{
		Stage:     StageListening,
		Utterance: "Да, согласен заплатить",
		Client:    testClient(),
	}, IntentPositive)

	if reply.Method != MethodScript {
		t.Errorf("method = %s, want script", reply.Method)
	}
	want := "Отлично! Давайте обсудим детали погашения долга на 50000 рублей."
	if reply.Text != want {
		t.Errorf("text = %q, want %q", reply.Text, want)
	}
	if reply.NextStage != StagePaymentDiscussion {
		t.Errorf("next stage = %s", reply.NextStage)
	}
	if llm.calls != 0 {
		t.Errorf("llm called %d times for a scripted reply", llm.calls)
	}
}

func TestSelectGeneratedOnRepeat(t *testing.T) {
	llm := &fakeLLM{reply: "Понимаю ваше недовольство. Давайте спокойно обсудим оплату долга."}
	r := newResponder(t, llm)

	reply := r.Select(context.Background(), TurnContext{
		Stage:     StageDeEscalation,
		Utterance: "Вы меня достали со своими звонками",
		Repeat:    2,
		Client:    testClient(),
	}, IntentAggressive)

	if reply.Method != MethodGenerated {
		t.Fatalf("method = %s, want generated", reply.Method)
	}
	if len([]rune(reply.Text)) > 200 {
		t.Errorf("generated reply too long: %d runes", len([]rune(reply.Text)))
	}
	if llm.calls != 1 {
		t.Errorf("llm calls = %d, want 1", llm.calls)
	}
}

func TestSelectFallsBackToScriptOnLLMError(t *testing.T) {
	llm := &fakeLLM{err: errors.New("model timeout")}
	r := newResponder(t, llm)

	reply := r.Select(context.Background(), TurnContext{
		Stage:     StageNegotiation,
		Utterance: "Не буду платить",
		Repeat:    2,
		Client:    testClient(),
	}, IntentNegative)

	if reply.Method != MethodScript {
		t.Errorf("method = %s, want script after generation failure", reply.Method)
	}
	if reply.Text == "" {
		t.Error("a reply must always be produced")
	}
	if reply.NextStage != StageEscalation {
		t.Errorf("next stage = %s, want escalation", reply.NextStage)
	}
}

func TestSelectCriticalKeywordForcesScript(t *testing.T) {
	llm := &fakeLLM{reply: "сгенерировано"}
	r := newResponder(t, llm)

	reply := r.Select(context.Background(), TurnContext{
		Stage:     StageListening,
		Utterance: "Я подам на вас в суд, это незаконные требования по договору",
		Repeat:    2, // would otherwise pick generated
		Client:    testClient(),
	}, IntentAggressive)

	if reply.Method != MethodScript {
		t.Errorf("method = %s, want script for legal vocabulary", reply.Method)
	}
	if llm.calls != 0 {
		t.Error("llm must not be consulted for critical keywords")
	}
}

func TestSelectInvalidGenerationSubstitutesFallback(t *testing.T) {
	llm := &fakeLLM{reply: strings.Repeat("о", 500)}
	r := newResponder(t, llm)

	reply := r.Select(context.Background(), TurnContext{
		Stage:     StageListening,
		Utterance: "ну",
		Repeat:    2,
		Client:    testClient(),
	}, IntentNeutral)

	if reply.Method != MethodScript {
		t.Errorf("method = %s, want script", reply.Method)
	}
	if !strings.Contains(reply.Text, "повторите") {
		t.Errorf("text = %q, want fallback phrase", reply.Text)
	}
}

func TestSelectCacheableFarewell(t *testing.T) {
	r := newResponder(t, &fakeLLM{})
	reply := r.Select(context.Background(), TurnContext{
		Stage:     StageListening,
		Utterance: "До свидания",
		Client:    testClient(),
	}, IntentHangUp)

	if reply.Method != MethodCache {
		t.Errorf("method = %s, want cache for a stock farewell", reply.Method)
	}
	if reply.Text != "Спасибо за разговор. До свидания." {
		t.Errorf("text = %q", reply.Text)
	}
	if reply.EndReason != EndReasonHangUp {
		t.Errorf("end reason = %q", reply.EndReason)
	}
	if !reply.NextStage.IsTerminal() {
		t.Error("hang-up must terminate the dialog")
	}
}

func TestSelectSilenceProducesNoText(t *testing.T) {
	r := newResponder(t, &fakeLLM{})
	reply := r.Select(context.Background(), TurnContext{
		Stage:  StageListening,
		Client: testClient(),
	}, IntentSilence)

	if reply.Text != "" {
		t.Errorf("text = %q, want empty (silence policy owns the reply)", reply.Text)
	}
	if reply.NextStage != StageListening {
		t.Errorf("next stage = %s, want listening", reply.NextStage)
	}
}
