package dialog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func testScriptData() scriptFile {
	replies := map[string]string{
		"greeting":           "Здравствуйте, {clientName}! Вас беспокоит {company} по долгу {amount} рублей по {contract}.",
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
	}
	return scriptFile{
		Replies:          replies,
		CriticalKeywords: []string{"суд", "полици", "адвокат"},
		ForbiddenWords:   []string{"идиот", "тюрьма"},
		Fallback:         "Извините, повторите, пожалуйста. Речь о вашей задолженности.",
		MaxReplyLength:   200,
	}
}

func writeScript(t *testing.T, dir string, data scriptFile) string {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "script.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadTestScript(t *testing.T) *Script {
	t.Helper()
	path := writeScript(t, t.TempDir(), testScriptData())
	s, err := LoadScript(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLoadScriptRejectsMissingKeys(t *testing.T) {
	data := testScriptData()
	delete(data.Replies, "final_warning")
	path := writeScript(t, t.TempDir(), data)

	if _, err := LoadScript(path, zerolog.Nop()); err == nil {
		t.Fatal("expected error for missing reply key")
	}
}

func TestReplyPersonalization(t *testing.T) {
	s := loadTestScript(t)
	client := ClientInfo{
		Name:       "Иван Петров",
		Company:    "Финанс Групп",
		Contract:   "договору 42-Н",
		DebtAmount: 50000,
	}

	got := s.Reply("payment_discussion", client)
	want := "Отлично! Давайте обсудим детали погашения долга на 50000 рублей."
	if got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}

	greeting := s.Reply("greeting", client)
	for _, part := range []string{"Иван Петров", "Финанс Групп", "50000", "договору 42-Н"} {
		if !strings.Contains(greeting, part) {
			t.Errorf("greeting %q missing %q", greeting, part)
		}
	}
}

func TestPersonalizeDefaults(t *testing.T) {
	got := Personalize("{clientName} / {company} / {partialAmount}", ClientInfo{DebtAmount: 10000})
	if !strings.Contains(got, "уважаемый клиент") {
		t.Errorf("missing default name: %q", got)
	}
	if !strings.Contains(got, "5000") {
		t.Errorf("partial amount should default to half the debt: %q", got)
	}
}

func TestUnknownReplyKeyFallsBack(t *testing.T) {
	s := loadTestScript(t)
	got := s.Reply("no_such_key", ClientInfo{})
	if !strings.Contains(got, "повторите") {
		t.Errorf("expected fallback phrase, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	s := loadTestScript(t)
	cases := []struct {
		name string
		text string
		want bool
	}{
		{"short on-topic", "Давайте обсудим оплату.", true},
		{"short off-topic ok", "Понимаю вас.", true},
		{"empty", "", false},
		{"too long", strings.Repeat("а", 201), false},
		{"forbidden word", "Вы идиот, платите долг", false},
		{"long off-topic", "Сегодня прекрасная погода и я хотела бы поговорить с вами о чем-нибудь приятном и постороннем", false},
		{"long on-topic", "Напоминаю, что ваша задолженность по договору всё ещё не погашена, давайте обсудим удобный вариант оплаты", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := s.Validate(c.text); got != c.want {
				t.Errorf("Validate(%q) = %v, want %v", c.text, got, c.want)
			}
		})
	}
}

func TestCriticalKeywords(t *testing.T) {
	s := loadTestScript(t)
	if !s.HasCriticalKeyword("Я подам на вас в суд") {
		t.Error("court mention not flagged")
	}
	if s.HasCriticalKeyword("Я заплачу завтра") {
		t.Error("ordinary utterance flagged as critical")
	}
}

func TestReloadKeepsTableOnBrokenFile(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, testScriptData())
	s, err := LoadScript(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s.reload()

	got := s.Reply("hangup_farewell", ClientInfo{})
	if got != "Спасибо за разговор. До свидания." {
		t.Errorf("reply after broken reload = %q", got)
	}
}

func TestReloadPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	data := testScriptData()
	path := writeScript(t, dir, data)
	s, err := LoadScript(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	data.Replies["clarify"] = "Повторите, пожалуйста, ваш ответ по долгу."
	writeScript(t, dir, data)
	s.reload()

	if got := s.Reply("clarify", ClientInfo{}); got != "Повторите, пожалуйста, ваш ответ по долгу." {
		t.Errorf("reply after reload = %q", got)
	}
}
