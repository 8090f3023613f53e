// Package dialog holds the conversation logic: intent classification,
// the stage machine, and reply selection.
package dialog

import (
	"strings"
	"unicode"
)

// Intent is the discrete classification of a callee utterance.
type Intent string

const (
	IntentPositive   Intent = "positive"
	IntentNegative   Intent = "negative"
	IntentNeutral    Intent = "neutral"
	IntentAggressive Intent = "aggressive"
	IntentHangUp     Intent = "hang_up"
	IntentSilence    Intent = "silence"
)

// ValidIntent reports whether s names a known intent.
func ValidIntent(s string) bool {
	switch Intent(s) {
	case IntentPositive, IntentNegative, IntentNeutral,
		IntentAggressive, IntentHangUp, IntentSilence:
		return true
	}
	return false
}

// Phrase lists per intent, checked in order. Hang-up and aggression
// win over polarity: "не звоните мне" is a hang-up even though it
// contains a negation.
var (
	hangUpPhrases = []string{
		"до свидания", "не звоните", "кладу трубку", "прощайте",
		"всего доброго", "отстаньте от меня",
	}
	aggressivePhrases = []string{
		"надоели", "задолбали", "достали", "пошел ты", "пошли вы",
		"идите вы", "отвали", "хватит звонить", "заколебали",
	}
	negativePhrases = []string{
		"не согласен", "не буду", "не могу", "не стану", "откажусь",
		"отказываюсь", "нет денег", "денег нет", "не заплачу",
		"не плачу", "нечем платить",
	}
	positivePhrases = []string{
		"согласен", "согласна", "конечно", "оплачу", "заплачу",
		"хорошо", "договорились", "готов заплатить", "готова заплатить",
		"обязательно", "постараюсь оплатить",
	}
)

// KeywordIntent classifies by deterministic word lists. It is the
// fallback when the model is unreachable, and it never errors.
func KeywordIntent(text string) Intent {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return IntentSilence
	}

	for _, p := range hangUpPhrases {
		if strings.Contains(t, p) {
			return IntentHangUp
		}
	}
	for _, p := range aggressivePhrases {
		if strings.Contains(t, p) {
			return IntentAggressive
		}
	}
	for _, p := range negativePhrases {
		if strings.Contains(t, p) {
			return IntentNegative
		}
	}
	for _, p := range positivePhrases {
		if strings.Contains(t, p) {
			return IntentPositive
		}
	}

	// Bare yes/no answered as single words.
	words := fieldsClean(t)
	for _, w := range words {
		switch w {
		case "да", "ага", "угу":
			return IntentPositive
		case "нет", "неа":
			return IntentNegative
		}
	}
	return IntentNeutral
}

func fieldsClean(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
