// Package guard filters speech-to-text output before it reaches the
// dialog layer: transcripts of low-energy audio are often vendor
// boilerplate rather than speech, and reacting to them derails the
// conversation.
package guard

import (
	"regexp"
	"strings"
	"unicode"
)

// Verdict labels one transcript.
type Verdict string

const (
	VerdictReal          Verdict = "real"
	VerdictSilence       Verdict = "silence"
	VerdictHallucination Verdict = "hallucination"
)

// Classification is the guard's advisory output.
type Classification struct {
	Verdict    Verdict
	Confidence float64
	Reason     string
}

func (c Classification) IsReal() bool { return c.Verdict == VerdictReal }

// hallucinationPatterns match boilerplate Whisper emits on silent or
// noisy audio: video closings, subtitle credits, media markers.
var hallucinationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)продолжение следует`),
	regexp.MustCompile(`(?i)субтитр`),
	regexp.MustCompile(`(?i)редактор субтитров`),
	regexp.MustCompile(`(?i)спасибо за просмотр`),
	regexp.MustCompile(`(?i)подписывайтесь на (наш )?канал`),
	regexp.MustCompile(`(?i)ставьте лайк`),
	regexp.MustCompile(`(?i)до новых встреч`),
	regexp.MustCompile(`(?i)корректор [а-яё]+`),
	regexp.MustCompile(`(?i)^\s*\[?(музыка|аплодисменты|смех|шум)\]?\s*$`),
	regexp.MustCompile(`(?i)www\.|http|\.com|\.ru\b`),
}

// domainVocabulary marks words a debtor conversation plausibly
// contains. Matched by prefix so Russian case endings do not matter.
var domainVocabulary = []string{
	"долг", "задолж", "плат", "оплат", "кредит", "договор",
	"рубл", "деньг", "сумм", "банк", "да", "нет", "согла",
	"завтра", "сегодня", "когда", "сколько", "алло", "слушаю",
}

const (
	minAudioDensityKBs  = 2.0 // μ-law speech runs ~8 KB/s; far below means dead air
	longAudioSec        = 8.0
	shortTranscript     = 20
	repeatRatioLimit    = 0.7
	minVendorConfidence = 0.35
)

// ClassifyUtterance weighs independent signals and returns the label
// with the highest summed confidence. sttConfidence is the vendor's
// own 0..1 score, 0 when unknown. It never errors; when no signal
// fires the transcript is treated as real speech at low confidence.
func ClassifyUtterance(text string, audioBytes int, durationSec, sttConfidence float64) Classification {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Classification{Verdict: VerdictSilence, Confidence: 1.0, Reason: "empty transcript"}
	}

	scores := map[Verdict]float64{}
	reasons := map[Verdict]string{}
	add := func(v Verdict, score float64, reason string) {
		scores[v] += score
		if reasons[v] == "" {
			reasons[v] = reason
		}
	}

	for _, re := range hallucinationPatterns {
		if re.MatchString(trimmed) {
			add(VerdictHallucination, 0.9, "boilerplate pattern: "+re.String())
			break
		}
	}

	if durationSec > 0 {
		density := float64(audioBytes) / 1024.0 / durationSec
		if density < minAudioDensityKBs {
			add(VerdictSilence, 0.7, "audio density below speech floor")
		}
	}

	if durationSec > longAudioSec && len([]rune(trimmed)) < shortTranscript {
		add(VerdictSilence, 0.6, "long audio, short transcript")
	}

	if repeatRatio(trimmed) > repeatRatioLimit {
		add(VerdictHallucination, 0.6, "character repetition")
	}

	if punctuationOnly(trimmed) {
		add(VerdictHallucination, 0.8, "punctuation only")
	}

	if sttConfidence > 0 && sttConfidence < minVendorConfidence {
		add(VerdictHallucination, 0.5, "vendor confidence below floor")
	}

	words := len(strings.Fields(trimmed))
	if durationSec > 0 {
		rate := float64(words) / durationSec
		if rate >= 0.5 && rate <= 4.0 && containsDomainWord(trimmed) {
			add(VerdictReal, 0.8, "plausible word rate with domain vocabulary")
		}
	} else if containsDomainWord(trimmed) {
		add(VerdictReal, 0.5, "domain vocabulary")
	}

	best := Classification{Verdict: VerdictReal, Confidence: 0.3, Reason: "no signal fired"}
	for v, s := range scores {
		if s > best.Confidence {
			best = Classification{Verdict: v, Confidence: s, Reason: reasons[v]}
		}
	}
	if best.Confidence > 1.0 {
		best.Confidence = 1.0
	}
	return best
}

// repeatRatio is the share of the dominant character among all
// non-space characters.
func repeatRatio(s string) float64 {
	counts := map[rune]int{}
	total := 0
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			continue
		}
		counts[r]++
		total++
	}
	if total == 0 {
		return 0
	}
	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	return float64(max) / float64(total)
}

func punctuationOnly(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func containsDomainWord(s string) bool {
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		for _, v := range domainVocabulary {
			if strings.HasPrefix(w, v) {
				return true
			}
		}
	}
	return false
}
