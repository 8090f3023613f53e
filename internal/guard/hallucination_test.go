package guard

import "testing"

func TestClassifyUtterance(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		bytes    int
		duration float64
		conf     float64
		want     Verdict
	}{
		// ── real speech ──
		{"agreement", "Да, согласен заплатить", 48000, 3, 0.9, VerdictReal},
		{"question", "Сколько я должен по договору?", 64000, 4, 0.85, VerdictReal},
		{"short answer", "Алло, слушаю", 32000, 2, 0, VerdictReal},

		// ── boilerplate the vendor invents on dead air ──
		{"video closing", "Продолжение следует...", 2000, 5, 0.2, VerdictHallucination},
		{"subtitle credits", "Редактор субтитров А.Семкин", 1500, 6, 0, VerdictHallucination},
		{"channel plug", "Подписывайтесь на наш канал", 1800, 4, 0, VerdictHallucination},
		{"media marker", "[музыка]", 1000, 3, 0, VerdictHallucination},

		// ── silence shapes ──
		{"empty", "", 0, 5, 0, VerdictSilence},
		{"whitespace", "   ", 0, 5, 0, VerdictSilence},
		{"long audio short text", "Ну", 80000, 10, 0, VerdictSilence},
		{"thin audio", "что-то", 500, 4, 0, VerdictSilence},

		// ── degenerate transcripts ──
		{"char repeat", "ааааааааааааа", 48000, 3, 0, VerdictHallucination},
		{"punctuation only", "... !!! ???", 48000, 3, 0, VerdictHallucination},

		// ── vendor confidence ──
		{"low confidence off-topic", "Какая прекрасная погода сегодня", 48000, 3, 0.1, VerdictHallucination},
		{"unknown confidence is neutral", "Какая прекрасная погода сегодня", 48000, 3, 0, VerdictReal},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ClassifyUtterance(c.text, c.bytes, c.duration, c.conf)
			if got.Verdict != c.want {
				t.Errorf("verdict = %s (%s), want %s", got.Verdict, got.Reason, c.want)
			}
			if got.Confidence <= 0 || got.Confidence > 1 {
				t.Errorf("confidence = %v out of range", got.Confidence)
			}
		})
	}
}

func TestClassifyNeverPanicsOnZeroDuration(t *testing.T) {
	got := ClassifyUtterance("Да, завтра оплачу долг", 0, 0, 0)
	if got.Verdict != VerdictReal {
		t.Errorf("verdict = %s, want real", got.Verdict)
	}
}
