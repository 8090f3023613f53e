package guard

import "time"

// Severity grades how worrying the accumulated silence is.
type Severity string

const (
	SeverityShort    Severity = "short"
	SeverityMedium   Severity = "medium"
	SeverityLong     Severity = "long"
	SeverityCritical Severity = "critical"
)

// Action is the prescribed reaction to a silence.
type Action string

const (
	ActionIgnore         Action = "ignore"
	ActionGentlePrompt   Action = "gentle_prompt"
	ActionPatientWait    Action = "patient_wait"
	ActionDemandResponse Action = "demand_response"
	ActionFinalWarning   Action = "final_warning"
	ActionHangUp         Action = "hang_up"
)

// Prescription is what the orchestrator should do about a silence.
// Reply is empty when there is nothing to say.
type Prescription struct {
	Severity       Severity
	Action         Action
	Reply          string
	ShouldContinue bool
}

// Tracker accumulates silence history for one call. Not safe for
// concurrent use; the session owns it.
type Tracker struct {
	count      int
	cumulative time.Duration
}

// RecordSilence notes one silence episode and returns the updated
// count.
func (t *Tracker) RecordSilence(d time.Duration) int {
	t.count++
	t.cumulative += d
	return t.count
}

// Reset clears the history. Called when real speech arrives.
func (t *Tracker) Reset() {
	t.count = 0
	t.cumulative = 0
}

// Count reports silences since the last real speech.
func (t *Tracker) Count() int { return t.count }

func (t *Tracker) severity() Severity {
	switch {
	case t.count >= 5 || t.cumulative >= 40*time.Second:
		return SeverityCritical
	case t.count >= 3 || t.cumulative >= 20*time.Second:
		return SeverityLong
	case t.count >= 2 || t.cumulative >= 10*time.Second:
		return SeverityMedium
	default:
		return SeverityShort
	}
}

// Decide maps the guard verdict and silence history to a prescription.
// inNegotiation relaxes the medium tier: debtors often pause to think
// while discussing payment, and prodding them there loses agreements.
func Decide(t *Tracker, cls Classification, inNegotiation bool) Prescription {
	if cls.Verdict == VerdictHallucination {
		return Prescription{
			Severity:       SeverityShort,
			Action:         ActionIgnore,
			ShouldContinue: true,
		}
	}

	sev := t.severity()
	switch sev {
	case SeverityShort:
		return Prescription{
			Severity:       sev,
			Action:         ActionGentlePrompt,
			Reply:          "Алло, вы меня слышите?",
			ShouldContinue: true,
		}
	case SeverityMedium:
		if inNegotiation {
			return Prescription{
				Severity:       sev,
				Action:         ActionPatientWait,
				ShouldContinue: true,
			}
		}
		return Prescription{
			Severity:       sev,
			Action:         ActionDemandResponse,
			Reply:          "Пожалуйста, ответьте. Вопрос по вашей задолженности требует вашего участия.",
			ShouldContinue: true,
		}
	case SeverityLong:
		return Prescription{
			Severity:       sev,
			Action:         ActionFinalWarning,
			Reply:          "Если вы не ответите, я буду вынуждена завершить звонок. Мы свяжемся с вами позже.",
			ShouldContinue: true,
		}
	default:
		return Prescription{
			Severity:       SeverityCritical,
			Action:         ActionHangUp,
			Reply:          "К сожалению, я вас не слышу. Всего доброго.",
			ShouldContinue: false,
		}
	}
}
