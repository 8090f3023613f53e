package dialog

// Priority orders synthesis work: a farewell to a hang-up must not sit
// behind routine replies.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// End reasons recorded when a transition terminates the call.
const (
	EndReasonAgreement = "agreement"
	EndReasonHangUp    = "hang_up"
	EndReasonRefused   = "refused"
	EndReasonAbandoned = "abandoned"
	EndReasonError     = "error"
)

// Transition is the machine's verdict for one callee turn.
type Transition struct {
	ReplyKey  string
	NextStage Stage
	Priority  Priority
	EndReason string // set only when NextStage is terminal
}

// Next is total over Stage × Intent: every input yields exactly one
// transition. repeat is the per-(stage,intent) counter before this
// turn.
func Next(stage Stage, intent Intent, repeat int) Transition {
	// Terminal stages absorb everything.
	if stage.IsTerminal() {
		return Transition{NextStage: stage}
	}

	// Three unanswered silences abandon the call from anywhere.
	if intent == IntentSilence {
		if repeat >= 3 {
			return Transition{
				ReplyKey:  "abandoned_close",
				NextStage: StageCompleted,
				Priority:  PriorityUrgent,
				EndReason: EndReasonAbandoned,
			}
		}
		// Reply text comes from the silence policy, not the script.
		return Transition{NextStage: stage, Priority: PriorityNormal}
	}

	// Hang-up and aggression are stage-independent.
	if intent == IntentHangUp {
		return Transition{
			ReplyKey:  "hangup_farewell",
			NextStage: StageCompleted,
			Priority:  PriorityUrgent,
			EndReason: EndReasonHangUp,
		}
	}
	if intent == IntentAggressive && stage != StageDeEscalation {
		return Transition{ReplyKey: "de_escalation", NextStage: StageDeEscalation, Priority: PriorityNormal}
	}

	switch stage {
	case StageStart:
		if intent == IntentPositive {
			return Transition{ReplyKey: "identification", NextStage: StageGreetingSent, Priority: PriorityUrgent}
		}

	// A turn arriving while the previous reply is still in flight
	// routes the same as open listening.
	case StageGreetingSent, StageIdentification, StageListening, StageWaitingResponse:
		switch intent {
		case IntentPositive:
			return Transition{ReplyKey: "payment_discussion", NextStage: StagePaymentDiscussion, Priority: PriorityNormal}
		case IntentNegative:
			return Transition{ReplyKey: "negotiation", NextStage: StageNegotiation, Priority: PriorityNormal}
		}

	case StagePaymentDiscussion:
		switch intent {
		case IntentPositive:
			return Transition{
				ReplyKey:  "agreement_close",
				NextStage: StageCompleted,
				Priority:  PriorityNormal,
				EndReason: EndReasonAgreement,
			}
		case IntentNegative:
			return Transition{ReplyKey: "negotiation", NextStage: StageNegotiation, Priority: PriorityNormal}
		}

	case StageNegotiation:
		switch intent {
		case IntentPositive:
			return Transition{ReplyKey: "payment_discussion", NextStage: StagePaymentDiscussion, Priority: PriorityNormal}
		case IntentNegative:
			if repeat >= 1 {
				return Transition{ReplyKey: "escalation", NextStage: StageEscalation, Priority: PriorityNormal}
			}
			return Transition{ReplyKey: "negotiation_offer", NextStage: StageNegotiation, Priority: PriorityNormal}
		}

	case StageDeEscalation:
		if intent == IntentAggressive {
			return Transition{ReplyKey: "de_escalation", NextStage: StageDeEscalation, Priority: PriorityNormal}
		}
		// Any calmer intent moves the talk to negotiation.
		return Transition{ReplyKey: "negotiation", NextStage: StageNegotiation, Priority: PriorityNormal}

	case StageEscalation:
		switch intent {
		case IntentPositive:
			return Transition{ReplyKey: "payment_discussion", NextStage: StagePaymentDiscussion, Priority: PriorityNormal}
		case IntentNegative:
			return Transition{ReplyKey: "final_warning", NextStage: StageFinalWarning, Priority: PriorityNormal}
		}

	case StageFinalWarning:
		switch intent {
		case IntentPositive:
			return Transition{
				ReplyKey:  "agreement_close",
				NextStage: StageCompleted,
				Priority:  PriorityNormal,
				EndReason: EndReasonAgreement,
			}
		case IntentNegative:
			return Transition{
				ReplyKey:  "refused_close",
				NextStage: StageCompleted,
				Priority:  PriorityNormal,
				EndReason: EndReasonRefused,
			}
		}
	}

	// No explicit rule: return to listening with a clarifying prompt.
	return Transition{ReplyKey: "clarify", NextStage: StageListening, Priority: PriorityNormal}
}
