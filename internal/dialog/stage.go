package dialog

// Stage is the dialog phase that drives reply selection.
type Stage string

const (
	StageStart             Stage = "start"
	StageGreetingSent      Stage = "greeting_sent"
	StageIdentification    Stage = "identification"
	StageListening         Stage = "listening"
	StageWaitingResponse   Stage = "waiting_response"
	StagePaymentDiscussion Stage = "payment_discussion"
	StageNegotiation       Stage = "negotiation"
	StageDeEscalation      Stage = "de_escalation"
	StageEscalation        Stage = "escalation"
	StageFinalWarning      Stage = "final_warning"
	StageCompleted         Stage = "completed"
	StageError             Stage = "error"
)

// IsTerminal reports whether the stage admits no further transitions.
func (s Stage) IsTerminal() bool { return s == StageCompleted || s == StageError }
