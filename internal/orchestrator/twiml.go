package orchestrator

import (
	"fmt"
	"strings"
)

// Markup builders for the carrier's XML control language. Webhook
// handlers must always answer with valid markup, so these helpers never
// error.

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string { return xmlEscaper.Replace(s) }

// RecordOpts parameterize the <Record> directive appended after a
// reply.
type RecordOpts struct {
	Action         string // recording webhook URL
	StatusCallback string // recording-status webhook URL
	MaxLength      int    // seconds
	Timeout        int    // trailing-silence seconds
	FinishKey      string
}

func (r RecordOpts) render() string {
	maxLen := r.MaxLength
	if maxLen <= 0 {
		maxLen = 300
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 10
	}
	finish := r.FinishKey
	if finish == "" {
		finish = "#"
	}
	return fmt.Sprintf(
		`<Record action="%s" recordingStatusCallback="%s" method="POST" maxLength="%d" playBeep="false" timeout="%d" finishOnKey="%s"/>`,
		xmlEscape(r.Action), xmlEscape(r.StatusCallback), maxLen, timeout, xmlEscape(finish),
	)
}

// PlayRecord plays stored audio, then records the callee's answer.
func PlayRecord(audioURL string, rec RecordOpts) string {
	return fmt.Sprintf("<Response><Play>%s</Play>%s</Response>",
		xmlEscape(audioURL), rec.render())
}

// SayRecord has the carrier synthesize the text, then records the
// callee's answer. Used when the primary TTS path is unavailable.
func SayRecord(text, voice, language string, rec RecordOpts) string {
	return fmt.Sprintf(`<Response><Say voice="%s" language="%s">%s</Say>%s</Response>`,
		xmlEscape(voice), xmlEscape(language), xmlEscape(text), rec.render())
}

// PlayHangup plays a farewell and terminates the call.
func PlayHangup(audioURL string) string {
	return fmt.Sprintf("<Response><Play>%s</Play><Hangup/></Response>", xmlEscape(audioURL))
}

// SayHangup speaks a farewell carrier-side and terminates the call.
func SayHangup(text, voice, language string) string {
	return fmt.Sprintf(`<Response><Say voice="%s" language="%s">%s</Say><Hangup/></Response>`,
		xmlEscape(voice), xmlEscape(language), xmlEscape(text))
}

// WaitRedirect pauses briefly and loops the carrier back to the markup
// endpoint, for when no reply audio is ready yet.
func WaitRedirect(twimlURL string, pauseSecs int) string {
	if pauseSecs <= 0 {
		pauseSecs = 2
	}
	return fmt.Sprintf(`<Response><Pause length="%d"/><Redirect method="POST">%s</Redirect></Response>`,
		pauseSecs, xmlEscape(twimlURL))
}

// Hangup terminates the call with no audio. The safe answer for
// protocol errors and unknown call ids.
func Hangup() string {
	return "<Response><Hangup/></Response>"
}
