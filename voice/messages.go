package voice

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/idoll/idoll/internal/queue"
)

// Messages published by the controller for the Bubble Tea program.

// SpeakingMsg reports that a message's play control changed. Active is
// false once the message's audio drained, was stopped or failed.
type SpeakingMsg struct {
	MessageID string
	Active    bool
}

// PlaybackMsg mirrors a queue transition.
type PlaybackMsg struct {
	Active  bool
	Reason  queue.Reason
	Pending int
}

// StateChangedMsg reports a controller state transition.
type StateChangedMsg struct {
	State     StateType
	PrevState StateType
	Timestamp time.Time
}

// RecordingMsg reports the push-to-talk recorder starting or stopping.
type RecordingMsg struct {
	Active bool
}

// TranscribingMsg is sent once a recording was uploaded and the
// transcription is pending.
type TranscribingMsg struct {
	Samples int
}

// CallMsg reports the call starting or ending.
type CallMsg struct {
	Active  bool
	Started time.Time
	Sent    int
}

// CallTickMsg drives the call timer.
type CallTickMsg struct {
	Elapsed time.Duration
}

// ErrorMsg carries a failure to the UI.
type ErrorMsg struct {
	Err         error
	Recoverable bool
	Component   string
	Action      string
}

// NewErrorMsg builds an ErrorMsg from a controller error.
func NewErrorMsg(err *Error) ErrorMsg {
	return ErrorMsg{
		Err:         err,
		Recoverable: err.IsRecoverable(),
		Component:   err.Component,
		Action:      err.Action,
	}
}

// WaitForUpdate returns a command that blocks for the next controller
// update. Re-issue it after every update.
func WaitForUpdate(updates <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-updates
		if !ok {
			return nil
		}
		return msg
	}
}

// CallTick schedules the next call timer tick relative to started.
func CallTick(started time.Time) tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return CallTickMsg{Elapsed: t.Sub(started)}
	})
}

// FormatElapsed renders a call duration as mm:ss.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
