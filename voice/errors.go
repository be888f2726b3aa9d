package voice

import (
	"errors"
	"time"

	"github.com/idoll/idoll/internal/speech"
	"github.com/idoll/idoll/internal/ws"
)

var (
	// Playback errors
	ErrNothingToSpeak = errors.New("nothing to speak")
	ErrNoFallback     = errors.New("not connected and no local synthesizer available")

	// Microphone errors
	ErrNoMicrophone   = errors.New("no microphone available")
	ErrAlreadyInCall  = errors.New("call already active")
	ErrNotInCall      = errors.New("no active call")
	ErrRecordingEmpty = errors.New("recording captured no audio")

	// Controller errors
	ErrControllerClosed = errors.New("voice controller has been closed")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// IsRecoverableError reports whether the user can simply try again.
func IsRecoverableError(err error) bool {
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, ErrControllerClosed),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrNoMicrophone),
		errors.Is(err, speech.ErrNoSynthesizer):
		return false
	}
	return true
}

// Severity is how loudly an error is reported.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	default:
		return "error"
	}
}

// Error describes a failure together with the component and action that
// produced it.
type Error struct {
	Err       error
	Component string // player, recorder, call, synth, cache
	Action    string
	Severity  Severity
	Timestamp time.Time
	Context   map[string]any
}

// NewError wraps err with component and action.
func NewError(err error, component, action string) *Error {
	sev := SeverityError
	if errors.Is(err, ws.ErrNotConnected) {
		sev = SeverityWarning
	}
	return &Error{
		Err:       err,
		Component: component,
		Action:    action,
		Severity:  sev,
		Timestamp: time.Now(),
	}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Component + ": " + e.Action + " failed"
	}
	return e.Component + ": " + e.Action + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRecoverable reports whether the wrapped error is recoverable.
func (e *Error) IsRecoverable() bool {
	return IsRecoverableError(e.Err)
}

// WithSeverity sets the error severity.
func (e *Error) WithSeverity(s Severity) *Error {
	e.Severity = s
	return e
}

// WithContext attaches a key/value pair.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
