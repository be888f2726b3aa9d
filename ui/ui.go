// Package ui provides the terminal interface for idoll.
package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/idoll/idoll/internal/chat"
	"github.com/idoll/idoll/internal/ws"
	"github.com/idoll/idoll/voice"
)

const (
	statusBarHeight = 1
	helpHeight      = 1
	inputHeight     = 3
	panelWidth      = 36
)

// Connection is the part of the WebSocket client the UI needs.
type Connection interface {
	Events() <-chan ws.Event
	Stats() ws.Stats
	Connected() bool
}

// Deps are the long-lived objects the UI drives.
type Deps struct {
	Conn      Connection
	Session   *chat.Session
	Summaries *chat.Summaries
	Voice     *voice.Controller
	Logger    *log.Logger
}

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, deps Deps) *tea.Program {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	deps.Logger.Debug("starting idoll", "high_perf_viewport", cfg.HighPerformanceViewport, "server", cfg.Server)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, deps), opts...)
}

type (
	wsEventMsg          ws.Event
	connectionClosedMsg struct{}
	statsTickMsg        time.Time
	meterTickMsg        time.Time
	statusTimeoutMsg    int
	voiceDoneMsg        struct {
		action string
		err    error
	}
	clipboardMsg struct{ err error }
)

type focusArea int

const (
	focusInput focusArea = iota
	focusPanel
)

type model struct {
	cfg    Config
	deps   Deps
	router router
	keys   keyMap

	width  int
	height int

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	help     help.Model
	panel    panelModel

	focus     focusArea
	showPanel bool
	selected  int

	speaking     string
	playing      bool
	recording    bool
	transcribing bool
	inCall       bool
	callStarted  time.Time
	callElapsed  time.Duration

	stats         ws.Stats
	statusMessage string
	statusIsError bool
	statusSeq     int

	fatalErr error
}

func newModel(cfg Config, deps Deps) model {
	vp := viewport.New(0, 0)
	vp.HighPerformanceRendering = cfg.HighPerformanceViewport //nolint:staticcheck

	ta := textarea.New()
	ta.Placeholder = "Type a message" + ellipsis
	ta.ShowLineNumbers = false
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(fuchsia)

	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 1000
	}

	return model{
		cfg:  cfg,
		deps: deps,
		router: router{
			session:   deps.Session,
			summaries: deps.Summaries,
			voice:     deps.Voice,
			logger:    deps.Logger,
		},
		keys:     newKeyMap(),
		viewport: vp,
		input:    ta,
		spinner:  sp,
		help:     help.New(),
		panel:    newPanelModel(deps.Summaries),
		selected: -1,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		waitForEvent(m.deps.Conn.Events()),
		voice.WaitForUpdate(m.deps.Voice.Updates()),
		m.statsTick(),
	)
}

func waitForEvent(events <-chan ws.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return connectionClosedMsg{}
		}
		return wsEventMsg(ev)
	}
}

func (m model) statsTick() tea.Cmd {
	return tea.Tick(time.Duration(m.cfg.StatsInterval)*time.Millisecond, func(t time.Time) tea.Msg {
		return statsTickMsg(t)
	})
}

func meterTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return meterTickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// If there's been an error, any key exits
	if m.fatalErr != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			return m, tea.Quit
		}
	}

	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		var cmd tea.Cmd
		var handled bool
		m, cmd, handled = m.handleKey(msg)
		if handled {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		m.refresh()

	case wsEventMsg:
		cmds = append(cmds, m.handleEvent(ws.Event(msg)), waitForEvent(m.deps.Conn.Events()))

	case connectionClosedMsg:
		m.stats = ws.Stats{}

	case statsTickMsg:
		m.stats = m.deps.Conn.Stats()
		cmds = append(cmds, m.statsTick())

	case meterTickMsg:
		if m.recording || m.inCall {
			cmds = append(cmds, meterTick())
		}

	case voice.SpeakingMsg:
		if msg.Active {
			m.speaking = msg.MessageID
		} else if m.speaking == msg.MessageID {
			m.speaking = ""
		}
		m.refresh()
		cmds = append(cmds, voice.WaitForUpdate(m.deps.Voice.Updates()))

	case voice.PlaybackMsg:
		m.playing = msg.Active
		cmds = append(cmds, voice.WaitForUpdate(m.deps.Voice.Updates()))

	case voice.StateChangedMsg:
		m.deps.Logger.Debug("voice state", "from", msg.PrevState, "to", msg.State)
		cmds = append(cmds, voice.WaitForUpdate(m.deps.Voice.Updates()))

	case voice.RecordingMsg:
		m.recording = msg.Active
		if msg.Active {
			cmds = append(cmds, meterTick())
		}
		cmds = append(cmds, voice.WaitForUpdate(m.deps.Voice.Updates()))

	case voice.TranscribingMsg:
		m.transcribing = true
		cmds = append(cmds, voice.WaitForUpdate(m.deps.Voice.Updates()))

	case voice.CallMsg:
		m.inCall = msg.Active
		m.callStarted = msg.Started
		if msg.Active {
			m.callElapsed = 0
			cmds = append(cmds, voice.CallTick(msg.Started), meterTick())
		} else {
			cmds = append(cmds, m.showStatus("Call ended", false))
		}
		cmds = append(cmds, voice.WaitForUpdate(m.deps.Voice.Updates()))

	case voice.CallTickMsg:
		if m.inCall {
			m.callElapsed = msg.Elapsed
			cmds = append(cmds, voice.CallTick(m.callStarted))
		}

	case voice.ErrorMsg:
		cmds = append(cmds, m.showStatus(describeError(msg.Err), true))
		cmds = append(cmds, voice.WaitForUpdate(m.deps.Voice.Updates()))

	case voiceDoneMsg:
		if msg.err != nil {
			cmds = append(cmds, m.showStatus(describeError(msg.err), !errors.Is(msg.err, chat.ErrGenerating)))
		}

	case clipboardMsg:
		if msg.err != nil {
			cmds = append(cmds, m.showStatus("Copy failed: "+msg.err.Error(), true))
		} else {
			cmds = append(cmds, m.showStatus("Copied to clipboard", false))
		}

	case statusTimeoutMsg:
		if int(msg) == m.statusSeq {
			m.statusMessage = ""
			m.statusIsError = false
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.deps.Session.StreamingID() != "" {
			m.refresh()
		}
		cmds = append(cmds, cmd)
	}

	if m.focus == focusInput && !m.recording {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	// keys reach the viewport only for paging so typing never scrolls
	if k, ok := msg.(tea.KeyMsg); !ok || isPagingKey(k) {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleKey processes global keys. handled reports whether the key was
// consumed and must not reach the input or viewport.
func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit, true

	case key.Matches(msg, m.keys.Panel):
		m.showPanel = !m.showPanel || m.focus != focusPanel
		var cmd tea.Cmd
		if m.showPanel {
			m.focus = focusPanel
			m.input.Blur()
			cmd = m.panel.focus()
		} else {
			m.focus = focusInput
			m.panel.blur()
			cmd = m.input.Focus()
		}
		m.setSize(m.width, m.height)
		m.refresh()
		return m, cmd, true

	case key.Matches(msg, m.keys.Speak):
		target, ok := speakTarget(m.deps.Session.Messages(), m.selected)
		if !ok {
			return m, m.showStatus("Nothing to speak", false), true
		}
		return m, speakCmd(m.deps.Voice, target.ID, target.Content), true

	case key.Matches(msg, m.keys.StopAudio):
		return m, stopCmd(m.deps.Voice), true

	case key.Matches(msg, m.keys.Record):
		return m, recordCmd(m.deps.Voice), true

	case key.Matches(msg, m.keys.Call):
		return m, callCmd(m.deps.Voice), true

	case key.Matches(msg, m.keys.Copy):
		target, ok := m.selectedMessage()
		if !ok {
			return m, m.showStatus("Select a message to copy", false), true
		}
		return m, copyCmd(target.Content), true
	}

	if m.focus == focusPanel {
		if msg.String() == "esc" {
			m.focus = focusInput
			m.showPanel = false
			m.panel.blur()
			m.setSize(m.width, m.height)
			return m, m.input.Focus(), true
		}
		if msg.String() == "enter" {
			if s, ok := m.panel.selected(); ok {
				return m, m.showStatus(fmt.Sprintf("%s: %s", s.Title, s.LastMessage), false), true
			}
			return m, nil, true
		}
		var cmd tea.Cmd
		m.panel, cmd = m.panel.update(msg)
		return m, cmd, true
	}

	switch {
	case key.Matches(msg, m.keys.Send):
		if m.recording {
			return m, recordCmd(m.deps.Voice), true
		}
		return m.submit()

	case key.Matches(msg, m.keys.Up) && m.input.Value() == "":
		m.moveSelection(-1)
		return m, nil, true

	case key.Matches(msg, m.keys.Down) && m.input.Value() == "":
		m.moveSelection(1)
		return m, nil, true
	}
	return m, nil, false
}

func isPagingKey(k tea.KeyMsg) bool {
	switch k.String() {
	case "pgup", "pgdown":
		return true
	}
	return false
}

func (m model) submit() (model, tea.Cmd, bool) {
	_, err := m.deps.Session.Submit(m.input.Value(), nil)
	switch {
	case errors.Is(err, chat.ErrGenerating):
		m.refresh()
		return m, m.showStatus("Stopped generating", false), true
	case errors.Is(err, chat.ErrEmptyMessage):
		return m, nil, true
	case err != nil:
		return m, m.showStatus(describeError(err), true), true
	}
	m.input.Reset()
	m.selected = -1
	m.refresh()
	m.viewport.GotoBottom()
	return m, nil, true
}

func (m *model) handleEvent(ev ws.Event) tea.Cmd {
	m.stats = m.deps.Conn.Stats()
	switch ev.Kind {
	case ws.EventConnected:
		return m.showStatus("Connected", false)
	case ws.EventDisconnected:
		return m.showStatus("Disconnected", true)
	case ws.EventReconnecting:
		return m.showStatus(fmt.Sprintf("Reconnecting (attempt %d)%s", ev.Attempt, ellipsis), false)
	case ws.EventGaveUp:
		return m.showStatus("Connection lost. Restart idoll to reconnect.", true)
	case ws.EventMessage:
	default:
		return nil
	}

	r := m.router.apply(ev.Message)
	if r.Transcription != "" {
		m.transcribing = false
		m.input.SetValue(chat.AppendTranscription(m.input.Value(), r.Transcription))
		m.input.CursorEnd()
	}
	if r.Message != nil || r.Conversations {
		if r.Conversations {
			m.panel.refresh()
		}
		m.refresh()
	}
	return nil
}

// speakTarget is the selected assistant message, or the latest one.
func speakTarget(msgs []chat.Message, selected int) (chat.Message, bool) {
	if selected >= 0 && selected < len(msgs) {
		if sel := msgs[selected]; sel.Role == chat.RoleAssistant && !sel.Streaming {
			return sel, true
		}
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleAssistant && !msgs[i].Streaming && msgs[i].Content != "" {
			return msgs[i], true
		}
	}
	return chat.Message{}, false
}

func (m model) selectedMessage() (chat.Message, bool) {
	msgs := m.deps.Session.Messages()
	if m.selected < 0 || m.selected >= len(msgs) {
		return chat.Message{}, false
	}
	return msgs[m.selected], true
}

func (m *model) moveSelection(delta int) {
	n := len(m.deps.Session.Messages())
	if n == 0 {
		return
	}
	switch {
	case m.selected < 0 && delta < 0:
		m.selected = n - 1
	case m.selected < 0:
		return
	default:
		m.selected += delta
	}
	if m.selected >= n {
		m.selected = -1
	} else if m.selected < 0 {
		m.selected = 0
	}
	m.refresh()
}

func (m *model) setSize(w, h int) {
	m.width = w
	m.height = h

	convWidth := w
	if m.showPanel {
		convWidth = max(20, w-panelWidth)
		m.panel.setSize(panelWidth, h-statusBarHeight-helpHeight)
	}
	if m.cfg.MaxWidth > 0 && uint(convWidth) > m.cfg.MaxWidth { //nolint:gosec
		convWidth = int(m.cfg.MaxWidth) //nolint:gosec
	}
	m.viewport.Width = convWidth
	m.viewport.Height = max(1, h-statusBarHeight-helpHeight-inputHeight-1)
	m.input.SetWidth(max(10, convWidth))
	m.help.Width = w
}

// refresh re-renders the conversation, following the bottom when the
// viewport was already there.
func (m *model) refresh() {
	follow := m.viewport.AtBottom() || m.viewport.TotalLineCount() == 0
	m.viewport.SetContent(conversationView{
		msgs:     m.deps.Session.Messages(),
		selected: m.selected,
		speaking: m.speaking,
		spinner:  m.spinner.View(),
		width:    m.viewport.Width,
	}.render())
	if follow && m.selected < 0 {
		m.viewport.GotoBottom()
	}
}

func (m *model) showStatus(text string, isError bool) tea.Cmd {
	m.statusSeq++
	m.statusMessage = text
	m.statusIsError = isError
	seq := m.statusSeq
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusTimeoutMsg(seq)
	})
}

func (m model) View() string {
	if m.fatalErr != nil {
		return errorView(m.fatalErr, true)
	}

	conv := m.viewport.View() + "\n" + m.inputView()
	if m.showPanel {
		conv = lipgloss.JoinHorizontal(lipgloss.Top, conv, m.panel.view())
	}

	bar := statusBar{
		stats:        m.stats,
		message:      m.statusMessage,
		isError:      m.statusIsError,
		recording:    m.recording,
		transcribing: m.transcribing,
		inCall:       m.inCall,
		elapsed:      m.callElapsed,
		width:        m.width,
	}
	if m.cfg.ShowQueueStats {
		qs := m.deps.Voice.Queue().Stats()
		bar.extra = fmt.Sprintf("queue %d played %d failed %d", m.deps.Voice.Queue().Len(), qs.Played, qs.Failed)
	}

	var b strings.Builder
	b.WriteString(conv)
	b.WriteString("\n")
	b.WriteString(bar.view())
	b.WriteString("\n")
	b.WriteString(helpViewStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))
	return b.String()
}

// inputView shows the text input, or the level meter while the microphone
// is live.
func (m model) inputView() string {
	width := max(10, m.viewport.Width)
	meter := m.deps.Voice.Meter()
	switch {
	case m.inCall:
		label := callStyle.Render("☎ " + voice.FormatElapsed(m.callElapsed) + " ")
		bars := meterStyle.Render(meter.Render(width - 10))
		return label + bars + strings.Repeat("\n", inputHeight-1)
	case m.recording:
		label := recordingStyle.Render("● REC ")
		bars := meterStyle.Render(meter.Render(width - 8))
		hint := pendingStyle.Render("enter or ctrl+r to stop")
		return label + bars + "\n" + hint + strings.Repeat("\n", inputHeight-2)
	}
	return m.input.View()
}

func errorView(err error, fatal bool) string {
	exitMsg := "press any key to "
	if fatal {
		exitMsg += "exit"
	} else {
		exitMsg += "return"
	}
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle.Render("ERROR"),
		err,
		helpViewStyle.Render(exitMsg),
	)
	return "\n" + lipgloss.NewStyle().PaddingLeft(2).Render(s)
}

// describeError turns controller and session errors into status text.
func describeError(err error) string {
	switch {
	case errors.Is(err, ws.ErrNotConnected):
		return "Not connected to server. Please wait for reconnection."
	case errors.Is(err, voice.ErrNoMicrophone):
		return "No microphone available."
	case errors.Is(err, voice.ErrNoFallback):
		return "Not connected and no local voice is installed."
	case errors.Is(err, voice.ErrNothingToSpeak):
		return "Nothing to speak."
	case errors.Is(err, voice.ErrRecordingEmpty):
		return "No audio was recorded."
	case errors.Is(err, chat.ErrGenerating):
		return "Stopped generating"
	}
	return err.Error()
}

func speakCmd(v *voice.Controller, id, text string) tea.Cmd {
	return func() tea.Msg {
		return voiceDoneMsg{action: "speak", err: v.Speak(id, text)}
	}
}

func stopCmd(v *voice.Controller) tea.Cmd {
	return func() tea.Msg {
		v.Stop()
		return voiceDoneMsg{action: "stop"}
	}
}

func recordCmd(v *voice.Controller) tea.Cmd {
	return func() tea.Msg {
		return voiceDoneMsg{action: "record", err: v.ToggleRecording()}
	}
}

func callCmd(v *voice.Controller) tea.Cmd {
	return func() tea.Msg {
		return voiceDoneMsg{action: "call", err: v.ToggleCall()}
	}
}

func copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return clipboardMsg{err: clipboard.WriteAll(text)}
	}
}
