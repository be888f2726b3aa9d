package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/muesli/reflow/wordwrap"
	"github.com/peterh/liner"

	"github.com/idoll/idoll/internal/chat"
	"github.com/idoll/idoll/internal/ws"
	"github.com/idoll/idoll/voice"
)

var plainCommands = []string{"/speak", "/stop", "/record", "/call", "/conversations", "/help", "/quit"}

// PlainOptions configures the line mode.
type PlainOptions struct {
	Width       int
	HistoryPath string
	Out         io.Writer
}

// plainPrinter serializes output from the prompt and the event goroutines.
type plainPrinter struct {
	mu    sync.Mutex
	out   io.Writer
	width int
}

func (p *plainPrinter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := fmt.Sprintf(format, args...)
	if p.width > 0 {
		s = wordwrap.String(s, p.width)
	}
	fmt.Fprintln(p.out, s) //nolint:errcheck
}

// RunPlain runs a line oriented client for terminals where the full screen
// interface is unwanted. It returns when the user quits or ctx is done.
func RunPlain(ctx context.Context, deps Deps, opts PlainOptions) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	p := &plainPrinter{out: opts.Out, width: opts.Width}
	r := router{session: deps.Session, summaries: deps.Summaries, voice: deps.Voice, logger: deps.Logger}

	var (
		mu    sync.Mutex
		heard string
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		events := deps.Conn.Events()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				switch ev.Kind {
				case ws.EventConnected:
					p.printf("* connected")
				case ws.EventDisconnected:
					p.printf("* disconnected")
				case ws.EventReconnecting:
					p.printf("* reconnecting (attempt %d)", ev.Attempt)
				case ws.EventGaveUp:
					p.printf("* connection lost, restart to reconnect")
				case ws.EventMessage:
					res := r.apply(ev.Message)
					if res.Transcription != "" {
						mu.Lock()
						heard = chat.AppendTranscription(heard, res.Transcription)
						text := heard
						mu.Unlock()
						p.printf("* heard: %s (empty line sends it)", text)
					}
					if res.Final && res.Message != nil {
						p.printf("%s: %s", res.Message.Role.DisplayName(), res.Message.Content)
					}
				}
			}
		}
	}()

	go func() {
		updates := deps.Voice.Updates()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-updates:
				switch msg := msg.(type) {
				case voice.ErrorMsg:
					p.printf("! %s", describeError(msg.Err))
				case voice.RecordingMsg:
					if msg.Active {
						p.printf("* recording, /record again to stop")
					}
				case voice.CallMsg:
					if msg.Active {
						p.printf("* call started, /call again to hang up")
					} else {
						p.printf("* call ended after %d frames", msg.Sent)
					}
				}
			}
		}
	}()

	line := liner.NewLiner()
	defer line.Close() //nolint:errcheck
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(l string) []string {
		var out []string
		for _, c := range plainCommands {
			if strings.HasPrefix(c, strings.ToLower(l)) {
				out = append(out, c)
			}
		}
		return out
	})
	if opts.HistoryPath != "" {
		if f, err := os.Open(opts.HistoryPath); err == nil {
			_, _ = line.ReadHistory(f)
			_ = f.Close()
		}
		defer func() {
			if f, err := os.Create(opts.HistoryPath); err == nil {
				_, _ = line.WriteHistory(f)
				_ = f.Close()
			}
		}()
	}

	p.printf("idoll line mode. Type /help for commands.")
	for ctx.Err() == nil {
		input, err := line.Prompt("> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("unable to read input: %w", err)
		}
		input = strings.TrimSpace(input)

		if input == "" {
			mu.Lock()
			input, heard = heard, ""
			mu.Unlock()
			if input == "" {
				continue
			}
		}
		if strings.HasPrefix(input, "/") {
			if quit := runPlainCommand(deps, p, input); quit {
				return nil
			}
			continue
		}

		line.AppendHistory(input)
		if _, err := deps.Session.Submit(input, nil); err != nil && !errors.Is(err, chat.ErrEmptyMessage) {
			p.printf("! %s", describeError(err))
		}
	}
	return ctx.Err()
}

func runPlainCommand(deps Deps, p *plainPrinter, input string) bool {
	cmd := strings.Fields(strings.ToLower(input))[0]
	var err error
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/speak":
		target, ok := speakTarget(deps.Session.Messages(), -1)
		if !ok {
			p.printf("! nothing to speak")
			return false
		}
		err = deps.Voice.Speak(target.ID, target.Content)
	case "/stop":
		p.printf("* stopped, %d chunks dropped", deps.Voice.Stop())
	case "/record":
		err = deps.Voice.ToggleRecording()
	case "/call":
		err = deps.Voice.ToggleCall()
	case "/conversations":
		list := deps.Summaries.List()
		if len(list) == 0 {
			p.printf("* no conversations")
		}
		for _, s := range list {
			p.printf("  %s  %s", s.Title, s.Timestamp.String())
		}
	case "/help":
		p.printf("commands: %s", strings.Join(plainCommands, " "))
	default:
		p.printf("! unknown command %s", cmd)
	}
	if err != nil {
		p.printf("! %s", describeError(err))
	}
	return false
}
