package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/idoll/idoll/internal/queue"
	"github.com/idoll/idoll/voice"
)

// settleDelay is how long playback must stay idle before a streamed reply
// is considered finished. Chunks can arrive after the queue drained.
const settleDelay = 750 * time.Millisecond

var (
	sayConnectTimeout time.Duration
	sayTimeout        time.Duration

	sayCmd = &cobra.Command{
		Use:     "say TEXT",
		Short:   "Speak text and exit",
		Long:    paragraph(fmt.Sprintf("\n%s text with the server voice, or the local synthesizer when the server can't be reached.", keyword("Speak"))),
		Example: paragraph("idoll say \"good morning\"\nidoll say --mute hello"),
		Args:    cobra.MinimumNArgs(1),
		RunE:    runSay,
	}
)

func init() {
	sayCmd.Flags().DurationVar(&sayConnectTimeout, "connect-timeout", 5*time.Second, "how long to wait for the server before speaking locally")
	sayCmd.Flags().DurationVar(&sayTimeout, "timeout", 2*time.Minute, "give up when nothing has played by then")
}

func runSay(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	connected := a.pump(ctx, nil)
	select {
	case <-connected:
	case <-time.After(sayConnectTimeout):
		a.logger.Info("server not reachable, speaking locally")
	case <-ctx.Done():
		return nil
	}

	if err := a.voice.Speak("say", text); err != nil {
		return err //nolint:wrapcheck
	}

	ctx, cancel := context.WithTimeout(ctx, sayTimeout)
	defer cancel()
	err = waitSpoken(ctx, a.voice.Updates())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// waitSpoken returns once speech has ended and no more audio followed
// within settleDelay.
func waitSpoken(ctx context.Context, updates <-chan tea.Msg) error {
	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck
		case <-settle:
			return nil
		case msg := <-updates:
			switch msg := msg.(type) {
			case voice.SpeakingMsg:
				if !msg.Active {
					settle = time.After(settleDelay)
				}
			case voice.PlaybackMsg:
				if msg.Active {
					settle = nil
				} else if settle == nil && msg.Reason == queue.ReasonDrained {
					settle = time.After(settleDelay)
				}
			case voice.ErrorMsg:
				return msg.Err
			}
		}
	}
}
