package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/idoll/idoll/internal/capture"
	"github.com/idoll/idoll/internal/ws"
	"github.com/idoll/idoll/voice"
)

var (
	listenFile    string
	listenTimeout time.Duration

	listenCmd = &cobra.Command{
		Use:     "listen",
		Short:   "Transcribe speech and print it",
		Long:    paragraph(fmt.Sprintf("\n%s from the microphone until enter is pressed, or from an audio file, and print what the server heard.", keyword("Record"))),
		Example: paragraph("idoll listen\nidoll listen --file memo.wav"),
		Args:    cobra.NoArgs,
		RunE:    runListen,
	}
)

func init() {
	listenCmd.Flags().StringVarP(&listenFile, "file", "f", "", "transcribe an audio file (wav, mp3, ogg, opus) instead of the microphone")
	listenCmd.Flags().DurationVar(&listenTimeout, "timeout", 30*time.Second, "how long to wait for the server")
}

func runListen(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	transcripts := make(chan string, 1)
	connected := a.pump(ctx, transcripts)
	select {
	case <-connected:
	case <-time.After(listenTimeout):
		return ws.ErrNotConnected
	case <-ctx.Done():
		return nil
	}

	if listenFile != "" {
		err = sendFile(a, listenFile)
	} else {
		err = recordUntilEnter(ctx, a.voice)
	}
	if err != nil {
		return err
	}

	select {
	case text := <-transcripts:
		fmt.Println(text)
		return nil
	case <-time.After(listenTimeout):
		return errors.New("no transcription received")
	case <-ctx.Done():
		return nil
	}
}

func sendFile(a *app, name string) error {
	path, err := homedir.Expand(name)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read audio file: %w", err)
	}
	req, err := capture.FileRequest(raw)
	if err != nil {
		return fmt.Errorf("unable to encode %s: %w", name, err)
	}
	return a.client.Send(req) //nolint:wrapcheck
}

// recordUntilEnter records until a line is read from stdin or the
// recording reaches its length limit.
func recordUntilEnter(ctx context.Context, v *voice.Controller) error {
	if err := v.ToggleRecording(); err != nil {
		return err //nolint:wrapcheck
	}
	fmt.Fprintln(os.Stderr, "Recording, press enter to stop…") //nolint:errcheck

	enter := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		close(enter)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck
		case <-enter:
			if !v.Recording() {
				return nil
			}
			return v.ToggleRecording() //nolint:wrapcheck
		case msg := <-v.Updates():
			switch msg := msg.(type) {
			case voice.ErrorMsg:
				return msg.Err
			case voice.TranscribingMsg:
				// the length limit ended the recording and it was uploaded
				return nil
			}
		}
	}
}
