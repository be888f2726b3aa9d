package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/idoll/idoll/internal/audio"
	"github.com/idoll/idoll/internal/cache"
	"github.com/idoll/idoll/internal/capture"
	"github.com/idoll/idoll/internal/chat"
	"github.com/idoll/idoll/internal/protocol"
	"github.com/idoll/idoll/internal/speech"
	"github.com/idoll/idoll/internal/ws"
	"github.com/idoll/idoll/voice"
)

// app owns everything a command needs to talk to the server and play
// speech. Close releases it in reverse order.
type app struct {
	client    *ws.Client
	session   *chat.Session
	summaries *chat.Summaries
	voice     *voice.Controller
	clips     *cache.ClipCache
	out       audio.Output
	logger    *log.Logger

	cancel  context.CancelFunc
	runDone chan struct{}
	runErr  error

	closeOnce sync.Once
}

func newApp(ctx context.Context) (*app, error) {
	logger := log.Default()

	vcfg, err := voice.LoadConfigFromViper()
	if err != nil {
		return nil, err
	}
	if mute {
		vcfg.Mute = true
	}

	wsURL, err := ws.ResolveURL(viper.GetString("server"), viper.GetString("ws_url"))
	if err != nil {
		return nil, err
	}
	user, err := userID()
	if err != nil {
		logger.Warn("could not persist user id", "err", err)
	}

	wcfg := ws.DefaultConfig()
	wcfg.URL = wsURL
	wcfg.Proxy = viper.GetString("proxy")
	wcfg.UserID = user
	client, err := ws.New(wcfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		client:    client,
		summaries: chat.NewSummaries(),
		session:   chat.NewSession(client, logger),
		logger:    logger,
		runDone:   make(chan struct{}),
	}

	a.out, err = openOutput(vcfg, logger)
	if err != nil {
		return nil, err
	}

	opts := voice.Options{
		Sink:       audio.NewDecodingSink(a.out),
		Sender:     client,
		Microphone: microphone(vcfg.Record.FrameSize),
		Logger:     logger,
	}

	if vcfg.Cache.Enabled {
		cacheHome, err := cacheDir()
		if err != nil {
			logger.Warn("clip cache limited to memory", "err", err)
		}
		ccfg := vcfg.Cache.ToCacheConfig(cacheHome)
		if ccfg.DiskPath, err = homedir.Expand(ccfg.DiskPath); err != nil {
			_ = a.out.Close()
			return nil, fmt.Errorf("invalid cache dir: %w", err)
		}
		if a.clips, err = cache.New(ccfg); err != nil {
			a.clips = nil
			logger.Warn("clip cache disabled", "err", err)
		} else {
			opts.Clips = a.clips
		}
	}

	if vcfg.Synth.Enabled {
		synth, err := speech.NewCommand(vcfg.Synth.ToCommandConfig(), logger)
		switch {
		case errors.Is(err, speech.ErrNoSynthesizer):
			logger.Info("no local synthesizer", "command", vcfg.Synth.Command)
		case err != nil:
			a.release()
			return nil, err
		default:
			opts.Synthesizer = synth
		}
	}

	if a.voice, err = voice.NewController(vcfg, opts); err != nil {
		a.release()
		return nil, err
	}

	ctx, a.cancel = context.WithCancel(ctx)
	go func() {
		defer close(a.runDone)
		a.runErr = client.Run(ctx)
	}()
	return a, nil
}

// openOutput opens the sound device, or a silent player when muted or no
// device is available.
func openOutput(cfg voice.Config, logger *log.Logger) (audio.Output, error) {
	pcfg := cfg.ToPlayerConfig()
	if cfg.Mute {
		return audio.NewMockPlayer(pcfg.Format, audio.MockCallbacks{}), nil
	}
	p, err := audio.NewPlayer(pcfg)
	if err != nil {
		logger.Warn("audio output unavailable, playing silently", "err", err)
		return audio.NewMockPlayer(pcfg.Format, audio.MockCallbacks{}), nil
	}
	return p, nil
}

func microphone(frameSize int) voice.Microphone {
	return func() (capture.Source, error) {
		src, err := capture.NewPortAudioSource(capture.SampleRate, frameSize)
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		return src, nil
	}
}

func cacheDir() (string, error) {
	if c := os.Getenv("IDOLL_CACHE_HOME"); c != "" {
		return homedir.Expand(c) //nolint:wrapcheck
	}
	return gap.NewScope(gap.User, "idoll").CacheDir() //nolint:wrapcheck
}

// userID returns the configured user id, or one generated on first run
// and kept in the user data directory.
func userID() (string, error) {
	if id := strings.TrimSpace(viper.GetString("user")); id != "" {
		return id, nil
	}
	dirs, err := gap.NewScope(gap.User, "idoll").DataDirs()
	if err != nil || len(dirs) == 0 {
		return uuid.NewString(), err //nolint:wrapcheck
	}
	file := filepath.Join(dirs[0], "user_id")
	if b, err := os.ReadFile(file); err == nil {
		if id := strings.TrimSpace(string(b)); id != "" {
			return id, nil
		}
	}
	id := uuid.NewString()
	if err := os.MkdirAll(dirs[0], 0o700); err != nil {
		return id, err //nolint:wrapcheck
	}
	return id, os.WriteFile(file, []byte(id+"\n"), 0o600) //nolint:wrapcheck
}

// historyPath is where the line mode keeps its input history.
func historyPath() string {
	dir, err := cacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}

// release closes what newApp opened before the controller existed.
func (a *app) release() {
	if a.clips != nil {
		_ = a.clips.Close()
	}
	_ = a.out.Close()
}

// Close stops the controller, the connection and the cache.
func (a *app) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = a.voice.Close()
		a.cancel()
		<-a.runDone
		if a.clips != nil {
			if cerr := a.clips.Close(); err == nil {
				err = cerr
			}
		}
		if cerr := a.out.Close(); err == nil {
			err = cerr
		}
		if a.runErr != nil && !errors.Is(a.runErr, context.Canceled) {
			a.logger.Debug("connection ended", "err", a.runErr)
		}
	})
	return err
}

// pump routes server messages for commands that run without the UI.
// Transcriptions are delivered on transcripts when it is not nil. The
// returned channel is closed once the connection is open.
func (a *app) pump(ctx context.Context, transcripts chan<- string) <-chan struct{} {
	connected := make(chan struct{})
	go func() {
		var once sync.Once
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-a.client.Events():
				if !ok {
					return
				}
				switch ev.Kind {
				case ws.EventConnected:
					once.Do(func() { close(connected) })
				case ws.EventGaveUp:
					a.logger.Error("connection lost", "err", ev.Err)
				case ws.EventMessage:
					a.route(ev.Message, transcripts)
				}
			}
		}
	}()
	return connected
}

func (a *app) route(in protocol.Inbound, transcripts chan<- string) {
	switch msg := in.(type) {
	case protocol.AudioChunk:
		if err := a.voice.HandleAudio(msg); err != nil {
			a.logger.Warn("audio chunk dropped", "err", err)
		}
	case protocol.Transcription:
		a.voice.Transcribed()
		if transcripts != nil {
			select {
			case transcripts <- msg.Text:
			default:
			}
		}
	default:
		a.logger.Debug("ignored message", "type", in.MessageType())
	}
}
