package capture

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/idoll/idoll/internal/protocol"
)

// FrameSender delivers call frames. It may reject frames with a throttling
// error, which the streamer treats as a dropped frame.
type FrameSender interface {
	Send(protocol.Outbound) error
}

// Streamer sends the microphone to the server frame by frame while a call
// is active.
type Streamer struct {
	src    Source
	sender FrameSender
	meter  *Meter
	logger *log.Logger

	sent    int
	dropped int
	started time.Time
}

// NewStreamer streams src to sender. meter may be nil.
func NewStreamer(src Source, sender FrameSender, meter *Meter, logger *log.Logger) *Streamer {
	if logger == nil {
		logger = log.Default()
	}
	return &Streamer{src: src, sender: sender, meter: meter, logger: logger.WithPrefix("call")}
}

// Run streams until ctx is done or the source fails.
func (s *Streamer) Run(ctx context.Context) error {
	if err := s.src.Start(); err != nil {
		return err
	}
	defer func() {
		if err := s.src.Stop(); err != nil {
			s.logger.Debug("stop source", "err", err)
		}
	}()
	s.started = time.Now()
	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("call ended", "sent", s.sent, "dropped", s.dropped, "duration", time.Since(s.started).Round(time.Second))
			return nil
		}
		frame, err := s.src.Read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if s.meter != nil {
			s.meter.Push(frame)
		}
		if err := s.sender.Send(protocol.NewVADAudio(EncodeFrame(frame))); err != nil {
			s.dropped++
			if !errors.Is(err, context.Canceled) {
				s.logger.Debug("frame dropped", "err", err)
			}
			continue
		}
		s.sent++
	}
}

// Sent returns the number of frames delivered.
func (s *Streamer) Sent() int {
	return s.sent
}
