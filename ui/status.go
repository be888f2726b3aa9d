package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/ansi"

	"github.com/idoll/idoll/internal/ws"
	"github.com/idoll/idoll/voice"
)

const statusMessageTimeout = 4 * time.Second

// formatLatency renders the round trip like "42 ms", or "-- ms" while
// disconnected or before the first pong.
func formatLatency(s ws.Stats) string {
	if !s.Connected || s.Latency <= 0 {
		return "-- ms"
	}
	return fmt.Sprintf("%d ms", s.Latency.Round(time.Millisecond).Milliseconds())
}

func formatSpeed(kbps float64) string {
	if kbps <= 0 {
		return "--"
	}
	return humanize.FormatFloat("#,###.#", kbps)
}

// formatSpeeds renders "↑ x KB/s ↓ y KB/s".
func formatSpeeds(s ws.Stats) string {
	return "↑ " + formatSpeed(s.UploadKBps) + " KB/s ↓ " + formatSpeed(s.DownloadKBps) + " KB/s"
}

type statusBar struct {
	stats        ws.Stats
	message      string
	isError      bool
	recording    bool
	transcribing bool
	inCall       bool
	elapsed      time.Duration
	extra        string
	width        int
}

func (s statusBar) view() string {
	logo := logoStyle.Render(" IDOLL ")

	dot := offlineDotStyle.Render(" ●")
	if s.stats.Connected {
		dot = onlineDotStyle.Render(" ●")
	}
	stats := statusBarStatsStyle.Render(" " + formatLatency(s.stats) + "  " + formatSpeeds(s.stats) + " ")

	var note string
	switch {
	case s.message != "":
		note = s.message
	case s.inCall:
		note = "In call " + voice.FormatElapsed(s.elapsed)
	case s.recording:
		note = "Recording" + ellipsis
	case s.transcribing:
		note = "Transcribing" + ellipsis
	case !s.stats.Connected:
		note = "Disconnected"
	default:
		note = "? help"
	}
	if s.extra != "" {
		note += " | " + s.extra
	}

	room := max(0, s.width-ansi.PrintableRuneWidth(logo)-ansi.PrintableRuneWidth(dot)-ansi.PrintableRuneWidth(stats))
	note = truncateCells(" "+note+" ", room)
	padding := strings.Repeat(" ", max(0, room-ansi.PrintableRuneWidth(note)))

	style := statusBarNoteStyle
	switch {
	case s.message != "" && s.isError:
		style = statusBarErrorStyle
	case s.message != "":
		style = statusBarMessageStyle
	}
	return logo + dot + style.Render(note+padding) + stats
}
