package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/idoll/idoll/internal/chat"
	"github.com/idoll/idoll/internal/ws"
)

func TestFormatStats(t *testing.T) {
	tests := []struct {
		stats   ws.Stats
		latency string
		speeds  string
	}{
		{ws.Stats{}, "-- ms", "↑ -- KB/s ↓ -- KB/s"},
		{ws.Stats{Connected: true}, "-- ms", "↑ -- KB/s ↓ -- KB/s"},
		{ws.Stats{Connected: true, Latency: 41600 * time.Microsecond, UploadKBps: 12.34, DownloadKBps: 1500}, "42 ms", "↑ 12.3 KB/s ↓ 1,500.0 KB/s"},
		{ws.Stats{Latency: 30 * time.Millisecond}, "-- ms", "↑ -- KB/s ↓ -- KB/s"},
	}
	for _, tt := range tests {
		if got := formatLatency(tt.stats); got != tt.latency {
			t.Errorf("formatLatency(%+v) = %q, want %q", tt.stats, got, tt.latency)
		}
		if got := formatSpeeds(tt.stats); got != tt.speeds {
			t.Errorf("formatSpeeds(%+v) = %q, want %q", tt.stats, got, tt.speeds)
		}
	}
}

func TestStatusBarNotes(t *testing.T) {
	bar := statusBar{width: 120}
	if !strings.Contains(bar.view(), "Disconnected") {
		t.Error("disconnected note missing")
	}
	bar.stats.Connected = true
	bar.inCall = true
	bar.elapsed = 3*time.Minute + 7*time.Second
	if !strings.Contains(bar.view(), "In call 03:07") {
		t.Errorf("call note missing: %q", bar.view())
	}
	bar.message = "Copied to clipboard"
	if !strings.Contains(bar.view(), "Copied to clipboard") {
		t.Error("status message not preferred")
	}
}

func TestConversationRender(t *testing.T) {
	v := conversationView{
		msgs: []chat.Message{
			{ID: "u", Role: chat.RoleUser, Content: "hello", Pending: true},
			{ID: "a", Role: chat.RoleAssistant, Content: "a reply that is long enough to wrap around", Tags: []string{"happy"}},
		},
		selected: 1,
		speaking: "a",
		width:    24,
	}
	out := v.render()
	for _, want := range []string{"You", "IDOLL", "sending" + ellipsis, stopMarker, "#happy", "│"} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, playMarker) {
		t.Error("play marker shown for the speaking message")
	}
	if got := (conversationView{width: 40}).render(); !strings.Contains(got, "Say hello") {
		t.Errorf("empty view = %q", got)
	}
}
