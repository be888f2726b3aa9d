package ws

import (
	"math"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMeter() (*meter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	return newMeter(clock.now), clock
}

func TestMeterLatencyFromMatchingPong(t *testing.T) {
	m, clock := newTestMeter()
	m.setConnected(true)

	clock.advance(time.Second)
	ts := m.stamp()
	if ts != 1000 {
		t.Fatalf("stamp = %v, want 1000", ts)
	}
	m.pingSent(ts, 2048)
	clock.advance(500 * time.Millisecond)

	if m.pong(ts + 1) {
		t.Error("pong for another ping should be ignored")
	}
	if !m.pong(ts) {
		t.Fatal("matching pong rejected")
	}

	s := m.snapshot()
	if s.Latency != 500*time.Millisecond {
		t.Errorf("latency = %v", s.Latency)
	}
	if s.UploadKBps != 4 {
		t.Errorf("upload = %v KB/s, want 4", s.UploadKBps)
	}
}

func TestMeterUploadMovingAverage(t *testing.T) {
	m, _ := newTestMeter()
	m.sent(1024, time.Second)
	if got := m.snapshot().UploadKBps; got != 1 {
		t.Fatalf("first sample = %v, want 1", got)
	}
	m.sent(11*1024, time.Second)
	if got := m.snapshot().UploadKBps; math.Abs(got-4) > 1e-9 {
		t.Errorf("average = %v, want 4", got)
	}
}

func TestMeterDownloadWindow(t *testing.T) {
	m, clock := newTestMeter()

	m.received(1024)
	clock.advance(500 * time.Millisecond)
	m.received(1024)
	if got := m.snapshot().DownloadKBps; got != 0 {
		t.Fatalf("speed computed before a full window: %v", got)
	}

	clock.advance(1500 * time.Millisecond)
	m.received(2048)
	if got := m.snapshot().DownloadKBps; got != 2 {
		t.Fatalf("download = %v, want 2", got)
	}

	clock.advance(11 * time.Second)
	m.tick()
	if got := m.snapshot().DownloadKBps; got != 0 {
		t.Errorf("download should reset after inactivity, got %v", got)
	}
}

func TestMeterDisconnectResets(t *testing.T) {
	m, clock := newTestMeter()
	m.setConnected(true)
	ts := m.stamp()
	m.pingSent(ts, 100)
	clock.advance(time.Millisecond * 20)
	m.pong(ts)
	m.setConnected(false)

	s := m.snapshot()
	if s.Connected || s.Latency != 0 || s.UploadKBps != 0 {
		t.Errorf("expected zeroed stats, got %+v", s)
	}
}
