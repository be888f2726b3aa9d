package ws

import (
	"sync"
	"time"
)

const (
	downloadWindow  = time.Second
	downloadIdleCap = 10 * time.Second
)

// Stats is a snapshot of connection health.
type Stats struct {
	Connected    bool
	Latency      time.Duration
	UploadKBps   float64
	DownloadKBps float64
}

// meter tracks latency and throughput. Timestamps are milliseconds since the
// meter was created, which is what pings carry on the wire.
type meter struct {
	mu    sync.Mutex
	start time.Time
	now   func() time.Time

	connected bool

	lastPing  float64
	pingAt    time.Time
	pingBytes int
	latency   time.Duration

	upload float64

	download  float64
	downStart time.Time
	downBytes int
}

func newMeter(now func() time.Time) *meter {
	if now == nil {
		now = time.Now
	}
	return &meter{start: now(), now: now}
}

// stamp returns the timestamp for a ping sent now.
func (m *meter) stamp() float64 {
	return float64(m.now().Sub(m.start).Microseconds()) / 1000
}

func (m *meter) pingSent(ts float64, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPing = ts
	m.pingAt = m.now()
	m.pingBytes = size
}

// pong records a pong and reports whether it answered the latest ping.
func (m *meter) pong(ts float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts == 0 || ts != m.lastPing {
		return false
	}
	rtt := m.now().Sub(m.pingAt)
	m.latency = rtt
	if secs := rtt.Seconds(); secs > 0 {
		m.upload = float64(m.pingBytes) / secs / 1024
	}
	return true
}

// sent folds the instantaneous speed of one write into the upload estimate.
func (m *meter) sent(size int, took time.Duration) {
	secs := took.Seconds()
	if secs <= 0 {
		return
	}
	instant := float64(size) / secs / 1024
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upload == 0 {
		m.upload = instant
		return
	}
	m.upload = m.upload*0.7 + instant*0.3
}

func (m *meter) received(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if m.downStart.IsZero() {
		m.downStart = now
		m.downBytes = size
		return
	}
	m.downBytes += size
	if elapsed := now.Sub(m.downStart); elapsed >= downloadWindow {
		m.download = float64(m.downBytes) / elapsed.Seconds() / 1024
		m.downStart = now
		m.downBytes = size
	}
}

// tick resets the download speed after a stretch without traffic.
func (m *meter) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.downStart.IsZero() && m.now().Sub(m.downStart) > downloadIdleCap {
		m.download = 0
		m.downStart = time.Time{}
		m.downBytes = 0
	}
}

func (m *meter) setConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
	if !connected {
		m.latency = 0
		m.upload = 0
		m.download = 0
		m.lastPing = 0
	}
}

func (m *meter) snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Connected:    m.connected,
		Latency:      m.latency,
		UploadKBps:   m.upload,
		DownloadKBps: m.download,
	}
}
