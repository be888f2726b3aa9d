package capture

import (
	"math"
	"strings"
	"sync"
)

const (
	meterBars  = 50
	meterEvery = 5
	meterGain  = 6
)

var barGlyphs = []rune(" ▁▂▃▄▅▆▇█")

// Meter keeps a rolling window of input levels for the recording
// visualizer.
type Meter struct {
	mu     sync.Mutex
	levels []float64
	frames int
}

// NewMeter returns a meter with every bar at zero.
func NewMeter() *Meter {
	return &Meter{levels: make([]float64, meterBars)}
}

// Push feeds one frame. Only every fifth frame is sampled.
func (m *Meter) Push(frame []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames++
	if m.frames%meterEvery != 0 || len(frame) == 0 {
		return
	}
	var sum float64
	for _, s := range frame {
		sum += math.Abs(float64(s))
	}
	level := math.Min(1, sum/float64(len(frame))*meterGain)
	m.levels = append(m.levels[1:], level)
}

// Levels returns the window, oldest first.
func (m *Meter) Levels() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.levels...)
}

// Reset zeroes the window.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels = make([]float64, meterBars)
	m.frames = 0
}

// Render draws the window as a line of bar glyphs width cells wide.
func (m *Meter) Render(width int) string {
	levels := m.Levels()
	if width <= 0 {
		return ""
	}
	if width < len(levels) {
		levels = levels[len(levels)-width:]
	}
	var b strings.Builder
	top := len(barGlyphs) - 1
	for _, l := range levels {
		b.WriteRune(barGlyphs[int(math.Round(l*float64(top)))])
	}
	return b.String()
}
