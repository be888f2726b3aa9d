package ui

// Config contains TUI-specific configuration.
type Config struct {
	// Server is shown in the help view.
	Server      string
	UserID      string
	EnableMouse bool
	// MaxWidth caps the conversation wrap width, 0 uses the full window.
	MaxWidth uint

	// For debugging the UI
	HighPerformanceViewport bool `env:"IDOLL_HIGH_PERFORMANCE_VIEWPORT" envDefault:"false"`
	ShowQueueStats          bool `env:"IDOLL_SHOW_QUEUE_STATS"          envDefault:"false"`
	StatsInterval           int  `env:"IDOLL_STATS_INTERVAL_MS"         envDefault:"1000"`
}
