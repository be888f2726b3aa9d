package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// ErrNoSynthesizer is returned when no local synthesizer is installed.
var ErrNoSynthesizer = errors.New("no local synthesizer available")

// Synthesizer turns text into an audio container the decoder understands.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// CommandConfig describes an external synthesizer that reads text on stdin
// and writes audio to stdout.
type CommandConfig struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// DefaultCommandConfig runs espeak-ng and captures its WAV output.
func DefaultCommandConfig() CommandConfig {
	return CommandConfig{
		Command: "espeak-ng",
		Args:    []string{"--stdout", "--stdin"},
		Timeout: 30 * time.Second,
	}
}

// Command is a Synthesizer backed by a subprocess. Calls are serialized.
type Command struct {
	cfg    CommandConfig
	path   string
	logger *log.Logger

	mu sync.Mutex
}

// NewCommand resolves the synthesizer binary. It fails with
// ErrNoSynthesizer when the binary is not on PATH.
func NewCommand(cfg CommandConfig, logger *log.Logger) (*Command, error) {
	if cfg.Command == "" {
		return nil, ErrNoSynthesizer
	}
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found in PATH", ErrNoSynthesizer, cfg.Command)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Command{cfg: cfg, path: path, logger: logger.WithPrefix("synth")}, nil
}

// Synthesize runs the command with text on stdin and returns its stdout.
func (c *Command) Synthesize(ctx context.Context, text string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.path, c.cfg.Args...)
	// stdin must be set before Start
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.cfg.Command, err)
	}
	err := cmd.Wait()

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out after %v", c.cfg.Command, c.cfg.Timeout)
		}
		return nil, fmt.Errorf("%s cancelled: %w", c.cfg.Command, ctx.Err())
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", c.cfg.Command, err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", c.cfg.Command, err)
	}

	c.logger.Debug("synthesized", "chars", len(text), "bytes", stdout.Len(), "took", time.Since(start))
	return stdout.Bytes(), nil
}
