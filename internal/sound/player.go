package sound

import (
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
)

const DefaultPlayerCommand = "mpg321"

// ExecPlayer runs an external player per clip. Starting a clip kills the
// one still playing.
type ExecPlayer struct {
	Command string
	Args    []string

	logger *slog.Logger

	mu      sync.Mutex
	current *exec.Cmd
	done    chan struct{}
}

func NewExecPlayer(command string, args []string, logger *slog.Logger) *ExecPlayer {
	if command == "" {
		command = DefaultPlayerCommand
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ExecPlayer{Command: command, Args: args, logger: logger.With("component", "sound")}
}

// Play starts path and returns without waiting for it to finish.
func (p *ExecPlayer) Play(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	args := append(append([]string{}, p.Args...), path)
	cmd := exec.Command(p.Command, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.Command, err)
	}
	done := make(chan struct{})
	p.current, p.done = cmd, done

	go func() {
		defer close(done)
		if err := cmd.Wait(); err != nil {
			p.logger.Debug("player exited", "path", path, "err", err)
		}
	}()
	return nil
}

// Stop kills the running clip, if any, and waits for it to exit.
func (p *ExecPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *ExecPlayer) stopLocked() {
	if p.current == nil {
		return
	}
	select {
	case <-p.done:
	default:
		_ = p.current.Process.Kill()
		<-p.done
	}
	p.current, p.done = nil, nil
}

// Playing reports whether a clip is still running.
func (p *ExecPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}
