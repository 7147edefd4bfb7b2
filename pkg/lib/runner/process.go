package runner

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/output_storage"
)

// Process is a spawned backend. It is never mutated after it exits; a new start
// creates a new Process.
type Process struct {
	id      string
	command lib.Command
	cmd     *exec.Cmd
	workDir string
	start   time.Time
	pid     int
	cgroup  bool

	stdout *output_storage.OutputStorage
	stderr *output_storage.OutputStorage

	mu       sync.RWMutex
	exitCode *int
	end      *time.Time
	done     chan struct{}

	logger *zap.Logger
}

// Status is the exit information of a Process.
type Status struct {
	Running  bool
	ExitCode *int
	EndTime  *time.Time
}

func (p *Process) ID() string           { return p.id }
func (p *Process) PID() int             { return p.pid }
func (p *Process) Command() lib.Command { return p.command }
func (p *Process) WorkDir() string      { return p.workDir }
func (p *Process) StartedAt() time.Time { return p.start }

// Done is closed once the process has exited and its output streams are finished.
func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Process) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := Status{Running: p.end == nil}
	if p.exitCode != nil {
		code := *p.exitCode
		st.ExitCode = &code
	}
	if p.end != nil {
		t := *p.end
		st.EndTime = &t
	}
	return st
}

// Output replays captured stdout/stderr from the beginning and follows until exit
// or until ctx is done.
func (p *Process) Output(ctx context.Context) (<-chan []byte, <-chan []byte) {
	return p.stdout.Subscribe(ctx, 5), p.stderr.Subscribe(ctx, 5)
}

// OutputTail returns the last n bytes of stderr, or of stdout when stderr is empty.
func (p *Process) OutputTail(n int) string {
	if tail := p.stderr.Tail(n); len(tail) > 0 {
		return string(tail)
	}
	return string(p.stdout.Tail(n))
}

func (p *Process) wait() {
	err := p.cmd.Wait()

	p.stdout.Stop()
	p.stderr.Stop()

	p.mu.Lock()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			p.exitCode = &code
		}
	} else {
		code := 0
		p.exitCode = &code
	}
	now := time.Now()
	p.end = &now
	p.mu.Unlock()

	if p.cgroup {
		_ = CleanupCgroup(p.id)
	}

	fields := []zap.Field{zap.Int("pid", p.pid)}
	if p.exitCode != nil {
		fields = append(fields, zap.Int("exit_code", *p.exitCode))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	p.logger.Info("Backend process exited", fields...)

	close(p.done)
}

// Terminate asks the process (and its group) to close, waits up to grace, then forces it.
// It returns once the process has exited or the forced kill has been issued and
// observed for one more second.
func (p *Process) Terminate(grace time.Duration) error {
	if p.Exited() {
		return nil
	}

	if err := p.interrupt(); err != nil {
		p.logger.Debug("Graceful close failed", zap.Int("pid", p.pid), zap.Error(err))
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		p.logger.Info("Backend process closed gracefully", zap.Int("pid", p.pid))
		return nil
	case <-timer.C:
	}

	p.logger.Info("Grace period elapsed, killing backend process", zap.Int("pid", p.pid), zap.Duration("grace", grace))
	return p.Kill()
}

// Kill force-terminates the process tree and waits briefly for the exit to be observed.
func (p *Process) Kill() error {
	if p.Exited() {
		return nil
	}
	err := p.forceKill()

	select {
	case <-p.done:
		return nil
	case <-time.After(time.Second):
	}
	if err != nil {
		return err
	}
	return errors.New("process did not exit after kill")
}
