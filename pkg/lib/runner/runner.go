package runner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/output_storage"
)

// Runner spawns backend launch scripts as supervised processes.
type Runner struct {
	logger      *zap.Logger
	memoryHigh  int64
	outputLimit int
}

type Option func(*Runner)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMemoryHigh sets memory.high (bytes) on the backend cgroup when running as root on Linux.
func WithMemoryHigh(bytes int64) Option {
	return func(r *Runner) { r.memoryHigh = bytes }
}

// WithOutputLimit bounds retained stdout/stderr per stream.
func WithOutputLimit(limit int) Option {
	return func(r *Runner) { r.outputLimit = limit }
}

// NewRunner creates a new Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Launch starts command in workDir without waiting on it. Output is captured into
// in-memory storage so nothing blocks on the child's pipes.
func (runner *Runner) Launch(command lib.Command, workDir string) (*Process, error) {
	if command.Command == "" {
		return nil, errors.New("command is required")
	}
	if fi, err := os.Stat(workDir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("working directory %s unavailable: %w", workDir, errOrNotDir(err))
	}
	id := lib.NewID()

	stdout := output_storage.RunNewOutputStorage(runner.outputLimit)
	stderr := output_storage.RunNewOutputStorage(runner.outputLimit)

	sysProcAttr, err := GetSysProcAttr(id, runner.memoryHigh)
	if err != nil {
		runner.logger.Warn("cgroup setup failed, using process group only", zap.Error(err))
		sysProcAttr = &SysProcAttr{Raw: fallbackSysProcAttr()}
	}

	cmd := newCmd(command, workDir, sysProcAttr, stdout, stderr)
	err = cmd.Start()
	if err != nil && sysProcAttr.File != nil {
		// some hosts expose cgroup v2 without delegating it; retry without the cgroup
		_ = sysProcAttr.File.Close()
		_ = CleanupCgroup(id)
		runner.logger.Warn("start in cgroup failed, retrying without it", zap.Error(err))
		sysProcAttr = &SysProcAttr{Raw: fallbackSysProcAttr()}
		cmd = newCmd(command, workDir, sysProcAttr, stdout, stderr)
		err = cmd.Start()
	}
	if err != nil {
		stdout.Stop()
		stderr.Stop()
		return nil, err
	}
	if sysProcAttr.File != nil {
		_ = sysProcAttr.File.Close()
	}

	p := &Process{
		id:      id,
		command: lib.Command{Command: command.Command, Args: append([]string(nil), command.Args...)},
		cmd:     cmd,
		workDir: workDir,
		start:   time.Now(),
		stdout:  stdout,
		stderr:  stderr,
		cgroup:  sysProcAttr.File != nil,
		done:    make(chan struct{}),
		logger:  runner.logger.With(zap.String("run", id)),
	}

	p.pid = cmd.Process.Pid
	p.logger.Info("Backend process started", zap.Int("pid", p.pid), zap.String("dir", workDir),
		zap.String("command", command.Command), zap.Strings("args", command.Args))

	go p.wait()

	return p, nil
}

func newCmd(command lib.Command, workDir string, attr *SysProcAttr, stdout, stderr io.Writer) *exec.Cmd {
	cmd := exec.Command(command.Command, command.Args...)
	cmd.Dir = workDir
	cmd.SysProcAttr = attr.Raw
	// cmd.Stdin is left nil, so it will use /dev/null
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// A grandchild holding the output pipes must not keep Wait from reporting the exit.
	cmd.WaitDelay = time.Second
	return cmd
}

func errOrNotDir(err error) error {
	if err != nil {
		return err
	}
	return errors.New("not a directory")
}
