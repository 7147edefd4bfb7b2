package supervisor

import (
	"context"
	"time"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/runner"
)

// Process is the handle of a spawned backend.
type Process interface {
	ID() string
	PID() int
	StartedAt() time.Time
	Done() <-chan struct{}
	Exited() bool
	Terminate(grace time.Duration) error
	Output(ctx context.Context) (<-chan []byte, <-chan []byte)
	OutputTail(n int) string
}

// Launcher spawns a command in a working directory without waiting on it.
type Launcher interface {
	Launch(command lib.Command, workDir string) (Process, error)
}

// PortReaper kills whatever listens on a port.
type PortReaper interface {
	KillProcessesOnPort(ctx context.Context, port int) []int
}

type runnerLauncher struct {
	runner *runner.Runner
}

func (l runnerLauncher) Launch(command lib.Command, workDir string) (Process, error) {
	p, err := l.runner.Launch(command, workDir)
	if err != nil {
		return nil, err
	}
	return p, nil
}
