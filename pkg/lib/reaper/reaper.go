package reaper

import (
	"context"
	"os"
	"sort"

	"go.uber.org/zap"
)

// Scanner lists processes that own a listening TCP socket on a port.
type Scanner interface {
	ListeningPIDs(ctx context.Context, port int) ([]int, error)
}

// Killer force-terminates a single process.
type Killer interface {
	Kill(ctx context.Context, pid int) error
}

type KillerFunc func(ctx context.Context, pid int) error

func (f KillerFunc) Kill(ctx context.Context, pid int) error { return f(ctx, pid) }

// Reaper kills whatever listens on a backend port, independent of which process the
// supervisor spawned: the tracked handle is often only the launcher shell.
// It is inherently racy (the port can be rebound between scan and kill), so it is a
// secondary cleanup layer and every failure is an ordinary, logged outcome.
type Reaper struct {
	scanner Scanner
	killer  Killer
	self    int
	logger  *zap.Logger
}

type Option func(*Reaper)

func WithScanner(s Scanner) Option { return func(r *Reaper) { r.scanner = s } }
func WithKiller(k Killer) Option   { return func(r *Reaper) { r.killer = k } }
func WithLogger(l *zap.Logger) Option {
	return func(r *Reaper) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a Reaper backed by the system socket table and process list.
func New(opts ...Option) *Reaper {
	r := &Reaper{
		scanner: NewScanner(),
		killer:  KillerFunc(killPID),
		self:    os.Getpid(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// KillProcessesOnPort force-kills every process listening on port and reports the PIDs it killed.
func (r *Reaper) KillProcessesOnPort(ctx context.Context, port int) []int {
	logger := r.logger.With(zap.Int("port", port))
	logger.Debug("Looking for processes listening on port")

	pids, err := r.scanner.ListeningPIDs(ctx, port)
	if err != nil {
		logger.Warn("Failed to list processes on port", zap.Error(err))
		return nil
	}
	pids = uniquePIDs(pids)
	if len(pids) == 0 {
		logger.Debug("No processes found on port")
		return nil
	}

	var killed []int
	for _, pid := range pids {
		if pid == r.self {
			logger.Warn("Refusing to kill own process listening on backend port", zap.Int("pid", pid))
			continue
		}
		if err := r.killer.Kill(ctx, pid); err != nil {
			logger.Warn("Failed to kill process on port", zap.Int("pid", pid), zap.Error(err))
			continue
		}
		logger.Info("Killed process listening on port", zap.Int("pid", pid))
		killed = append(killed, pid)
	}
	return killed
}

func uniquePIDs(pids []int) []int {
	seen := make(map[int]struct{}, len(pids))
	out := pids[:0]
	for _, pid := range pids {
		if pid <= 0 {
			continue
		}
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		out = append(out, pid)
	}
	sort.Ints(out)
	return out
}
