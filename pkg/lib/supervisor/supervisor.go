package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/config"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/output_storage"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/readiness"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/reaper"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/runner"
)

// ErrNoProcess is returned when an operation needs a tracked backend and there is none.
var ErrNoProcess = errors.New("no backend process")

// tailBytes is how much failing backend output is attached to errors and logs.
const tailBytes = 2048

// StartResult is delivered by StartAsync.
type StartResult struct {
	Ready bool
	Err   error
}

// Supervisor owns the single supervised backend process.
//
// startMu serializes whole Start sequences. mu guards the tracked process and the
// status flags and is only held for short sections, so Stop can run while Start polls.
type Supervisor struct {
	cfg      *config.Config
	launcher Launcher
	reaper   PortReaper
	fs       readiness.FS
	sleeper  readiness.Sleeper
	logger   *zap.Logger

	startMu sync.Mutex

	mu       sync.Mutex
	proc     Process
	kind     lib.BackendKind
	port     int
	state    lib.State
	running  bool
	timedOut bool

	status *output_storage.Broadcaster[lib.SupervisorStatus]
}

type Option func(*Supervisor)

func WithLauncher(l Launcher) Option          { return func(s *Supervisor) { s.launcher = l } }
func WithPortReaper(r PortReaper) Option      { return func(s *Supervisor) { s.reaper = r } }
func WithFS(fs readiness.FS) Option           { return func(s *Supervisor) { s.fs = fs } }
func WithSleeper(sl readiness.Sleeper) Option { return func(s *Supervisor) { s.sleeper = sl } }

func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a Supervisor. Without options it launches through runner.Runner and
// reaps ports with the platform reaper.
func New(cfg *config.Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		fs:     readiness.OSFS{},
		logger: zap.NewNop(),
		state:  lib.StateStopped,
		status: output_storage.RunNewBroadcaster[lib.SupervisorStatus](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.launcher == nil {
		s.launcher = runnerLauncher{runner: runner.NewRunner(
			runner.WithLogger(s.logger),
			runner.WithMemoryHigh(cfg.MemoryHighMB<<20),
		)}
	}
	if s.reaper == nil {
		s.reaper = reaper.New(reaper.WithLogger(s.logger))
	}
	return s
}

// StartAsync runs Start on its own goroutine and delivers the result once.
func (s *Supervisor) StartAsync(ctx context.Context, kind lib.BackendKind) <-chan StartResult {
	ch := make(chan StartResult, 1)
	go func() {
		ready, err := s.Start(ctx, kind)
		ch <- StartResult{Ready: ready, Err: err}
	}()
	return ch
}

// Start stops any current backend, launches kind and blocks until it signals
// readiness, exits, or the readiness budget runs out.
func (s *Supervisor) Start(ctx context.Context, kind lib.BackendKind) (bool, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	logger := s.logger.With(zap.String("kind", kind.String()))

	s.Stop()

	backend, err := s.cfg.Backend(kind)
	if err != nil {
		return false, err
	}

	marker := s.cfg.MarkerPath(backend)
	if err := s.fs.Remove(marker); err != nil {
		logger.Warn("Failed to delete readiness marker", zap.String("marker", marker), zap.Error(err))
	}
	if s.fs.Exists(marker) {
		if s.cfg.Readiness.RequireMarkerCleared {
			return false, fmt.Errorf("%w: %s", lib.ErrStaleMarker, marker)
		}
		logger.Warn("Stale readiness marker still present, continuing", zap.String("marker", marker))
	}

	dir := s.cfg.BackendDir(backend)
	script := filepath.Join(dir, backend.Script)
	if st, err := os.Stat(script); err != nil || st.IsDir() {
		return false, fmt.Errorf("%w: %s", lib.ErrLaunchTargetMissing, script)
	}

	proc, err := s.launcher.Launch(runner.ShellCommand(script), dir)
	if err != nil {
		return false, fmt.Errorf("%w: %v", lib.ErrSpawnFailed, err)
	}
	logger = logger.With(zap.String("run", proc.ID()), zap.Int("pid", proc.PID()))

	s.mu.Lock()
	s.proc = proc
	s.kind = kind
	s.port = backend.Port
	s.state = lib.StateStarting
	s.running = false
	s.timedOut = false
	s.publishLocked()
	s.mu.Unlock()

	logger.Info("Waiting for backend readiness", zap.String("marker", marker),
		zap.Duration("interval", s.cfg.Readiness.Interval.Duration), zap.Int("max_attempts", s.cfg.Readiness.MaxAttempts))

	sleeper, closeSleeper := s.readinessSleeper(marker)
	outcome, err := readiness.WaitForReady(ctx, proc, marker,
		s.cfg.Readiness.Interval.Duration, s.cfg.Readiness.MaxAttempts,
		readiness.WithFS(s.fs), readiness.WithSleeper(sleeper), readiness.WithLogger(logger))
	closeSleeper()

	if err != nil {
		logger.Info("Start cancelled, stopping backend", zap.Error(err))
		s.Stop()
		s.finish(proc, lib.StateStoppedByUser, false)
		return false, fmt.Errorf("start %s: %w", kind, err)
	}

	switch outcome {
	case readiness.Ready:
		s.mu.Lock()
		if s.proc != proc || s.state != lib.StateStarting || proc.Exited() {
			// a concurrent Stop owns the process now
			s.mu.Unlock()
			s.finish(proc, lib.StateStoppedByUser, false)
			return false, fmt.Errorf("%w: %s", lib.ErrExitedBeforeReady, kind)
		}
		s.state = lib.StateReady
		s.running = true
		s.publishLocked()
		s.mu.Unlock()

		go s.watchExit(proc, logger)
		logger.Info("Backend is ready")
		return true, nil

	case readiness.ExitedEarly:
		s.finish(proc, lib.StateStoppedByUser, false)
		tail := proc.OutputTail(tailBytes)
		logger.Warn("Backend exited before becoming ready", zap.String("output", tail))
		if tail != "" {
			return false, fmt.Errorf("%w: %s: %s", lib.ErrExitedBeforeReady, kind, tail)
		}
		return false, fmt.Errorf("%w: %s", lib.ErrExitedBeforeReady, kind)

	default:
		logger.Warn("Backend did not become ready in time, stopping it")
		s.Stop()
		s.finish(proc, lib.StateTimedOut, true)
		return false, fmt.Errorf("%w: %s after %s", lib.ErrReadinessTimeout, kind,
			time.Duration(s.cfg.Readiness.MaxAttempts)*s.cfg.Readiness.Interval.Duration)
	}
}

func (s *Supervisor) readinessSleeper(marker string) (readiness.Sleeper, func()) {
	if s.sleeper != nil {
		return s.sleeper, func() {}
	}
	if !s.cfg.Readiness.Watch {
		return readiness.TimerSleeper{}, func() {}
	}
	w, err := readiness.NewMarkerWatcher(marker, s.logger)
	if err != nil {
		s.logger.Debug("Marker watch unavailable, polling only", zap.Error(err))
		return readiness.TimerSleeper{}, func() {}
	}
	return w, func() { _ = w.Close() }
}

// finish records a terminal Start outcome for proc and drops the handle.
func (s *Supervisor) finish(proc Process, state lib.State, timedOut bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == proc {
		s.proc = nil
	}
	s.state = state
	s.running = false
	s.timedOut = timedOut
	s.publishLocked()
}

// watchExit notices a backend that dies after it became ready.
func (s *Supervisor) watchExit(proc Process, logger *zap.Logger) {
	<-proc.Done()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != proc || s.state != lib.StateReady {
		return
	}
	logger.Warn("Backend exited unexpectedly", zap.String("output", proc.OutputTail(tailBytes)))
	s.proc = nil
	s.running = false
	s.state = lib.StateStopped
	s.publishLocked()
}

// Stop terminates the supervised backend, if any. It never fails: every problem is
// logged. Processes listening on the backend port are killed first, then the tracked
// process tree is asked to close and, after the grace period, forced.
func (s *Supervisor) Stop() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered from panic while stopping backend", zap.Any("panic", r))
		}
	}()

	s.mu.Lock()
	proc := s.proc
	if proc == nil {
		s.mu.Unlock()
		return
	}
	if proc.Exited() {
		s.proc = nil
		s.running = false
		if s.state == lib.StateReady || s.state == lib.StateStarting {
			s.state = lib.StateStopped
		}
		s.publishLocked()
		s.mu.Unlock()
		return
	}
	if s.state == lib.StateStopping {
		// another Stop is already on it
		s.mu.Unlock()
		s.awaitExit(proc)
		return
	}
	port, kind := s.port, s.kind
	s.state = lib.StateStopping
	s.mu.Unlock()

	logger := s.logger.With(zap.String("kind", kind.String()), zap.Int("pid", proc.PID()))
	logger.Info("Stopping backend")

	s.reaper.KillProcessesOnPort(context.Background(), port)

	s.mu.Lock()
	s.running = false
	s.publishLocked()
	s.mu.Unlock()

	if err := proc.Terminate(s.cfg.Stop.GracePeriod.Duration); err != nil {
		logger.Warn("Failed to terminate backend", zap.Error(err))
	}

	s.mu.Lock()
	if s.proc == proc {
		s.proc = nil
	}
	if s.state == lib.StateStopping {
		s.state = lib.StateStopped
	}
	s.running = false
	s.publishLocked()
	s.mu.Unlock()
	logger.Info("Backend stopped")
}

func (s *Supervisor) awaitExit(proc Process) {
	timer := time.NewTimer(s.cfg.Stop.GracePeriod.Duration + 2*time.Second)
	defer timer.Stop()
	select {
	case <-proc.Done():
	case <-timer.C:
	}
}

// IsRunning reports whether a backend is up and ready.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TimedOut reports whether the most recent start ran out of readiness attempts.
func (s *Supervisor) TimedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timedOut
}

func (s *Supervisor) Status() lib.SupervisorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Supervisor) statusLocked() lib.SupervisorStatus {
	st := lib.SupervisorStatus{
		Kind:     s.kind,
		State:    s.state,
		Running:  s.running,
		TimedOut: s.timedOut,
	}
	if s.proc != nil {
		st.RunID = s.proc.ID()
		st.PID = s.proc.PID()
		st.StartedAt = s.proc.StartedAt()
	}
	return st
}

func (s *Supervisor) publishLocked() {
	s.status.Publish(s.statusLocked())
}

// Subscribe returns a channel that always holds the latest status; intermediate
// states may be skipped by a slow reader. The current status is delivered first.
func (s *Supervisor) Subscribe() (chan lib.SupervisorStatus, error) {
	ch, err := s.status.Subscribe()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.publishLocked()
	s.mu.Unlock()
	return ch, nil
}

func (s *Supervisor) Unsubscribe(ch chan lib.SupervisorStatus) {
	s.status.Unsubscribe(ch)
}

// Output replays and follows the tracked backend's stdout and stderr until ctx is
// done or the backend exits.
func (s *Supervisor) Output(ctx context.Context) (<-chan []byte, <-chan []byte, error) {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return nil, nil, ErrNoProcess
	}
	stdout, stderr := proc.Output(ctx)
	return stdout, stderr, nil
}

// Close stops the backend and releases subscribers.
func (s *Supervisor) Close() {
	s.Stop()
	s.status.Stop()
}
