package readiness

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"
)

// Outcome is the result of waiting for a backend to signal readiness.
type Outcome int

const (
	Ready Outcome = iota
	ExitedEarly
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Ready:
		return "ready"
	case ExitedEarly:
		return "exited-early"
	case TimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Process is the part of a supervised process the poller needs.
type Process interface {
	Exited() bool
}

// FS abstracts the marker file so tests need no real files.
type FS interface {
	Exists(path string) bool
	Remove(path string) error
}

// OSFS is the real filesystem.
type OSFS struct{}

func (OSFS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Remove deletes path; a missing file is not an error.
func (OSFS) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Sleeper waits between attempts. It may return early; it must return ctx.Err() on cancellation.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type options struct {
	fs      FS
	sleeper Sleeper
	logger  *zap.Logger
}

type Option func(*options)

func WithFS(fs FS) Option             { return func(o *options) { o.fs = fs } }
func WithSleeper(s Sleeper) Option    { return func(o *options) { o.sleeper = s } }
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WaitForReady polls up to maxAttempts times. Each attempt checks, in this order, whether
// proc has exited (ExitedEarly) and whether the marker exists (Ready), then sleeps one
// interval. Checking exit first means a dead backend is noticed within one interval
// instead of after the whole budget. The only error returned is ctx.Err().
func WaitForReady(ctx context.Context, proc Process, markerPath string, interval time.Duration, maxAttempts int, opts ...Option) (Outcome, error) {
	o := options{fs: OSFS{}, sleeper: TimerSleeper{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if proc.Exited() {
			o.logger.Info("Backend exited before becoming ready", zap.Int("attempt", attempt))
			return ExitedEarly, nil
		}
		if o.fs.Exists(markerPath) {
			o.logger.Info("Readiness marker found", zap.String("marker", markerPath), zap.Int("attempt", attempt))
			return Ready, nil
		}
		if err := o.sleeper.Sleep(ctx, interval); err != nil {
			return TimedOut, err
		}
		o.logger.Debug("Still waiting for readiness marker", zap.Int("attempt", attempt+1), zap.Int("max_attempts", maxAttempts))
	}

	return TimedOut, nil
}
