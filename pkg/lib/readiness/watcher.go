package readiness

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// MarkerWatcher is a Sleeper that wakes up as soon as the marker file is created,
// so a ready backend is noticed without waiting out the rest of the interval.
// It never shortens the attempt budget: an unrelated event in the directory is ignored.
type MarkerWatcher struct {
	watcher *fsnotify.Watcher
	name    string
	created chan struct{}
	done    chan struct{}
	logger  *zap.Logger
}

// NewMarkerWatcher watches the directory containing markerPath.
func NewMarkerWatcher(markerPath string, logger *zap.Logger) (*MarkerWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(markerPath)); err != nil {
		_ = w.Close()
		return nil, err
	}

	mw := &MarkerWatcher{
		watcher: w,
		name:    filepath.Base(markerPath),
		created: make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go mw.loop()
	return mw, nil
}

func (mw *MarkerWatcher) loop() {
	defer close(mw.done)
	for {
		select {
		case ev, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || filepath.Base(ev.Name) != mw.name {
				continue
			}
			select {
			case mw.created <- struct{}{}:
			default:
			}
		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			mw.logger.Debug("Marker watcher error", zap.Error(err))
		}
	}
}

func (mw *MarkerWatcher) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	case <-mw.created:
	}
	return nil
}

func (mw *MarkerWatcher) Close() error {
	err := mw.watcher.Close()
	<-mw.done
	return err
}
