package output_storage

import (
	"errors"
	"sync"
)

// ErrBroadcasterStopped is returned by Subscribe once Stop has been called.
var ErrBroadcasterStopped = errors.New("broadcaster is stopped")

// Broadcaster fans a stream of values out to subscribers. Delivery never blocks the
// publisher: a subscriber that falls behind loses its oldest pending value and keeps
// the newest, which is what "latest state" and "new data available" notifications need.
type Broadcaster[T any] struct {
	messageReceiver chan T
	mu              sync.Mutex
	subscribers     map[chan T]struct{}
	closing         bool
	stopped         bool
	done            chan struct{}
}

func RunNewBroadcaster[T any]() *Broadcaster[T] {
	broadcaster := &Broadcaster[T]{
		messageReceiver: make(chan T, 1),
		subscribers:     make(map[chan T]struct{}),
		done:            make(chan struct{}),
	}

	go broadcaster.start()

	return broadcaster
}

func (broadcaster *Broadcaster[T]) start() {
	defer close(broadcaster.done)

	for msg := range broadcaster.messageReceiver {
		// offer never blocks, so delivering under the lock is cheap and keeps
		// Unsubscribe from closing a channel mid-send.
		broadcaster.mu.Lock()
		for s := range broadcaster.subscribers {
			offer(s, msg)
		}
		broadcaster.mu.Unlock()
	}

	broadcaster.mu.Lock()
	for s := range broadcaster.subscribers {
		close(s)
	}
	broadcaster.subscribers = nil
	broadcaster.stopped = true
	broadcaster.mu.Unlock()
}

// offer performs a non-blocking send, evicting the pending value when the buffer is full.
func offer[T any](ch chan T, msg T) {
	select {
	case ch <- msg:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- msg:
	default:
	}
}

// Stop closes every subscriber channel and waits for delivery to finish. Safe to call twice.
func (broadcaster *Broadcaster[T]) Stop() {
	broadcaster.mu.Lock()
	if !broadcaster.closing {
		broadcaster.closing = true
		close(broadcaster.messageReceiver)
	}
	broadcaster.mu.Unlock()
	<-broadcaster.done
}

func (broadcaster *Broadcaster[T]) Subscribe() (chan T, error) {
	// Use a buffer of 1 so we can drop stale notifications without blocking.
	ch := make(chan T, 1)
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	if broadcaster.stopped {
		return nil, ErrBroadcasterStopped
	}
	broadcaster.subscribers[ch] = struct{}{}
	return ch, nil
}

func (broadcaster *Broadcaster[T]) Unsubscribe(subscriberSender chan T) {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	if broadcaster.stopped {
		return
	}
	if _, ok := broadcaster.subscribers[subscriberSender]; !ok {
		return
	}
	delete(broadcaster.subscribers, subscriberSender)
	close(subscriberSender)
}

// Publish is a no-op after Stop.
func (broadcaster *Broadcaster[T]) Publish(msg T) {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	if broadcaster.closing {
		return
	}
	offer(broadcaster.messageReceiver, msg)
}
