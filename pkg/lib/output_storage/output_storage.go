package output_storage

import (
	"context"
	"sync/atomic"
)

// node is an element of the singly linked list of output chunks.
type node struct {
	data []byte
	next atomic.Pointer[node]
}

// DefaultLimit bounds retained backend output; a long-running OCR server logs a lot.
const DefaultLimit = 4 << 20

// OutputStorage is an append-only list of output chunks with a single writer
// (the goroutine os/exec uses to copy a child stream) and any number of concurrent readers.
// Once more than limit bytes are retained, the oldest chunks are dropped; readers that
// already hold a node keep walking from it.
type OutputStorage struct {
	head  atomic.Pointer[node] // sentinel; replaced when trimming
	tail  *node                // writer-owned
	size  atomic.Int64
	limit int64

	broadcaster *Broadcaster[struct{}]
}

// RunNewOutputStorage creates an empty storage retaining at most limit bytes (<= 0 means DefaultLimit).
func RunNewOutputStorage(limit int) *OutputStorage {
	if limit <= 0 {
		limit = DefaultLimit
	}
	sentinel := &node{}
	s := &OutputStorage{
		tail:        sentinel,
		limit:       int64(limit),
		broadcaster: RunNewBroadcaster[struct{}](),
	}
	s.head.Store(sentinel)

	return s
}

// Stop marks the stream finished; live subscriptions drain and close.
func (s *OutputStorage) Stop() {
	if s == nil {
		return
	}

	s.broadcaster.Stop()
}

// Append adds data to the end of the list. Only one goroutine may append.
// The slice is stored as-is; Write copies.
func (s *OutputStorage) Append(data []byte) {
	if s == nil {
		return
	}

	newTail := &node{data: data}
	s.tail.next.Store(newTail)
	s.tail = newTail
	s.size.Add(int64(len(data)))
	s.trim()

	s.broadcaster.Publish(struct{}{})
}

// trim drops leading chunks while over the limit, always keeping the newest chunk.
func (s *OutputStorage) trim() {
	for s.size.Load() > s.limit {
		head := s.head.Load()
		first := head.next.Load()
		if first == nil || first == s.tail {
			return
		}
		newHead := &node{}
		newHead.next.Store(first.next.Load())
		s.head.Store(newHead)
		s.size.Add(-int64(len(first.data)))
	}
}

func (s *OutputStorage) follow(ctx context.Context, prev *node, notifier chan struct{}, ch chan []byte) {
	defer close(ch)
	if notifier != nil {
		defer s.broadcaster.Unsubscribe(notifier)
	}
	for {
		current := prev.next.Load()
		if current == nil {
			if notifier == nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case _, ok := <-notifier:
				if !ok {
					// drain whatever landed between the last check and Stop
					notifier = nil
				}
			}
			continue
		}
		prev = current
		select {
		case ch <- current.data:
		case <-ctx.Done():
			return
		}
	}
}

// Subscribe replays retained output from the beginning and then follows new chunks
// until Stop or until ctx is done, whichever comes first. The channel is closed at
// the end of the stream; a reader that walks away must cancel ctx.
func (s *OutputStorage) Subscribe(ctx context.Context, capacity int) <-chan []byte {
	ch := make(chan []byte, capacity)
	notifier, err := s.broadcaster.Subscribe()
	if err != nil {
		notifier = nil
	}
	go s.follow(ctx, s.head.Load(), notifier, ch)

	return ch
}

// ForEach iterates over retained chunks in insertion order; returning false stops early.
func (s *OutputStorage) ForEach(iter func([]byte) bool) {
	if s == nil || iter == nil {
		return
	}
	cur := s.head.Load().next.Load()
	for cur != nil {
		if !iter(cur.data) {
			return
		}
		cur = cur.next.Load()
	}
}

// Bytes concatenates all retained chunks.
func (s *OutputStorage) Bytes() []byte {
	total := 0
	slices := make([][]byte, 0, 16)
	s.ForEach(func(b []byte) bool {
		slices = append(slices, b)
		total += len(b)
		return true
	})
	out := make([]byte, 0, total)
	for _, b := range slices {
		out = append(out, b...)
	}
	return out
}

// Tail returns at most the last n retained bytes; used for diagnostics when a backend dies.
func (s *OutputStorage) Tail(n int) []byte {
	b := s.Bytes()
	if n >= 0 && len(b) > n {
		b = b[len(b)-n:]
	}
	return b
}

func (s *OutputStorage) String() string {
	return string(s.Bytes())
}
