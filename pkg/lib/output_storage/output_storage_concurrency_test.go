package output_storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// drain reads ch until it closes; false means it stayed open past d.
func drain(ch <-chan []byte, d time.Duration) (string, bool) {
	var sb strings.Builder
	timeout := time.After(d)
	for {
		select {
		case b, ok := <-ch:
			if !ok {
				return sb.String(), true
			}
			sb.Write(b)
		case <-timeout:
			return sb.String(), false
		}
	}
}

func recvAllString(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	got, ok := drain(ch, 2*time.Second)
	if !ok {
		t.Fatalf("stream did not close, got %d bytes so far", len(got))
	}
	return got
}

func subscriberCount(s *OutputStorage) int {
	s.broadcaster.mu.Lock()
	defer s.broadcaster.mu.Unlock()
	return len(s.broadcaster.subscribers)
}

// A backend that logs far past the retention limit: early followers still see every
// line, late followers see a contiguous suffix, and only the newest lines are retained.
func TestTrimmingWithConcurrentFollowers(t *testing.T) {
	const lines = 300
	const limit = 256
	s := RunNewOutputStorage(limit)

	var want strings.Builder
	for i := 0; i < lines; i++ {
		fmt.Fprintf(&want, "ocr-line-%03d\n", i)
	}
	expected := want.String()

	var wg sync.WaitGroup
	early := make([]string, 8)
	for i := range early {
		ch := s.Subscribe(context.Background(), 4)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var ok bool
			if early[i], ok = drain(ch, 5*time.Second); !ok {
				t.Errorf("early follower %d never saw the end of the stream", i)
			}
		}(i)
	}

	late := make([]string, 8)
	lateReady := make(chan struct{})
	for i := range late {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-lateReady
			var ok bool
			if late[i], ok = drain(s.Subscribe(context.Background(), 1), 5*time.Second); !ok {
				t.Errorf("late follower %d never saw the end of the stream", i)
			}
		}(i)
	}

	for i := 0; i < lines; i++ {
		if i == lines/2 {
			close(lateReady)
		}
		_, _ = fmt.Fprintf(s, "ocr-line-%03d\n", i)
	}
	s.Stop()
	wg.Wait()
	if t.Failed() {
		return
	}

	for i, got := range early {
		if got != expected {
			t.Fatalf("early follower %d lost data: got %d bytes, want %d", i, len(got), len(expected))
		}
	}
	for i, got := range late {
		if got == "" || !strings.HasSuffix(expected, got) || !strings.HasPrefix(got, "ocr-line-") {
			t.Fatalf("late follower %d did not get a line-aligned suffix: %q", i, got)
		}
	}

	retained := s.String()
	if len(retained) > limit || !strings.HasSuffix(expected, retained) {
		t.Fatalf("retained output is not a suffix within the limit: %d bytes", len(retained))
	}
	if got, want := string(s.Tail(13)), fmt.Sprintf("ocr-line-%03d\n", lines-1); got != want {
		t.Fatalf("tail: got=%q want=%q", got, want)
	}
	if got := recvAllString(t, s.Subscribe(context.Background(), 1)); got != retained {
		t.Fatalf("replay after Stop: got %d bytes, want the %d retained", len(got), len(retained))
	}
}

func TestCancelledSubscriberStopsFollowing(t *testing.T) {
	s := RunNewOutputStorage(0)
	defer s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx, 0)
	// the reader never drains; the follower is parked on its first send
	for i := 0; i < 50; i++ {
		_, _ = fmt.Fprintf(s, "chunk %d\n", i)
	}
	if n := subscriberCount(s); n != 1 {
		t.Fatalf("expected one live follower, got %d", n)
	}

	cancel()
	recvAllString(t, ch)

	deadline := time.Now().Add(time.Second)
	for subscriberCount(s) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("cancelled follower kept its notification subscription")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// writer keeps going with nobody attached
	_, _ = s.Write([]byte("after cancel\n"))
	if !strings.HasSuffix(s.String(), "after cancel\n") {
		t.Fatalf("append after cancel was lost")
	}
}

func TestCancelWhileWaitingForOutput(t *testing.T) {
	s := RunNewOutputStorage(0)
	defer s.Stop()
	_, _ = s.Write([]byte("loading models\n"))

	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx, 1)
	if v, ok := recvWithTimeout(t, ch, time.Second); !ok || string(v) != "loading models\n" {
		t.Fatalf("expected replayed chunk, ok=%v v=%q", ok, v)
	}

	cancel()
	if _, ok := recvWithTimeout(t, ch, time.Second); ok {
		t.Fatalf("expected stream to close after cancel")
	}
	if n := subscriberCount(s); n != 0 {
		t.Fatalf("expected no followers after cancel, got %d", n)
	}
}
