package output_storage

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestNewOutputStorage_Empty(t *testing.T) {
	s := RunNewOutputStorage(0)
	defer s.Stop()

	cnt := 0
	s.ForEach(func(b []byte) bool {
		cnt++
		return true
	})
	if cnt != 0 {
		t.Fatalf("expected 0 items, got %d", cnt)
	}
	if got := s.Bytes(); len(got) != 0 {
		t.Fatalf("expected empty bytes, got %q", string(got))
	}
}

func TestAppendAndForEach_OrderAndEarlyStop(t *testing.T) {
	s := RunNewOutputStorage(0)
	defer s.Stop()
	s.Append([]byte("a"))
	s.Append([]byte("b"))
	s.Append([]byte("c"))

	var got []string
	s.ForEach(func(b []byte) bool {
		got = append(got, string(b))
		return true
	})
	want := []string{"a", "b", "c"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("order mismatch: got=%v want=%v", got, want)
	}

	// Early stop after two elements
	got = nil
	calls := 0
	s.ForEach(func(b []byte) bool {
		calls++
		got = append(got, string(b))
		return calls < 2
	})
	if calls != 2 || fmt.Sprint(got) != fmt.Sprint([]string{"a", "b"}) {
		t.Fatalf("early stop failed: calls=%d got=%v", calls, got)
	}
}

func TestBytes_Concatenation(t *testing.T) {
	s := RunNewOutputStorage(0)
	defer s.Stop()
	s.Append([]byte("hello "))
	s.Append([]byte("world"))
	if got, want := string(s.Bytes()), "hello world"; got != want {
		t.Fatalf("Bytes mismatch: got=%q want=%q", got, want)
	}
}

func TestNilReceiverSafety(t *testing.T) {
	// Methods should be safe on a nil receiver per implementation.
	var s *OutputStorage

	// ForEach with nil receiver and nil iter should not panic.
	s.ForEach(nil)

	// ForEach with function should not be called at all
	called := false
	s.ForEach(func(b []byte) bool {
		called = true
		return true
	})
	if called {
		t.Fatalf("ForEach should not invoke iter for nil receiver")
	}

	// Append on nil should be a no-op and not panic
	s.Append([]byte("x"))

	// Bytes on nil should return empty per current implementation path
	if got := s.Bytes(); len(got) != 0 {
		t.Fatalf("expected empty bytes from nil receiver, got %q", string(got))
	}
}

func TestAppendStoresSliceByReference(t *testing.T) {
	s := RunNewOutputStorage(0)
	defer s.Stop()
	data := []byte("abc")
	s.Append(data)
	data[0] = 'z'
	if got := string(s.Bytes()); got != "zbc" {
		t.Fatalf("expected storage to reflect slice mutation, got %q", got)
	}
}

func TestSubscribe_DeliversExistingItemsInOrder(t *testing.T) {
	s := RunNewOutputStorage(0)
	defer s.Stop()
	s.Append([]byte("a"))
	s.Append([]byte("b"))
	s.Append([]byte("c"))

	ch := s.Subscribe(context.Background(), 3)

	if v, ok := recvWithTimeout[[]byte](t, ch, 200*time.Millisecond); !ok || string(v) != "a" {
		t.Fatalf("expected first item 'a', ok=%v v=%q", ok, string(v))
	}
	if v, ok := recvWithTimeout[[]byte](t, ch, 200*time.Millisecond); !ok || string(v) != "b" {
		t.Fatalf("expected second item 'b', ok=%v v=%q", ok, string(v))
	}
	if v, ok := recvWithTimeout[[]byte](t, ch, 200*time.Millisecond); !ok || string(v) != "c" {
		t.Fatalf("expected third item 'c', ok=%v v=%q", ok, string(v))
	}

	// No further messages should arrive without new appends
	assertNoRecv[[]byte](t, ch, 50*time.Millisecond)
}

func TestSubscribe_ChannelClosesOnStop(t *testing.T) {
	s := RunNewOutputStorage(0)
	s.Append([]byte("x"))

	ch := s.Subscribe(context.Background(), 1)

	if v, ok := recvWithTimeout[[]byte](t, ch, 200*time.Millisecond); !ok || string(v) != "x" {
		t.Fatalf("expected initial item 'x', ok=%v v=%q", ok, string(v))
	}

	// Start a goroutine to wait for channel close
	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()

	s.Stop()

	select {
	case <-done:
		// closed as expected
	case <-time.After(300 * time.Millisecond):
		t.Fatalf("subscription channel did not close after Stop")
	}
}

func TestTrimKeepsNewestWithinLimit(t *testing.T) {
	s := RunNewOutputStorage(8)
	defer s.Stop()
	s.Append([]byte("aaaa"))
	s.Append([]byte("bbbb"))
	s.Append([]byte("cccc"))

	if got, want := s.String(), "bbbbcccc"; got != want {
		t.Fatalf("trim mismatch: got=%q want=%q", got, want)
	}
}

func TestTrimNeverDropsLastChunk(t *testing.T) {
	s := RunNewOutputStorage(2)
	defer s.Stop()
	s.Append([]byte("oversized"))

	if got := s.String(); got != "oversized" {
		t.Fatalf("expected oversized chunk retained, got %q", got)
	}
}

func TestTail(t *testing.T) {
	s := RunNewOutputStorage(0)
	defer s.Stop()
	_, _ = s.Write([]byte("Traceback: "))
	_, _ = s.Write([]byte("ModuleNotFoundError: paddle"))

	if got, want := string(s.Tail(6)), "paddle"; got != want {
		t.Fatalf("tail: got=%q want=%q", got, want)
	}
	if got := len(s.Tail(1 << 20)); got != len(s.Bytes()) {
		t.Fatalf("tail larger than content should return everything, got %d bytes", got)
	}
}

func TestSubscribeAfterStopReplaysAndCloses(t *testing.T) {
	s := RunNewOutputStorage(0)
	s.Append([]byte("done"))
	s.Stop()

	ch := s.Subscribe(context.Background(), 1)
	got := recvAllString(t, ch)
	if got != "done" {
		t.Fatalf("expected replay of stopped stream, got %q", got)
	}
}
