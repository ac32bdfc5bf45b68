package rendezvous

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func startTestHub(t *testing.T) string {
	t.Helper()
	hub := NewHub()
	go hub.Run()

	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connectClient(t *testing.T, busURL, room string) (*Client, *messageSink) {
	t.Helper()
	sink := &messageSink{}
	c := New(busURL, Events{
		OnMessage: sink.record,
		OnError:   func(err error) { t.Logf("rendezvous client error: %v", err) },
	})
	if err := c.Connect(context.Background(), room); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Disconnect() })
	return c, sink
}

type messageSink struct {
	mu  sync.Mutex
	got []string
}

func (m *messageSink) record(payload string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, payload)
}

func (m *messageSink) waitFor(t *testing.T, want string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		for _, g := range m.got {
			if g == want {
				m.mu.Unlock()
				return
			}
		}
		m.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for message %q", want)
}

func (m *messageSink) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.got))
	copy(out, m.got)
	return out
}

func TestSelfEchoSuppression(t *testing.T) {
	busURL := startTestHub(t)

	sender, senderSink := connectClient(t, busURL, "room-1")
	_, receiverSink := connectClient(t, busURL, "room-1")

	if err := sender.Send("hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	receiverSink.waitFor(t, "hello", time.Second)

	// Give the sender's own read pump time to have processed its echo
	// too, then assert it never surfaced to the upper layer (spec §8
	// property 3).
	time.Sleep(100 * time.Millisecond)
	if got := senderSink.snapshot(); len(got) != 0 {
		t.Fatalf("sender observed its own broadcast: %v", got)
	}
}

func TestJoinAndSignalMessages(t *testing.T) {
	busURL := startTestHub(t)

	a, _ := connectClient(t, busURL, "room-2")
	_, bSink := connectClient(t, busURL, "room-2")

	if err := a.SendJoin(); err != nil {
		t.Fatalf("send join: %v", err)
	}
	bSink.waitFor(t, `{"type":"join"}`, time.Second)

	if err := a.SendSignal("SHR3:abc"); err != nil {
		t.Fatalf("send signal: %v", err)
	}
	bSink.waitFor(t, `{"type":"signal","content":"SHR3:abc"}`, time.Second)
}

func TestErrorRateLimiting(t *testing.T) {
	var calls int
	var mu sync.Mutex
	c := New("ws://unused", Events{
		OnError: func(err error) {
			mu.Lock()
			calls++
			mu.Unlock()
		},
	})

	for i := 0; i < 5; i++ {
		c.reportError(assertError{"boom"})
	}

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 1 {
		t.Fatalf("expected rate-limited error to fire once, got %d", got)
	}
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

func TestDisconnectIsIdempotent(t *testing.T) {
	busURL := startTestHub(t)
	c, _ := connectClient(t, busURL, "room-3")

	if err := c.Disconnect(); err != nil {
		t.Fatalf("first disconnect: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
}
