package transfer

import (
	"context"
	"testing"
)

func TestOutgoingQueueSerializesOneActiveAtATime(t *testing.T) {
	q := &outgoingQueue{}
	ctx := context.Background()

	a := NewOutgoing(ctx, "a.bin", &MemorySource{Bytes: []byte("a")})
	b := NewOutgoing(ctx, "b.bin", &MemorySource{Bytes: []byte("b")})
	q.enqueue(a)
	q.enqueue(b)

	if got := q.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}

	first := q.next()
	if first != a {
		t.Fatalf("first next() = %v, want %v", first, a)
	}
	if q.Active() != a {
		t.Fatal("Active() must return the job just popped")
	}

	// A second job must not become active while one is already in
	// flight, even though it's queued.
	if got := q.next(); got != nil {
		t.Fatalf("next() while a is active = %v, want nil", got)
	}

	q.finishActive()
	if q.Active() != nil {
		t.Fatal("Active() must be nil after finishActive")
	}

	second := q.next()
	if second != b {
		t.Fatalf("second next() = %v, want %v", second, b)
	}
	q.finishActive()

	if got := q.next(); got != nil {
		t.Fatalf("next() on empty queue = %v, want nil", got)
	}
}

func TestOutgoingStateTransitionsAndErr(t *testing.T) {
	o := NewOutgoing(context.Background(), "f", &MemorySource{})
	if o.State() != OutgoingQueued {
		t.Fatalf("initial state = %s, want %s", o.State(), OutgoingQueued)
	}

	o.setState(OutgoingNegotiating)
	if o.State() != OutgoingNegotiating {
		t.Fatalf("state = %s, want %s", o.State(), OutgoingNegotiating)
	}

	if o.didSendMeta() {
		t.Fatal("didSendMeta must start false")
	}
	o.markMetaSent()
	if !o.didSendMeta() {
		t.Fatal("didSendMeta must be true after markMetaSent")
	}

	if o.Err() != nil {
		t.Fatal("Err() must start nil")
	}
	o.fail(context.DeadlineExceeded)
	if o.Err() != context.DeadlineExceeded {
		t.Fatalf("Err() = %v, want %v", o.Err(), context.DeadlineExceeded)
	}
	if o.State() != OutgoingFailed {
		t.Fatalf("state after fail = %s, want %s", o.State(), OutgoingFailed)
	}
}
