package xferrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByKindOnly(t *testing.T) {
	err := Wrap(Timeout, "waiting for buffer", errors.New("underlying"))
	if !errors.Is(err, ErrTimeout) {
		t.Fatal("expected errors.Is to match on Kind")
	}
	if errors.Is(err, ErrCancelled) {
		t.Fatal("expected errors.Is to reject a different Kind")
	}
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(SinkError, "write failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestOfReportsKind(t *testing.T) {
	if got := Of(New(QueueFull, "full")); got != QueueFull {
		t.Fatalf("Of() = %q, want %q", got, QueueFull)
	}
	if got := Of(errors.New("plain")); got != "" {
		t.Fatalf("Of(plain error) = %q, want empty", got)
	}
	if got := Of(nil); got != "" {
		t.Fatalf("Of(nil) = %q, want empty", got)
	}
}

func TestWrapCancelReasonNilReason(t *testing.T) {
	err := WrapCancelReason("waiting for accept", nil)
	if Of(err) != Cancelled {
		t.Fatalf("Of(err) = %q, want %q", Of(err), Cancelled)
	}
}

func TestWrapCancelReasonPreservesSpecificKind(t *testing.T) {
	reason := New(PeerCancelled, "peer sent file-cancel")
	err := WrapCancelReason("waiting for file-done", reason)
	if Of(err) != PeerCancelled {
		t.Fatalf("Of(err) = %q, want %q (original Kind must survive)", Of(err), PeerCancelled)
	}
}

func TestWrapCancelReasonWrapsPlainReason(t *testing.T) {
	reason := errors.New("context canceled")
	err := WrapCancelReason("waiting for accept", reason)
	if Of(err) != Cancelled {
		t.Fatalf("Of(err) = %q, want %q", Of(err), Cancelled)
	}
	if !errors.Is(err, reason) {
		t.Fatal("expected the plain reason to still be reachable via errors.Is")
	}
}

func TestWrapCancelReasonThroughFmtWrappedChain(t *testing.T) {
	// A reason that wraps a *Error several layers deep (e.g. via
	// fmt.Errorf %w) must still surface the original Kind, not get
	// double-wrapped as Cancelled.
	inner := New(PeerCancelled, "peer cancelled")
	reason := fmt.Errorf("propagated: %w", inner)

	err := WrapCancelReason("waiting for file-done", reason)
	if Of(err) != PeerCancelled {
		t.Fatalf("Of(err) = %q, want %q", Of(err), PeerCancelled)
	}
}

func TestErrorMessageFormat(t *testing.T) {
	withoutCause := New(NotConnected, "no active peer")
	if got, want := withoutCause.Error(), "NotConnected: no active peer"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	withCause := Wrap(Timeout, "buffer wait", errors.New("deadline"))
	if got, want := withCause.Error(), "Timeout: buffer wait: deadline"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
