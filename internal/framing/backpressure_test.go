package framing

import (
	"errors"
	"testing"
	"time"
)

func TestChunkSizeDefaultsAndClamps(t *testing.T) {
	if got := ChunkSize(0); got != targetChunkSize {
		t.Fatalf("ChunkSize(0) = %d, want %d", got, targetChunkSize)
	}
	if got := ChunkSize(-1); got != targetChunkSize {
		t.Fatalf("ChunkSize(-1) = %d, want %d", got, targetChunkSize)
	}
	const small = 100
	if got := ChunkSize(small); got != small-HeaderSize {
		t.Fatalf("ChunkSize(%d) = %d, want %d", small, got, small-HeaderSize)
	}
	if got := ChunkSize(HeaderSize); got != 1 {
		t.Fatalf("ChunkSize(HeaderSize) = %d, want 1 (floor)", got)
	}
}

func TestNewWatermarksInvariants(t *testing.T) {
	w := NewWatermarks()
	if w.Low > w.High {
		t.Fatalf("Low %d must not exceed High %d", w.Low, w.High)
	}
	if w.Low < lowFloor {
		t.Fatalf("Low %d below floor %d", w.Low, lowFloor)
	}
	validHighs := map[uint64]bool{highLowMemTier: true, highDefault: true, high4GiBTier: true, high8GiBTier: true}
	if !validHighs[w.High] {
		t.Fatalf("High %d is not one of the defined tiers", w.High)
	}
}

func TestAdjustOnQueueFullHalvesAndFloors(t *testing.T) {
	w := Watermarks{High: 16 * mib, Low: 4 * mib}
	target := w.AdjustOnQueueFull()
	if target != 1*mib {
		t.Fatalf("drainTarget = %d, want 1 MiB", target)
	}
	if w.High != 8*mib {
		t.Fatalf("High = %d, want 8 MiB", w.High)
	}
	if w.Low != lowOf(8*mib) {
		t.Fatalf("Low = %d, want %d", w.Low, lowOf(8*mib))
	}

	// Repeated halving must floor at 1 MiB, never go to zero.
	for i := 0; i < 10; i++ {
		w.AdjustOnQueueFull()
	}
	if w.High != highFloor {
		t.Fatalf("High after repeated halving = %d, want floor %d", w.High, highFloor)
	}
}

func TestIsQueueFullError(t *testing.T) {
	if IsQueueFullError(nil) {
		t.Fatal("nil error must not be a queue-full error")
	}
	if !IsQueueFullError(errors.New("send queue is full")) {
		t.Fatal("expected match on exact message")
	}
	if !IsQueueFullError(errors.New("webrtc: data channel send queue is full: too many bytes")) {
		t.Fatal("expected substring match")
	}
	if IsQueueFullError(errors.New("connection reset")) {
		t.Fatal("unrelated error must not match")
	}
}

func TestPacingBudget(t *testing.T) {
	if got := PacingBudget(true); got != 180*time.Millisecond {
		t.Fatalf("fast PacingBudget = %v, want 180ms", got)
	}
	if got := PacingBudget(false); got != 32*time.Millisecond {
		t.Fatalf("normal PacingBudget = %v, want 32ms", got)
	}
}

func TestWriteBatchTargetDoublesInFastMode(t *testing.T) {
	normal := WriteBatchTarget(false)
	fast := WriteBatchTarget(true)
	if fast != normal*2 {
		t.Fatalf("fast target %d != 2x normal target %d", fast, normal)
	}
	if normal < 4*mib {
		t.Fatalf("normal target %d below the 4 MiB floor tier", normal)
	}
}

func TestStripeCountDisabledOrUnsupported(t *testing.T) {
	if got := StripeCount(false, true); got != 1 {
		t.Fatalf("StripeCount(false, true) = %d, want 1", got)
	}
	if got := StripeCount(true, false); got != 1 {
		t.Fatalf("StripeCount(true, false) = %d, want 1", got)
	}
}

func TestStripeCountBounds(t *testing.T) {
	got := StripeCount(true, true)
	if got < 1 || got > 8 {
		t.Fatalf("StripeCount(true, true) = %d, out of [1,8] bounds", got)
	}
}
