package transfer

import "testing"

func TestWriteQueueDrainBelowTarget(t *testing.T) {
	q := &writeQueue{}
	q.push([]byte("ab"))
	q.push([]byte("cd"))

	if _, ok := q.drain(10); ok {
		t.Fatal("drain below target must return ok=false")
	}
	if q.queuedBytesSnapshot() != 4 {
		t.Fatalf("queuedBytes = %d, want 4", q.queuedBytesSnapshot())
	}
}

func TestWriteQueueDrainAtTarget(t *testing.T) {
	q := &writeQueue{}
	q.push([]byte("ab"))
	q.push([]byte("cd"))

	batch, ok := q.drain(4)
	if !ok {
		t.Fatal("drain at target must return ok=true")
	}
	if len(batch) != 2 || string(batch[0]) != "ab" || string(batch[1]) != "cd" {
		t.Fatalf("unexpected batch: %v", batch)
	}
	if q.queuedBytesSnapshot() != 0 {
		t.Fatalf("queuedBytes after drain = %d, want 0", q.queuedBytesSnapshot())
	}

	// A second drain with nothing new pushed must be a no-op.
	if _, ok := q.drain(1); ok {
		t.Fatal("drain on empty queue must return ok=false")
	}
}

func TestWriteQueueForceDrainIgnoresTarget(t *testing.T) {
	q := &writeQueue{}
	q.push([]byte("x"))

	batch := q.forceDrain()
	if len(batch) != 1 || string(batch[0]) != "x" {
		t.Fatalf("unexpected batch: %v", batch)
	}
}

func TestWriteQueueCompactsAfterLargeDrain(t *testing.T) {
	q := &writeQueue{}
	const n = compactionMinConsumed + 1
	for i := 0; i < n; i++ {
		q.push([]byte{byte(i)})
	}

	batch := q.forceDrain()
	if len(batch) != n {
		t.Fatalf("drained %d items, want %d", len(batch), n)
	}
	if q.consumed != 0 || len(q.items) != 0 {
		t.Fatalf("expected compaction to reset consumed/items, got consumed=%d len(items)=%d", q.consumed, len(q.items))
	}

	// Subsequent pushes must still work normally post-compaction.
	q.push([]byte("y"))
	batch = q.forceDrain()
	if len(batch) != 1 || string(batch[0]) != "y" {
		t.Fatalf("unexpected post-compaction batch: %v", batch)
	}
}
