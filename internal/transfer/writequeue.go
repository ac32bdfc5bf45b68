package transfer

import "sync"

// writeQueue buffers committed chunks ahead of a streaming Sink so the
// reassembly path never blocks on disk I/O. Spec §4.5 write-queue
// invariants: "writeQueuedBytes = sum(item.bytes for items pending);
// the queue is compacted when the consumed prefix exceeds both 4096
// items and half the queue length."
type writeQueue struct {
	mu          sync.Mutex
	items       [][]byte
	consumed    int
	queuedBytes uint64
}

const compactionMinConsumed = 4096

func (q *writeQueue) push(b []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, b)
	q.queuedBytes += uint64(len(b))
}

func (q *writeQueue) queuedBytesSnapshot() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queuedBytes
}

// drain returns the unconsumed items and marks them consumed once
// queuedBytes reaches target. It returns ok=false (no-op) below target.
func (q *writeQueue) drain(target uint64) (batch [][]byte, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.queuedBytes < target {
		return nil, false
	}
	return q.drainAllLocked(), true
}

// forceDrain returns and consumes everything regardless of target,
// used at end-of-transfer and on cancellation.
func (q *writeQueue) forceDrain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drainAllLocked()
}

func (q *writeQueue) drainAllLocked() [][]byte {
	batch := q.items[q.consumed:]
	out := make([][]byte, len(batch))
	copy(out, batch)
	q.consumed = len(q.items)
	q.queuedBytes = 0
	q.compactLocked()
	return out
}

func (q *writeQueue) compactLocked() {
	if q.consumed > compactionMinConsumed && q.consumed > len(q.items)/2 {
		remaining := q.items[q.consumed:]
		compacted := make([][]byte, len(remaining))
		copy(compacted, remaining)
		q.items = compacted
		q.consumed = 0
	}
}
