package transfer

import (
	"sync"

	"github.com/zealer1995/share-file.online/internal/framing"
)

// Incoming is the receiver-side counterpart of an in-flight transfer
// (spec §3 Incoming Transfer). Sequence numbers arrive per stripe
// channel but are globally monotonic across the whole file, so
// reassembly is a single expectedSeq/pending map regardless of how
// many channels feed it.
type Incoming struct {
	FileID      string
	StreamBase  string
	StreamCount int
	Name        string
	Size        int64

	mu          sync.Mutex
	received    int64
	expectedSeq uint32
	pending     map[uint32][]byte

	sink      Sink
	memChunks [][]byte
	wq        *writeQueue
	fast      bool

	accepted    bool
	acceptAcked bool
	cancelled   bool
	cancelErr   error
}

// NewIncoming builds an Incoming from an announced file-meta. sink may
// be nil, in which case bytes are buffered in memory (spec §9
// fallback). fast selects the doubled write-batch target (spec §4.5
// point 4).
func NewIncoming(meta FileMeta, sink Sink, fast bool) *Incoming {
	it := &Incoming{
		FileID:      meta.FileID,
		StreamBase:  meta.StreamBase,
		StreamCount: meta.StreamCount,
		Name:        meta.Name,
		Size:        meta.Size,
		pending:     make(map[uint32][]byte),
		sink:        sink,
		fast:        fast,
	}
	if sink != nil {
		it.wq = &writeQueue{}
	}
	return it
}

// MatchesStream reports whether a frame arriving on streamID belongs
// to this transfer: either the base stream itself, or one of its
// "base:n" stripe siblings (spec §4.3 channel routing).
func (it *Incoming) MatchesStream(streamID string) bool {
	if streamID == it.StreamBase {
		return true
	}
	prefix := it.StreamBase + ":"
	return len(streamID) > len(prefix) && streamID[:len(prefix)] == prefix
}

// commitResult describes what a Commit call produced, so the caller
// can drive control-message emission without re-deriving state.
type commitResult struct {
	flushed  [][]byte
	complete bool
}

// Commit records one inbound frame. Duplicate sequence numbers are
// dropped silently (spec §4.5: "a duplicate seq ... is dropped").
// Out-of-order frames are buffered until the gap closes, then drained
// contiguously. Returns the bytes newly ready to flush to the sink (or
// nil if none reached the batch target yet) and whether the transfer
// is now complete.
func (it *Incoming) Commit(seq uint32, payload []byte) commitResult {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.cancelled {
		return commitResult{}
	}

	if seq < it.expectedSeq {
		return commitResult{} // duplicate
	}
	if seq != it.expectedSeq {
		if _, dup := it.pending[seq]; !dup {
			it.pending[seq] = payload
		}
		return commitResult{}
	}

	it.acceptContiguousLocked(payload)

	var flushed [][]byte
	target := framing.WriteBatchTarget(it.fast)
	complete := it.received >= it.Size
	if it.sink != nil {
		if batch, ok := it.wq.drain(target); ok {
			flushed = batch
		}
		if complete {
			flushed = append(flushed, it.wq.forceDrain()...)
		}
	}
	return commitResult{flushed: flushed, complete: complete}
}

// acceptContiguousLocked appends payload for the just-arrived
// expectedSeq, then drains any buffered frames that are now
// contiguous. Caller holds it.mu.
func (it *Incoming) acceptContiguousLocked(payload []byte) {
	it.commitOneLocked(payload)
	for {
		next, ok := it.pending[it.expectedSeq]
		if !ok {
			return
		}
		delete(it.pending, it.expectedSeq)
		it.commitOneLocked(next)
	}
}

func (it *Incoming) commitOneLocked(payload []byte) {
	it.received += int64(len(payload))
	it.expectedSeq++
	if it.sink != nil {
		it.wq.push(payload)
	} else {
		it.memChunks = append(it.memChunks, payload)
	}
}

// Bytes returns the in-memory fallback buffer concatenated. Only
// meaningful when no sink was supplied.
func (it *Incoming) Bytes() []byte {
	it.mu.Lock()
	defer it.mu.Unlock()
	total := 0
	for _, c := range it.memChunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range it.memChunks {
		out = append(out, c...)
	}
	return out
}

// Received reports bytes committed so far.
func (it *Incoming) Received() int64 {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.received
}

func (it *Incoming) markAccepted()    { it.mu.Lock(); it.accepted = true; it.mu.Unlock() }
func (it *Incoming) markAcceptAcked() { it.mu.Lock(); it.acceptAcked = true; it.mu.Unlock() }

func (it *Incoming) isAcceptAcked() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.acceptAcked
}

// Cancel marks the transfer cancelled and returns the bytes still
// pending in the write queue, for a best-effort final flush before
// abort.
func (it *Incoming) Cancel(reason error) [][]byte {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.cancelled = true
	it.cancelErr = reason
	if it.wq != nil {
		return it.wq.forceDrain()
	}
	return nil
}
