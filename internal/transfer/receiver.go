package transfer

import (
	"sync"
	"time"

	"github.com/zealer1995/share-file.online/internal/config"
	"github.com/zealer1995/share-file.online/internal/session"
	"github.com/zealer1995/share-file.online/internal/xferrors"
)

const (
	acceptResendInterval = 700 * time.Millisecond
	acceptResendAttempts = 20
)

// ReceiverEvents is the narrow capability-set a caller registers to
// drive receiver-side UI/consent and progress reporting (spec §9).
type ReceiverEvents struct {
	// OnFileOffer fires once per accepted file-meta; the caller decides
	// whether/how to accept by calling Receiver.Accept.
	OnFileOffer func(meta FileMeta)
	OnProgress  func(fileID string, received, size int64)
	OnDone      func(fileID string)
	OnCancelled func(fileID string, reason string)
}

// Receiver runs the receiver-side half of spec §4.5: a single active
// Incoming transfer at a time ("if peer.receiving already set, ignore"
// any further file-meta), the file-accept resend loop bounded to 20
// attempts at 700 ms, frame reassembly, and write-queue flushing.
// Grounded on Warpdrop's receiver.go (ready-to-receive request,
// chunk-channel dispatch, seek/write, Final flag), re-expressed
// against the spec's file-meta/file-accept/file-done vocabulary.
type Receiver struct {
	sess   *session.Session
	cfg    *config.Config
	events ReceiverEvents

	mu          sync.Mutex
	current     *Incoming
	ackSeen     chan struct{}
	stopResend  chan struct{}
}

// NewReceiver builds a Receiver bound to sess. cfg.Fast selects the
// doubled write-batch target for every Incoming it creates (spec
// §4.5 point 4).
func NewReceiver(sess *session.Session, cfg *config.Config, events ReceiverEvents) *Receiver {
	return &Receiver{sess: sess, cfg: cfg, events: events}
}

// HandleFileMeta processes an inbound file-meta announcement.
func (r *Receiver) HandleFileMeta(cm session.ControlMessage) {
	r.mu.Lock()
	if r.current != nil {
		r.mu.Unlock()
		return // one active incoming transfer at a time; ignore, don't queue
	}
	it := NewIncoming(FileMeta{
		FileID:      cm.ID,
		StreamBase:  cm.Sid,
		StreamCount: cm.Sc,
		Name:        cm.Name,
		Size:        cm.Size,
	}, nil, r.cfg.Fast)
	r.current = it
	r.mu.Unlock()

	if r.events.OnFileOffer != nil {
		r.events.OnFileOffer(FileMeta{
			FileID: it.FileID, StreamBase: it.StreamBase, StreamCount: it.StreamCount,
			Name: it.Name, Size: it.Size,
		})
	}
}

// Accept begins the accept handshake for fileID: it attaches sink (nil
// for the in-memory fallback) and repeatedly sends file-accept every
// 700 ms, up to 20 attempts, until file-accept-ack is observed or the
// transfer is cancelled (spec §4.5 receiver accept-resend).
func (r *Receiver) Accept(fileID string, sink Sink) error {
	r.mu.Lock()
	it := r.current
	if it == nil || it.FileID != fileID {
		r.mu.Unlock()
		return xferrors.New(xferrors.ProtocolViolation, "accept called for unknown or inactive fileID")
	}
	if sink != nil {
		it.sink = sink
		it.wq = &writeQueue{}
	}
	it.markAccepted()
	ackSeen := make(chan struct{}, 1)
	stop := make(chan struct{})
	r.ackSeen = ackSeen
	r.stopResend = stop
	r.mu.Unlock()

	go r.resendAccept(fileID, ackSeen, stop)
	return nil
}

func (r *Receiver) resendAccept(fileID string, ackSeen chan struct{}, stop chan struct{}) {
	ticker := time.NewTicker(acceptResendInterval)
	defer ticker.Stop()

	send := func() {
		_ = r.sess.SendControlMessage(session.ControlMessage{Type: session.MsgFileAccept, ID: fileID})
	}
	send()

	for attempt := 1; attempt < acceptResendAttempts; attempt++ {
		select {
		case <-ackSeen:
			return
		case <-stop:
			return
		case <-r.sess.Cancel().Done():
			return
		case <-ticker.C:
			send()
		}
	}
}

// HandleAcceptAck marks the active incoming transfer's accept as
// acknowledged, stopping the resend loop.
func (r *Receiver) HandleAcceptAck(cm session.ControlMessage) {
	r.mu.Lock()
	it := r.current
	ackSeen := r.ackSeen
	r.mu.Unlock()
	if it == nil || it.FileID != cm.ID {
		return
	}
	it.markAcceptAcked()
	if ackSeen != nil {
		select {
		case ackSeen <- struct{}{}:
		default:
		}
	}
}

// HandleFileFrame routes an inbound file frame to the active Incoming
// transfer, flushes any bytes the commit made ready, and emits
// file-done once the declared size is reached.
func (r *Receiver) HandleFileFrame(streamID string, seq uint32, payload []byte) {
	r.mu.Lock()
	it := r.current
	r.mu.Unlock()
	if it == nil || !it.MatchesStream(streamID) || !it.isAcceptAcked() {
		return
	}

	res := it.Commit(seq, payload)
	r.flush(it, res.flushed)

	if r.events.OnProgress != nil {
		r.events.OnProgress(it.FileID, it.Received(), it.Size)
	}

	if res.complete {
		r.finish(it)
	}
}

func (r *Receiver) flush(it *Incoming, batch [][]byte) {
	if it.sink == nil {
		return
	}
	for _, b := range batch {
		if _, err := it.sink.Write(b); err != nil {
			r.abortLocal(it, err)
			return
		}
	}
}

func (r *Receiver) finish(it *Incoming) {
	if it.sink != nil {
		_ = it.sink.Close()
	}
	_ = r.sess.SendControlMessage(session.ControlMessage{Type: session.MsgFileDone, ID: it.FileID})

	r.mu.Lock()
	if r.current == it {
		r.current = nil
	}
	r.mu.Unlock()

	if r.events.OnDone != nil {
		r.events.OnDone(it.FileID)
	}
}

// Cancel aborts the active incoming transfer locally and notifies the
// peer with file-cancel (spec §4.5: "the user may cancel ... the
// receiver emits file-cancel").
func (r *Receiver) Cancel(fileID, reason string) {
	r.mu.Lock()
	it := r.current
	stop := r.stopResend
	r.mu.Unlock()
	if it == nil || it.FileID != fileID {
		return
	}
	if stop != nil {
		close(stop)
	}
	it.Cancel(xferrors.New(xferrors.Cancelled, reason))
	if it.sink != nil {
		_ = it.sink.Abort()
	}
	_ = r.sess.SendControlMessage(session.ControlMessage{Type: session.MsgFileCancel, ID: fileID, Reason: reason})

	r.mu.Lock()
	if r.current == it {
		r.current = nil
	}
	r.mu.Unlock()
}

// HandleFileCancel processes a peer-initiated cancellation: abort
// locally without re-sending cancel (spec §4.5 "if the peer sends
// file-cancel, abort locally without re-notifying").
func (r *Receiver) HandleFileCancel(cm session.ControlMessage) {
	r.mu.Lock()
	it := r.current
	stop := r.stopResend
	r.mu.Unlock()
	if it == nil || it.FileID != cm.ID {
		return
	}
	if stop != nil {
		close(stop)
	}
	it.Cancel(xferrors.New(xferrors.PeerCancelled, cm.Reason))
	if it.sink != nil {
		_ = it.sink.Abort()
	}

	r.mu.Lock()
	if r.current == it {
		r.current = nil
	}
	r.mu.Unlock()

	if r.events.OnCancelled != nil {
		r.events.OnCancelled(cm.ID, cm.Reason)
	}
}

func (r *Receiver) abortLocal(it *Incoming, err error) {
	it.Cancel(err)
	if it.sink != nil {
		_ = it.sink.Abort()
	}
	_ = r.sess.SendControlMessage(session.ControlMessage{Type: session.MsgFileCancel, ID: it.FileID, Reason: err.Error()})

	r.mu.Lock()
	if r.current == it {
		r.current = nil
	}
	r.mu.Unlock()

	if r.events.OnCancelled != nil {
		r.events.OnCancelled(it.FileID, err.Error())
	}
}

// Active returns the in-progress Incoming transfer, if any.
func (r *Receiver) Active() *Incoming {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}
