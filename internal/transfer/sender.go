package transfer

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/zealer1995/share-file.online/internal/config"
	"github.com/zealer1995/share-file.online/internal/framing"
	"github.com/zealer1995/share-file.online/internal/session"
	"github.com/zealer1995/share-file.online/internal/xferrors"
)

const (
	acceptWaitTimeout   = 10 * time.Minute
	bufferWaitTimeout   = 60 * time.Second
	fileDoneWaitTimeout = 10 * time.Minute
	channelOpenTimeout  = 20 * time.Second
	capsWaitTimeout     = 5 * time.Second
)

// Sender owns the outgoing queue for one Session and runs the
// sender-side half of spec §4.5: at most one active send, the
// file-meta -> file-accept -> file-accept-ack -> chunked-send ->
// file-done handshake, and cancel-on-failure cleanup. Grounded on
// Warpdrop's sender.go loop (metadata send, waitForReady, chunked
// send with waitForWindow backpressure, final "done" message),
// re-expressed with striping and the spec's own control vocabulary.
type Sender struct {
	sess *session.Session
	cfg  *config.Config

	queue outgoingQueue

	mu        sync.Mutex
	accepted  map[string]chan struct{}
	doneSeen  map[string]chan struct{}
	onProgress func(fileID string, sent, size int64)
}

// NewSender builds a Sender bound to sess; sess.Events.OnControl must
// route file-accept/file-done/file-cancel to this Sender's
// HandleControl (typically via an Engine).
func NewSender(sess *session.Session, cfg *config.Config) *Sender {
	return &Sender{
		sess:     sess,
		cfg:      cfg,
		accepted: make(map[string]chan struct{}),
		doneSeen: make(map[string]chan struct{}),
	}
}

// OnProgress registers a callback invoked after each successfully sent
// chunk of the active transfer.
func (s *Sender) OnProgress(fn func(fileID string, sent, size int64)) {
	s.mu.Lock()
	s.onProgress = fn
	s.mu.Unlock()
}

// Enqueue queues o for sending and kicks the queue if nothing else is
// active. It returns nothing: every send, whether started at once or
// queued behind another, surfaces its outcome via o.Err()/o.State().
func (s *Sender) Enqueue(ctx context.Context, o *Outgoing) {
	s.queue.enqueue(o)
	go s.pump(ctx)
}

// pump drains the queue one transfer at a time (spec §4.5: "the
// outgoing queue admits at most one active send").
func (s *Sender) pump(ctx context.Context) {
	for {
		job := s.queue.next()
		if job == nil {
			return
		}
		s.runOne(ctx, job)
		s.queue.finishActive()
	}
}

func (s *Sender) runOne(ctx context.Context, job *Outgoing) {
	job.setState(OutgoingNegotiating)

	base := s.sess.OutgoingStreamBase()
	streamCount := s.negotiateStreamCount(ctx)

	channels, err := s.sess.EnsureFileChannels(ctx, base, streamCount, channelOpenTimeout)
	if err != nil {
		job.fail(err)
		return
	}

	acceptCh := make(chan struct{}, 1)
	s.mu.Lock()
	s.accepted[job.FileID] = acceptCh
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.accepted, job.FileID)
		s.mu.Unlock()
	}()

	meta := session.ControlMessage{
		Type: session.MsgFileMeta,
		ID:   job.FileID,
		Sid:  base,
		Sc:   streamCount,
		Name: job.Name,
		Size: job.Source.Size(),
	}
	if err := s.sess.SendControlMessage(meta); err != nil {
		job.fail(err)
		return
	}
	job.markMetaSent()

	if err := s.waitForAccept(ctx, job, acceptCh); err != nil {
		s.cancelJob(job, base, err)
		return
	}

	ack := session.ControlMessage{Type: session.MsgFileAcceptAck, ID: job.FileID}
	if err := s.sess.SendControlMessage(ack); err != nil {
		s.cancelJob(job, base, err)
		return
	}

	job.setState(OutgoingSending)
	if err := s.sendChunks(ctx, job, channels); err != nil {
		s.cancelJob(job, base, err)
		return
	}

	// Completion is declared on writing the last frame for ordered file
	// channels; only the unordered case needs the receiver's file-done
	// to know every stripe's reassembly has actually finished (spec
	// §4.5 sender step 6).
	if s.cfg.UseUnorderedFileChannels {
		job.setState(OutgoingAwaitingFinalAck)
		if err := s.waitForDone(ctx, job); err != nil {
			s.cancelJob(job, base, err)
			return
		}
	}

	job.setState(OutgoingDone)
	s.sess.CloseFileChannelsByPrefix(base)
}

func (s *Sender) negotiateStreamCount(ctx context.Context) int {
	caps, err := s.sess.WaitForRemoteCapabilities(ctx, capsWaitTimeout)
	if err != nil || caps == nil {
		return framing.StripeCount(s.cfg.UseStriping, false)
	}
	return framing.StripeCount(s.cfg.UseStriping, caps.Striping)
}

func (s *Sender) waitForAccept(ctx context.Context, job *Outgoing, acceptCh chan struct{}) error {
	timer := time.NewTimer(acceptWaitTimeout)
	defer timer.Stop()
	select {
	case <-acceptCh:
		return nil
	case <-timer.C:
		return xferrors.New(xferrors.Timeout, "timed out waiting for file-accept")
	case <-job.Cancel.Done():
		return xferrors.WrapCancelReason("wait for accept", job.Cancel.Reason())
	case <-s.sess.Cancel().Done():
		return xferrors.WrapCancelReason("wait for accept", s.sess.Cancel().Reason())
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sender) waitForDone(ctx context.Context, job *Outgoing) error {
	s.mu.Lock()
	doneCh, ok := s.doneSeen[job.FileID]
	if !ok {
		doneCh = make(chan struct{}, 1)
		s.doneSeen[job.FileID] = doneCh
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.doneSeen, job.FileID)
		s.mu.Unlock()
	}()

	timer := time.NewTimer(fileDoneWaitTimeout)
	defer timer.Stop()
	select {
	case <-doneCh:
		return nil
	case <-timer.C:
		return xferrors.New(xferrors.Timeout, "timed out waiting for file-done")
	case <-job.Cancel.Done():
		return xferrors.WrapCancelReason("wait for done", job.Cancel.Reason())
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sender) sendChunks(ctx context.Context, job *Outgoing, channels []*webrtc.DataChannel) error {
	watermarks := framing.NewWatermarks()
	chunkSize := int64(framing.ChunkSize(0))
	size := job.Source.Size()
	budget := framing.PacingBudget(s.cfg.Fast)

	var seq uint32
	var offset int64
	stripe := 0
	budgetStart := time.Now()

	for offset < size {
		if job.Cancel.Aborted() {
			return xferrors.WrapCancelReason("send chunks", job.Cancel.Reason())
		}
		if time.Since(budgetStart) >= budget {
			// Per-transfer time-budget loop (spec §4.4/§5): yield
			// cooperatively once the budget elapses, then re-check
			// backpressure across stripes on the next iteration.
			runtime.Gosched()
			budgetStart = time.Now()
		}

		length := chunkSize
		if offset+length > size {
			length = size - offset
		}
		data, err := job.Source.Slice(offset, length)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return xferrors.New(xferrors.SinkError, "source returned no bytes before reaching declared size")
		}

		dc := channels[stripe%len(channels)]
		waitOpts := session.BufferWaitOptions{
			High:    watermarks.High,
			Low:     watermarks.Low,
			Timeout: bufferWaitTimeout,
			Cancel:  job.Cancel,
		}
		if err := s.sess.WaitForBuffer(dc, waitOpts); err != nil {
			return err
		}

		encoded := framing.Encode(framing.Frame{Seq: seq, Payload: data})
		if err := dc.Send(encoded); err != nil {
			if framing.IsQueueFullError(err) {
				drainTarget := watermarks.AdjustOnQueueFull()
				_ = s.sess.WaitForBuffer(dc, session.BufferWaitOptions{
					High: watermarks.High, Low: drainTarget, Timeout: bufferWaitTimeout, Cancel: job.Cancel,
				})
				continue // retry the same chunk at the (now lower) watermark
			}
			return xferrors.Wrap(xferrors.ChannelClosed, "send file chunk", err)
		}

		offset += int64(len(data))
		seq++
		stripe++

		s.mu.Lock()
		cb := s.onProgress
		s.mu.Unlock()
		if cb != nil {
			cb(job.FileID, offset, size)
		}
	}
	return nil
}

// cancelJob sends file-cancel (if file-meta had already been sent and
// the cancellation did not itself originate from the peer) and tears
// down the transfer's channels (spec §4.5 "on any failure"). A cause
// of kind Cancelled or PeerCancelled leaves the job in the cancelled
// state; any other cause leaves it failed.
func (s *Sender) cancelJob(job *Outgoing, base string, cause error) {
	job.fail(cause)
	if k := xferrors.Of(cause); k == xferrors.Cancelled || k == xferrors.PeerCancelled {
		job.setState(OutgoingCancelled)
	}
	if job.didSendMeta() && xferrors.Of(cause) != xferrors.PeerCancelled {
		_ = s.sess.SendControlMessage(session.ControlMessage{
			Type:   session.MsgFileCancel,
			ID:     job.FileID,
			Reason: cause.Error(),
		})
	}
	s.sess.CloseFileChannelsByPrefix(base)
}

// HandleControl processes the sender-relevant subset of inbound
// control messages: file-accept, file-done and file-cancel. Call from
// an Engine's dispatch.
func (s *Sender) HandleControl(cm session.ControlMessage) {
	switch cm.Type {
	case session.MsgFileAccept:
		s.mu.Lock()
		ch, ok := s.accepted[cm.ID]
		s.mu.Unlock()
		if ok {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	case session.MsgFileDone:
		s.mu.Lock()
		ch, ok := s.doneSeen[cm.ID]
		if !ok {
			// early arrival: remember it was seen before waitForDone
			// started listening, scoped to this fileID only.
			ch = make(chan struct{}, 1)
			s.doneSeen[cm.ID] = ch
		}
		s.mu.Unlock()
		select {
		case ch <- struct{}{}:
		default:
		}
	case session.MsgFileCancel:
		s.handlePeerCancel(cm)
	}
}

// handlePeerCancel aborts the active job's cancel token when an
// inbound file-cancel names it, surfacing PeerCancelled to whichever
// wait is currently blocking the send pump (spec E2E-4: "the sender
// observes file-cancel via control channel, aborts its pump ...
// surfaces PeerCancelled to the caller").
func (s *Sender) handlePeerCancel(cm session.ControlMessage) {
	job := s.queue.Active()
	if job == nil || job.FileID != cm.ID {
		return
	}
	job.Cancel.Abort(xferrors.New(xferrors.PeerCancelled, cm.Reason))
}

// Active returns the currently-sending Outgoing, if any.
func (s *Sender) Active() *Outgoing { return s.queue.Active() }

// QueueLen reports how many transfers are queued or active.
func (s *Sender) QueueLen() int { return s.queue.Len() }
