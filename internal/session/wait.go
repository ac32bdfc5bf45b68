package session

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/zealer1995/share-file.online/internal/cancelctx"
	"github.com/zealer1995/share-file.online/internal/xferrors"
)

// WaitForRemoteCapabilities blocks until a "hello" has been seen on
// the control channel, or returns (nil, nil) on timeout (spec §4.3
// waitForRemoteCapabilities: "resolves null on timeout").
func (s *Session) WaitForRemoteCapabilities(ctx context.Context, timeout time.Duration) (*Capabilities, error) {
	select {
	case <-s.capsReceived:
		s.mu.Lock()
		caps := s.remoteCaps
		s.mu.Unlock()
		return caps, nil
	case <-time.After(timeout):
		return nil, nil
	case <-s.cancel.Done():
		return nil, xferrors.WrapCancelReason("wait for remote capabilities", s.cancel.Reason())
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// BufferWaitOptions parameterizes WaitForBuffer (spec §4.3
// waitForBuffer).
type BufferWaitOptions struct {
	High    uint64
	Low     uint64
	Timeout time.Duration
	Cancel  *cancelctx.Token
}

// WaitForBuffer only blocks once dc.BufferedAmount() exceeds
// opts.High, then waits until it drains to opts.Low or dc leaves the
// open state (spec §4.4: high/low is a hysteresis pair — pause above
// high, resume at low). It polls rather than relying solely on pion's
// OnBufferedAmountLow callback so that a channel which is already
// under the high watermark returns immediately and a channel that
// closes mid-wait is observed promptly.
func (s *Session) WaitForBuffer(dc *webrtc.DataChannel, opts BufferWaitOptions) error {
	if dc.BufferedAmount() <= opts.High || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return nil
	}

	low := make(chan struct{}, 1)
	dc.SetBufferedAmountLowThreshold(opts.Low)
	dc.OnBufferedAmountLow(func() {
		select {
		case low <- struct{}{}:
		default:
		}
	})

	poll := time.NewTicker(25 * time.Millisecond)
	defer poll.Stop()

	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()

	cancelDone := s.cancel.Done()
	if opts.Cancel != nil {
		cancelDone = opts.Cancel.Done()
	}

	for {
		select {
		case <-low:
			return nil
		case <-poll.C:
			if dc.BufferedAmount() <= opts.Low || dc.ReadyState() != webrtc.DataChannelStateOpen {
				return nil
			}
		case <-deadline.C:
			return xferrors.New(xferrors.Timeout, "wait for buffer drain timeout")
		case <-cancelDone:
			reason := s.cancel.Reason()
			if opts.Cancel != nil {
				reason = opts.Cancel.Reason()
			}
			return xferrors.WrapCancelReason("wait for buffer drain", reason)
		}
	}
}
